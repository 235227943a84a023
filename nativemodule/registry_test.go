package nativemodule

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/jsmodule"
	"github.com/wippyai/hostbridge/queue"
)

type fakeHost struct {
	mu        sync.Mutex
	callbacks map[int][]any
}

func newFakeHost() *fakeHost {
	return &fakeHost{callbacks: make(map[int][]any)}
}

func (h *fakeHost) ID() string            { return "test" }
func (h *fakeHost) Queues() *queue.Config { return nil }
func (h *fakeHost) RuntimeModule(*jsmodule.Interface) (*jsmodule.Handle, error) {
	return nil, errors.Unsupported(errors.PhaseRuntime, "no runtime")
}
func (h *fakeHost) HandleException(error) {}
func (h *fakeHost) InvokeCallback(id int, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[id] = args
}

type timing struct {
	created  *atomic.Int32
	consts   *atomic.Int32
	timers   []int
	batches  int
	invalid  bool
	dupNames bool
}

func (m *timing) Name() string { return "Timing" }

func (m *timing) Methods() []Method {
	methods := []Method{
		{Name: "createTimer", Handler: func(c *Call) (any, error) {
			id, err := c.Int(0)
			if err != nil {
				return nil, err
			}
			m.timers = append(m.timers, id)
			return nil, nil
		}},
		{Name: "now", Kind: Sync,
			Signature: &Signature{Result: wit.F64{}},
			Handler:   func(*Call) (any, error) { return 1234.5, nil }},
		{Name: "echo", Handler: func(c *Call) (any, error) {
			return c.Arg(0), nil
		}},
		{Name: "add", Kind: Sync,
			Signature: &Signature{Params: []wit.Type{wit.S32{}, wit.S32{}}, Result: wit.S32{}},
			Handler: func(c *Call) (any, error) {
				a, _ := c.Int(0)
				b, _ := c.Int(1)
				return a + b, nil
			}},
	}
	if m.dupNames {
		methods = append(methods, Method{Name: "now", Handler: func(*Call) (any, error) { return nil, nil }})
	}
	return methods
}

func (m *timing) Constants() map[string]any {
	m.consts.Add(1)
	return map[string]any{"frameRate": 60}
}

func (m *timing) OnBatchComplete() { m.batches++ }
func (m *timing) Invalidate()      { m.invalid = true }

func timingSpec(created, consts *atomic.Int32, hasConstants bool) (ModuleSpec, **timing) {
	var inst *timing
	return ModuleSpec{
		Name:         "Timing",
		HasConstants: hasConstants,
		Factory: func(Host) NativeModule {
			created.Add(1)
			inst = &timing{created: created, consts: consts}
			return inst
		},
	}, &inst
}

type named struct {
	name string
}

func (m *named) Name() string      { return m.name }
func (m *named) Methods() []Method { return nil }

func namedSpec(name string, override bool) ModuleSpec {
	return ModuleSpec{
		Name:        name,
		CanOverride: override,
		Factory:     func(Host) NativeModule { return &named{name: name} },
	}
}

func TestRegistry_DescriptorsStable(t *testing.T) {
	var created, consts atomic.Int32
	spec, _ := timingSpec(&created, &consts, false)
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{spec})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	first, err := r.Descriptors(0)
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	second, err := r.Descriptors(0)
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	if len(first) != 4 || len(first) != len(second) {
		t.Fatalf("descriptor count %d / %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != i || first[i].ID != second[i].ID || first[i].Name != second[i].Name {
			t.Errorf("descriptor %d changed: %+v vs %+v", i, first[i], second[i])
		}
	}
	if first[1].Kind != Sync || first[0].Kind != Async {
		t.Errorf("kinds = %v, %v", first[0].Kind, first[1].Kind)
	}
	if created.Load() != 1 {
		t.Errorf("factory ran %d times, want 1", created.Load())
	}
}

func TestRegistry_DuplicateMethod(t *testing.T) {
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{{
		Name: "Timing",
		Factory: func(Host) NativeModule {
			return &timing{created: new(atomic.Int32), consts: new(atomic.Int32), dupNames: true}
		},
	}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	_, err = r.Descriptors(0)
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	// Discovery failure is sticky, not retried per call.
	if err := r.Invoke(0, 0, []any{int64(1)}, NoCallback); !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("invoke err = %v, want configuration error", err)
	}
}

func TestRegistry_SpecValidation(t *testing.T) {
	tests := []struct {
		name  string
		specs []ModuleSpec
		ok    bool
	}{
		{"unique", []ModuleSpec{namedSpec("A", false), namedSpec("B", false)}, true},
		{"duplicate", []ModuleSpec{namedSpec("A", false), namedSpec("A", false)}, false},
		{"override", []ModuleSpec{namedSpec("A", false), namedSpec("A", true)}, true},
		{"missing factory", []ModuleSpec{{Name: "A"}}, false},
		{"missing name", []ModuleSpec{{Factory: func(Host) NativeModule { return nil }}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(newFakeHost(), tt.specs)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, errors.ErrConfiguration) {
				t.Fatalf("err = %v, want configuration error", err)
			}
		})
	}
}

func TestRegistry_OverrideKeepsID(t *testing.T) {
	replaced := ModuleSpec{
		Name:        "A",
		CanOverride: true,
		Factory:     func(Host) NativeModule { return &named{name: "replacement"} },
	}
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{namedSpec("A", false), namedSpec("B", false), replaced})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	id, err := r.ModuleID("A")
	if err != nil || id != 0 {
		t.Fatalf("ModuleID(A) = %d, %v", id, err)
	}
	mod, err := r.Module("A")
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	if mod.Name() != "replacement" {
		t.Fatalf("module = %s, want override", mod.Name())
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
}

func TestRegistry_ExtendAppendOnly(t *testing.T) {
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{namedSpec("A", false)})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	original, _ := r.Module("A")

	if err := r.Extend(namedSpec("B", false), namedSpec("A", true)); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got := r.Names(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("names = %v", got)
	}
	again, _ := r.Module("A")
	if again != original {
		t.Fatal("extension replaced a live module")
	}
}

func TestRegistry_ConstantsLazy(t *testing.T) {
	var created, consts atomic.Int32
	spec, _ := timingSpec(&created, &consts, true)
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{spec})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if consts.Load() != 0 {
		t.Fatal("constants computed before first access")
	}

	for i := 0; i < 3; i++ {
		c, err := r.Constants("Timing")
		if err != nil {
			t.Fatalf("constants: %v", err)
		}
		if c["frameRate"] != int64(60) {
			t.Fatalf("frameRate = %#v", c["frameRate"])
		}
	}
	if consts.Load() != 1 {
		t.Fatalf("constants computed %d times, want 1", consts.Load())
	}
}

func TestRegistry_ConstantsSkippedWithoutFlag(t *testing.T) {
	var created, consts atomic.Int32
	spec, _ := timingSpec(&created, &consts, false)
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{spec})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	cfg, err := r.Config("Timing")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Constants != nil || consts.Load() != 0 {
		t.Fatalf("constants computed without flag: %v", cfg.Constants)
	}
	if len(cfg.SyncMethods) != 2 || cfg.SyncMethods[0] != 1 || cfg.SyncMethods[1] != 3 {
		t.Fatalf("sync methods = %v", cfg.SyncMethods)
	}
}

func TestRegistry_Invoke(t *testing.T) {
	var created, consts atomic.Int32
	spec, inst := timingSpec(&created, &consts, false)
	host := newFakeHost()
	r, err := NewRegistry(host, []ModuleSpec{spec})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if err := r.Invoke(0, 0, []any{int64(7)}, NoCallback); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := (*inst).timers; len(got) != 1 || got[0] != 7 {
		t.Fatalf("timers = %v", got)
	}

	if err := r.Invoke(0, 2, []any{"hello"}, 42); err != nil {
		t.Fatalf("invoke echo: %v", err)
	}
	if got := host.callbacks[42]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("callback args = %v", got)
	}

	err = r.Invoke(0, 0, []any{"nope"}, NoCallback)
	if !errors.Is(err, errors.ErrRuntimeCall) {
		t.Fatalf("err = %v, want runtime call error", err)
	}
	if err := r.Invoke(0, 99, nil, NoCallback); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if err := r.Invoke(0, 1, nil, NoCallback); err == nil {
		t.Fatal("sync method accepted an async invocation")
	}
}

func TestRegistry_InvokeSync(t *testing.T) {
	var created, consts atomic.Int32
	spec, _ := timingSpec(&created, &consts, false)
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{spec})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	v, err := r.InvokeSync(0, 3, []any{int64(2), float64(3)})
	if err != nil {
		t.Fatalf("invoke sync: %v", err)
	}
	if v != int64(5) {
		t.Fatalf("add = %#v, want int64(5)", v)
	}

	_, err = r.InvokeSync(0, 3, []any{int64(2)})
	if !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Fatalf("arity err = %v", err)
	}
	_, err = r.InvokeSync(0, 3, []any{int64(2), "x"})
	if !errors.Is(err, &errors.Error{Kind: errors.KindTypeMismatch}) {
		t.Fatalf("type err = %v", err)
	}
}

func TestRegistry_CreatedFanOut(t *testing.T) {
	var created, consts atomic.Int32
	spec, inst := timingSpec(&created, &consts, false)
	r, err := NewRegistry(newFakeHost(), []ModuleSpec{spec, namedSpec("Lazy", false)})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if len(r.Created()) != 0 {
		t.Fatal("modules created eagerly")
	}
	if _, err := r.Module("Timing"); err != nil {
		t.Fatalf("module: %v", err)
	}
	r.OnBatchComplete()
	r.Invalidate()
	if (*inst).batches != 1 || !(*inst).invalid {
		t.Fatalf("batches=%d invalid=%v", (*inst).batches, (*inst).invalid)
	}
	if len(r.Created()) != 1 {
		t.Fatalf("created = %d, want 1", len(r.Created()))
	}

	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(r.Created()) != 2 {
		t.Fatal("validate did not create every module")
	}
}

func TestCallback_FiresOnce(t *testing.T) {
	var n int
	cb := NewCallback(3, func(id int, args ...any) { n++ })
	if !cb.Invoke("a") {
		t.Fatal("first invoke rejected")
	}
	if cb.Invoke("b") {
		t.Fatal("second invoke accepted")
	}
	if n != 1 {
		t.Fatalf("invoked %d times", n)
	}
}
