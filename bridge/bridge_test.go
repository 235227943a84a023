package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/queue"
)

type fakeExecutor struct {
	mu        sync.Mutex
	delegate  Delegate
	loads     int
	calls     []string
	callbacks map[int][]any
	closes    atomic.Int32
	loadErr   error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{callbacks: make(map[int][]any)}
}

func (e *fakeExecutor) SetModuleSource(d Delegate) error {
	e.delegate = d
	return nil
}

func (e *fakeExecutor) LoadBundle(context.Context, Bundle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	return e.loadErr
}

func (e *fakeExecutor) CallFunction(module, method string, args []any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, fmt.Sprintf("%s.%s%v", module, method, args))
	return nil
}

func (e *fakeExecutor) InvokeCallback(id int, args []any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[id] = args
	return nil
}

func (e *fakeExecutor) Close() error {
	e.closes.Add(1)
	return nil
}

func (e *fakeExecutor) recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type echoModule struct {
	batches atomic.Int32
	invalid atomic.Int32
}

func (m *echoModule) Name() string { return "Echo" }

func (m *echoModule) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		{Name: "echo", Handler: func(c *nativemodule.Call) (any, error) {
			c.Callback.Invoke(c.Args...)
			return nil, nil
		}},
		{Name: "fail", Handler: func(*nativemodule.Call) (any, error) {
			return nil, fmt.Errorf("refused")
		}},
		{Name: "boom", Handler: func(*nativemodule.Call) (any, error) {
			panic("boom")
		}},
		{Name: "check", Kind: nativemodule.Sync, Signature: &nativemodule.Signature{}, Handler: func(*nativemodule.Call) (any, error) {
			return nil, fmt.Errorf("check failed")
		}},
	}
}

func (m *echoModule) OnBatchComplete() { m.batches.Add(1) }
func (m *echoModule) Invalidate()      { m.invalid.Add(1) }

type harness struct {
	ui       *queue.MessageQueue
	exec     *fakeExecutor
	bridge   *Bridge
	module   *echoModule
	mu       sync.Mutex
	failures []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ui:     queue.New("ui"),
		exec:   newFakeExecutor(),
		module: &echoModule{},
	}
	t.Cleanup(h.ui.Quit)

	b, err := New(Options{
		Queues:   queue.NewConfig(h.ui, queue.DefaultSpec()),
		Executor: h.exec,
		Loader:   BytesLoader{Name: "test.js", Source: []byte("//")},
		Modules: []nativemodule.ModuleSpec{{
			Name:    "Echo",
			Factory: func(nativemodule.Host) nativemodule.NativeModule { return h.module },
		}},
		Debug: true,
		ExceptionHandler: func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.failures = append(h.failures, err)
		},
	})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	h.bridge = b
	return h
}

func (h *harness) destroy(t *testing.T) {
	t.Helper()
	if err := h.ui.RunSync(h.bridge.Destroy); err != nil {
		t.Fatalf("destroy: %v", err)
	}
}

func (h *harness) errs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.failures...)
}

func TestBridge_CallsQueuedUntilBundleRuns(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)

	h.bridge.CallFunction("AppRegistry", "runApplication", "Main")
	h.bridge.CallFunction("AppState", "set", "active")
	if got := h.exec.recorded(); len(got) != 0 {
		t.Fatalf("calls delivered before bundle: %v", got)
	}

	if err := h.bridge.RunBundle(context.Background()); err != nil {
		t.Fatalf("run bundle: %v", err)
	}
	h.bridge.CallFunction("Timers", "callTimers", 1)
	h.bridge.Queues().Drain()

	want := []string{
		"AppRegistry.runApplication[Main]",
		"AppState.set[active]",
		"Timers.callTimers[1]",
	}
	got := h.exec.recorded()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestBridge_RunBundleOnce(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)

	for i := 0; i < 3; i++ {
		if err := h.bridge.RunBundle(context.Background()); err != nil {
			t.Fatalf("run bundle: %v", err)
		}
	}
	if h.exec.loads != 1 {
		t.Fatalf("bundle loaded %d times", h.exec.loads)
	}
	if !h.bridge.HasRunBundle() {
		t.Fatal("HasRunBundle = false")
	}
}

func TestBridge_RunBundleFailure(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)
	h.exec.loadErr = fmt.Errorf("syntax error")

	err := h.bridge.RunBundle(context.Background())
	if !errors.Is(err, errors.ErrRuntimeCall) {
		t.Fatalf("err = %v, want runtime call error", err)
	}
	if h.bridge.HasRunBundle() {
		t.Fatal("failed bundle reported as run")
	}
}

func TestBridge_FlushQueue(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)

	h.bridge.FlushQueue([]NativeCall{
		{ModuleID: 0, MethodID: 0, Args: []any{"pong"}, CallbackID: 7},
		{ModuleID: 0, MethodID: 1, CallbackID: nativemodule.NoCallback},
		{ModuleID: 0, MethodID: 2, CallbackID: nativemodule.NoCallback},
		{ModuleID: 9, MethodID: 0, CallbackID: nativemodule.NoCallback},
	})
	h.bridge.Queues().Drain()
	h.bridge.Queues().Drain()

	if got := h.exec.callbacks[7]; len(got) != 1 || got[0] != "pong" {
		t.Fatalf("callback 7 = %v", got)
	}
	if h.module.batches.Load() != 1 {
		t.Fatalf("batch complete fired %d times, want 1", h.module.batches.Load())
	}

	errs := h.errs()
	if len(errs) != 3 {
		t.Fatalf("exceptions = %v, want 3", errs)
	}
	if !errors.Is(errs[0], errors.ErrRuntimeCall) || !errors.Is(errs[1], errors.ErrRuntimeCall) {
		t.Fatalf("exceptions = %v", errs)
	}
	if !errors.Is(errs[2], errors.ErrNotFound) {
		t.Fatalf("unknown module = %v", errs[2])
	}
}

func TestBridge_CallSyncErrorsReachHandler(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)

	if _, err := h.bridge.CallSync(0, 3, nil); !errors.Is(err, errors.ErrRuntimeCall) {
		t.Fatalf("err = %v, want runtime call error", err)
	}
	// Async method called synchronously.
	if _, err := h.bridge.CallSync(0, 0, nil); err == nil {
		t.Fatal("async method accepted synchronously")
	}

	errs := h.errs()
	if len(errs) != 2 {
		t.Fatalf("exceptions = %v, want 2", errs)
	}
	if !errors.Is(errs[0], errors.ErrRuntimeCall) {
		t.Fatalf("first exception = %v", errs[0])
	}
}

func TestBridge_DestroyReleasesOnce(t *testing.T) {
	h := newHarness(t)
	if _, err := h.bridge.Module("Echo"); err != nil {
		t.Fatalf("module: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.ui.RunSync(h.bridge.Destroy)
		}()
	}
	wg.Wait()

	if n := h.exec.closes.Load(); n != 1 {
		t.Fatalf("executor closed %d times, want 1", n)
	}
	if n := h.module.invalid.Load(); n != 1 {
		t.Fatalf("modules invalidated %d times, want 1", n)
	}
	if !h.bridge.IsDestroyed() {
		t.Fatal("IsDestroyed = false")
	}

	// Entry points are no-ops now.
	h.bridge.CallFunction("AppRegistry", "runApplication")
	h.bridge.InvokeCallback(1)
	h.bridge.FlushQueue([]NativeCall{{ModuleID: 0, MethodID: 0}})
	if err := h.bridge.RunBundle(context.Background()); !errors.Is(err, errors.ErrDestroyed) {
		t.Fatalf("RunBundle after destroy = %v", err)
	}
}

func TestBridge_DestroyOffQueuePanics(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, errors.ErrLifecycleMisuse) {
			t.Fatalf("recovered %v, want lifecycle misuse", r)
		}
	}()
	h.bridge.Destroy()
}

type transitions struct {
	mu    sync.Mutex
	trace []string
}

func (t *transitions) OnTransitionToBridgeBusy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trace = append(t.trace, "busy")
}

func (t *transitions) OnTransitionToBridgeIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trace = append(t.trace, "idle")
}

func TestBridge_IdleTransitions(t *testing.T) {
	h := newHarness(t)
	defer h.destroy(t)
	if err := h.bridge.RunBundle(context.Background()); err != nil {
		t.Fatalf("run bundle: %v", err)
	}

	tr := &transitions{}
	h.bridge.AddIdleListener(tr)

	gate := make(chan struct{})
	h.bridge.Queues().Runtime.Run(func() { <-gate })
	h.bridge.CallFunction("A", "a")
	h.bridge.CallFunction("B", "b")
	if h.bridge.IsIdle() {
		t.Fatal("bridge idle with calls in flight")
	}
	close(gate)
	h.bridge.Queues().Drain()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if fmt.Sprint(tr.trace) != "[busy idle]" {
		t.Fatalf("trace = %v", tr.trace)
	}
	if !h.bridge.IsIdle() {
		t.Fatal("bridge busy after drain")
	}
}

func TestParseFlushedQueue(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    []NativeCall
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"empty", []any{}, []NativeCall{}, false},
		{
			name: "with callback",
			raw:  []any{[]any{int64(1), int64(2), []any{"a"}, int64(5)}},
			want: []NativeCall{{ModuleID: 1, MethodID: 2, Args: []any{"a"}, CallbackID: 5}},
		},
		{
			name: "float ids without callback",
			raw:  []any{[]any{1.0, 0.0, nil}},
			want: []NativeCall{{ModuleID: 1, MethodID: 0, CallbackID: nativemodule.NoCallback}},
		},
		{"not a list", "x", nil, true},
		{"short tuple", []any{[]any{int64(1)}}, nil, true},
		{"bad module id", []any{[]any{"x", int64(1), nil}}, nil, true},
		{"bad args", []any{[]any{int64(1), int64(1), "x"}}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlushedQueue(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, &errors.Error{Kind: errors.KindInvalidData}) {
					t.Fatalf("err = %v, want invalid data", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
