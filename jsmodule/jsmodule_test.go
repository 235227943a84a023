package jsmodule

import (
	"sync"
	"testing"

	"github.com/wippyai/hostbridge/errors"
)

type call struct {
	module, method string
	args           []any
}

type recordingCaller struct {
	mu    sync.Mutex
	calls []call
}

func (c *recordingCaller) CallFunction(module, method string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{module, method, args})
}

var appRegistry = &Interface{
	Name:    "AppRegistry",
	Methods: []string{"runApplication", "unmountApplicationComponentAtRootTag"},
}

func TestRegistry_MemoizesByInterface(t *testing.T) {
	r := NewRegistry(&recordingCaller{}, true)

	h1, err := r.Get(appRegistry)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	h2, err := r.Get(appRegistry)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected the same handle for the same interface")
	}

	// Same name, different interface value: separate handle.
	other := &Interface{Name: "AppRegistry", Methods: []string{"runApplication"}}
	h3, err := r.Get(other)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h3 == h1 {
		t.Fatal("handles are keyed by interface identity, not name")
	}
}

func TestHandle_CallForwardsInOrder(t *testing.T) {
	caller := &recordingCaller{}
	r := NewRegistry(caller, false)
	h := r.MustGet(appRegistry)

	if err := h.Call("runApplication", "Main", map[string]any{"rootTag": 1}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := h.Call("unmountApplicationComponentAtRootTag", 1); err != nil {
		t.Fatalf("call: %v", err)
	}

	if len(caller.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(caller.calls))
	}
	first := caller.calls[0]
	if first.module != "AppRegistry" || first.method != "runApplication" {
		t.Fatalf("first call = %s.%s", first.module, first.method)
	}
	params, ok := first.args[1].(map[string]any)
	if !ok || params["rootTag"] != int64(1) {
		t.Fatalf("args not normalized: %#v", first.args)
	}
	if caller.calls[1].args[0] != int64(1) {
		t.Fatalf("second call args = %#v", caller.calls[1].args)
	}
}

func TestHandle_UnknownMethod(t *testing.T) {
	caller := &recordingCaller{}
	h := NewRegistry(caller, false).MustGet(appRegistry)

	err := h.Call("missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(caller.calls) != 0 {
		t.Fatal("unknown method must not reach the runtime")
	}
}

func TestRegistry_DuplicateMethodsInDebug(t *testing.T) {
	dup := &Interface{Name: "Timers", Methods: []string{"callTimers", "callTimers"}}

	if _, err := NewRegistry(&recordingCaller{}, true).Get(dup); !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("debug err = %v, want configuration error", err)
	}
	if _, err := NewRegistry(&recordingCaller{}, false).Get(dup); err != nil {
		t.Fatalf("release build should not validate, got %v", err)
	}
}
