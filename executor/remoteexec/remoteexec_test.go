package remoteexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
)

// fakeDebugger answers executor requests the way a debugger proxy does.
type fakeDebugger struct {
	mu       sync.Mutex
	requests []request
	silent   bool
}

func (f *fakeDebugger) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			f.mu.Lock()
			f.requests = append(f.requests, req)
			silent := f.silent
			f.mu.Unlock()
			if silent {
				continue
			}

			resp := map[string]any{"replyID": req.ID}
			switch req.ModuleMethod {
			case "callFunctionReturnFlushedQueue":
				if req.Arguments[0] == "Broken" {
					resp["error"] = "TypeError: undefined is not a function"
					break
				}
				// Queue encoded as a string, like the browser debugger does.
				resp["result"] = `[[0, 1, ["reply"], 4]]`
			case "invokeCallbackAndReturnFlushedQueue":
				resp["result"] = [][]any{{0, 0, []any{}, nil}}
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}

func (f *fakeDebugger) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Method
		if r.ModuleMethod != "" {
			out[i] += ":" + r.ModuleMethod
		}
	}
	return out
}

type delegate struct {
	mu      sync.Mutex
	flushed []bridge.NativeCall
}

func (d *delegate) ModuleNames() []string { return []string{"Echo"} }

func (d *delegate) ModuleConfig(name string) (*nativemodule.ModuleConfig, error) {
	return &nativemodule.ModuleConfig{Name: name, Methods: []string{"a", "b"}}, nil
}

func (d *delegate) FlushQueue(calls []bridge.NativeCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushed = append(d.flushed, calls...)
}

func (d *delegate) CallSync(int, int, []any) (any, error) { return nil, nil }
func (d *delegate) HandleException(error)                 {}

func dial(t *testing.T, f *fakeDebugger, timeout time.Duration) *Executor {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ex, err := Dial(context.Background(), url, timeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func TestExecutor_Protocol(t *testing.T) {
	f := &fakeDebugger{}
	ex := dial(t, f, time.Second)
	d := &delegate{}

	if err := ex.SetModuleSource(d); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := ex.LoadBundle(context.Background(), bridge.Bundle{URL: "http://localhost:8081/index.bundle"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ex.CallFunction("AppRegistry", "runApplication", []any{"Main"}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if err := ex.InvokeCallback(4, []any{"ok"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	want := []string{
		"prepareJSRuntime",
		"executeApplicationScript",
		"executeJSCall:flushedQueue",
		"executeJSCall:callFunctionReturnFlushedQueue",
		"executeJSCall:invokeCallbackAndReturnFlushedQueue",
	}
	if got := f.methods(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("requests = %v", got)
	}

	f.mu.Lock()
	inject := f.requests[1].Inject["__fbBatchedBridgeConfig"]
	f.mu.Unlock()
	var cfg map[string]any
	if err := json.Unmarshal([]byte(inject.(string)), &cfg); err != nil {
		t.Fatalf("inject: %v", err)
	}
	if mods, _ := cfg["remoteModuleConfig"].([]any); len(mods) != 1 {
		t.Fatalf("module config = %v", cfg)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.flushed) != 2 {
		t.Fatalf("flushed = %+v", d.flushed)
	}
	if c := d.flushed[0]; c.ModuleID != 0 || c.MethodID != 1 || c.CallbackID != 4 || c.Args[0] != "reply" {
		t.Fatalf("first call = %+v", c)
	}
	if d.flushed[1].CallbackID != nativemodule.NoCallback {
		t.Fatalf("second call = %+v", d.flushed[1])
	}
}

func TestExecutor_RemoteError(t *testing.T) {
	ex := dial(t, &fakeDebugger{}, time.Second)
	ex.delegate = &delegate{}

	err := ex.CallFunction("Broken", "x", nil)
	if !errors.Is(err, errors.ErrRuntimeCall) || !strings.Contains(err.Error(), "TypeError") {
		t.Fatalf("err = %v", err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	ex := dial(t, &fakeDebugger{silent: true}, 50*time.Millisecond)

	err := ex.SetModuleSource(&delegate{})
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestExecutor_ClosedFailsRequests(t *testing.T) {
	ex := dial(t, &fakeDebugger{}, time.Second)
	if err := ex.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ex.SetModuleSource(&delegate{}); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("err = %v, want closed", err)
	}
}

func TestExecutor_LoadNeedsURL(t *testing.T) {
	ex := dial(t, &fakeDebugger{}, time.Second)
	ex.delegate = &delegate{}
	if err := ex.LoadBundle(context.Background(), bridge.Bundle{Name: "x"}); err == nil {
		t.Fatal("expected error without bundle URL")
	}
}
