package wasmexec

import (
	"context"
	"sync"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
)

// echoWasm imports bridge.flush and reflects every frame it receives:
//
//	(module
//	  (import "bridge" "flush" (func $flush (param i32 i32)))
//	  (memory (export "memory") 1)
//	  (func (export "bridge_alloc") (param i32) (result i32) i32.const 1024)
//	  (func (export "bridge_call") (param i32 i32)
//	    local.get 0 local.get 1 call $flush))
var echoWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type
	0x01, 0x0b, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x00, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	// import bridge.flush
	0x02, 0x10, 0x01, 0x06, 'b', 'r', 'i', 'd', 'g', 'e', 0x05, 'f', 'l', 'u', 's', 'h', 0x00, 0x00,
	// function
	0x03, 0x03, 0x02, 0x01, 0x00,
	// memory
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export
	0x07, 0x27, 0x03,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0c, 'b', 'r', 'i', 'd', 'g', 'e', '_', 'a', 'l', 'l', 'o', 'c', 0x00, 0x01,
	0x0b, 'b', 'r', 'i', 'd', 'g', 'e', '_', 'c', 'a', 'l', 'l', 0x00, 0x02,
	// code
	0x0a, 0x10, 0x02,
	0x05, 0x00, 0x41, 0x80, 0x08, 0x0b,
	0x08, 0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b,
}

type fakeDelegate struct {
	mu      sync.Mutex
	flushed [][]bridge.NativeCall
	errs    []error
}

func (d *fakeDelegate) ModuleNames() []string { return []string{"Echo"} }

func (d *fakeDelegate) ModuleConfig(name string) (*nativemodule.ModuleConfig, error) {
	return &nativemodule.ModuleConfig{Name: name, Methods: []string{"echo"}}, nil
}

func (d *fakeDelegate) FlushQueue(calls []bridge.NativeCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushed = append(d.flushed, calls)
}

func (d *fakeDelegate) CallSync(int, int, []any) (any, error) {
	return nil, errors.Unsupported(errors.PhaseDispatch, "sync")
}

func (d *fakeDelegate) HandleException(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func newLoaded(t *testing.T) (*Executor, *fakeDelegate) {
	t.Helper()
	ctx := context.Background()
	ex := New(ctx, &Config{MemoryLimitPages: 16})
	t.Cleanup(func() { _ = ex.Close() })

	d := &fakeDelegate{}
	if err := ex.SetModuleSource(d); err != nil {
		t.Fatalf("set module source: %v", err)
	}
	if err := ex.LoadBundle(ctx, bridge.Bundle{Name: "echo", Source: echoWasm}); err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	return ex, d
}

func TestExecutor_GuestFlush(t *testing.T) {
	ex, d := newLoaded(t)

	three, negative, zero := 3, -1, 0
	err := ex.send(context.Background(), ex.call, []message{
		{Kind: kindNative, ModuleID: 0, MethodID: 0, Args: []any{"ping", int64(5)}, CallbackID: &three},
		{Kind: kindNative, ModuleID: 0, MethodID: 1, CallbackID: &negative},
		{Kind: kindNative, ModuleID: 0, MethodID: 1},
		{Kind: kindNative, ModuleID: 0, MethodID: 2, CallbackID: &zero},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(d.flushed) != 1 || len(d.flushed[0]) != 4 {
		t.Fatalf("flushed = %v", d.flushed)
	}
	calls := d.flushed[0]
	first := calls[0]
	if first.CallbackID != 3 || len(first.Args) != 2 || first.Args[0] != "ping" || first.Args[1] != int64(5) {
		t.Fatalf("first call = %+v", first)
	}
	if calls[1].CallbackID != nativemodule.NoCallback {
		t.Fatalf("negative callback = %d", calls[1].CallbackID)
	}
	// A missing callback_id must not alias callback 0.
	if calls[2].CallbackID != nativemodule.NoCallback {
		t.Fatalf("missing callback = %d", calls[2].CallbackID)
	}
	if calls[3].CallbackID != 0 {
		t.Fatalf("callback 0 = %d", calls[3].CallbackID)
	}
}

func TestNativeCalls_MissingCallback(t *testing.T) {
	frame, err := msgpack.Marshal([]map[string]any{
		{"kind": kindNative, "module_id": 1, "method_id": 2, "args": []any{"x"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	calls := nativeCalls(msgs, func(err error) { t.Errorf("reported %v", err) })
	if len(calls) != 1 || calls[0].CallbackID != nativemodule.NoCallback {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestExecutor_CallFunctionReachesGuest(t *testing.T) {
	ex, d := newLoaded(t)

	// The echo guest reflects the call frame, which the host rejects as an
	// unexpected kind. Seeing that rejection proves the frame arrived.
	if err := ex.CallFunction("AppRegistry", "runApplication", []any{"Main"}); err != nil {
		t.Fatalf("call function: %v", err)
	}
	if len(d.errs) != 1 || !errors.Is(d.errs[0], &errors.Error{Kind: errors.KindInvalidData}) {
		t.Fatalf("errs = %v", d.errs)
	}
	if len(d.flushed) != 0 {
		t.Fatalf("flushed = %v", d.flushed)
	}
}

func TestExecutor_GuestErrorFrame(t *testing.T) {
	ex, d := newLoaded(t)

	err := ex.send(context.Background(), ex.call, []message{{Kind: kindError, Module: "Greeter", Method: "greet", Error: "boom"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(d.errs) != 1 || !errors.Is(d.errs[0], errors.ErrRuntimeCall) {
		t.Fatalf("errs = %v", d.errs)
	}
}

func TestExecutor_LoadErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		src  []byte
	}{
		{"garbage", []byte("not wasm")},
		{"missing exports", []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := New(ctx, nil)
			defer ex.Close()
			if err := ex.SetModuleSource(&fakeDelegate{}); err != nil {
				t.Fatalf("set module source: %v", err)
			}
			err := ex.LoadBundle(ctx, bridge.Bundle{Name: tt.name, Source: tt.src})
			if !errors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}) {
				t.Fatalf("err = %v, want load error", err)
			}
		})
	}
}

func TestExecutor_Closed(t *testing.T) {
	ex, _ := newLoaded(t)
	if err := ex.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ex.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := ex.InvokeCallback(1, nil); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("err = %v, want closed", err)
	}
}
