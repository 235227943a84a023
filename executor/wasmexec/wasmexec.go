// Package wasmexec runs WebAssembly bundles on wazero.
//
// The guest talks to the host through msgpack frames in its linear memory.
// It must export:
//
//	memory
//	bridge_alloc(size i32) -> ptr i32   buffer for an incoming frame
//	bridge_call(ptr i32, len i32)       handle a host frame
//
// and may export bridge_init(ptr i32, len i32), which receives the native
// module table once after instantiation. The host provides one import,
// bridge.flush(ptr i32, len i32), through which the guest hands over queued
// native calls. Sync native methods are not reachable from guests.
package wasmexec

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
)

// Name is the executor name used in configuration.
const Name = "wasm"

const hostModule = "bridge"

// Config holds executor configuration.
type Config struct {
	// MemoryLimitPages caps guest memory (64 KiB pages). Zero keeps the
	// wazero default.
	MemoryLimitPages uint32
}

// Executor is a bridge.Executor backed by wazero. Like every executor it is
// driven from a single queue, so it does no locking of its own.
type Executor struct {
	ctx      context.Context
	runtime  wazero.Runtime
	delegate bridge.Delegate
	closed   atomic.Bool

	module api.Module
	memory api.Memory
	alloc  api.Function
	call   api.Function
}

// New creates an executor with its own wazero runtime.
func New(ctx context.Context, cfg *Config) *Executor {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Executor{
		ctx:     ctx,
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
	}
}

// Factory creates wasm executors.
func Factory(ctx context.Context, cfg *Config) bridge.ExecutorFactory {
	return bridge.NewExecutorFactory(Name, func() (bridge.Executor, error) {
		return New(ctx, cfg), nil
	})
}

// SetModuleSource registers the host import module.
func (e *Executor) SetModuleSource(d bridge.Delegate) error {
	e.delegate = d
	_, err := e.runtime.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.flush),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("flush").
		Instantiate(e.ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, err, "instantiate host module")
	}
	return nil
}

func (e *Executor) flush(_ context.Context, m api.Module, stack []uint64) {
	ptr, size := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	data, ok := m.Memory().Read(ptr, size)
	if !ok {
		e.delegate.HandleException(errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			Detail("flush out of bounds: ptr=%d len=%d", ptr, size).
			Build())
		return
	}
	// Read aliases guest memory; decoding copies what it keeps.
	msgs, err := decodeFrame(data)
	if err != nil {
		e.delegate.HandleException(err)
		return
	}
	if calls := nativeCalls(msgs, e.delegate.HandleException); len(calls) > 0 {
		e.delegate.FlushQueue(calls)
	}
}

// LoadBundle compiles and instantiates the bundle as a wasm module.
func (e *Executor) LoadBundle(ctx context.Context, b bridge.Bundle) error {
	if e.closed.Load() {
		return errors.Closed(errors.PhaseRuntime, "wasm executor")
	}
	if e.module != nil {
		return errors.LifecycleMisuse("wasm executor already has a bundle")
	}

	compiled, err := e.runtime.CompileModule(ctx, b.Source)
	if err != nil {
		return errors.Load("compile "+b.Name, err)
	}
	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(b.Name))
	if err != nil {
		return errors.Load("instantiate "+b.Name, err)
	}

	e.module = mod
	e.memory = mod.Memory()
	e.alloc = mod.ExportedFunction("bridge_alloc")
	e.call = mod.ExportedFunction("bridge_call")
	if e.memory == nil || e.alloc == nil || e.call == nil {
		return errors.Load(b.Name+" does not export memory, bridge_alloc and bridge_call", nil)
	}

	if init := mod.ExportedFunction("bridge_init"); init != nil {
		frame, err := e.moduleTable()
		if err != nil {
			return err
		}
		if err := e.send(ctx, init, frame); err != nil {
			return err
		}
	}

	Logger().Debug("wasm bundle loaded", zap.String("bundle", b.Name), zap.Int("bytes", len(b.Source)))
	return nil
}

func (e *Executor) moduleTable() ([]message, error) {
	names := e.delegate.ModuleNames()
	summaries := make([]moduleSummary, 0, len(names))
	for _, name := range names {
		cfg, err := e.delegate.ModuleConfig(name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, moduleSummary{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Methods:   cfg.Methods,
			Constants: cfg.Constants,
		})
	}
	return []message{{Kind: kindInit, Modules: summaries}}, nil
}

// send writes a frame into guest memory and calls fn with it.
func (e *Executor) send(ctx context.Context, fn api.Function, msgs []message) error {
	data, err := encodeFrame(msgs)
	if err != nil {
		return err
	}
	res, err := e.alloc.Call(ctx, api.EncodeU32(uint32(len(data))))
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, err, "bridge_alloc")
	}
	ptr := api.DecodeU32(res[0])
	if !e.memory.Write(ptr, data) {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Detail("guest buffer out of bounds: ptr=%d len=%d", ptr, len(data)).
			Build()
	}
	if _, err := fn.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(uint32(len(data)))); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, err, "guest call")
	}
	return nil
}

func (e *Executor) ready() error {
	if e.closed.Load() {
		return errors.Closed(errors.PhaseRuntime, "wasm executor")
	}
	if e.module == nil {
		return errors.LifecycleMisuse("wasm executor has no bundle")
	}
	return nil
}

// CallFunction sends a call frame to the guest.
func (e *Executor) CallFunction(module, method string, args []any) error {
	if err := e.ready(); err != nil {
		return err
	}
	normalized, err := normalizeArgs(args)
	if err != nil {
		return err
	}
	return e.send(e.ctx, e.call, []message{{
		Kind:       kindCall,
		Module:     module,
		Method:     method,
		Args:       normalized,
	}})
}

// InvokeCallback sends a callback frame to the guest.
func (e *Executor) InvokeCallback(id int, args []any) error {
	if err := e.ready(); err != nil {
		return err
	}
	normalized, err := normalizeArgs(args)
	if err != nil {
		return err
	}
	return e.send(e.ctx, e.call, []message{{
		Kind:       kindCallback,
		Args:       normalized,
		CallbackID: &id,
	}})
}

// Close releases the wazero runtime and every module in it.
func (e *Executor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.runtime.Close(e.ctx)
}
