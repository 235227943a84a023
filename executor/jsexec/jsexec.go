// Package jsexec runs bundles on goja with a node-style event loop.
//
// The executor installs a small prelude that gives the bundle a
// NativeModules object and a __bridge object for registering callable
// modules. Native module proxies are built lazily from the module config the
// bridge reports. A trailing function argument of an async native call
// becomes its callback. Runtime -> native calls are queued in the runtime
// and handed to the bridge at the end of every call into the runtime, or on
// the next loop tick for calls made from timers.
package jsexec

import (
	"context"
	_ "embed"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
)

//go:embed prelude.js
var prelude string

// Name is the executor name used in configuration.
const Name = "goja"

// printer routes console output to zap.
type printer struct {
	log *zap.Logger
}

func (p printer) Log(s string)   { p.log.Info(s) }
func (p printer) Warn(s string)  { p.log.Warn(s) }
func (p printer) Error(s string) { p.log.Error(s) }

// Executor is a bridge.Executor backed by goja.
type Executor struct {
	loop     *eventloop.EventLoop
	delegate bridge.Delegate
	closed   atomic.Bool
	stopped  chan struct{}

	// Loop-confined.
	vm     *goja.Runtime
	api    *goja.Object
	call   goja.Callable
	invoke goja.Callable
	flush  goja.Callable
}

// New starts an event loop for a new executor.
func New() *Executor {
	reg := require.NewRegistry()
	reg.RegisterNativeModule("console", console.RequireWithPrinter(printer{log: Logger().Named("console")}))

	e := &Executor{
		loop: eventloop.NewEventLoop(
			eventloop.EnableConsole(false),
			eventloop.WithRegistry(reg),
		),
		stopped: make(chan struct{}),
	}
	e.loop.Start()
	return e
}

// Factory creates goja executors.
func Factory() bridge.ExecutorFactory {
	return bridge.NewExecutorFactory(Name, func() (bridge.Executor, error) {
		return New(), nil
	})
}

// do runs fn on the loop and waits for it.
func (e *Executor) do(what string, fn func(vm *goja.Runtime) (goja.Value, error)) (any, error) {
	if e.closed.Load() {
		return nil, errors.Closed(errors.PhaseRuntime, "goja executor")
	}

	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: errors.Panic(errors.PhaseRuntime, what, r)}
			}
		}()
		v, err := fn(vm)
		if err != nil {
			ch <- result{err: err}
			return
		}
		var out any
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			out = v.Export()
		}
		ch <- result{v: out}
	})

	select {
	case r := <-ch:
		return r.v, r.err
	case <-e.stopped:
		return nil, errors.Closed(errors.PhaseRuntime, "goja executor")
	}
}

// SetModuleSource installs the prelude bound to d.
func (e *Executor) SetModuleSource(d bridge.Delegate) error {
	e.delegate = d
	_, err := e.do("install prelude", func(vm *goja.Runtime) (goja.Value, error) {
		e.vm = vm
		console.Enable(vm)

		globals := map[string]any{
			"__nativeModuleNames":       e.moduleNames,
			"__nativeModuleConfig":      e.moduleConfig,
			"__nativeCallSyncHook":      e.callSync,
			"nativeFlushQueueImmediate": e.flushImmediate,
		}
		for name, fn := range globals {
			if err := vm.Set(name, fn); err != nil {
				return nil, err
			}
		}

		if _, err := vm.RunScript("prelude.js", prelude); err != nil {
			return nil, err
		}

		e.api = vm.Get("__bridge").ToObject(vm)
		var ok bool
		if e.call, ok = goja.AssertFunction(e.api.Get("callFunctionReturnFlushedQueue")); !ok {
			return nil, errors.Plain("prelude lacks callFunctionReturnFlushedQueue")
		}
		if e.invoke, ok = goja.AssertFunction(e.api.Get("invokeCallbackAndReturnFlushedQueue")); !ok {
			return nil, errors.Plain("prelude lacks invokeCallbackAndReturnFlushedQueue")
		}
		if e.flush, ok = goja.AssertFunction(e.api.Get("flushedQueue")); !ok {
			return nil, errors.Plain("prelude lacks flushedQueue")
		}
		return nil, nil
	})
	return err
}

func (e *Executor) moduleNames() []any {
	return lo.ToAnySlice(e.delegate.ModuleNames())
}

func (e *Executor) moduleConfig(name string) goja.Value {
	cfg, err := e.delegate.ModuleConfig(name)
	if err != nil {
		e.delegate.HandleException(err)
		return goja.Null()
	}

	obj := e.vm.NewObject()
	_ = obj.Set("id", cfg.ID)
	_ = obj.Set("methods", e.vm.NewArray(lo.ToAnySlice(cfg.Methods)...))
	_ = obj.Set("syncMethods", e.vm.NewArray(lo.ToAnySlice(cfg.SyncMethods)...))
	constants := cfg.Constants
	if constants == nil {
		constants = map[string]any{}
	}
	_ = obj.Set("constants", constants)
	return obj
}

func (e *Executor) callSync(call goja.FunctionCall) goja.Value {
	moduleID := int(call.Argument(0).ToInteger())
	methodID := int(call.Argument(1).ToInteger())
	args, _ := call.Argument(2).Export().([]any)

	result, err := e.delegate.CallSync(moduleID, methodID, args)
	if err != nil {
		panic(e.vm.NewGoError(err))
	}
	return e.vm.ToValue(result)
}

func (e *Executor) flushImmediate(call goja.FunctionCall) goja.Value {
	e.deliver(call.Argument(0).Export())
	return goja.Undefined()
}

func (e *Executor) deliver(queue any) {
	calls, err := bridge.ParseFlushedQueue(queue)
	if err != nil {
		e.delegate.HandleException(err)
		return
	}
	e.delegate.FlushQueue(calls)
}

// LoadBundle runs the bundle source. A cancelled context interrupts it.
func (e *Executor) LoadBundle(ctx context.Context, b bridge.Bundle) error {
	// finished is only touched on the loop, so an interrupt queued after the
	// bundle completed is dropped.
	finished := false
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.loop.RunOnLoop(func(vm *goja.Runtime) {
				if !finished {
					vm.Interrupt(ctx.Err())
				}
			})
		case <-done:
		}
	}()

	name := b.Name
	if b.URL != "" {
		name = b.URL
	}
	q, err := e.do("load bundle", func(vm *goja.Runtime) (goja.Value, error) {
		defer func() { finished = true }()
		if _, err := vm.RunScript(name, string(b.Source)); err != nil {
			return nil, err
		}
		return e.flush(e.api)
	})
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindRuntimeCall, err, "evaluate "+name)
	}
	e.deliver(q)
	Logger().Debug("bundle loaded", zap.String("bundle", name), zap.Int("bytes", len(b.Source)))
	return nil
}

// CallFunction calls a method of a registered callable module.
func (e *Executor) CallFunction(module, method string, args []any) error {
	q, err := e.do(module+"."+method, func(vm *goja.Runtime) (goja.Value, error) {
		return e.call(e.api, vm.ToValue(module), vm.ToValue(method), vm.NewArray(args...))
	})
	if err != nil {
		return err
	}
	e.deliver(q)
	return nil
}

// InvokeCallback calls the runtime callback registered under id.
func (e *Executor) InvokeCallback(id int, args []any) error {
	q, err := e.do("callback", func(vm *goja.Runtime) (goja.Value, error) {
		return e.invoke(e.api, vm.ToValue(id), vm.NewArray(args...))
	})
	if err != nil {
		return err
	}
	e.deliver(q)
	return nil
}

// Eval evaluates src and returns its exported result. Intended for tools.
func (e *Executor) Eval(src string) (any, error) {
	return e.do("eval", func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(src)
	})
}

// Close stops the event loop. Pending timers are discarded.
func (e *Executor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.loop.Stop()
	close(e.stopped)
	return nil
}
