package bridge

import (
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
)

// ModuleNames implements Delegate.
func (b *Bridge) ModuleNames() []string {
	return b.registry.Names()
}

// ModuleConfig implements Delegate.
func (b *Bridge) ModuleConfig(name string) (*nativemodule.ModuleConfig, error) {
	return b.registry.Config(name)
}

// FlushQueue implements Delegate. The calls run in order on the
// native-module queue; a failing call is reported and does not stop the
// rest. Modules are told the batch completed once all calls ran.
func (b *Bridge) FlushQueue(calls []NativeCall) {
	if b.IsDestroyed() || len(calls) == 0 {
		return
	}
	b.enter()
	if !b.queues.NativeModules.Run(func() {
		defer b.leave()
		for _, c := range calls {
			b.invoke(c)
		}
		b.registry.OnBatchComplete()
	}) {
		b.leave()
	}
}

func (b *Bridge) invoke(c NativeCall) {
	defer func() {
		if r := recover(); r != nil {
			b.HandleException(errors.Panic(errors.PhaseDispatch, "native method", r))
		}
	}()
	if err := b.registry.Invoke(c.ModuleID, c.MethodID, c.Args, c.CallbackID); err != nil {
		b.HandleException(err)
	}
}

// CallSync implements Delegate. Failures go to the exception handler and
// are also returned, so the runtime can unwind the failed call.
func (b *Bridge) CallSync(moduleID, methodID int, args []any) (result any, err error) {
	if b.IsDestroyed() {
		return nil, errors.Destroyed(errors.PhaseDispatch, "bridge "+b.id)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseDispatch, "sync native method", r)
		}
		if err != nil {
			b.HandleException(err)
		}
	}()
	return b.registry.InvokeSync(moduleID, methodID, args)
}
