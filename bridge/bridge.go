// Package bridge owns one running script runtime: its executor, queues and
// native module registry, and the calls crossing between them.
//
// A Bridge is created per runtime context and destroyed when the context is
// superseded. Native -> runtime calls go through CallFunction and
// InvokeCallback on the runtime queue; runtime -> native calls arrive through
// the Delegate methods and run on the native-module queue. After Destroy
// every entry point is a no-op.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/jsmodule"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/queue"
	"github.com/wippyai/hostbridge/value"
)

// ExceptionHandler receives runtime call errors. It must not block.
type ExceptionHandler func(err error)

// IdleListener follows the pending-call count of a bridge.
type IdleListener interface {
	OnTransitionToBridgeBusy()
	OnTransitionToBridgeIdle()
}

// Options configure a Bridge.
type Options struct {
	Queues   *queue.Config
	Executor Executor
	Loader   BundleLoader
	Modules  []nativemodule.ModuleSpec
	// Debug validates every module table at construction and rejects
	// runtime module interfaces with duplicate methods.
	Debug            bool
	ExceptionHandler ExceptionHandler
}

type pendingCall struct {
	module, method string
	args           []any
}

// Bridge is a runtime context.
type Bridge struct {
	id       string
	queues   *queue.Config
	executor Executor
	loader   BundleLoader
	registry *nativemodule.Registry
	modules  *jsmodule.Registry
	onError  ExceptionHandler

	destroyed atomic.Bool
	bundleRan atomic.Bool
	runOnce   sync.Once
	runErr    error

	mu      sync.Mutex
	pending []pendingCall

	idleMu        sync.Mutex
	inFlight      int
	idleListeners []IdleListener
}

// New creates a bridge and installs it as the executor's module source.
// The executor is owned by the bridge from here on.
func New(opts Options) (*Bridge, error) {
	if opts.Queues == nil || opts.Executor == nil || opts.Loader == nil {
		return nil, errors.Configuration(errors.PhaseLifecycle, "bridge needs queues, an executor and a loader")
	}

	b := &Bridge{
		id:       uuid.NewString(),
		queues:   opts.Queues,
		executor: opts.Executor,
		loader:   opts.Loader,
		onError:  opts.ExceptionHandler,
	}
	b.modules = jsmodule.NewRegistry(b, opts.Debug)

	registry, err := nativemodule.NewRegistry(b, opts.Modules)
	if err != nil {
		return nil, err
	}
	b.registry = registry
	if opts.Debug {
		if err := registry.Validate(); err != nil {
			return nil, err
		}
	}

	var installErr error
	if err := b.queues.Runtime.RunSync(func() {
		installErr = b.executor.SetModuleSource(b)
	}); err != nil {
		return nil, err
	}
	if installErr != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, installErr, "install module source")
	}

	Logger().Debug("bridge created",
		zap.String("id", b.id),
		zap.Int("modules", registry.Len()),
		zap.String("bundle", opts.Loader.Description()))
	return b, nil
}

// ID identifies the context in logs.
func (b *Bridge) ID() string {
	return b.id
}

// Queues returns the context's queues.
func (b *Bridge) Queues() *queue.Config {
	return b.queues
}

// Registry returns the native module registry.
func (b *Bridge) Registry() *nativemodule.Registry {
	return b.registry
}

// IsDestroyed reports whether Destroy has started.
func (b *Bridge) IsDestroyed() bool {
	return b.destroyed.Load()
}

// HasRunBundle reports whether the bundle finished loading.
func (b *Bridge) HasRunBundle() bool {
	return b.bundleRan.Load()
}

// RunBundle loads and runs the bundle on the runtime queue. Only the first
// call does any work; later calls return its result. Calls made through
// CallFunction before the bundle ran are delivered right after it.
func (b *Bridge) RunBundle(ctx context.Context) error {
	if b.IsDestroyed() {
		return errors.Destroyed(errors.PhaseRuntime, "bridge "+b.id)
	}
	b.runOnce.Do(func() {
		bundle, err := b.loader.Load(ctx)
		if err != nil {
			b.runErr = err
			return
		}
		runErr := b.queues.Runtime.RunSync(func() {
			if err := b.executor.LoadBundle(ctx, bundle); err != nil {
				b.runErr = errors.Wrap(errors.PhaseLoad, errors.KindRuntimeCall, err, "run bundle "+bundle.Name)
				return
			}

			b.mu.Lock()
			b.bundleRan.Store(true)
			queued := b.pending
			b.pending = nil
			b.mu.Unlock()

			for _, c := range queued {
				b.callNow(c)
			}
		})
		if runErr != nil && b.runErr == nil {
			b.runErr = runErr
		}
	})
	return b.runErr
}

// CallFunction calls method on a runtime module. Calls made before the
// bundle ran are queued until it has.
func (b *Bridge) CallFunction(module, method string, args ...any) {
	if b.IsDestroyed() {
		return
	}
	c := pendingCall{module: module, method: method, args: args}

	b.mu.Lock()
	if !b.bundleRan.Load() {
		b.pending = append(b.pending, c)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.schedule(func() { b.callNow(c) })
}

func (b *Bridge) callNow(c pendingCall) {
	if err := b.executor.CallFunction(c.module, c.method, c.args); err != nil {
		b.HandleException(errors.RuntimeCall(c.module, c.method, err))
	}
}

// InvokeCallback delivers an asynchronous native result to the runtime.
func (b *Bridge) InvokeCallback(id int, args ...any) {
	if b.IsDestroyed() {
		return
	}
	normalized, err := value.NormalizeArgs(args)
	if err != nil {
		b.HandleException(err)
		return
	}
	b.schedule(func() {
		if err := b.executor.InvokeCallback(id, normalized); err != nil {
			b.HandleException(errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, err, "invoke callback"))
		}
	})
}

// schedule runs fn on the runtime queue and tracks it as pending work.
func (b *Bridge) schedule(fn func()) {
	b.enter()
	if !b.queues.Runtime.Run(func() {
		defer b.leave()
		fn()
	}) {
		b.leave()
	}
}

// RuntimeModule returns the handle for a runtime-side module.
func (b *Bridge) RuntimeModule(iface *jsmodule.Interface) (*jsmodule.Handle, error) {
	return b.modules.Get(iface)
}

// Module returns a native module by name.
func (b *Bridge) Module(name string) (nativemodule.NativeModule, error) {
	return b.registry.Module(name)
}

// ExtendModules appends modules to the registry. Existing modules are never
// replaced or removed.
func (b *Bridge) ExtendModules(specs ...nativemodule.ModuleSpec) error {
	if b.IsDestroyed() {
		return nil
	}
	return b.registry.Extend(specs...)
}

// HandleException routes a runtime call error to the exception handler.
func (b *Bridge) HandleException(err error) {
	if err == nil {
		return
	}
	if b.onError != nil {
		b.onError(err)
		return
	}
	Logger().Error("runtime call failed", zap.String("id", b.id), zap.Error(err))
}

// AddIdleListener registers l for busy/idle transitions.
func (b *Bridge) AddIdleListener(l IdleListener) {
	b.idleMu.Lock()
	defer b.idleMu.Unlock()
	b.idleListeners = append(b.idleListeners, l)
}

// RemoveIdleListener unregisters l.
func (b *Bridge) RemoveIdleListener(l IdleListener) {
	b.idleMu.Lock()
	defer b.idleMu.Unlock()
	for i, x := range b.idleListeners {
		if x == l {
			b.idleListeners = append(b.idleListeners[:i:i], b.idleListeners[i+1:]...)
			return
		}
	}
}

// PendingCalls returns the number of calls in flight across the bridge.
func (b *Bridge) PendingCalls() int {
	b.idleMu.Lock()
	defer b.idleMu.Unlock()
	return b.inFlight
}

// IsIdle reports whether no call is in flight.
func (b *Bridge) IsIdle() bool {
	return b.PendingCalls() == 0
}

func (b *Bridge) enter() {
	b.idleMu.Lock()
	b.inFlight++
	var listeners []IdleListener
	if b.inFlight == 1 {
		listeners = append(listeners, b.idleListeners...)
	}
	// Listeners run under the lock so transitions are observed in order.
	for _, l := range listeners {
		l.OnTransitionToBridgeBusy()
	}
	b.idleMu.Unlock()
}

func (b *Bridge) leave() {
	b.idleMu.Lock()
	b.inFlight--
	var listeners []IdleListener
	if b.inFlight == 0 {
		listeners = append(listeners, b.idleListeners...)
	}
	for _, l := range listeners {
		l.OnTransitionToBridgeIdle()
	}
	b.idleMu.Unlock()
}

// Destroy tears the context down: it drains the runtime and native-module
// queues, invalidates modules, closes the executor and stops the per-context
// queues. It must run on the UI queue. Only the first call has any effect.
func (b *Bridge) Destroy() {
	b.queues.UI.AssertOnQueue("Bridge.Destroy")
	b.teardown()
}

// Release tears the context down like Destroy without the UI queue, for
// when that queue has already quit. It must not run on the context's own
// queues.
func (b *Bridge) Release() {
	for _, q := range b.queues.NonUI() {
		q.AssertNotOnQueue("Bridge.Release")
	}
	b.teardown()
}

func (b *Bridge) teardown() {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	dropped := len(b.pending)
	b.pending = nil
	b.mu.Unlock()

	b.queues.Drain()
	if err := b.queues.NativeModules.RunSync(b.registry.Invalidate); err != nil {
		b.HandleException(err)
	}
	if err := b.queues.Runtime.RunSync(func() {
		if err := b.executor.Close(); err != nil {
			Logger().Warn("executor close failed", zap.String("id", b.id), zap.Error(err))
		}
	}); err != nil {
		b.HandleException(err)
	}
	b.queues.Destroy()

	Logger().Debug("bridge destroyed", zap.String("id", b.id), zap.Int("dropped_calls", dropped))
}

// OnHostResume forwards the host resume event to lifecycle-aware modules.
func (b *Bridge) OnHostResume() {
	b.eachLifecycle(nativemodule.LifecycleListener.OnHostResume)
}

// OnHostPause forwards the host pause event to lifecycle-aware modules.
func (b *Bridge) OnHostPause() {
	b.eachLifecycle(nativemodule.LifecycleListener.OnHostPause)
}

// OnHostDestroy forwards the host destroy event to lifecycle-aware modules.
func (b *Bridge) OnHostDestroy() {
	b.eachLifecycle(nativemodule.LifecycleListener.OnHostDestroy)
}

func (b *Bridge) eachLifecycle(fn func(nativemodule.LifecycleListener)) {
	if b.IsDestroyed() {
		return
	}
	for _, mod := range b.registry.Created() {
		if l, ok := mod.(nativemodule.LifecycleListener); ok {
			fn(l)
		}
	}
}

// OnActivityResult forwards an activity result to interested modules.
func (b *Bridge) OnActivityResult(requestCode, resultCode int, data map[string]any) {
	b.eachActivity(func(l nativemodule.ActivityEventListener) {
		l.OnActivityResult(requestCode, resultCode, data)
	})
}

// OnNewIntent forwards a new intent to interested modules.
func (b *Bridge) OnNewIntent(action, data string) {
	b.eachActivity(func(l nativemodule.ActivityEventListener) {
		l.OnNewIntent(action, data)
	})
}

func (b *Bridge) eachActivity(fn func(nativemodule.ActivityEventListener)) {
	if b.IsDestroyed() {
		return
	}
	for _, mod := range b.registry.Created() {
		if l, ok := mod.(nativemodule.ActivityEventListener); ok {
			fn(l)
		}
	}
}
