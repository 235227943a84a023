package nativemodule

import (
	"sync/atomic"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/jsmodule"
	"github.com/wippyai/hostbridge/queue"
	"github.com/wippyai/hostbridge/value"

	"go.bytecodealliance.org/wit"
)

// Host is the runtime context a module is created for.
type Host interface {
	// ID identifies the context in logs.
	ID() string
	Queues() *queue.Config
	RuntimeModule(iface *jsmodule.Interface) (*jsmodule.Handle, error)
	InvokeCallback(id int, args ...any)
	HandleException(err error)
}

// NativeModule is a module exposed to the runtime.
type NativeModule interface {
	Name() string
	Methods() []Method
}

// ConstantsProvider exposes a constant table to the runtime. It is only
// consulted for specs with HasConstants set.
type ConstantsProvider interface {
	Constants() map[string]any
}

// Initializer is called once after the module is created.
type Initializer interface {
	Initialize()
}

// Invalidator is called when the owning context is destroyed.
type Invalidator interface {
	Invalidate()
}

// BatchCompleteListener is notified after every runtime -> native flush.
type BatchCompleteListener interface {
	OnBatchComplete()
}

// LifecycleListener follows the host lifecycle.
type LifecycleListener interface {
	OnHostResume()
	OnHostPause()
	OnHostDestroy()
}

// ActivityEventListener receives host activity events.
type ActivityEventListener interface {
	OnActivityResult(requestCode, resultCode int, data map[string]any)
	OnNewIntent(action, data string)
}

// Factory creates a module for a context.
type Factory func(host Host) NativeModule

// ModuleSpec describes a module supplied by a provider.
type ModuleSpec struct {
	Name    string
	Factory Factory
	// HasConstants enables the constant table. Without it Constants is
	// never called.
	HasConstants bool
	// CanOverride allows this spec to replace an earlier one of the same name.
	CanOverride bool
}

// MethodKind classifies how a method is invoked.
type MethodKind int

const (
	Async MethodKind = iota
	Sync
)

func (k MethodKind) String() string {
	if k == Sync {
		return "sync"
	}
	return "async"
}

// Signature is the full type of a sync method.
type Signature struct {
	Params []wit.Type
	// Result is nil for methods returning nothing.
	Result wit.Type
}

// Handler implements a method. Async handlers may return a result, which is
// delivered through the call's callback unless the handler invoked it.
type Handler func(call *Call) (any, error)

// Method is one entry of a module's method table.
type Method struct {
	Name      string
	Kind      MethodKind
	Signature *Signature
	Handler   Handler
}

// MethodDescriptor is a method as seen by the runtime.
type MethodDescriptor struct {
	ID        int
	Name      string
	Kind      MethodKind
	Signature *Signature
}

// Callback routes an asynchronous result back into the runtime.
// It fires at most once.
type Callback struct {
	id     int
	invoke func(id int, args ...any)
	fired  atomic.Bool
}

// NewCallback wraps a runtime callback ID.
func NewCallback(id int, invoke func(id int, args ...any)) *Callback {
	return &Callback{id: id, invoke: invoke}
}

// ID returns the runtime callback ID.
func (c *Callback) ID() int {
	return c.id
}

// Invoke sends args to the runtime. Later invocations are dropped and
// report false.
func (c *Callback) Invoke(args ...any) bool {
	if c == nil || !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.invoke(c.id, args...)
	return true
}

// Fired reports whether the callback was invoked.
func (c *Callback) Fired() bool {
	return c != nil && c.fired.Load()
}

// Call carries the arguments of one invocation.
type Call struct {
	Module string
	Method string
	Args   []any
	// Callback is nil when the runtime passed none.
	Callback *Callback
}

// Arg returns argument i or nil when absent.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// String returns argument i as a string.
func (c *Call) String(i int) (string, error) {
	s, ok := c.Arg(i).(string)
	if !ok {
		return "", c.mismatch(i, "string")
	}
	return s, nil
}

// Int returns argument i as an int.
func (c *Call) Int(i int) (int, error) {
	n, ok := value.ToInt(c.Arg(i))
	if !ok {
		return 0, c.mismatch(i, "integer")
	}
	return n, nil
}

// Float returns argument i as a float64.
func (c *Call) Float(i int) (float64, error) {
	f, ok := value.ToFloat(c.Arg(i))
	if !ok {
		return 0, c.mismatch(i, "number")
	}
	return f, nil
}

// Bool returns argument i as a bool.
func (c *Call) Bool(i int) (bool, error) {
	b, ok := c.Arg(i).(bool)
	if !ok {
		return false, c.mismatch(i, "bool")
	}
	return b, nil
}

// Map returns argument i as a map. A nil argument yields an empty map.
func (c *Call) Map(i int) (map[string]any, error) {
	switch v := c.Arg(i).(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	}
	return nil, c.mismatch(i, "map")
}

// Slice returns argument i as a slice. A nil argument yields nil.
func (c *Call) Slice(i int) ([]any, error) {
	switch v := c.Arg(i).(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	}
	return nil, c.mismatch(i, "array")
}

func (c *Call) mismatch(i int, want string) error {
	return errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
		Path(c.Module, c.Method, argName(i)).
		GoType(value.TypeName(c.Arg(i))).
		WantType(want).
		Build()
}
