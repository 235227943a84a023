package bridge

import (
	"context"
	"strconv"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/value"
)

// Executor runs a script runtime. Every method is called on the runtime
// queue of the owning bridge.
type Executor interface {
	// SetModuleSource installs the delegate the runtime uses to reach
	// native modules. Called once, before LoadBundle.
	SetModuleSource(d Delegate) error
	LoadBundle(ctx context.Context, b Bundle) error
	CallFunction(module, method string, args []any) error
	InvokeCallback(id int, args []any) error
	Close() error
}

// ExecutorFactory creates executors for new contexts.
type ExecutorFactory interface {
	Name() string
	NewExecutor() (Executor, error)
}

type executorFactory struct {
	name string
	fn   func() (Executor, error)
}

func (f executorFactory) Name() string                   { return f.name }
func (f executorFactory) NewExecutor() (Executor, error) { return f.fn() }

// NewExecutorFactory adapts fn into a named factory.
func NewExecutorFactory(name string, fn func() (Executor, error)) ExecutorFactory {
	return executorFactory{name: name, fn: fn}
}

// Delegate is the native side as seen by an executor.
type Delegate interface {
	// ModuleNames lists registered native modules by ID.
	ModuleNames() []string
	ModuleConfig(name string) (*nativemodule.ModuleConfig, error)
	// FlushQueue schedules runtime -> native calls on the native-module
	// queue. It never blocks on module code.
	FlushQueue(calls []NativeCall)
	// CallSync invokes a sync method on the calling goroutine.
	CallSync(moduleID, methodID int, args []any) (any, error)
	HandleException(err error)
}

// NativeCall is one runtime -> native invocation.
type NativeCall struct {
	ModuleID   int
	MethodID   int
	Args       []any
	CallbackID int
}

// ParseFlushedQueue decodes a flushed queue: a list of
// [moduleID, methodID, args, callbackID] tuples. A missing or null
// callback ID means the call has none. A nil queue yields no calls.
func ParseFlushedQueue(raw any) ([]NativeCall, error) {
	if raw == nil {
		return nil, nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			GoType(value.TypeName(raw)).
			WantType("array").
			Detail("flushed queue").
			Build()
	}

	calls := make([]NativeCall, 0, len(entries))
	for i, e := range entries {
		tuple, ok := e.([]any)
		if !ok || len(tuple) < 3 {
			return nil, errors.InvalidData(errors.PhaseDispatch, []string{"queue", strconv.Itoa(i)},
				"entry is not a [moduleID, methodID, args, callbackID] tuple")
		}
		module, ok := value.ToInt(tuple[0])
		if !ok {
			return nil, errors.InvalidData(errors.PhaseDispatch, []string{"queue", strconv.Itoa(i), "moduleID"}, "not an integer")
		}
		method, ok := value.ToInt(tuple[1])
		if !ok {
			return nil, errors.InvalidData(errors.PhaseDispatch, []string{"queue", strconv.Itoa(i), "methodID"}, "not an integer")
		}
		var args []any
		switch a := tuple[2].(type) {
		case nil:
		case []any:
			args = a
		default:
			return nil, errors.InvalidData(errors.PhaseDispatch, []string{"queue", strconv.Itoa(i), "args"}, "not an array")
		}
		cb := nativemodule.NoCallback
		if len(tuple) > 3 && tuple[3] != nil {
			id, ok := value.ToInt(tuple[3])
			if !ok {
				return nil, errors.InvalidData(errors.PhaseDispatch, []string{"queue", strconv.Itoa(i), "callbackID"}, "not an integer")
			}
			cb = id
		}
		calls = append(calls, NativeCall{ModuleID: module, MethodID: method, Args: args, CallbackID: cb})
	}
	return calls, nil
}
