// Package jsmodule provides native-side handles for modules that live in the
// script runtime.
//
// A runtime module is described once by an Interface. The Registry builds a
// Handle per Interface the first time it is requested and hands out the same
// Handle afterwards. Each handle method serializes its arguments and sends a
// one-way (module, method, args) call through the Caller; nothing is returned.
//
//	var emitter = &jsmodule.Interface{
//		Name:    "RCTDeviceEventEmitter",
//		Methods: []string{"emit"},
//	}
//
//	h, err := registry.Get(emitter)
//	h.Call("emit", "hardwareBackPress", nil)
package jsmodule

import (
	"sync"

	"github.com/samber/lo"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/value"
)

// Caller delivers calls into the script runtime.
type Caller interface {
	CallFunction(module, method string, args ...any)
}

// Interface describes a module exposed by the script runtime.
// Handles are cached by pointer identity, so declare interfaces as package
// level variables.
type Interface struct {
	Name    string
	Methods []string
}

// Handle dispatches calls for one Interface.
type Handle struct {
	iface   *Interface
	methods map[string]func(args ...any) error
}

// Name returns the runtime module name.
func (h *Handle) Name() string {
	return h.iface.Name
}

// Call sends method with args to the runtime. Unknown methods are rejected
// before anything is sent.
func (h *Handle) Call(method string, args ...any) error {
	send, ok := h.methods[method]
	if !ok {
		return errors.NotFound(errors.PhaseDispatch, "runtime module method", h.iface.Name+"."+method)
	}
	return send(args...)
}

// Registry memoizes handles per Interface.
type Registry struct {
	caller Caller
	debug  bool

	mu      sync.Mutex
	handles map[*Interface]*Handle
}

// NewRegistry creates a registry sending through caller. With debug set,
// interfaces declaring a method twice are rejected.
func NewRegistry(caller Caller, debug bool) *Registry {
	return &Registry{
		caller:  caller,
		debug:   debug,
		handles: make(map[*Interface]*Handle),
	}
}

// Get returns the handle for iface, building it on first use.
func (r *Registry) Get(iface *Interface) (*Handle, error) {
	if iface == nil || iface.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseRegistry, "runtime module interface needs a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[iface]; ok {
		return h, nil
	}

	if r.debug {
		if dups := lo.FindDuplicates(iface.Methods); len(dups) > 0 {
			return nil, errors.DuplicateMethod(iface.Name, dups[0])
		}
	}

	h := &Handle{
		iface:   iface,
		methods: make(map[string]func(args ...any) error, len(iface.Methods)),
	}
	for _, m := range iface.Methods {
		h.methods[m] = r.sender(iface.Name, m)
	}
	r.handles[iface] = h
	return h, nil
}

// MustGet is Get for interfaces known to be valid.
func (r *Registry) MustGet(iface *Interface) *Handle {
	h, err := r.Get(iface)
	if err != nil {
		panic(err)
	}
	return h
}

func (r *Registry) sender(module, method string) func(args ...any) error {
	return func(args ...any) error {
		normalized, err := value.NormalizeArgs(args)
		if err != nil {
			return errors.New(errors.PhaseDispatch, errors.KindInvalidData).
				Path(module, method).
				Detail("serialize arguments").
				Cause(err).
				Build()
		}
		r.caller.CallFunction(module, method, normalized...)
		return nil
	}
}
