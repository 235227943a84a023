package nativemodule

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/value"
)

// NoCallback marks an invocation without a callback.
const NoCallback = -1

// ModuleConfig is what the runtime needs to build its proxy for a module.
type ModuleConfig struct {
	ID          int
	Name        string
	Constants   map[string]any
	Methods     []string
	SyncMethods []int
}

type holder struct {
	id   int
	spec ModuleSpec
	host Host

	instOnce sync.Once
	inst     NativeModule
	instErr  error
	ready    atomic.Bool

	methodsOnce sync.Once
	methods     []Method
	descriptors []MethodDescriptor
	methodsErr  error

	constOnce sync.Once
	constants map[string]any
	constErr  error
}

func (h *holder) instance() (NativeModule, error) {
	h.instOnce.Do(func() {
		mod := h.spec.Factory(h.host)
		if mod == nil {
			h.instErr = errors.Configuration(errors.PhaseRegistry, "factory for "+h.spec.Name+" returned nil")
			return
		}
		if init, ok := mod.(Initializer); ok {
			init.Initialize()
		}
		h.inst = mod
		h.ready.Store(true)
	})
	return h.inst, h.instErr
}

func (h *holder) created() NativeModule {
	if !h.ready.Load() {
		return nil
	}
	return h.inst
}

func (h *holder) table() ([]Method, []MethodDescriptor, error) {
	h.methodsOnce.Do(func() {
		mod, err := h.instance()
		if err != nil {
			h.methodsErr = err
			return
		}
		methods := mod.Methods()
		names := lo.Map(methods, func(m Method, _ int) string { return m.Name })
		if dups := lo.FindDuplicates(names); len(dups) > 0 {
			h.methodsErr = errors.DuplicateMethod(h.spec.Name, dups[0])
			return
		}
		descs := make([]MethodDescriptor, len(methods))
		for i, m := range methods {
			if m.Name == "" || m.Handler == nil {
				h.methodsErr = errors.New(errors.PhaseRegistry, errors.KindConfiguration).
					Path(h.spec.Name, m.Name).
					Detail("method %d needs a name and a handler", i).
					Build()
				return
			}
			if m.Kind == Sync && m.Signature == nil {
				h.methodsErr = errors.New(errors.PhaseRegistry, errors.KindConfiguration).
					Path(h.spec.Name, m.Name).
					Detail("sync method has no signature").
					Build()
				return
			}
			descs[i] = MethodDescriptor{ID: i, Name: m.Name, Kind: m.Kind, Signature: m.Signature}
		}
		h.methods = methods
		h.descriptors = descs
	})
	return h.methods, h.descriptors, h.methodsErr
}

func (h *holder) constantTable() (map[string]any, error) {
	if !h.spec.HasConstants {
		return nil, nil
	}
	h.constOnce.Do(func() {
		mod, err := h.instance()
		if err != nil {
			h.constErr = err
			return
		}
		cp, ok := mod.(ConstantsProvider)
		if !ok {
			return
		}
		raw := cp.Constants()
		if raw == nil {
			return
		}
		normalized, err := value.Normalize(raw)
		if err != nil {
			h.constErr = errors.New(errors.PhaseRegistry, errors.KindInvalidData).
				Path(h.spec.Name).
				Detail("convert constants").
				Cause(err).
				Build()
			return
		}
		h.constants, _ = normalized.(map[string]any)
	})
	return h.constants, h.constErr
}

// Registry is the dispatch table of one runtime context. Module IDs are
// assigned in registration order and never change; an overriding spec takes
// the ID of the module it replaces.
type Registry struct {
	host Host

	mu      sync.RWMutex
	modules []*holder
	byName  map[string]*holder
}

// NewRegistry builds a registry from specs in provider order.
func NewRegistry(host Host, specs []ModuleSpec) (*Registry, error) {
	r := &Registry{
		host:   host,
		byName: make(map[string]*holder, len(specs)),
	}
	for _, spec := range specs {
		if err := r.add(spec, true); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(spec ModuleSpec, building bool) error {
	if spec.Name == "" {
		return errors.Configuration(errors.PhaseRegistry, "module spec without a name")
	}
	if spec.Factory == nil {
		return errors.MissingFactory(spec.Name)
	}

	existing, ok := r.byName[spec.Name]
	switch {
	case !ok:
		h := &holder{id: len(r.modules), spec: spec, host: r.host}
		r.modules = append(r.modules, h)
		r.byName[spec.Name] = h
	case !building:
		// Extension never replaces a live module.
	case !spec.CanOverride:
		return errors.DuplicateModule(spec.Name)
	default:
		h := &holder{id: existing.id, spec: spec, host: r.host}
		r.modules[existing.id] = h
		r.byName[spec.Name] = h
	}
	return nil
}

// Extend appends modules after the initial build. Names already registered
// are kept as they are.
func (r *Registry) Extend(specs ...ModuleSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, spec := range specs {
		if err := r.add(spec, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) byID(id int) (*holder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.modules) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Value(id).
			Detail("module id %d not registered", id).
			Build()
	}
	return r.modules[id], nil
}

func (r *Registry) lookup(name string) (*holder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegistry, "native module", name)
	}
	return h, nil
}

func (r *Registry) snapshot() []*holder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*holder(nil), r.modules...)
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Names returns module names ordered by ID.
func (r *Registry) Names() []string {
	return lo.Map(r.snapshot(), func(h *holder, _ int) string { return h.spec.Name })
}

// Has reports whether a module is registered under name.
func (r *Registry) Has(name string) bool {
	_, err := r.lookup(name)
	return err == nil
}

// ModuleID returns the ID of the named module.
func (r *Registry) ModuleID(name string) (int, error) {
	h, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return h.id, nil
}

// Module returns the named module, creating it on first use.
func (r *Registry) Module(name string) (NativeModule, error) {
	h, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return h.instance()
}

// Descriptors returns the method table of a module. The table is computed
// once per registry build.
func (r *Registry) Descriptors(moduleID int) ([]MethodDescriptor, error) {
	h, err := r.byID(moduleID)
	if err != nil {
		return nil, err
	}
	_, descs, err := h.table()
	return descs, err
}

// Constants returns the constant table of the named module.
func (r *Registry) Constants(name string) (map[string]any, error) {
	h, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return h.constantTable()
}

// Config describes the named module for the runtime.
func (r *Registry) Config(name string) (*ModuleConfig, error) {
	h, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	_, descs, err := h.table()
	if err != nil {
		return nil, err
	}
	consts, err := h.constantTable()
	if err != nil {
		return nil, err
	}
	cfg := &ModuleConfig{
		ID:        h.id,
		Name:      h.spec.Name,
		Constants: consts,
		Methods:   make([]string, len(descs)),
	}
	for i, d := range descs {
		cfg.Methods[i] = d.Name
		if d.Kind == Sync {
			cfg.SyncMethods = append(cfg.SyncMethods, i)
		}
	}
	return cfg, nil
}

// Validate creates every module and builds every method table, reporting
// the first configuration error.
func (r *Registry) Validate() error {
	for _, h := range r.snapshot() {
		if _, _, err := h.table(); err != nil {
			return err
		}
		if _, err := h.constantTable(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) method(moduleID, methodID int) (*holder, Method, error) {
	h, err := r.byID(moduleID)
	if err != nil {
		return nil, Method{}, err
	}
	methods, _, err := h.table()
	if err != nil {
		return nil, Method{}, err
	}
	if methodID < 0 || methodID >= len(methods) {
		return nil, Method{}, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Path(h.spec.Name).
			Value(methodID).
			Detail("method id %d not registered", methodID).
			Build()
	}
	return h, methods[methodID], nil
}

// Invoke runs an async method on the calling goroutine. The bridge calls it
// on the native-module queue. A result returned by the handler goes to the
// callback unless the handler already used it.
func (r *Registry) Invoke(moduleID, methodID int, args []any, callbackID int) error {
	h, m, err := r.method(moduleID, methodID)
	if err != nil {
		return err
	}
	if m.Kind == Sync {
		return errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Path(h.spec.Name, m.Name).
			Detail("sync method invoked asynchronously").
			Build()
	}

	call := &Call{Module: h.spec.Name, Method: m.Name, Args: args}
	if callbackID != NoCallback {
		call.Callback = NewCallback(callbackID, r.host.InvokeCallback)
	}

	result, err := m.Handler(call)
	if err != nil {
		return errors.RuntimeCall(h.spec.Name, m.Name, err)
	}
	if call.Callback != nil && !call.Callback.Fired() && result != nil {
		call.Callback.Invoke(result)
	}
	return nil
}

// InvokeSync runs a sync method and returns its normalized result.
func (r *Registry) InvokeSync(moduleID, methodID int, args []any) (any, error) {
	h, m, err := r.method(moduleID, methodID)
	if err != nil {
		return nil, err
	}
	if m.Kind != Sync {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Path(h.spec.Name, m.Name).
			Detail("async method invoked synchronously").
			Build()
	}
	if err := m.Signature.Check(h.spec.Name, m.Name, args); err != nil {
		return nil, err
	}

	result, err := m.Handler(&Call{Module: h.spec.Name, Method: m.Name, Args: args})
	if err != nil {
		return nil, errors.RuntimeCall(h.spec.Name, m.Name, err)
	}
	if m.Signature.Result == nil {
		return nil, nil
	}
	return value.Normalize(result)
}

// Created returns the modules instantiated so far, ordered by ID.
func (r *Registry) Created() []NativeModule {
	var mods []NativeModule
	for _, h := range r.snapshot() {
		if mod := h.created(); mod != nil {
			mods = append(mods, mod)
		}
	}
	return mods
}

// OnBatchComplete notifies created modules that a flush finished.
func (r *Registry) OnBatchComplete() {
	for _, mod := range r.Created() {
		if l, ok := mod.(BatchCompleteListener); ok {
			l.OnBatchComplete()
		}
	}
}

// Invalidate notifies created modules that the context is going away.
func (r *Registry) Invalidate() {
	for _, mod := range r.Created() {
		if inv, ok := mod.(Invalidator); ok {
			inv.Invalidate()
		}
	}
}

// SortedNames returns module names in lexical order, for display.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
