package uimanager

import (
	"sort"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/queue"
	"github.com/wippyai/hostbridge/value"
)

const (
	// ModuleName is the runtime-visible name of the UI manager module.
	ModuleName = "UIManager"
	// RootViewName is the view manager used for root views unless a
	// provider supplies its own.
	RootViewName = "RootView"
)

// Manager owns the view hierarchy of one runtime context. Runtime calls
// arrive through the UIManager native module on the native-module queue,
// are validated against the shadow tree and applied in batches on the UI
// queue.
type Manager struct {
	queues  *queue.Config
	names   []string
	shadow  *shadowTree
	hier    *Hierarchy
	applier *Applier

	mu   sync.Mutex
	host nativemodule.Host
}

// New creates a manager for the given view managers.
func New(queues *queue.Config, specs []ViewManagerSpec) (*Manager, error) {
	managers := make(map[string]ViewManager, len(specs))
	for _, s := range specs {
		if s.Factory == nil {
			return nil, errors.Configuration(errors.PhaseUI, "view manager "+s.Name+" has no factory")
		}
		if _, dup := managers[s.Name]; dup {
			return nil, errors.Configuration(errors.PhaseUI, "view manager "+s.Name+" registered twice")
		}
		managers[s.Name] = s.Factory()
	}
	root, ok := managers[RootViewName]
	if !ok {
		root = &NodeViewManager{ViewName: RootViewName}
	}
	names := lo.Keys(managers)
	sort.Strings(names)

	m := &Manager{
		queues: queues,
		names:  names,
		shadow: newShadowTree(names),
		hier:   newHierarchy(managers, root),
	}
	m.applier = newApplier(queues.UI, m.hier, m.report)
	return m, nil
}

// Spec returns the native module spec that exposes m to the runtime.
func (m *Manager) Spec() nativemodule.ModuleSpec {
	return nativemodule.ModuleSpec{
		Name:         ModuleName,
		HasConstants: true,
		Factory: func(host nativemodule.Host) nativemodule.NativeModule {
			m.mu.Lock()
			m.host = host
			m.mu.Unlock()
			return &module{m: m}
		},
	}
}

func (m *Manager) report(err error) {
	m.mu.Lock()
	host := m.host
	m.mu.Unlock()
	if host != nil {
		host.HandleException(err)
		return
	}
	Logger().Error("view operation failed", zap.Error(err))
}

// ViewManagerNames returns the registered view manager names, sorted.
func (m *Manager) ViewManagerNames() []string {
	return append([]string(nil), m.names...)
}

// Applier returns the batch applier.
func (m *Manager) Applier() *Applier {
	return m.applier
}

// Hierarchy returns the native view tree. It may only be used on the UI
// queue.
func (m *Manager) Hierarchy() *Hierarchy {
	m.queues.UI.AssertOnQueue("Hierarchy")
	return m.hier
}

// AddRootView registers a root view. Must run on the UI queue. The root
// is created as its own batch, ahead of any operation the runtime issues
// for it.
func (m *Manager) AddRootView(tag int) error {
	m.queues.UI.AssertOnQueue("AddRootView")
	if _, err := m.hier.entry(tag); err == nil {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "root tag already in use")
	}
	m.queues.NativeModules.Run(func() {
		if err := m.shadow.addRoot(tag); err != nil {
			m.report(err)
			return
		}
		m.applier.Enqueue(&CreateRootOp{RootTag: tag})
		m.applier.DispatchBatch()
	})
	return nil
}

// RemoveRootView schedules removal of a root view and its subtree. The
// removal is applied as its own batch.
func (m *Manager) RemoveRootView(tag int) {
	m.queues.NativeModules.Run(func() {
		if err := m.shadow.removeRoot(tag); err != nil {
			m.report(err)
			return
		}
		m.applier.Enqueue(&RemoveRootOp{RootTag: tag})
		m.applier.DispatchBatch()
	})
}

// Snapshot copies the view tree under a root. Safe from any goroutine.
func (m *Manager) Snapshot(rootTag int) (*Node, error) {
	return queue.Call(m.queues.UI, func() (*Node, error) {
		return m.hier.Snapshot(rootTag)
	})
}

func (m *Manager) AddWillApplyBatchListener(l BatchListener) {
	m.applier.AddWillApplyBatchListener(l)
}

func (m *Manager) AddDidApplyBatchListener(l BatchListener) {
	m.applier.AddDidApplyBatchListener(l)
}

func (m *Manager) AddBatchEventListener(l BatchEventListener) {
	m.applier.AddBatchEventListener(l)
}

// module is the runtime-facing side of a Manager.
type module struct {
	m *Manager
}

func (mod *module) Name() string { return ModuleName }

func (mod *module) Constants() map[string]any {
	return map[string]any{"viewManagers": lo.ToAnySlice(mod.m.names)}
}

// OnBatchComplete closes the pending batch at the end of each flush.
func (mod *module) OnBatchComplete() {
	mod.m.applier.DispatchBatch()
}

// Invalidate drops operations that never made it into a batch.
func (mod *module) Invalidate() {
	a := mod.m.applier
	a.mu.Lock()
	dropped := len(a.pending)
	a.pending = nil
	a.mu.Unlock()
	if dropped > 0 {
		Logger().Debug("discarded pending view operations", zap.Int("count", dropped))
	}
}

func (mod *module) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		{Name: "createView", Handler: mod.createView},
		{Name: "updateView", Handler: mod.updateView},
		{Name: "manageChildren", Handler: mod.manageChildren},
		{Name: "setChildren", Handler: mod.setChildren},
		{Name: "updateLayout", Handler: mod.updateLayout},
		{Name: "dispatchViewManagerCommand", Handler: mod.dispatchCommand},
		{Name: "removeRootView", Handler: mod.removeRootView},
		{Name: "measure", Handler: mod.measure},
	}
}

func (mod *module) createView(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	name, err := c.String(1)
	if err != nil {
		return nil, err
	}
	root, err := c.Int(2)
	if err != nil {
		return nil, err
	}
	props, err := c.Map(3)
	if err != nil {
		return nil, err
	}
	if err := mod.m.shadow.create(tag, name, root); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&CreateOp{ViewTag: tag, ViewName: name, RootTag: root, Props: props})
	return nil, nil
}

func (mod *module) updateView(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	props, err := c.Map(2)
	if err != nil {
		return nil, err
	}
	if err := mod.m.shadow.update(tag); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&UpdatePropsOp{ViewTag: tag, Props: props})
	return nil, nil
}

func (mod *module) manageChildren(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	var lists [5][]int
	for i := range lists {
		if lists[i], err = intList(c, i+1); err != nil {
			return nil, err
		}
	}
	change := ChildChange{
		MoveFrom:   lists[0],
		MoveTo:     lists[1],
		AddTags:    lists[2],
		AddAt:      lists[3],
		RemoveFrom: lists[4],
	}
	if err := mod.m.shadow.manageChildren(tag, change); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&ManageChildrenOp{ViewTag: tag, Change: change})
	return nil, nil
}

func (mod *module) setChildren(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	children, err := intList(c, 1)
	if err != nil {
		return nil, err
	}
	if err := mod.m.shadow.setChildren(tag, children); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&SetChildrenOp{ViewTag: tag, Children: children})
	return nil, nil
}

func (mod *module) updateLayout(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	raw, err := c.Map(1)
	if err != nil {
		return nil, err
	}
	var l Layout
	for key, dst := range map[string]*float64{"x": &l.X, "y": &l.Y, "width": &l.Width, "height": &l.Height} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		f, ok := value.ToFloat(v)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseUI, []string{c.Module, c.Method, key}, value.TypeName(v), "number")
		}
		*dst = f
	}
	if err := mod.m.shadow.updateLayout(tag, l); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&UpdateLayoutOp{ViewTag: tag, Layout: l})
	return nil, nil
}

func (mod *module) dispatchCommand(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	command, err := c.String(1)
	if err != nil {
		return nil, err
	}
	args, err := c.Slice(2)
	if err != nil {
		return nil, err
	}
	if _, err := mod.m.shadow.node(tag); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&DispatchCommandOp{ViewTag: tag, Command: command, Args: args})
	return nil, nil
}

func (mod *module) removeRootView(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	if err := mod.m.shadow.removeRoot(tag); err != nil {
		return nil, err
	}
	mod.m.applier.Enqueue(&RemoveRootOp{RootTag: tag})
	return nil, nil
}

// measure answers with x, y, width and height relative to the root.
func (mod *module) measure(c *nativemodule.Call) (any, error) {
	tag, err := c.Int(0)
	if err != nil {
		return nil, err
	}
	l, err := mod.m.shadow.measure(tag)
	if err != nil {
		return nil, err
	}
	c.Callback.Invoke(l.X, l.Y, l.Width, l.Height)
	return nil, nil
}

func intList(c *nativemodule.Call, i int) ([]int, error) {
	items, err := c.Slice(i)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for j, v := range items {
		n, ok := value.ToInt(v)
		if !ok {
			return nil, errors.New(errors.PhaseUI, errors.KindTypeMismatch).
				Path(c.Module, c.Method, "arg"+strconv.Itoa(i), strconv.Itoa(j)).
				GoType(value.TypeName(v)).
				WantType("integer").
				Build()
		}
		out = append(out, n)
	}
	return out, nil
}
