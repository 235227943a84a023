package uimanager

import (
	"strconv"

	"github.com/wippyai/hostbridge/errors"
)

type viewEntry struct {
	tag      int
	name     string
	manager  ViewManager
	view     View
	rootTag  int
	parent   int
	children []int
	root     bool
}

// Hierarchy is the native view tree. It is confined to the UI queue and
// only changed by applying batches.
type Hierarchy struct {
	managers map[string]ViewManager
	rootMgr  ViewManager
	views    map[int]*viewEntry
}

func newHierarchy(managers map[string]ViewManager, root ViewManager) *Hierarchy {
	return &Hierarchy{
		managers: managers,
		rootMgr:  root,
		views:    make(map[int]*viewEntry),
	}
}

func tagPath(tag int) []string {
	return []string{"#" + strconv.Itoa(tag)}
}

func (h *Hierarchy) entry(tag int) (*viewEntry, error) {
	e, ok := h.views[tag]
	if !ok {
		return nil, errors.NotFound(errors.PhaseUI, "view", "#"+strconv.Itoa(tag))
	}
	return e, nil
}

func (h *Hierarchy) addRoot(tag int) error {
	if _, ok := h.views[tag]; ok {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "root tag already in use")
	}
	v, err := h.rootMgr.CreateView(tag)
	if err != nil {
		return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "create root view")
	}
	h.views[tag] = &viewEntry{tag: tag, name: h.rootMgr.Name(), manager: h.rootMgr, view: v, rootTag: tag, root: true}
	return nil
}

func (h *Hierarchy) createView(tag int, name string, rootTag int, props map[string]any) error {
	mgr, ok := h.managers[name]
	if !ok {
		return errors.NotFound(errors.PhaseUI, "view manager", name)
	}
	v, err := mgr.CreateView(tag)
	if err != nil {
		return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "create "+name)
	}
	e := &viewEntry{tag: tag, name: name, manager: mgr, view: v, rootTag: rootTag}
	h.views[tag] = e
	if len(props) > 0 {
		return h.setProps(e, props)
	}
	return nil
}

func (h *Hierarchy) setProps(e *viewEntry, props map[string]any) error {
	ps, ok := e.manager.(PropSetter)
	if !ok {
		return errors.Unsupported(errors.PhaseUI, e.name+" does not accept props")
	}
	if err := ps.SetProps(e.view, props); err != nil {
		return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "set props on "+e.name)
	}
	return nil
}

func (h *Hierarchy) updateProps(tag int, props map[string]any) error {
	e, err := h.entry(tag)
	if err != nil {
		return err
	}
	return h.setProps(e, props)
}

func (h *Hierarchy) childManager(e *viewEntry) (ChildManager, error) {
	cm, ok := e.manager.(ChildManager)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseUI, e.name+" cannot have children")
	}
	return cm, nil
}

func (h *Hierarchy) manageChildren(tag int, change ChildChange) error {
	parent, err := h.entry(tag)
	if err != nil {
		return err
	}
	cm, err := h.childManager(parent)
	if err != nil {
		return err
	}
	removeAt, inserts, dropped, err := change.plan(tag, parent.children)
	if err != nil {
		return err
	}

	for _, i := range removeAt {
		if err := cm.RemoveViewAt(parent.view, i); err != nil {
			return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "remove child of "+parent.name)
		}
	}
	for _, ins := range inserts {
		child, err := h.entry(ins.tag)
		if err != nil {
			return err
		}
		if err := cm.AddView(parent.view, child.view, ins.index); err != nil {
			return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "add child to "+parent.name)
		}
		child.parent = tag
	}
	parent.children = applyPlan(parent.children, removeAt, inserts)

	for _, t := range dropped {
		h.drop(t)
	}
	return nil
}

func (h *Hierarchy) setChildren(tag int, children []int) error {
	parent, err := h.entry(tag)
	if err != nil {
		return err
	}
	cm, err := h.childManager(parent)
	if err != nil {
		return err
	}
	for _, t := range children {
		child, err := h.entry(t)
		if err != nil {
			return err
		}
		if err := cm.AddView(parent.view, child.view, len(parent.children)); err != nil {
			return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "add child to "+parent.name)
		}
		parent.children = append(parent.children, t)
		child.parent = tag
	}
	return nil
}

func (h *Hierarchy) updateLayout(tag int, l Layout) error {
	e, err := h.entry(tag)
	if err != nil {
		return err
	}
	ls, ok := e.manager.(LayoutSetter)
	if !ok {
		return nil
	}
	if err := ls.SetLayout(e.view, l); err != nil {
		return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "layout "+e.name)
	}
	return nil
}

func (h *Hierarchy) dispatchCommand(tag int, command string, args []any) error {
	e, err := h.entry(tag)
	if err != nil {
		return err
	}
	cr, ok := e.manager.(CommandReceiver)
	if !ok {
		return errors.Unsupported(errors.PhaseUI, e.name+" does not receive commands")
	}
	if err := cr.ReceiveCommand(e.view, command, args); err != nil {
		return errors.Wrap(errors.PhaseUI, errors.KindRuntimeCall, err, "command "+command+" on "+e.name)
	}
	return nil
}

func (h *Hierarchy) removeRoot(tag int) error {
	e, err := h.entry(tag)
	if err != nil {
		return err
	}
	if !e.root {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "not a root view")
	}
	h.drop(tag)
	for t, other := range h.views {
		if other.rootTag == tag {
			h.drop(t)
		}
	}
	return nil
}

// drop removes a view and its subtree.
func (h *Hierarchy) drop(tag int) {
	e, ok := h.views[tag]
	if !ok {
		return
	}
	for _, c := range e.children {
		h.drop(c)
	}
	delete(h.views, tag)
	if d, ok := e.manager.(Dropper); ok {
		d.OnDropView(e.view)
	}
}

// Size returns the number of live views, roots included.
func (h *Hierarchy) Size() int {
	return len(h.views)
}

// View returns the native view for tag.
func (h *Hierarchy) View(tag int) (View, bool) {
	e, ok := h.views[tag]
	if !ok {
		return nil, false
	}
	return e.view, true
}

// Snapshot copies the subtree rooted at tag.
func (h *Hierarchy) Snapshot(tag int) (*Node, error) {
	e, err := h.entry(tag)
	if err != nil {
		return nil, err
	}
	n := &Node{Tag: e.tag, ViewName: e.name}
	if vn, ok := e.view.(*ViewNode); ok {
		n.Layout = vn.Layout
		if len(vn.Props) > 0 {
			n.Props = make(map[string]any, len(vn.Props))
			for k, v := range vn.Props {
				n.Props[k] = v
			}
		}
	}
	for _, c := range e.children {
		child, err := h.Snapshot(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}
