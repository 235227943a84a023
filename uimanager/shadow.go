package uimanager

import (
	"strconv"

	"github.com/wippyai/hostbridge/errors"
)

type shadowNode struct {
	name     string
	root     int
	parent   int
	children []int
	layout   Layout
	isRoot   bool
}

// shadowTree mirrors the view hierarchy on the native-module queue. Every
// operation is checked against it before it is enqueued, so invalid
// operations fail at the call site instead of inside a batch.
type shadowTree struct {
	known map[string]bool
	nodes map[int]*shadowNode
}

func newShadowTree(names []string) *shadowTree {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return &shadowTree{known: known, nodes: make(map[int]*shadowNode)}
}

func (s *shadowTree) node(tag int) (*shadowNode, error) {
	n, ok := s.nodes[tag]
	if !ok {
		return nil, errors.NotFound(errors.PhaseUI, "view", "#"+strconv.Itoa(tag))
	}
	return n, nil
}

func (s *shadowTree) addRoot(tag int) error {
	if _, ok := s.nodes[tag]; ok {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "root tag already in use")
	}
	s.nodes[tag] = &shadowNode{root: tag, isRoot: true}
	return nil
}

func (s *shadowTree) create(tag int, name string, rootTag int) error {
	if _, ok := s.nodes[tag]; ok {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "view tag already in use")
	}
	if !s.known[name] {
		return errors.NotFound(errors.PhaseUI, "view manager", name)
	}
	root, err := s.node(rootTag)
	if err != nil {
		return err
	}
	if !root.isRoot {
		return errors.InvalidData(errors.PhaseUI, tagPath(rootTag), "not a root view")
	}
	s.nodes[tag] = &shadowNode{name: name, root: rootTag}
	return nil
}

func (s *shadowTree) update(tag int) error {
	n, err := s.node(tag)
	if err != nil {
		return err
	}
	if n.isRoot {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "root views have no props")
	}
	return nil
}

func (s *shadowTree) manageChildren(tag int, c ChildChange) error {
	parent, err := s.node(tag)
	if err != nil {
		return err
	}
	removeAt, inserts, dropped, err := c.plan(tag, parent.children)
	if err != nil {
		return err
	}
	for _, t := range c.AddTags {
		child, err := s.node(t)
		if err != nil {
			return err
		}
		if err := s.attachable(tag, t, child); err != nil {
			return err
		}
	}
	parent.children = applyPlan(parent.children, removeAt, inserts)
	for _, t := range c.AddTags {
		s.nodes[t].parent = tag
	}
	for _, t := range dropped {
		s.drop(t)
	}
	return nil
}

func (s *shadowTree) setChildren(tag int, children []int) error {
	parent, err := s.node(tag)
	if err != nil {
		return err
	}
	if len(parent.children) > 0 {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "setChildren on a view that already has children")
	}
	seen := make(map[int]bool, len(children))
	for _, t := range children {
		child, err := s.node(t)
		if err != nil {
			return err
		}
		if seen[t] {
			return errors.InvalidData(errors.PhaseUI, tagPath(t), "view already has a parent")
		}
		if err := s.attachable(tag, t, child); err != nil {
			return err
		}
		seen[t] = true
	}
	parent.children = append([]int(nil), children...)
	for _, t := range children {
		s.nodes[t].parent = tag
	}
	return nil
}

// attachable reports whether child may become a child of parent. A view
// never gets a second parent and never becomes its own ancestor.
func (s *shadowTree) attachable(parent, tag int, child *shadowNode) error {
	if child.isRoot || child.parent != 0 {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "view already has a parent")
	}
	for p := parent; p != 0; {
		if p == tag {
			return errors.InvalidData(errors.PhaseUI, tagPath(tag), "view would become its own ancestor")
		}
		pn, ok := s.nodes[p]
		if !ok {
			break
		}
		p = pn.parent
	}
	return nil
}

func (s *shadowTree) updateLayout(tag int, l Layout) error {
	n, err := s.node(tag)
	if err != nil {
		return err
	}
	if l.Width < 0 || l.Height < 0 {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "negative size")
	}
	n.layout = l
	return nil
}

func (s *shadowTree) removeRoot(tag int) error {
	n, err := s.node(tag)
	if err != nil {
		return err
	}
	if !n.isRoot {
		return errors.InvalidData(errors.PhaseUI, tagPath(tag), "not a root view")
	}
	s.drop(tag)
	// Views created under the root but never attached go with it.
	for t, other := range s.nodes {
		if other.root == tag {
			delete(s.nodes, t)
		}
	}
	return nil
}

func (s *shadowTree) drop(tag int) {
	n, ok := s.nodes[tag]
	if !ok {
		return
	}
	for _, c := range n.children {
		s.drop(c)
	}
	delete(s.nodes, tag)
}

// measure returns the layout of tag relative to its root.
func (s *shadowTree) measure(tag int) (Layout, error) {
	n, err := s.node(tag)
	if err != nil {
		return Layout{}, err
	}
	l := n.layout
	for p := n.parent; p != 0; {
		pn, ok := s.nodes[p]
		if !ok {
			break
		}
		l.X += pn.layout.X
		l.Y += pn.layout.Y
		p = pn.parent
	}
	return l, nil
}
