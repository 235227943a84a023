package uimanager

import (
	"fmt"
	"sort"
	"strings"
)

// View is a native view created by a ViewManager. The bridge never looks
// inside it.
type View any

// Layout is a view frame in parent coordinates.
type Layout struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ViewManager creates views of one type. The other capabilities are
// optional and checked per manager.
type ViewManager interface {
	Name() string
	CreateView(tag int) (View, error)
}

// PropSetter applies property updates. A nil value clears the property.
type PropSetter interface {
	SetProps(v View, props map[string]any) error
}

// ChildManager maintains the children of container views.
type ChildManager interface {
	AddView(parent, child View, index int) error
	RemoveViewAt(parent View, index int) error
}

// LayoutSetter positions views.
type LayoutSetter interface {
	SetLayout(v View, l Layout) error
}

// CommandReceiver handles imperative view commands.
type CommandReceiver interface {
	ReceiveCommand(v View, command string, args []any) error
}

// Dropper is told when a view leaves the hierarchy for good.
type Dropper interface {
	OnDropView(v View)
}

// ViewManagerSpec describes a view manager supplied by a provider.
type ViewManagerSpec struct {
	Name    string
	Factory func() ViewManager
}

// Command is a dispatched view command.
type Command struct {
	Name string
	Args []any
}

// ViewNode is the in-memory view produced by NodeViewManager.
type ViewNode struct {
	Tag      int
	Name     string
	Props    map[string]any
	Layout   Layout
	Children []*ViewNode
	Commands []Command
	Dropped  bool
}

// NodeViewManager builds ViewNode trees. It implements every capability
// and is used for headless hosts and tests.
type NodeViewManager struct {
	ViewName string
}

// NodeViewManagerSpec returns a spec for a NodeViewManager named name.
func NodeViewManagerSpec(name string) ViewManagerSpec {
	return ViewManagerSpec{
		Name:    name,
		Factory: func() ViewManager { return &NodeViewManager{ViewName: name} },
	}
}

func (m *NodeViewManager) Name() string { return m.ViewName }

func (m *NodeViewManager) CreateView(tag int) (View, error) {
	return &ViewNode{Tag: tag, Name: m.ViewName, Props: map[string]any{}}, nil
}

func (m *NodeViewManager) SetProps(v View, props map[string]any) error {
	n, err := asNode(v)
	if err != nil {
		return err
	}
	for k, val := range props {
		if val == nil {
			delete(n.Props, k)
			continue
		}
		n.Props[k] = val
	}
	return nil
}

func (m *NodeViewManager) AddView(parent, child View, index int) error {
	p, err := asNode(parent)
	if err != nil {
		return err
	}
	c, err := asNode(child)
	if err != nil {
		return err
	}
	if index < 0 || index > len(p.Children) {
		return fmt.Errorf("add view %d at %d: parent %d has %d children", c.Tag, index, p.Tag, len(p.Children))
	}
	p.Children = append(p.Children, nil)
	copy(p.Children[index+1:], p.Children[index:])
	p.Children[index] = c
	return nil
}

func (m *NodeViewManager) RemoveViewAt(parent View, index int) error {
	p, err := asNode(parent)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(p.Children) {
		return fmt.Errorf("remove view at %d: parent %d has %d children", index, p.Tag, len(p.Children))
	}
	p.Children = append(p.Children[:index], p.Children[index+1:]...)
	return nil
}

func (m *NodeViewManager) SetLayout(v View, l Layout) error {
	n, err := asNode(v)
	if err != nil {
		return err
	}
	n.Layout = l
	return nil
}

func (m *NodeViewManager) ReceiveCommand(v View, command string, args []any) error {
	n, err := asNode(v)
	if err != nil {
		return err
	}
	n.Commands = append(n.Commands, Command{Name: command, Args: args})
	return nil
}

func (m *NodeViewManager) OnDropView(v View) {
	if n, ok := v.(*ViewNode); ok {
		n.Dropped = true
	}
}

func asNode(v View) (*ViewNode, error) {
	n, ok := v.(*ViewNode)
	if !ok {
		return nil, fmt.Errorf("view is %T, not *ViewNode", v)
	}
	return n, nil
}

// Node is a read-only snapshot of part of the native hierarchy.
type Node struct {
	Tag      int
	ViewName string
	Props    map[string]any
	Layout   Layout
	Children []*Node
}

// String renders the subtree one view per line.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b, 0)
	return b.String()
}

func (n *Node) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "%s #%d", n.ViewName, n.Tag)
	if len(n.Props) > 0 {
		keys := make([]string, 0, len(n.Props))
		for k := range n.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: %v", k, n.Props[k])
		}
		b.WriteByte('}')
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		c.write(b, depth+1)
	}
}
