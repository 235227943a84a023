package uimanager

import (
	"fmt"
)

// Operation is one view mutation. Operations are applied only by the batch
// applier, on the UI queue.
type Operation interface {
	Tag() int
	apply(h *Hierarchy) error
	fmt.Stringer
}

// Batch is the set of operations produced by one runtime -> native flush.
type Batch struct {
	ID         int64
	Operations []Operation
}

// CreateRootOp creates a root view.
type CreateRootOp struct {
	RootTag int
}

func (op *CreateRootOp) Tag() int { return op.RootTag }
func (op *CreateRootOp) String() string {
	return fmt.Sprintf("create root #%d", op.RootTag)
}
func (op *CreateRootOp) apply(h *Hierarchy) error {
	return h.addRoot(op.RootTag)
}

// CreateOp creates a view.
type CreateOp struct {
	ViewTag  int
	ViewName string
	RootTag  int
	Props    map[string]any
}

func (op *CreateOp) Tag() int { return op.ViewTag }
func (op *CreateOp) String() string {
	return fmt.Sprintf("create #%d %s", op.ViewTag, op.ViewName)
}
func (op *CreateOp) apply(h *Hierarchy) error {
	return h.createView(op.ViewTag, op.ViewName, op.RootTag, op.Props)
}

// UpdatePropsOp updates view properties.
type UpdatePropsOp struct {
	ViewTag int
	Props   map[string]any
}

func (op *UpdatePropsOp) Tag() int { return op.ViewTag }
func (op *UpdatePropsOp) String() string {
	return fmt.Sprintf("update #%d %d props", op.ViewTag, len(op.Props))
}
func (op *UpdatePropsOp) apply(h *Hierarchy) error {
	return h.updateProps(op.ViewTag, op.Props)
}

// ManageChildrenOp reorders, adds and removes children of a view.
type ManageChildrenOp struct {
	ViewTag int
	Change  ChildChange
}

func (op *ManageChildrenOp) Tag() int { return op.ViewTag }
func (op *ManageChildrenOp) String() string {
	return fmt.Sprintf("manage children #%d", op.ViewTag)
}
func (op *ManageChildrenOp) apply(h *Hierarchy) error {
	return h.manageChildren(op.ViewTag, op.Change)
}

// SetChildrenOp appends children to an empty view.
type SetChildrenOp struct {
	ViewTag  int
	Children []int
}

func (op *SetChildrenOp) Tag() int { return op.ViewTag }
func (op *SetChildrenOp) String() string {
	return fmt.Sprintf("set children #%d %v", op.ViewTag, op.Children)
}
func (op *SetChildrenOp) apply(h *Hierarchy) error {
	return h.setChildren(op.ViewTag, op.Children)
}

// UpdateLayoutOp resizes or repositions a view.
type UpdateLayoutOp struct {
	ViewTag int
	Layout  Layout
}

func (op *UpdateLayoutOp) Tag() int { return op.ViewTag }
func (op *UpdateLayoutOp) String() string {
	return fmt.Sprintf("layout #%d %+v", op.ViewTag, op.Layout)
}
func (op *UpdateLayoutOp) apply(h *Hierarchy) error {
	return h.updateLayout(op.ViewTag, op.Layout)
}

// DispatchCommandOp sends an imperative command to a view.
type DispatchCommandOp struct {
	ViewTag int
	Command string
	Args    []any
}

func (op *DispatchCommandOp) Tag() int { return op.ViewTag }
func (op *DispatchCommandOp) String() string {
	return fmt.Sprintf("command #%d %s", op.ViewTag, op.Command)
}
func (op *DispatchCommandOp) apply(h *Hierarchy) error {
	return h.dispatchCommand(op.ViewTag, op.Command, op.Args)
}

// RemoveRootOp drops a root view and everything under it.
type RemoveRootOp struct {
	RootTag int
}

func (op *RemoveRootOp) Tag() int { return op.RootTag }
func (op *RemoveRootOp) String() string {
	return fmt.Sprintf("remove root #%d", op.RootTag)
}
func (op *RemoveRootOp) apply(h *Hierarchy) error {
	return h.removeRoot(op.RootTag)
}
