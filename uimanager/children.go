package uimanager

import (
	"sort"

	"github.com/samber/lo"

	"github.com/wippyai/hostbridge/errors"
)

// ChildChange describes one manageChildren call. Indices refer to the
// children before the change. Moved and removed indices are taken out
// first, highest index first; moved and added tags are then inserted at
// their target index, lowest index first.
type ChildChange struct {
	MoveFrom   []int
	MoveTo     []int
	AddTags    []int
	AddAt      []int
	RemoveFrom []int
}

type insertion struct {
	index int
	tag   int
}

// plan validates c against children and returns the removal indices in
// descending order, the insertions in ascending order and the tags removed
// for good.
func (c ChildChange) plan(parent int, children []int) (removeAt []int, inserts []insertion, dropped []int, err error) {
	path := []string{"manageChildren"}
	if len(c.MoveFrom) != len(c.MoveTo) {
		return nil, nil, nil, errors.InvalidData(errors.PhaseUI, path, "moveFrom and moveTo differ in length")
	}
	if len(c.AddTags) != len(c.AddAt) {
		return nil, nil, nil, errors.InvalidData(errors.PhaseUI, path, "addChildTags and addAtIndices differ in length")
	}

	removeAt = append(append([]int(nil), c.MoveFrom...), c.RemoveFrom...)
	if dups := lo.FindDuplicates(removeAt); len(dups) > 0 {
		return nil, nil, nil, errors.New(errors.PhaseUI, errors.KindInvalidData).
			Path(path...).
			Value(dups[0]).
			Detail("view %d: index %d moved or removed twice", parent, dups[0]).
			Build()
	}
	if dups := lo.FindDuplicates(c.AddTags); len(dups) > 0 {
		return nil, nil, nil, errors.New(errors.PhaseUI, errors.KindInvalidData).
			Path(path...).
			Value(dups[0]).
			Detail("view %d: tag %d added twice", parent, dups[0]).
			Build()
	}
	for _, i := range removeAt {
		if i < 0 || i >= len(children) {
			return nil, nil, nil, errors.New(errors.PhaseUI, errors.KindInvalidData).
				Path(path...).
				Value(i).
				Detail("view %d has %d children, index %d out of range", parent, len(children), i).
				Build()
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(removeAt)))

	for i, from := range c.MoveFrom {
		inserts = append(inserts, insertion{index: c.MoveTo[i], tag: children[from]})
	}
	for i, tag := range c.AddTags {
		inserts = append(inserts, insertion{index: c.AddAt[i], tag: tag})
	}
	sort.SliceStable(inserts, func(a, b int) bool { return inserts[a].index < inserts[b].index })

	size := len(children) - len(removeAt)
	for _, ins := range inserts {
		if ins.index < 0 || ins.index > size {
			return nil, nil, nil, errors.New(errors.PhaseUI, errors.KindInvalidData).
				Path(path...).
				Value(ins.index).
				Detail("view %d: cannot insert %d at %d", parent, ins.tag, ins.index).
				Build()
		}
		size++
	}

	dropped = lo.Map(c.RemoveFrom, func(i int, _ int) int { return children[i] })
	return removeAt, inserts, dropped, nil
}

// apply returns children after the change.
func applyPlan(children []int, removeAt []int, inserts []insertion) []int {
	next := append([]int(nil), children...)
	for _, i := range removeAt {
		next = append(next[:i], next[i+1:]...)
	}
	for _, ins := range inserts {
		next = append(next, 0)
		copy(next[ins.index+1:], next[ins.index:])
		next[ins.index] = ins.tag
	}
	return next
}
