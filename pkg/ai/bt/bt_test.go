package bt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type board struct {
	visited []string
}

func visit(name string, status Status) Node[*board] {
	return &Action[*board]{Do: func(bb *board) Status {
		bb.visited = append(bb.visited, name)
		return status
	}}
}

func TestSelectorStopsAtFirstNonFailure(t *testing.T) {
	bb := &board{}
	tree := &Selector[*board]{Children: []Node[*board]{
		visit("a", StatusFailure),
		visit("b", StatusRunning),
		visit("c", StatusSuccess),
	}}
	assert.Equal(t, StatusRunning, tree.Tick(bb))
	assert.Equal(t, []string{"a", "b"}, bb.visited)
}

func TestSequenceStopsAtFirstNonSuccess(t *testing.T) {
	bb := &board{}
	tree := &Sequence[*board]{Children: []Node[*board]{
		visit("a", StatusSuccess),
		&Condition[*board]{Check: func(*board) bool { return false }},
		visit("c", StatusSuccess),
	}}
	assert.Equal(t, StatusFailure, tree.Tick(bb))
	assert.Equal(t, []string{"a"}, bb.visited)
}

func TestSucceedAndNilNodes(t *testing.T) {
	bb := &board{}
	assert.Equal(t, StatusSuccess, (&Succeed[*board]{Child: visit("x", StatusFailure)}).Tick(bb))
	assert.Equal(t, StatusFailure, (&Action[*board]{}).Tick(bb))
	assert.Equal(t, StatusFailure, (&Condition[*board]{}).Tick(bb))
	assert.Equal(t, "running", StatusRunning.String())
}
