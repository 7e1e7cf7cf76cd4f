package engine

import (
	"testing"

	"github.com/matryer/is"
)

func dequeOf(depths ...int) *taskDeque {
	d := newTaskDeque()
	for i, depth := range depths {
		d.PushTop(parallelTask{depth: depth, taskID: uint64(i + 1)})
	}
	return d
}

func TestDequeOwnerIsLIFO(t *testing.T) {
	is := is.New(t)
	d := dequeOf(5, 4, 3)

	task, ok := d.PopTop()
	is.True(ok)
	is.Equal(task.depth, 3) // newest first for the owner
	task, _ = d.PopTop()
	is.Equal(task.depth, 4)
	task, _ = d.PopTop()
	is.Equal(task.depth, 5)

	_, ok = d.PopTop()
	is.True(!ok)
	is.Equal(d.Len(), 0)
}

func TestDequeThiefIsFIFO(t *testing.T) {
	is := is.New(t)
	d := dequeOf(5, 4, 3)

	task, ok := d.StealBottom(0)
	is.True(ok)
	is.Equal(task.depth, 5) // oldest and deepest for the thief

	task, ok = d.PopTop()
	is.True(ok)
	is.Equal(task.depth, 3) // owner end untouched by the steal
	is.Equal(d.Len(), 1)
}

func TestDequeStealRespectsMinDepth(t *testing.T) {
	is := is.New(t)
	d := dequeOf(1, 6)

	// The bottom task is too shallow to be worth shipping.
	_, ok := d.StealBottom(2)
	is.True(!ok)
	is.Equal(d.Len(), 2)

	// The owner is not bound by the steal floor.
	task, ok := d.PopTop()
	is.True(ok)
	is.Equal(task.depth, 6)
}

func TestDequeStealEmpty(t *testing.T) {
	is := is.New(t)
	d := newTaskDeque()
	_, ok := d.StealBottom(0)
	is.True(!ok)
	_, ok = d.StealChunkBottom(4, 0)
	is.True(!ok)
}

func TestDequeChunkSteal(t *testing.T) {
	is := is.New(t)
	d := dequeOf(9, 8, 7, 6, 5)

	chunk, ok := d.StealChunkBottom(3, 0)
	is.True(ok)
	is.Equal(len(chunk), 3)
	is.Equal(chunk[0].depth, 9) // oldest first, order preserved
	is.Equal(chunk[1].depth, 8)
	is.Equal(chunk[2].depth, 7)

	is.Equal(d.Len(), 2)
	task, _ := d.PopTop()
	is.Equal(task.depth, 5)
	task, _ = d.PopTop()
	is.Equal(task.depth, 6)
}

func TestDequeChunkStealClampsToLen(t *testing.T) {
	is := is.New(t)
	d := dequeOf(4, 3)

	chunk, ok := d.StealChunkBottom(10, 0)
	is.True(ok)
	is.Equal(len(chunk), 2)
	is.Equal(d.Len(), 0)
}

func TestDequeChunkStealOfOne(t *testing.T) {
	is := is.New(t)
	d := dequeOf(4, 3)

	chunk, ok := d.StealChunkBottom(1, 0)
	is.True(ok)
	is.Equal(len(chunk), 1)
	is.Equal(chunk[0].depth, 4)
	is.Equal(d.Len(), 1)
}

func TestDequePushReportsLength(t *testing.T) {
	is := is.New(t)
	d := newTaskDeque()
	is.Equal(d.PushTop(parallelTask{depth: 1}), 1)
	is.Equal(d.PushTop(parallelTask{depth: 2}), 2)
	is.Equal(d.PushTop(parallelTask{depth: 3}), 3)
}
