package engine

import "sync"

// taskDeque is the per-worker work-stealing queue. The owner pushes and pops
// at the top (LIFO keeps the owner on its own subtree, hot in cache);
// thieves steal from the bottom, taking the oldest and therefore largest
// subtrees. A plain mutex is fine here: tasks are coarse units of work and
// the deque is never the bottleneck.
type taskDeque struct {
	mu    sync.Mutex
	items []parallelTask
}

func newTaskDeque() *taskDeque {
	return &taskDeque{items: make([]parallelTask, 0, 64)}
}

func (d *taskDeque) PushTop(t parallelTask) int {
	d.mu.Lock()
	d.items = append(d.items, t)
	n := len(d.items)
	d.mu.Unlock()
	return n
}

func (d *taskDeque) PopTop() (parallelTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := len(d.items)
	if l == 0 {
		return parallelTask{}, false
	}
	t := d.items[l-1]
	d.items[l-1] = parallelTask{}
	d.items = d.items[:l-1]
	return t, true
}

// StealBottom takes the oldest task, refusing tasks shallower than minDepth:
// those finish faster inline than they travel.
func (d *taskDeque) StealBottom(minDepth int) (parallelTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 || d.items[0].depth < minDepth {
		return parallelTask{}, false
	}
	t := d.items[0]
	copy(d.items, d.items[1:])
	d.items[len(d.items)-1] = parallelTask{}
	d.items = d.items[:len(d.items)-1]
	return t, true
}

// StealChunkBottom takes up to k of the oldest tasks in one locking, to
// amortize steal traffic when queues run deep.
func (d *taskDeque) StealChunkBottom(k, minDepth int) ([]parallelTask, bool) {
	if k <= 1 {
		if t, ok := d.StealBottom(minDepth); ok {
			return []parallelTask{t}, true
		}
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 || d.items[0].depth < minDepth {
		return nil, false
	}
	if k > n {
		k = n
	}
	chunk := make([]parallelTask, k)
	copy(chunk, d.items[:k])
	rest := copy(d.items, d.items[k:])
	for i := rest; i < n; i++ {
		d.items[i] = parallelTask{}
	}
	d.items = d.items[:rest]
	return chunk, true
}

func (d *taskDeque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
