// Package deadline implements a cancellable task queue keyed by audio-clock
// time. Tasks are resolved by polling with the current clock value, so a
// deadline fires regardless of whether its owner is being updated per frame.
package deadline

import (
	"container/heap"
)

type taskState int

const (
	statePending taskState = iota
	stateFired
	stateCancelled
)

// Task is one scheduled deadline. It resolves exactly once: either its fire
// callback runs from Poll or its cancel callback runs from Cancel.
type Task struct {
	Deadline float64

	fire  func(now float64)
	state taskState
	seq   uint64
	index int // heap position, -1 when not queued
	queue *Queue
}

// Pending reports whether the task has neither fired nor been cancelled.
func (t *Task) Pending() bool { return t.state == statePending }

// Fired reports whether the task ran from Poll.
func (t *Task) Fired() bool { return t.state == stateFired }

// Cancelled reports whether the task was cancelled.
func (t *Task) Cancelled() bool { return t.state == stateCancelled }

// Cancel removes a pending task from its queue and runs onCancel (if not nil).
// It returns false, without calling onCancel, if the task already resolved.
func (t *Task) Cancel(onCancel func()) bool {
	if t.state != statePending {
		return false
	}
	t.state = stateCancelled
	if t.queue != nil && t.index >= 0 {
		heap.Remove(&t.queue.tasks, t.index)
	}
	if onCancel != nil {
		onCancel()
	}
	return true
}

// Queue is a min-heap of tasks ordered by deadline, then by schedule order.
// It is not safe for concurrent use; it belongs to the tick loop.
type Queue struct {
	tasks taskHeap
	seq   uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule registers fn to run once the polled clock reaches deadline.
func (q *Queue) Schedule(deadline float64, fn func(now float64)) *Task {
	q.seq++
	t := &Task{
		Deadline: deadline,
		fire:     fn,
		seq:      q.seq,
		index:    -1,
		queue:    q,
	}
	heap.Push(&q.tasks, t)
	return t
}

// Poll fires every pending task whose deadline is at or before now, earliest
// first, and returns how many fired. Callbacks may schedule or cancel tasks.
func (q *Queue) Poll(now float64) int {
	fired := 0
	for len(q.tasks) > 0 && q.tasks[0].Deadline <= now {
		t := heap.Pop(&q.tasks).(*Task)
		t.state = stateFired
		if t.fire != nil {
			t.fire(now)
		}
		fired++
	}
	return fired
}

// CancelAll cancels every pending task, calling onCancel for each in deadline
// order, and returns how many were cancelled.
func (q *Queue) CancelAll(onCancel func(*Task)) int {
	n := 0
	for len(q.tasks) > 0 {
		t := q.tasks[0]
		t.Cancel(nil)
		if onCancel != nil {
			onCancel(t)
		}
		n++
	}
	return n
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Next returns the earliest pending deadline.
func (q *Queue) Next() (float64, bool) {
	if len(q.tasks) == 0 {
		return 0, false
	}
	return q.tasks[0].Deadline, true
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Deadline != h[j].Deadline {
		return h[i].Deadline < h[j].Deadline
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
