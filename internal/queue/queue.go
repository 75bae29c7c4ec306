/**
 * CONTEXT:   Dual-store event queue feeding the daemon's single-threaded event loop
 * INPUT:     Immediate and timed scheduling requests from handlers and signal delivery
 * OUTPUT:    A deterministic ordering of due events for the loop to dispatch
 * BUSINESS:  The loop must never guess what runs next; the queue is the single source of truth
 * CHANGE:    Initial implementation split out of the daemon core
 * RISK:      Medium - Incorrect ordering here silently reorders every event the daemon handles
 */

package queue

import (
	"container/heap"
	"container/list"
	"errors"
	"time"
)

// ErrEmpty is returned by Next when both stores are empty.
var ErrEmpty = errors.New("queue: empty")

// ErrNothingDue is returned by Next when the timed heap holds work but none
// of it is due yet and the immediate FIFO is empty. The caller should sleep
// for WaitFor() and try again.
var ErrNothingDue = errors.New("queue: nothing due")

// Event is a scheduled unit of work: a name plus an opaque payload. The
// queue never interprets Args; only callback handlers do.
type Event struct {
	Name string
	Args map[string]any
}

type timedEntry struct {
	due   time.Time
	seq   uint64
	event Event
}

// timedHeap is a container/heap.Interface ordered by due time, ties broken
// by insertion sequence so two entries with an identical due time still
// come out in the order they were scheduled.
type timedHeap []*timedEntry

func (h timedHeap) Len() int { return len(h) }
func (h timedHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timedHeap) Push(x any)   { *h = append(*h, x.(*timedEntry)) }
func (h *timedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the engine's event store: an immediate FIFO plus a timed min-heap.
// Not safe for unsynchronized concurrent use. The daemon engine wraps Queue
// with its own mutex rather than duplicating locking here, keeping this type
// a plain, easily-tested data structure.
type Queue struct {
	immediate *list.List
	timed     timedHeap
	seq       uint64
	now       func() time.Time
}

// New creates an empty queue. now defaults to time.Now; tests may override
// it to make timed-entry behavior deterministic.
func New() *Queue {
	return &Queue{
		immediate: list.New(),
		now:       time.Now,
	}
}

// NewWithClock is New but with an injectable clock, used by tests that need
// to simulate clock jumps or precise due-time gating.
func NewWithClock(now func() time.Time) *Queue {
	q := New()
	q.now = now
	return q
}

// Schedule appends an event to the immediate FIFO's tail.
func (q *Queue) Schedule(name string, args map[string]any) {
	q.immediate.PushBack(Event{Name: name, Args: args})
}

// ScheduleNext prepends an event to the immediate FIFO's head. Used by the
// signal bridge to hoist synthetic signal events ahead of pending work.
func (q *Queue) ScheduleNext(name string, args map[string]any) {
	q.immediate.PushFront(Event{Name: name, Args: args})
}

// ScheduleAt pushes a timed entry due at the given wall-clock time.
func (q *Queue) ScheduleAt(due time.Time, name string, args map[string]any) {
	q.seq++
	heap.Push(&q.timed, &timedEntry{due: due, seq: q.seq, event: Event{Name: name, Args: args}})
}

// ScheduleAfter is ScheduleAt(now()+delta, ...). delta must be non-negative;
// fractional seconds are honored via time.Duration's nanosecond precision.
func (q *Queue) ScheduleAfter(delta time.Duration, name string, args map[string]any) {
	q.ScheduleAt(q.now().Add(delta), name, args)
}

// Next returns the event to run right now. Policy: a due timed entry beats
// the FIFO head; otherwise the FIFO head runs; otherwise, if the timed heap
// still holds undue work, ErrNothingDue tells the caller to sleep; otherwise
// ErrEmpty.
func (q *Queue) Next() (Event, error) {
	if len(q.timed) > 0 && !q.timed[0].due.After(q.now()) {
		entry := heap.Pop(&q.timed).(*timedEntry)
		return entry.event, nil
	}
	if q.immediate.Len() > 0 {
		front := q.immediate.Front()
		q.immediate.Remove(front)
		return front.Value.(Event), nil
	}
	if len(q.timed) > 0 {
		return Event{}, ErrNothingDue
	}
	return Event{}, ErrEmpty
}

// When returns the wall-clock time at which the next event becomes
// eligible: now() if the FIFO is non-empty, else the timed heap's root due
// time. If both stores are empty it returns the zero time and ErrEmpty.
func (q *Queue) When() (time.Time, error) {
	if q.immediate.Len() > 0 {
		return q.now(), nil
	}
	if len(q.timed) > 0 {
		return q.timed[0].due, nil
	}
	return time.Time{}, ErrEmpty
}

// WaitFor returns how long the loop should sleep before the next event
// becomes due: zero if the FIFO is non-empty, else the time remaining until
// the timed heap's root is due (which may be negative if overdue; callers
// must clamp to zero).
func (q *Queue) WaitFor() time.Duration {
	if q.immediate.Len() > 0 {
		return 0
	}
	if len(q.timed) > 0 {
		return q.timed[0].due.Sub(q.now())
	}
	return 0
}

// Count returns the total number of pending entries across both stores.
func (q *Queue) Count() int {
	return q.immediate.Len() + len(q.timed)
}
