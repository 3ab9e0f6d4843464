package tasks

import "time"

// Entry is a queued item with its priority and enqueue time.
type Entry[T any] struct {
	Item       T
	Priority   int
	EnqueuedAt time.Time
}

// Stats summarizes the queue contents.
type Stats struct {
	Total      int
	Priorities map[int]int // priority -> count
	Oldest     time.Time   // zero when the queue is empty
}

// Queue is a priority queue where higher priorities dequeue first and
// entries of equal priority dequeue in insertion order.
//
// Queue is not safe for concurrent use; callers sharing a Queue must
// serialize access themselves.
type Queue[T any] struct {
	entries []Entry[T]
	now     func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{now: time.Now}
}

// Enqueue inserts item before the first entry with a strictly lower priority.
func (q *Queue[T]) Enqueue(item T, priority int) {
	e := Entry[T]{Item: item, Priority: priority, EnqueuedAt: q.clock()}

	for i := range q.entries {
		if priority > q.entries[i].Priority {
			q.entries = append(q.entries, Entry[T]{})
			copy(q.entries[i+1:], q.entries[i:])
			q.entries[i] = e
			return
		}
	}
	q.entries = append(q.entries, e)
}

// Dequeue removes and returns the head of the queue.
// The second result is false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	e, ok := q.DequeueEntry()
	return e.Item, ok
}

// DequeueEntry is Dequeue returning the whole entry, so the caller can
// re-enqueue it at its original priority.
func (q *Queue[T]) DequeueEntry() (Entry[T], bool) {
	if len(q.entries) == 0 {
		return Entry[T]{}, false
	}
	head := q.entries[0]
	q.entries[0] = Entry[T]{}
	q.entries = q.entries[1:]
	return head, true
}

// Peek returns the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if len(q.entries) == 0 {
		return zero, false
	}
	return q.entries[0].Item, true
}

// Size returns the number of queued entries.
func (q *Queue[T]) Size() int {
	return len(q.entries)
}

// IsEmpty reports whether the queue has no entries.
func (q *Queue[T]) IsEmpty() bool {
	return len(q.entries) == 0
}

// Clear removes all entries.
func (q *Queue[T]) Clear() {
	q.entries = nil
}

// ByPriority returns the items currently queued at exactly priority p,
// in dequeue order.
func (q *Queue[T]) ByPriority(p int) []T {
	var out []T
	for _, e := range q.entries {
		if e.Priority == p {
			out = append(out, e.Item)
		}
	}
	return out
}

// Items returns a snapshot of all queued entries in dequeue order.
func (q *Queue[T]) Items() []Entry[T] {
	out := make([]Entry[T], len(q.entries))
	copy(out, q.entries)
	return out
}

// Stats returns the total count, a per-priority histogram and the oldest
// enqueue time.
func (q *Queue[T]) Stats() Stats {
	s := Stats{
		Total:      len(q.entries),
		Priorities: make(map[int]int),
	}
	for _, e := range q.entries {
		s.Priorities[e.Priority]++
		if s.Oldest.IsZero() || e.EnqueuedAt.Before(s.Oldest) {
			s.Oldest = e.EnqueuedAt
		}
	}
	return s
}

func (q *Queue[T]) clock() time.Time {
	if q.now == nil {
		return time.Now()
	}
	return q.now()
}
