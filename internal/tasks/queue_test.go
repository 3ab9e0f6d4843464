package tasks

import (
	"testing"
	"time"
)

func newTestQueue[T any](start time.Time) *Queue[T] {
	q := NewQueue[T]()
	tick := start
	q.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return q
}

func drain[T any](q *Queue[T]) []T {
	var out []T
	for {
		item, ok := q.Dequeue()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("A", 5)
	q.Enqueue("B", 10)
	q.Enqueue("C", 5)

	got := drain(q)
	want := []string{"B", "A", "C"}
	if len(got) != len(want) {
		t.Fatalf("dequeued %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dequeue[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueueFIFOWithinTier(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 20; i++ {
		q.Enqueue(i, 7)
	}

	got := drain(q)
	for i, v := range got {
		if v != i {
			t.Fatalf("dequeue[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestQueueMixedTiers(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("low-1", 1)
	q.Enqueue("high-1", 9)
	q.Enqueue("mid-1", 5)
	q.Enqueue("high-2", 9)
	q.Enqueue("low-2", 1)
	q.Enqueue("mid-2", 5)

	got := drain(q)
	want := []string{"high-1", "high-2", "mid-1", "mid-2", "low-1", "low-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dequeue[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueueEmpty(t *testing.T) {
	q := NewQueue[string]()

	if !q.IsEmpty() {
		t.Error("new queue should be empty")
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on empty queue returned ok")
	}
	if _, ok := q.Peek(); ok {
		t.Error("Peek() on empty queue returned ok")
	}
	if q.Size() != 0 {
		t.Errorf("Size() = %d, want 0", q.Size())
	}
	if s := q.Stats(); s.Total != 0 || !s.Oldest.IsZero() {
		t.Errorf("Stats() = %+v, want empty", s)
	}
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a", 1)
	q.Enqueue("b", 2)

	head, ok := q.Peek()
	if !ok || head != "b" {
		t.Fatalf("Peek() = %q, %v, want b, true", head, ok)
	}
	if q.Size() != 2 {
		t.Errorf("Size() after Peek = %d, want 2", q.Size())
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue[int]()
	q.Enqueue(1, 1)
	q.Enqueue(2, 2)
	q.Clear()

	if !q.IsEmpty() {
		t.Errorf("Size() after Clear = %d, want 0", q.Size())
	}
	q.Enqueue(3, 3)
	if v, _ := q.Dequeue(); v != 3 {
		t.Errorf("Dequeue() after Clear = %d, want 3", v)
	}
}

func TestQueueByPriority(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a", 5)
	q.Enqueue("b", 10)
	q.Enqueue("c", 5)
	q.Enqueue("d", 1)

	got := q.ByPriority(5)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("ByPriority(5) = %v, want [a c]", got)
	}
	if got := q.ByPriority(42); len(got) != 0 {
		t.Errorf("ByPriority(42) = %v, want empty", got)
	}
}

func TestQueueStats(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newTestQueue[string](start)
	q.Enqueue("a", 5)  // t+1s
	q.Enqueue("b", 10) // t+2s
	q.Enqueue("c", 5)  // t+3s

	s := q.Stats()
	if s.Total != 3 {
		t.Errorf("Total = %d, want 3", s.Total)
	}
	if s.Priorities[5] != 2 || s.Priorities[10] != 1 {
		t.Errorf("Priorities = %v, want map[5:2 10:1]", s.Priorities)
	}
	if want := start.Add(time.Second); !s.Oldest.Equal(want) {
		t.Errorf("Oldest = %v, want %v", s.Oldest, want)
	}
}

func TestQueueItemsSnapshot(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a", 1)
	q.Enqueue("b", 2)

	items := q.Items()
	if len(items) != 2 || items[0].Item != "b" || items[1].Item != "a" {
		t.Fatalf("Items() = %+v, want [b a]", items)
	}
	items[0].Item = "mutated"
	if head, _ := q.Peek(); head != "b" {
		t.Errorf("mutating snapshot changed queue head to %q", head)
	}
}

func TestQueueDequeueEntryKeepsPriority(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("low", 1)
	q.Enqueue("high", 9)

	e, ok := q.DequeueEntry()
	if !ok || e.Item != "high" || e.Priority != 9 || e.EnqueuedAt.IsZero() {
		t.Fatalf("DequeueEntry() = %+v, %v", e, ok)
	}

	q.Enqueue(e.Item, e.Priority)
	if head, _ := q.Peek(); head != "high" {
		t.Errorf("re-enqueued entry lost its priority, head = %q", head)
	}

	q.Clear()
	if _, ok := q.DequeueEntry(); ok {
		t.Error("DequeueEntry() on empty queue returned ok")
	}
}
