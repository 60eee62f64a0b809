package queue

import "testing"

func intEqual(a, b int) bool { return a == b }

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(intEqual)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue() = %d, %v; want %d, true", got, ok, want)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Fatalf("Dequeue on empty queue should return ok=false")
	}
}

func TestRemoveRepositionsTailAndIterator(t *testing.T) {
	q := New(intEqual)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	q.BeginCyclicIter()
	q.NextCyclicIter() // returns 1, iter now points at 2

	if _, ok := q.Remove(2); !ok {
		t.Fatalf("expected to remove 2")
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2 after remove, got %d", q.Size())
	}

	// iterator must have repositioned off the evicted node rather than dangling
	v, ok := q.NextCyclicIter()
	if !ok || v != 3 {
		t.Fatalf("expected iterator to reposition onto 3, got %d, %v", v, ok)
	}

	if _, ok := q.Remove(3); !ok {
		t.Fatalf("expected to remove 3 (new tail)")
	}
	if got, ok := q.Peek(); !ok || got != 1 {
		t.Fatalf("expected remaining head to be 1, got %d", got)
	}
}

func TestCyclicIteratorWrapsAndLoops(t *testing.T) {
	q := New(intEqual)
	q.Enqueue(1)
	q.Enqueue(2)

	q.BeginCyclicIter()
	first, _ := q.NextCyclicIter()
	second, _ := q.NextCyclicIter()
	if first != 1 || second != 2 {
		t.Fatalf("unexpected iteration order: %d, %d", first, second)
	}
	if !q.CyclicIterLooped() {
		t.Fatalf("expected iterator to have looped back to head")
	}
}

func TestContains(t *testing.T) {
	q := New(intEqual)
	q.Enqueue(10)
	q.Enqueue(20)

	if !q.Contains(20) {
		t.Fatalf("expected Contains(20) to be true")
	}
	if q.Contains(30) {
		t.Fatalf("expected Contains(30) to be false")
	}
}

func TestDequeueRepositionsIteratorAtHead(t *testing.T) {
	q := New(intEqual)
	q.Enqueue(1)
	q.Enqueue(2)

	q.BeginCyclicIter() // iter == head (1)
	if _, ok := q.Dequeue(); !ok {
		t.Fatalf("expected dequeue to succeed")
	}

	v, ok := q.NextCyclicIter()
	if !ok || v != 2 {
		t.Fatalf("expected iterator moved to 2 after dequeuing its previous target, got %d, %v", v, ok)
	}
}
