package heap_test

import (
	"testing"

	"github.com/pine2k/pine2k/heap"
)

func TestAllocZeroesPayload(t *testing.T) {
	h := heap.New()
	a, err := h.Alloc(4, false)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", a.Len())
	}
	for i := 0; i < 4; i++ {
		if a.Get(i) != 0 {
			t.Fatalf("payload[%d] = %d, want 0", i, a.Get(i))
		}
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	h := heap.New()
	a, _ := h.Alloc(2, false)
	a.Set(0, 111)
	a.Set(1, 222)
	if a.Get(0) != 111 || a.Get(1) != 222 {
		t.Fatalf("round trip failed: %d, %d", a.Get(0), a.Get(1))
	}
}

func TestGCFreesUnreachableArray(t *testing.T) {
	h := heap.New()
	h.Lock() // hold the lock while setting up so Alloc doesn't collect mid-setup

	a, _ := h.Alloc(2, false) // will become unreachable
	a.Set(0, 1)
	a.Set(1, 2)

	b, _ := h.Alloc(2, false) // kept reachable via a global word
	b.Set(0, 99)

	h.GlobalWords = []uint32{b.Offset + 8} // points into b's payload
	h.StackWords = nil

	h.Unlock()
	h.Collect()

	found := false
	h.Walk(func(arr heap.Array) {
		if arr.Offset == b.Offset {
			found = true
		}
		if arr.Offset == a.Offset {
			t.Fatalf("unreachable array a was not freed")
		}
	})
	if !found {
		t.Fatalf("reachable array b was incorrectly freed")
	}
}

func TestIsRootSurvivesWithNoReferences(t *testing.T) {
	h := heap.New()
	h.Lock()
	root, _ := h.Alloc(1, true)
	h.Unlock()
	h.Collect()

	survived := false
	h.Walk(func(a heap.Array) {
		if a.Offset == root.Offset {
			survived = true
		}
	})
	if !survived {
		t.Fatalf("is-root array was freed")
	}
}

func TestTransitiveClosureKeepsChainedArray(t *testing.T) {
	h := heap.New()
	h.Lock()

	inner, _ := h.Alloc(1, false)
	inner.Set(0, 7)

	outer, _ := h.Alloc(1, false)
	outer.Set(0, inner.Offset+8) // points into inner's payload

	h.GlobalWords = []uint32{outer.Offset + 8}
	h.Unlock()
	h.Collect()

	innerFound := false
	h.Walk(func(a heap.Array) {
		if a.Offset == inner.Offset {
			innerFound = true
		}
	})
	if !innerFound {
		t.Fatalf("array reachable only transitively through another array was freed")
	}
}

func TestGCLockPreventsCollection(t *testing.T) {
	h := heap.New()
	h.Lock()
	a, _ := h.Alloc(1, false)
	h.GlobalWords = nil
	h.StackWords = nil
	h.Collect() // should be a no-op: lock still held

	found := false
	h.Walk(func(arr heap.Array) {
		if arr.Offset == a.Offset {
			found = true
		}
	})
	if !found {
		t.Fatalf("array was freed while GC lock was held")
	}
}
