package heap

import (
	"testing"

	"ribbit/internal/object"
)

func TestPushPop(t *testing.T) {
	h := New(8)

	rib, err := h.Push(object.FromInteger(42), object.FromInteger(PairTag))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !rib.IsRib() {
		t.Fatalf("Push returned non-rib object %v", rib)
	}

	if got := h.Car(rib); got.Raw() != 42 {
		t.Errorf("Car = %v, want 42", got)
	}
	if got := h.Cdr(rib); !object.Equal(got, object.Zero) {
		t.Errorf("Cdr = %v, want 0 (empty stack before push)", got)
	}

	if got := h.Pop(); got.Raw() != 42 {
		t.Errorf("Pop = %v, want 42", got)
	}
	if !object.Equal(h.Stack, object.Zero) {
		t.Errorf("Stack after popping the only frame = %v, want 0", h.Stack)
	}
}

func TestAllocateRibFields(t *testing.T) {
	h := New(8)

	car := object.FromInteger(1)
	cdr := object.FromInteger(2)
	tag := object.FromInteger(PairTag)

	rib, err := h.AllocateRib(car, cdr, tag)
	if err != nil {
		t.Fatalf("AllocateRib: %v", err)
	}

	if got := h.Car(rib); !object.Equal(got, car) {
		t.Errorf("Car = %v, want %v", got, car)
	}
	if got := h.Cdr(rib); !object.Equal(got, cdr) {
		t.Errorf("Cdr = %v, want %v", got, cdr)
	}
	if got := h.Tag(rib); !object.Equal(got, tag) {
		t.Errorf("Tag = %v, want %v", got, tag)
	}
	// AllocateRib must not leave the stack pointing at the allocated rib.
	if object.Equal(h.Stack, rib) {
		t.Errorf("Stack was left pointing at the allocated rib; allocate_rib must restore the prior stack")
	}
}

func TestAllocateRib2Fields(t *testing.T) {
	h := New(8)

	car := object.FromInteger(7)
	cdr := object.FromInteger(9)
	tag := object.FromInteger(ClosureTag)

	rib, err := h.AllocateRib2(car, cdr, tag)
	if err != nil {
		t.Fatalf("AllocateRib2: %v", err)
	}

	if got := h.Car(rib); !object.Equal(got, car) {
		t.Errorf("Car = %v, want %v", got, car)
	}
	if got := h.Cdr(rib); !object.Equal(got, cdr) {
		t.Errorf("Cdr = %v, want %v", got, cdr)
	}
	if got := h.Tag(rib); !object.Equal(got, tag) {
		t.Errorf("Tag = %v, want %v", got, tag)
	}
}

func TestListTailAndLength(t *testing.T) {
	h := New(8)

	var list object.Object = object.Zero
	for i := 0; i < 5; i++ {
		var err error
		list, err = h.AllocateRib(object.FromInteger(uint64(i)), list, object.FromInteger(PairTag))
		if err != nil {
			t.Fatalf("AllocateRib: %v", err)
		}
	}

	if got := h.ListLength(list); got.Raw() != 5 {
		t.Errorf("ListLength = %v, want 5", got)
	}

	tail := h.ListTail(list, object.FromInteger(5))
	if !object.Equal(tail, object.Zero) {
		t.Errorf("ListTail(list, 5) = %v, want 0", tail)
	}

	tail3 := h.ListTail(list, object.FromInteger(3))
	if got := h.Car(tail3); got.Raw() != 1 {
		t.Errorf("ListTail(list, 3).car = %v, want 1", got)
	}
}

// TestGCReclaimsAndPreservesReachable forces allocation across several GC
// cycles and checks that a known-reachable chain survives with its payload
// intact (spec.md §8 scenario 6: ids may change, semantics may not).
func TestGCReclaimsAndPreservesReachable(t *testing.T) {
	const ribsPerSpace = 16
	h := New(ribsPerSpace)

	// Build a reachable list of length K, rooted at the stack, alongside
	// a lot of garbage so GC must actually run and actually reclaim.
	const k = 5
	var reachable object.Object = object.Zero
	for i := 0; i < k; i++ {
		var err error
		reachable, err = h.AllocateRib(object.FromInteger(uint64(100+i)), reachable, object.FromInteger(PairTag))
		if err != nil {
			t.Fatalf("AllocateRib: %v", err)
		}
	}
	h.Stack = reachable

	before := h.GCCycles()

	// Allocate garbage (unreachable once overwritten) well past one
	// semi-space's capacity to force multiple collections.
	for i := 0; i < ribsPerSpace*4; i++ {
		garbage := object.Zero
		var err error
		garbage, err = h.AllocateRib(object.FromInteger(uint64(i)), garbage, object.FromInteger(PairTag))
		if err != nil {
			t.Fatalf("AllocateRib during garbage flood: %v", err)
		}
		_ = garbage // immediately unreachable; only `reachable`/h.Stack keeps roots alive
	}

	if h.GCCycles() <= before {
		t.Fatalf("expected at least one GC cycle, got %d (before %d)", h.GCCycles(), before)
	}

	if got := h.ListLength(h.Stack); got.Raw() != k {
		t.Fatalf("ListLength(Stack) after GC = %v, want %d", got, k)
	}

	list := h.Stack
	for i := k - 1; i >= 0; i-- {
		if got := h.Car(list); got.Raw() != uint64(100+i) {
			t.Errorf("chain element = %v, want %d", got, 100+i)
		}
		list = h.Cdr(list)
	}
	if !object.Equal(list, object.Zero) {
		t.Errorf("chain did not terminate at 0, got %v", list)
	}
}

func TestGCOutOfMemory(t *testing.T) {
	h := New(4)

	// Keep every allocation reachable from the stack so nothing can be
	// reclaimed; eventually GC must report OutOfMemory rather than loop
	// or corrupt the heap.
	var list object.Object = object.Zero
	var err error
	for i := 0; i < 1000; i++ {
		list, err = h.AllocateRib(object.FromInteger(uint64(i)), list, object.FromInteger(PairTag))
		h.Stack = list
		if err != nil {
			return // got the expected out-of-memory abort
		}
	}
	t.Fatal("expected GC to eventually report out-of-memory for an ever-growing reachable set")
}
