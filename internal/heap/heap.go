// Package heap implements the VM's rib arena: a fixed-size, two-space
// copying heap addressed by rib id, along with the stack/list operations
// that are realized as rib chains through it.
package heap

import (
	"fmt"

	"ribbit/internal/object"
	"ribbit/internal/vmerrors"
)

// FieldCount is the number of Object slots in one rib.
const FieldCount = 3

// Tag values, matching spec.md §3's role table. ForwardingTag is not a real
// rib role; it is a sentinel the copying collector installs over a
// from-space rib's tag field once that rib has been relocated, since every
// real tag value (0,1,2,3,5) is already spoken for.
const (
	PairTag        = 0
	ClosureTag     = 1
	SymbolTag      = 2
	StringTag      = 3
	SingletonTag   = 5
	ForwardingTag  = 4
	DefaultMaxRibs = 30_000
)

// Heap is the two-semi-space rib arena plus the four GC roots.
type Heap struct {
	cells []object.Object

	spaceSize uint64 // cells per semi-space (= MaxRibs * FieldCount)

	allocIndex uint64
	allocLimit uint64

	// Roots. Stack and SymbolTable are rib chains; ProgramCounter walks
	// the instruction graph; False is the singleton rib from which True
	// and Nil are reachable (car and cdr respectively).
	Stack          object.Object
	ProgramCounter object.Object
	False          object.Object
	SymbolTable    object.Object

	gcCycles int
}

// New allocates a heap sized for at most maxRibs live ribs per semi-space.
func New(maxRibs uint64) *Heap {
	if maxRibs == 0 {
		maxRibs = DefaultMaxRibs
	}
	spaceSize := maxRibs * FieldCount
	return &Heap{
		cells:      make([]object.Object, spaceSize*2),
		spaceSize:  spaceSize,
		allocIndex: 0,
		allocLimit: spaceSize,
	}
}

// GCCycles reports how many collections have run, for diagnostics.
func (h *Heap) GCCycles() int { return h.gcCycles }

// LiveRibCount reports how many ribs are currently allocated in the active
// semi-space.
func (h *Heap) LiveRibCount() int {
	spaceStart := h.allocLimit - h.spaceSize
	return int((h.allocIndex - spaceStart) / FieldCount)
}

// HeapBytes reports the active semi-space's occupied byte count, computed
// as if each Object were a machine word (8 bytes) — used only for
// diagnostics, not for addressing.
func (h *Heap) HeapBytes() uint64 {
	spaceStart := h.allocLimit - h.spaceSize
	return (h.allocIndex - spaceStart) * 8
}

func carIndex(r object.Object) uint64 { return r.Raw() }
func cdrIndex(r object.Object) uint64 { return r.Raw() + 1 }
func tagIndex(r object.Object) uint64 { return r.Raw() + 2 }

// Car reads the first field of the rib r.
func (h *Heap) Car(r object.Object) object.Object { return h.cells[carIndex(r)] }

// Cdr reads the second field of the rib r.
func (h *Heap) Cdr(r object.Object) object.Object { return h.cells[cdrIndex(r)] }

// Tag reads the third field of the rib r.
func (h *Heap) Tag(r object.Object) object.Object { return h.cells[tagIndex(r)] }

// SetCar overwrites the first field of the rib r.
func (h *Heap) SetCar(r, v object.Object) { h.cells[carIndex(r)] = v }

// SetCdr overwrites the second field of the rib r.
func (h *Heap) SetCdr(r, v object.Object) { h.cells[cdrIndex(r)] = v }

// SetTag overwrites the third field of the rib r.
func (h *Heap) SetTag(r, v object.Object) { h.cells[tagIndex(r)] = v }

// Push is the sole allocation primitive. It writes (car, Stack, tag) as a
// fresh triple at the bump pointer and makes that triple the new stack top.
// If the write exhausts the active semi-space, it triggers GC afterward, and
// reports OutOfMemory if the collection leaves no room for another rib.
func (h *Heap) Push(car, tag object.Object) (object.Object, error) {
	idx := h.allocIndex
	h.cells[idx] = car
	h.cells[idx+1] = h.Stack
	h.cells[idx+2] = tag
	h.allocIndex += FieldCount

	h.Stack = object.FromRib(idx)

	if h.allocIndex == h.allocLimit {
		if err := h.GC(); err != nil {
			return object.Object{}, err
		}
		if h.allocIndex == h.allocLimit {
			return object.Object{}, vmerrors.New(vmerrors.OutOfMemory,
				fmt.Sprintf("live set fills all %d ribs of the space", h.spaceSize/FieldCount), nil)
		}
	}

	return h.Stack, nil
}

// Pop removes and returns the car of the current stack top.
func (h *Heap) Pop() object.Object {
	v := h.Car(h.Stack)
	h.Stack = h.Cdr(h.Stack)
	return v
}

// AllocateRib allocates a rib with the given fields, reusing Push's write of
// the old stack pointer as a scratch slot (spec.md §4.B).
func (h *Heap) AllocateRib(car, cdr, tag object.Object) (object.Object, error) {
	rib, err := h.Push(car, cdr)
	if err != nil {
		return object.Object{}, err
	}

	oldStack := h.Cdr(rib)
	h.SetCdr(rib, h.Tag(rib))
	h.SetTag(rib, tag)
	h.Stack = oldStack

	return rib, nil
}

// AllocateRib2 allocates a rib whose tag is already correct after Push,
// overwriting only the cdr field.
func (h *Heap) AllocateRib2(car, cdr, tag object.Object) (object.Object, error) {
	rib, err := h.Push(car, tag)
	if err != nil {
		return object.Object{}, err
	}

	oldStack := h.Cdr(rib)
	h.SetCdr(rib, cdr)
	h.Stack = oldStack

	return rib, nil
}

// TopIndex returns the rib id of the current stack top.
func (h *Heap) TopIndex() object.Object {
	return object.FromInteger(carIndex(h.Stack))
}

// ListTail follows cdr exactly k times from list. k == 0 returns list
// unchanged.
func (h *Heap) ListTail(list, k object.Object) object.Object {
	for k.Raw() > 0 {
		list = h.Cdr(list)
		k = object.FromInteger(k.Raw() - 1)
	}
	return list
}

// ListLength counts consecutive pair-tagged ribs along cdr starting at list.
func (h *Heap) ListLength(list object.Object) object.Object {
	var length uint64
	for list.IsRib() && h.Tag(list).Raw() == PairTag {
		length++
		list = h.Cdr(list)
	}
	return object.FromInteger(length)
}

// GC performs a Cheney-style stop-the-world copying collection: it flips the
// active semi-space, copies every root and every rib reachable from it into
// the fresh space, and leaves forwarding markers behind so cyclic structures
// are only ever copied once.
func (h *Heap) GC() error {
	var toSpaceStart uint64
	if h.allocLimit == h.spaceSize {
		toSpaceStart = h.spaceSize
	} else {
		toSpaceStart = 0
	}
	toSpaceEnd := toSpaceStart + h.spaceSize

	free := toSpaceStart

	forward := func(o object.Object) (object.Object, error) {
		if !o.IsRib() {
			return o, nil
		}
		idx := o.Raw()
		if tag := h.cells[idx+2]; !tag.IsRib() && tag.Raw() == ForwardingTag {
			// Already forwarded; the car field holds the new index.
			return h.cells[idx], nil
		}

		if free+FieldCount > toSpaceEnd {
			return object.Object{}, vmerrors.New(vmerrors.OutOfMemory,
				fmt.Sprintf("live set exceeds %d ribs per space", h.spaceSize/FieldCount), nil)
		}

		newIdx := free
		h.cells[newIdx] = h.cells[idx]
		h.cells[newIdx+1] = h.cells[idx+1]
		h.cells[newIdx+2] = h.cells[idx+2]
		free += FieldCount

		h.cells[idx] = object.FromRib(newIdx)
		h.cells[idx+2] = object.FromInteger(ForwardingTag)

		return object.FromRib(newIdx), nil
	}

	var err error
	if h.Stack, err = forward(h.Stack); err != nil {
		return err
	}
	if h.ProgramCounter, err = forward(h.ProgramCounter); err != nil {
		return err
	}
	if h.False, err = forward(h.False); err != nil {
		return err
	}
	if h.SymbolTable, err = forward(h.SymbolTable); err != nil {
		return err
	}

	for scan := toSpaceStart; scan < free; scan += FieldCount {
		for field := uint64(0); field < FieldCount; field++ {
			v := h.cells[scan+field]
			if !v.IsRib() {
				continue
			}
			fv, ferr := forward(v)
			if ferr != nil {
				return ferr
			}
			h.cells[scan+field] = fv
		}
	}

	h.allocIndex = free
	h.allocLimit = toSpaceEnd
	h.gcCycles++

	return nil
}
