// Package object implements the tagged value representation of the VM: every
// value is either a small integer or a reference to a rib on the heap.
package object

import "fmt"

// Object is a tagged machine word: either an integer or a rib index. The tag
// lives alongside the payload so that an integer 5 and a rib reference 5 are
// never confused with one another.
type Object struct {
	raw   uint64
	isRib bool
}

// Zero is the integer 0, used as the canonical stack/list terminator.
var Zero = FromInteger(0)

// FromInteger wraps n as an integer-typed Object.
func FromInteger(n uint64) Object {
	return Object{raw: n}
}

// FromRib wraps index as a rib-reference Object. index must address a live
// triple within a semi-space; callers (always the allocator) are responsible
// for that invariant.
func FromRib(index uint64) Object {
	return Object{raw: index, isRib: true}
}

// IsRib reports whether o is structurally a rib reference, independent of its
// payload value.
func (o Object) IsRib() bool {
	return o.isRib
}

// Raw returns the underlying word regardless of variant.
func (o Object) Raw() uint64 {
	return o.raw
}

// Equal reports whether a and b share both variant and payload.
func Equal(a, b Object) bool {
	return a.isRib == b.isRib && a.raw == b.raw
}

func (o Object) String() string {
	if o.isRib {
		return fmt.Sprintf("rib#%d", o.raw)
	}
	return fmt.Sprintf("%d", o.raw)
}
