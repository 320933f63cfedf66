// Package bytecode names the interpreter's instruction set and primitive
// table, and provides a static disassembler over an already-decoded
// instruction graph. It holds no executable logic of its own: dispatch lives
// in internal/vm, construction in internal/decoder.
package bytecode

import (
	"fmt"
	"strings"

	"ribbit/internal/heap"
	"ribbit/internal/object"
)

// OpCode is one of the six instructions the interpreter dispatches on.
type OpCode int64

const (
	OpApply OpCode = iota
	OpSet
	OpGet
	OpConstant
	OpIf
	OpHalt
)

func (op OpCode) String() string {
	switch op {
	case OpApply:
		return "apply"
	case OpSet:
		return "set"
	case OpGet:
		return "get"
	case OpConstant:
		return "constant"
	case OpIf:
		return "if"
	case OpHalt:
		return "halt"
	default:
		return fmt.Sprintf("illegal(%d)", int64(op))
	}
}

// Primitive is one of the twenty built-ins APPLY dispatches to when its
// callee's code field is an integer rather than a compiled-procedure rib.
type Primitive int64

const (
	PrimRib Primitive = iota
	PrimID
	PrimPop
	PrimSkip
	PrimClose
	PrimIsRib
	PrimField0
	PrimField1
	PrimField2
	PrimSetField0
	PrimSetField1
	PrimSetField2
	PrimEqual
	PrimLess
	PrimAdd
	PrimSub
	PrimMul
	PrimDiv
	PrimGetC
	PrimPutC
)

// PrimitiveCount is the number of valid primitive indices; APPLY resolving
// to an integer outside [0, PrimitiveCount) is an illegal primitive.
const PrimitiveCount = 20

var primitiveNames = [PrimitiveCount]string{
	"rib", "id", "pop", "skip", "close", "is-rib",
	"field0", "field1", "field2", "set-field0", "set-field1", "set-field2",
	"=", "<", "+", "-", "*", "/", "getc", "putc",
}

func (p Primitive) String() string {
	if p < 0 || int(p) >= PrimitiveCount {
		return fmt.Sprintf("illegal-primitive(%d)", int64(p))
	}
	return primitiveNames[p]
}

// Disassemble walks the instruction graph rooted at entry and renders one
// line per instruction, following the tag-as-next chain until it reaches a
// non-rib (the graph's natural end) or revisits an instruction already
// printed. It never mutates the heap and is meant for static, pre-execution
// inspection only — ribbit inspect, not a debugger attached to a running VM.
func Disassemble(h *heap.Heap, entry object.Object) string {
	var b strings.Builder
	seen := make(map[uint64]bool)

	pc := entry
	for pc.IsRib() {
		idx := pc.Raw()
		if seen[idx] {
			fmt.Fprintf(&b, "%04d: (loop back to %04d)\n", idx, idx)
			break
		}
		seen[idx] = true

		op := OpCode(h.Car(pc).Raw())
		operand := h.Cdr(pc)

		switch op {
		case OpConstant:
			fmt.Fprintf(&b, "%04d: constant %s\n", idx, operand)
		case OpIf:
			fmt.Fprintf(&b, "%04d: if then=%s else=%s\n", idx, operand, h.Tag(pc))
		case OpHalt:
			fmt.Fprintf(&b, "%04d: halt\n", idx)
			return b.String()
		default:
			fmt.Fprintf(&b, "%04d: %s %s\n", idx, op, operand)
		}

		pc = h.Tag(pc)
	}

	return b.String()
}
