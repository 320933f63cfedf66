// Package decoder implements the bootstrap decoder: it expands the
// compressed program byte stream into the symbol table and instruction graph
// that the interpreter will execute, on the very heap it will run on.
package decoder

import (
	"ribbit/internal/heap"
	"ribbit/internal/object"
	"ribbit/internal/vmerrors"
)

// weights is the per-opcode weight table the variable-length code reader
// uses to decide which instruction a code belongs to (spec.md §4.E).
var weights = [6]int64{20, 30, 0, 10, 11, 4}

// Opcode values, duplicated from internal/bytecode so that this package
// does not import it (bytecode only reads the graph this package builds).
const (
	opApply    = 0
	opSet      = 1
	opGet      = 2
	opConstant = 3
	opIf       = 4
	opHalt     = 5
)

type reader struct {
	program []byte
	pos     int
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.program) {
		return 0, vmerrors.New(vmerrors.MalformedProgram, "unexpected end of program", nil)
	}
	b := r.program[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readCode() (int64, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	x := int64(b) - 35
	if x < 0 {
		return 57, nil
	}
	return x, nil
}

func (r *reader) readInteger(acc int64) (int64, error) {
	for {
		x, err := r.readCode()
		if err != nil {
			return 0, err
		}
		acc = acc*46 + x
		if x < 46 {
			return acc, nil
		}
		acc -= 46
	}
}

// Decode allocates the #f/#t/nil singletons, builds the symbol table from
// the program's phase 1 bytes, then builds the instruction graph from phase
// 2, leaving h.False, h.SymbolTable and h.ProgramCounter set. It does not
// install the primordial globals or set up the initial stack frame — that is
// §4.G's concern, performed by the vm package once decoding succeeds.
func Decode(h *heap.Heap, program []byte) error {
	r := &reader{program: program}

	if err := allocateSingletons(h); err != nil {
		return err
	}
	if err := decodeSymbolTable(h, r); err != nil {
		return err
	}
	entry, err := decodeInstructionGraph(h, r)
	if err != nil {
		return err
	}

	// The outer loop in decodeInstructionGraph leaves `entry` as the
	// closure for the top-level program; its entry point is the tag of
	// its car (the code rib), per spec.md §4.E.
	car := h.Car(entry)
	h.ProgramCounter = h.Tag(car)

	return nil
}

func allocateSingletons(h *heap.Heap) error {
	zero := object.Zero
	init0, err := h.AllocateRib(zero, zero, object.FromInteger(heap.SingletonTag))
	if err != nil {
		return err
	}
	falseRib, err := h.AllocateRib(init0, init0, object.FromInteger(heap.SingletonTag))
	if err != nil {
		return err
	}
	h.False = falseRib
	return nil
}

func getNil(h *heap.Heap) object.Object { return h.Cdr(h.False) }

// decodeSymbolTable implements spec.md's Phase 1: a base-46 count of
// anonymous symbols, followed by raw name bytes delimited by ',' (0x2C) and
// terminated by ';' (0x3B).
func decodeSymbolTable(h *heap.Heap, r *reader) error {
	count, err := r.readInteger(0)
	if err != nil {
		return err
	}

	for ; count > 0; count-- {
		if err := createSymbol(h, getNil(h)); err != nil {
			return err
		}
	}

	name := getNil(h)
	for {
		c, err := r.readByte()
		if err != nil {
			return err
		}
		switch c {
		case ',':
			if err := createSymbol(h, name); err != nil {
				return err
			}
			name = getNil(h)
		case ';':
			return createSymbol(h, name)
		default:
			name, err = h.AllocateRib(object.FromInteger(uint64(c)), name, object.FromInteger(heap.PairTag))
			if err != nil {
				return err
			}
		}
	}
}

func createSymbol(h *heap.Heap, name object.Object) error {
	length := h.ListLength(name)
	str, err := h.AllocateRib(name, length, object.FromInteger(heap.StringTag))
	if err != nil {
		return err
	}
	symbol, err := h.AllocateRib(h.False, str, object.FromInteger(heap.SymbolTag))
	if err != nil {
		return err
	}
	table, err := h.AllocateRib(symbol, h.SymbolTable, object.FromInteger(heap.PairTag))
	if err != nil {
		return err
	}
	h.SymbolTable = table
	return nil
}

func symbolRef(h *heap.Heap, n object.Object) object.Object {
	return h.ListTail(h.SymbolTable, n)
}

// decodeInstructionGraph implements spec.md's Phase 2: the weighted opcode
// reader that builds the instruction graph (a linked list through each
// rib's tag field) and, on nested closures, the closure graph alongside it.
// It returns the final `n` object the outer loop left behind — the
// top-level closure — from which Decode derives the entry program counter.
func decodeInstructionGraph(h *heap.Heap, r *reader) (object.Object, error) {
	var n object.Object

	for {
		x, err := r.readCode()
		if err != nil {
			return object.Object{}, err
		}

		nVal := x
		var op int64 = -1
		var d int64

		for {
			op++
			if op >= int64(len(weights)) {
				return object.Object{}, vmerrors.New(vmerrors.MalformedProgram, "opcode weight table exhausted", nil)
			}
			d = weights[op]
			if nVal <= d+2 {
				break
			}
			nVal -= d + 3
		}

		if x > 90 {
			op = opIf
			n = h.Pop()
		} else {
			if op == 0 {
				if _, err := h.Push(object.Zero, object.Zero); err != nil {
					return object.Object{}, err
				}
			}

			if nVal >= d {
				if nVal == d {
					v, err := r.readInteger(0)
					if err != nil {
						return object.Object{}, err
					}
					n = object.FromInteger(uint64(v))
				} else {
					v, err := r.readInteger(nVal - d - 1)
					if err != nil {
						return object.Object{}, err
					}
					n = symbolRef(h, object.FromInteger(uint64(v)))
				}
			} else if op < 3 {
				n = symbolRef(h, object.FromInteger(uint64(nVal)))
			} else {
				n = object.FromInteger(uint64(nVal))
			}

			if op > 4 {
				argc := h.Pop()
				rib2, err := h.AllocateRib2(n, object.Zero, argc)
				if err != nil {
					return object.Object{}, err
				}
				n, err = h.AllocateRib(rib2, getNil(h), object.FromInteger(heap.ClosureTag))
				if err != nil {
					return object.Object{}, err
				}

				if object.Equal(h.Stack, object.Zero) {
					return n, nil
				}
				op--
			} else if op > 0 {
				op--
			} else {
				op = 0
			}
		}

		c, err := h.AllocateRib(object.FromInteger(uint64(op)), n, object.Zero)
		if err != nil {
			return object.Object{}, err
		}
		h.SetTag(c, h.Car(h.Stack))
		h.SetCar(h.Stack, c)
	}
}
