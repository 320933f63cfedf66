// Package vm implements the bytecode interpreter and primitive dispatcher
// that execute a program already decoded onto a heap.Heap.
package vm

import (
	"bufio"
	"io"
	"log"
	"math"

	"github.com/google/uuid"

	"ribbit/internal/bytecode"
	"ribbit/internal/heap"
	"ribbit/internal/object"
	"ribbit/internal/vmerrors"
)

// Sink receives a snapshot after each instruction during which a GC ran, and
// once more at halt. It is satisfied by *telemetry.Server; kept as an
// interface here because internal/telemetry imports internal/vm for
// Snapshot, so the reverse import would be a cycle.
type Sink interface {
	Publish(snapshot Snapshot)
}

// Snapshot is a point-in-time readout of VM progress, posted to an attached
// Sink. RunID matches the id
// diagnostics.Report carries for the same run, so a telemetry frame and the
// stderr report it corresponds to can be correlated after the fact.
type Snapshot struct {
	RunID        uuid.UUID
	Instructions uint64
	GCCycles     int
	HeapRibsLive int
	HeapBytes    uint64
	Halted       bool
}

// VM ties a heap to the byte streams a running program reads and writes
// through getc/putc.
type VM struct {
	*heap.Heap

	stdin  *bufio.Reader
	stdout io.Writer
	telem  Sink
	log    *log.Logger
	runID  uuid.UUID

	instructions uint64
	lastGCCycles int
}

// New constructs a VM over an already-decoded heap. Decode must have run
// first; New does not decode anything itself. Each VM is stamped with its
// own run id, shared by every telemetry.Snapshot it publishes and available
// to the caller via RunID for a diagnostics.Report covering the same run.
func New(h *heap.Heap, in io.Reader, out io.Writer) *VM {
	return &VM{
		Heap:   h,
		stdin:  bufio.NewReader(in),
		stdout: out,
		log:    log.New(io.Discard, "", 0),
		runID:  uuid.New(),
	}
}

// RunID returns the id stamped on this VM at construction, shared with every
// telemetry.Snapshot this run publishes.
func (v *VM) RunID() uuid.UUID { return v.runID }

// SetLogger overrides the VM's logger, which otherwise discards everything.
// The interpreter itself never writes to this logger (spec §9 forbids a
// reference-source debug trace).
func (v *VM) SetLogger(l *log.Logger) { v.log = l }

// AttachTelemetry wires an outbound-only snapshot sink. Disabled (nil) by
// default.
func (v *VM) AttachTelemetry(s Sink) { v.telem = s }

// InitializeGlobals performs the four primordial global writes spec.md
// §4.G requires, in order: a closure over an (empty env, symbol_table)
// placeholder, then the #f, #t, and nil singletons. Each write stores into
// car(symbol_table) and advances symbol_table to cdr(symbol_table).
func (v *VM) InitializeGlobals() error {
	placeholderEnv := v.SymbolTable
	closure, err := v.AllocateRib(object.Zero, placeholderEnv, object.FromInteger(heap.ClosureTag))
	if err != nil {
		return err
	}

	trueObj := v.Car(v.False)
	nilObj := v.Cdr(v.False)

	for _, g := range [...]object.Object{closure, v.False, trueObj, nilObj} {
		v.SetCar(v.SymbolTable, g)
		v.SymbolTable = v.Cdr(v.SymbolTable)
	}

	return nil
}

// InitializeStack seeds the halt-terminated top-level continuation: two
// nested frames whose innermost holds the HALT instruction as its "pc",
// matching the reference source's setup_stack.
func (v *VM) InitializeStack() error {
	if _, err := v.Push(object.Zero, object.Zero); err != nil {
		return err
	}
	if _, err := v.Push(object.Zero, object.Zero); err != nil {
		return err
	}

	first := v.Cdr(v.Stack)
	v.SetCdr(v.Stack, object.Zero)
	v.SetTag(v.Stack, first)

	v.SetCar(first, object.FromInteger(uint64(bytecode.OpHalt)))
	v.SetCdr(first, object.Zero)
	v.SetTag(first, object.Zero)

	return nil
}

// Instructions reports how many opcodes have been dispatched so far, for
// diagnostics.
func (v *VM) Instructions() uint64 { return v.instructions }

func (v *VM) snapshot(halted bool) Snapshot {
	return Snapshot{
		RunID:        v.runID,
		Instructions: v.instructions,
		GCCycles:     v.GCCycles(),
		HeapRibsLive: v.LiveRibCount(),
		HeapBytes:    v.HeapBytes(),
		Halted:       halted,
	}
}

// Run dispatches instructions from the current program counter until HALT
// or a fatal error. It never writes to stdout itself; only the putc
// primitive does.
func (v *VM) Run() error {
	for {
		v.instructions++

		op := bytecode.OpCode(v.Car(v.ProgramCounter).Raw())
		switch op {
		case bytecode.OpHalt:
			if v.telem != nil {
				v.telem.Publish(v.snapshot(true))
			}
			return nil

		case bytecode.OpApply:
			if err := v.stepApply(); err != nil {
				return err
			}

		case bytecode.OpSet:
			v.stepSet()

		case bytecode.OpGet:
			if err := v.stepGet(); err != nil {
				return err
			}

		case bytecode.OpConstant:
			if _, err := v.Push(v.Cdr(v.ProgramCounter), object.FromInteger(heap.PairTag)); err != nil {
				return err
			}
			v.advance()

		case bytecode.OpIf:
			p := v.Pop()
			if !object.Equal(p, v.False) {
				v.ProgramCounter = v.Cdr(v.ProgramCounter)
			} else {
				v.ProgramCounter = v.Tag(v.ProgramCounter)
			}

		default:
			return vmerrors.New(vmerrors.IllegalInstruction, op.String(), nil)
		}

		if v.telem != nil && v.gcJustRan() {
			v.telem.Publish(v.snapshot(false))
		}
	}
}

// gcJustRan reports whether a GC happened during the instruction just
// executed. heap.Heap exposes no "did a collection just happen" flag of its
// own; GCCycles() is monotonic so a delta test suffices.
func (v *VM) gcJustRan() bool {
	if v.lastGCCycles != v.GCCycles() {
		v.lastGCCycles = v.GCCycles()
		return true
	}
	return false
}

func (v *VM) advance() { v.ProgramCounter = v.Tag(v.ProgramCounter) }

// resolveOperand implements the shared APPLY/GET/SET callee resolution:
// an integer operand k addresses stack slot k; a rib operand is a global
// symbol whose value cell is its own car.
func (v *VM) resolveOperand(operand object.Object) object.Object {
	if !operand.IsRib() {
		return v.Car(v.ListTail(v.Stack, operand))
	}
	return v.Car(operand)
}

// resolveSlot is resolveOperand's counterpart for SET: it returns the rib
// whose car is the target location, rather than that location's value.
func (v *VM) resolveSlot(operand object.Object) object.Object {
	if !operand.IsRib() {
		return v.ListTail(v.Stack, operand)
	}
	return operand
}

// getContinuation walks the stack along cdr, skipping every frame whose
// tag is non-zero, and returns the first frame whose tag is 0 — the
// enclosing return frame saved by the last non-tail APPLY.
func (v *VM) getContinuation() object.Object {
	s := v.Stack
	for !object.Equal(v.Tag(s), object.Zero) {
		s = v.Cdr(s)
	}
	return s
}

func (v *VM) stepSet() {
	val := v.Pop()
	slot := v.resolveSlot(v.Cdr(v.ProgramCounter))
	v.SetCar(slot, val)
	v.advance()
}

func (v *VM) stepGet() error {
	val := v.resolveOperand(v.Cdr(v.ProgramCounter))
	if _, err := v.Push(val, object.FromInteger(heap.PairTag)); err != nil {
		return err
	}
	v.advance()
	return nil
}

func (v *VM) stepApply() error {
	jump := object.Equal(v.Tag(v.ProgramCounter), object.Zero)
	callee := v.resolveOperand(v.Cdr(v.ProgramCounter))
	code := v.Car(callee)

	if !code.IsRib() {
		return v.applyPrimitive(code, jump)
	}

	argc := v.Car(code)
	argcN := argc.Raw()

	seed, err := v.AllocateRib(object.Zero, callee, object.FromInteger(heap.PairTag))
	if err != nil {
		return err
	}
	frame := seed
	for i := uint64(0); i < argcN; i++ {
		popped := v.Pop()
		frame, err = v.AllocateRib(popped, frame, object.FromInteger(heap.PairTag))
		if err != nil {
			return err
		}
	}

	c2 := v.ListTail(frame, argc)
	if jump {
		cont := v.getContinuation()
		v.SetCar(c2, v.Car(cont))
		v.SetTag(c2, v.Tag(cont))
	} else {
		v.SetCar(c2, v.Stack)
		v.SetTag(c2, v.Tag(v.ProgramCounter))
	}

	v.Stack = frame
	v.ProgramCounter = v.Tag(code)
	return nil
}

func (v *VM) applyPrimitive(codeObj object.Object, jump bool) error {
	idx := int64(codeObj.Raw())
	if idx < 0 || idx >= bytecode.PrimitiveCount {
		return vmerrors.New(vmerrors.IllegalPrimitive, bytecode.Primitive(idx).String(), nil)
	}

	if err := v.operatePrimitive(bytecode.Primitive(idx)); err != nil {
		return err
	}

	if jump {
		v.ProgramCounter = v.getContinuation()
		v.SetCdr(v.Stack, v.Car(v.ProgramCounter))
	}
	v.advance()
	return nil
}

const allOnes = math.MaxUint64

func (v *VM) operatePrimitive(p bytecode.Primitive) error {
	pair := object.FromInteger(heap.PairTag)

	push := func(o object.Object) error {
		_, err := v.Push(o, pair)
		return err
	}
	boolOf := func(b bool) object.Object {
		if b {
			return v.Car(v.False)
		}
		return v.False
	}

	switch p {
	case bytecode.PrimRib:
		car, cdr, tag := v.Pop(), v.Pop(), v.Pop()
		rib, err := v.AllocateRib(car, cdr, tag)
		if err != nil {
			return err
		}
		return push(rib)

	case bytecode.PrimID:
		x := v.Pop()
		return push(x)

	case bytecode.PrimPop:
		v.Pop()
		return nil

	case bytecode.PrimSkip:
		x := v.Pop()
		v.Pop()
		return push(x)

	case bytecode.PrimClose:
		f := v.Car(v.Stack)
		e := v.Cdr(v.Stack)
		closure, err := v.AllocateRib(f, e, object.FromInteger(heap.ClosureTag))
		if err != nil {
			return err
		}
		v.SetCar(v.Stack, closure)
		return nil

	case bytecode.PrimIsRib:
		x := v.Pop()
		return push(boolOf(x.IsRib()))

	case bytecode.PrimField0:
		x := v.Pop()
		return push(v.Car(x))

	case bytecode.PrimField1:
		x := v.Pop()
		return push(v.Cdr(x))

	case bytecode.PrimField2:
		x := v.Pop()
		return push(v.Tag(x))

	case bytecode.PrimSetField0:
		x, y := v.Pop(), v.Pop()
		v.SetCar(x, y)
		return push(y)

	case bytecode.PrimSetField1:
		x, y := v.Pop(), v.Pop()
		v.SetCdr(x, y)
		return push(y)

	case bytecode.PrimSetField2:
		x, y := v.Pop(), v.Pop()
		v.SetTag(x, y)
		return push(y)

	case bytecode.PrimEqual:
		x, y := v.Pop(), v.Pop()
		return push(boolOf(x.Raw() == y.Raw()))

	case bytecode.PrimLess:
		x, y := v.Pop(), v.Pop()
		return push(boolOf(x.Raw() < y.Raw()))

	case bytecode.PrimAdd:
		x, y := v.Pop(), v.Pop()
		return push(object.FromInteger(x.Raw() + y.Raw()))

	case bytecode.PrimSub:
		x, y := v.Pop(), v.Pop()
		return push(object.FromInteger(x.Raw() - y.Raw()))

	case bytecode.PrimMul:
		x, y := v.Pop(), v.Pop()
		return push(object.FromInteger(x.Raw() * y.Raw()))

	case bytecode.PrimDiv:
		x, y := v.Pop(), v.Pop()
		if y.Raw() == 0 {
			return vmerrors.New(vmerrors.ArithmeticError, "division by zero", nil)
		}
		return push(object.FromInteger(x.Raw() / y.Raw()))

	case bytecode.PrimGetC:
		b, err := v.stdin.ReadByte()
		if err == io.EOF {
			return push(object.FromInteger(allOnes))
		}
		if err != nil {
			return vmerrors.New(vmerrors.IOError, "getc", err)
		}
		return push(object.FromInteger(uint64(b)))

	case bytecode.PrimPutC:
		x := v.Pop()
		if _, err := v.stdout.Write([]byte{byte(x.Raw())}); err != nil {
			return vmerrors.New(vmerrors.IOError, "putc", err)
		}
		return nil

	default:
		return vmerrors.New(vmerrors.IllegalPrimitive, p.String(), nil)
	}
}
