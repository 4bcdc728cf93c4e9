// Package backend binds to the codegen backend library: the external
// collaborator that actually turns emitted IR into native machine code
// (spec §1 treats it as read-only, out of scope — we only call its API).
// Nothing above lang/codegen should import this package's concrete
// implementation directly; they program against the Context interface so
// that tests can substitute backendtest.Recorder for a real shared
// library.
package backend

// Type names a value type in the backend's IR: the handful of shapes this
// compiler ever needs, never a general type system.
type Type int

const (
	TypeVoid Type = iota
	TypeBool
	TypeInt64    // ptrdiff_t / EMACS_INT-sized integer
	TypePointer  // generic pointer, used for tagged Value words
	TypeValue    // the host's tagged Value word, same bit width as TypeInt64
)

// CompareOp names a comparison used by Block.Compare.
type CompareOp int

const (
	CmpEQ CompareOp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

// BinOp names an arithmetic or bitwise binary operation used by
// Block.Binary.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinBitAnd
	BinBitOr
	BinBitXor
	BinShl
	BinAshr
)

// LValue is a storage location in the backend's IR: a local, a parameter,
// or a dereferenced field — anything that can be both read and assigned.
type LValue interface {
	// RValue views this location as a readable value.
	RValue() RValue
}

// RValue is a readable value in the backend's IR: an LValue, a constant, a
// cast, a call result, or the result of an operator.
type RValue interface {
	Type() Type
}

// Param describes one parameter when declaring a function.
type Param struct {
	Name string
	Type Type
}

// Block is a single basic block of emitted IR. Every Block must be
// terminated exactly once (spec Invariant iii); calling any terminator
// twice, or adding an instruction after termination, is a programmer
// error in lang/emit and panics.
type Block interface {
	Name() string
	Terminated() bool

	// Eval emits an instruction whose result is discarded (e.g. a call
	// for side effect only, or a bare field assignment already folded
	// into rv).
	Eval(rv RValue)
	// Assign emits `lvalue = rv`.
	Assign(lvalue LValue, rv RValue)

	// EndWithReturn terminates the block with a native return of rv (or
	// no value, for a void function, where rv is nil).
	EndWithReturn(rv RValue)
	// EndWithJump terminates the block with an unconditional jump.
	EndWithJump(target Block)
	// EndWithConditional terminates the block with a conditional jump:
	// ifTrue when cond is non-zero, ifFalse otherwise.
	EndWithConditional(cond RValue, ifTrue, ifFalse Block)
}

// Function is a function being built in the backend's IR.
type Function interface {
	Name() string
	Param(i int) LValue
	NewLocal(name string, t Type) LValue
	NewBlock(name string) Block
}

// Declaration is a reference to a named host function, either imported
// (declared but defined elsewhere, for host runtime calls) or the
// function currently being built.
type Declaration interface {
	Name() string
	// Call emits (but does not evaluate into a block by itself) a call
	// expression; the caller passes the result to Block.Eval or
	// Block.Assign, or uses it as an operand of another expression.
	Call(args ...RValue) RValue
}

// CompileResult is the backend's compiled output: a handle from which
// function pointers can be fetched by name.
type CompileResult interface {
	// FuncPtr returns the native entry point for a function declared in
	// this compilation unit, or an error if the backend produced no
	// result for it.
	FuncPtr(name string) (uintptr, error)
	Release()
}

// Context is one compilation unit: it owns every type, function,
// declaration, and block created through it, all released together by
// Release.
type Context interface {
	// DeclareImport declares a host function by name with a fixed arity,
	// to be linked against at compile time rather than defined here.
	DeclareImport(name string, params []Param, ret Type) Declaration
	// DeclareImportVariadic declares a host function using the
	// (nargs, *Value) variadic shape (spec §6).
	DeclareImportVariadic(name string, argvType Type, ret Type) Declaration

	// NewFunction begins defining a new function native to this
	// compilation unit (the function being compiled).
	NewFunction(name string, params []Param, ret Type) Function

	// NewUnionType declares the scratch cast-union type used by
	// lang/codegen.Cast, built once per compilation and reused for every
	// cast site (spec §9's "union of all casts" trick).
	NewUnionType(name string, members []Type) Type

	// Const builds a constant RValue of the given type.
	Const(t Type, v int64) RValue

	// Binary and Compare build pure expression RValues; they do not emit
	// statements by themselves, the caller hands the result to a Block
	// method or uses it as an operand of a further expression.
	Binary(op BinOp, x, y RValue) RValue
	Compare(op CompareOp, x, y RValue) RValue

	// Cast reinterprets v's bit pattern as t, through the scratch union
	// type built by NewUnionType (spec §9).
	Cast(union Type, v RValue, t Type) RValue

	// Field accesses a struct field at byte offset off within v (v must
	// be pointer-typed), viewed as fieldType.
	Field(v RValue, off int, fieldType Type) LValue

	// GlobalRef resolves a named process-wide symbol (e.g. current_thread
	// or the pure-memory base) as an LValue of the given type.
	GlobalRef(name string, t Type) LValue

	// AddressOf takes the address of an LValue as a TypePointer RValue,
	// the analogue of gccjit's gcc_jit_lvalue_get_address. lang/emit uses
	// this to build the contiguous argv pointer the generic funcall path
	// passes to the host (spec §4.2's unspecialized Call family), taking
	// the address of the first of a run of adjacent locals.
	AddressOf(lv LValue) RValue

	// Setjmp emits a call to the platform's setjmp on the given buffer
	// lvalue and returns its integer result, for pushcatch/
	// pushconditioncase (spec §4.2, §9).
	Setjmp(buf LValue) RValue

	// Compile hands the accumulated IR to the backend and returns the
	// compiled result, or an error if the backend produced nothing.
	Compile() (CompileResult, error)

	// DumpIR returns the backend's own textual dump of the accumulated
	// IR, for the disassembly-mode CLI path. It never writes to disk —
	// that remains the out-of-scope command dispatcher's job.
	DumpIR() (string, error)

	Release()
}
