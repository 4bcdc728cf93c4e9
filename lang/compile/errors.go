// Package compile implements the per-function compilation driver: it turns
// a verified bytecode.CompiledFunction into a registered native entry
// point, wiring together lang/blocks, lang/emit, lang/codegen and
// lang/backend.
package compile

import "fmt"

// Kind identifies one of the five error categories a compilation can fail
// with, per spec §7.
type Kind int

const (
	// BytecodeMalformed covers truncated bytecode, unknown opcodes, and
	// Bswitch used outside the constant-pool lookahead pattern.
	BytecodeMalformed Kind = iota
	// ShapeViolation covers an argument template that is not a fixnum, list,
	// or nil; an oversized arity; a non-unibyte-string bytecode; or a
	// non-vector constants pool.
	ShapeViolation
	// BackendFailure covers the codegen backend returning no result.
	BackendFailure
	// UnsupportedCast indicates an internal invariant violation — a bug in
	// this compiler, not in the input.
	UnsupportedCast
	// DisassembleIO covers an assembly dump that could not be written.
	DisassembleIO
)

func (k Kind) String() string {
	switch k {
	case BytecodeMalformed:
		return "bytecode malformed"
	case ShapeViolation:
		return "shape violation"
	case BackendFailure:
		return "backend failure"
	case UnsupportedCast:
		return "unsupported cast"
	case DisassembleIO:
		return "disassemble io"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the error type raised by any stage of compilation. Host code
// that needs to distinguish kinds should use errors.As, not string
// matching.
type Error struct {
	Kind Kind
	Func string // name of the function being compiled, if known
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Func == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: compiling %s: %s", e.Kind, e.Func, e.Err)
	}
	return fmt.Sprintf("%s: compiling %s", e.Kind, e.Func)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error, a small helper to keep call sites terse.
func newError(kind Kind, fn string, err error) *Error {
	return &Error{Kind: kind, Func: fn, Err: err}
}
