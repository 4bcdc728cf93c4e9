package bytecode

import "fmt"

// ShapeError reports a compiled-function object whose shape does not match
// what the compiler requires (spec §4.4's verification step). The compile
// driver wraps these in a compile.Error of kind ShapeViolation; this
// package stays free of a dependency on lang/compile so that lang/blocks
// and lang/emit (which also import lang/bytecode) do not pull it in
// transitively.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string { return "shape violation: " + e.Reason }

// CompiledFunction is the Go-level mirror of the host's compiled-function
// object: the four fields spec §4.4 verifies before compilation may begin.
type CompiledFunction struct {
	Name        string
	Bytecode    []byte
	Constants   []Value
	MaxDepth    int
	ArgTemplate Value
}

// Verify implements the compiled-function-object checks of spec §4.4:
// the bytecode must be present, the constants vector must be present (it
// may be empty), and the declared stack depth must be a non-negative
// fixnum-range integer.
func (fn *CompiledFunction) Verify() error {
	if fn.Bytecode == nil {
		return &ShapeError{Reason: "bytecode string is absent"}
	}
	if fn.Constants == nil {
		return &ShapeError{Reason: "constants vector is absent"}
	}
	if fn.MaxDepth < 0 {
		return &ShapeError{Reason: fmt.Sprintf("max-stack-depth %d is not a natural fixnum", fn.MaxDepth)}
	}
	if fn.ArgTemplate == nil {
		return &ShapeError{Reason: "argument template is absent"}
	}
	return nil
}

// ArgSpec is the decoded form of a compiled function's argument template.
type ArgSpec struct {
	Mandatory int  // number of required leading parameters
	NonRest   int  // total number of non-&rest parameters (>= Mandatory)
	Rest      bool // whether a trailing &rest parameter collects surplus args
}

// DecodeArgTemplate implements spec §4.4's argument-template decoding.
//
// Per the Open Question in spec §9, the fixnum form's rest flag (bit 7) is
// honored rather than asserted false: a template with the rest bit set
// yields Rest=true instead of silently behaving as if no rest parameter
// existed. See SPEC_FULL.md §4.7 for the rationale.
func DecodeArgTemplate(v Value) (ArgSpec, error) {
	switch t := v.(type) {
	case Nil:
		return ArgSpec{}, nil

	case Int:
		n := int64(t)
		if n < 0 {
			return ArgSpec{}, &ShapeError{Reason: fmt.Sprintf("negative argument template %d", n)}
		}
		mandatory := int(n & 0x7f)
		rest := n&0x80 != 0
		nonRest := int(n >> 8)
		if nonRest < mandatory {
			nonRest = mandatory
		}
		return ArgSpec{Mandatory: mandatory, NonRest: nonRest, Rest: rest}, nil

	case *Cons:
		length, proper := ListLength(v)
		return ArgSpec{Mandatory: length, NonRest: length, Rest: !proper}, nil

	default:
		return ArgSpec{}, &ShapeError{Reason: fmt.Sprintf("argument template is not fixnum, list, or nil (got %T)", v)}
	}
}
