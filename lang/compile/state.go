package compile

import (
	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/codegen"
	"github.com/mna/natcomp/lang/inline"
)

// State is the per-compilation singleton described in spec §3.6: the
// backend context, the codegen builder wrapping it (which itself owns
// the name→declaration cache, spec Invariant iv), the inline-primitive
// library, and a handful of constants built once and reused across every
// opcode that needs them. It is created fresh by Driver.Function for
// each call and released (ctx.Release) on every exit path.
type State struct {
	Ctx     backend.Context
	Builder *codegen.Builder
	Inline  *inline.Library
	ABI     *abi.Descriptor

	MostPositiveFixnum backend.RValue
	MostNegativeFixnum backend.RValue
	One                backend.RValue
	IntTypeBits        backend.RValue
	Int0Tag            backend.RValue
}

// newState builds a State over a freshly acquired backend context, per
// abi descriptor d. unionMembers lists every backend.Type the scratch
// cast union must hold (spec §9's "union of all casts").
func newState(ctx backend.Context, d *abi.Descriptor, unionMembers []backend.Type) (*State, error) {
	builder := codegen.New(ctx, d, unionMembers)
	inlineLib, err := inline.New(builder)
	if err != nil {
		return nil, err
	}

	mostPos := (int64(1) << uint(d.IntTypeBits-1)) - 1
	mostNeg := -(int64(1) << uint(d.IntTypeBits-1))

	return &State{
		Ctx:                ctx,
		Builder:            builder,
		Inline:             inlineLib,
		ABI:                d,
		MostPositiveFixnum: ctx.Const(backend.TypeInt64, mostPos),
		MostNegativeFixnum: ctx.Const(backend.TypeInt64, mostNeg),
		One:                ctx.Const(backend.TypeInt64, 1),
		IntTypeBits:        ctx.Const(backend.TypeInt64, int64(d.IntTypeBits)),
		Int0Tag:            ctx.Const(backend.TypeInt64, d.Int0Tag),
	}, nil
}

// Release tears down the backend context owned by this State.
func (s *State) Release() {
	if s.Ctx != nil {
		s.Ctx.Release()
	}
}
