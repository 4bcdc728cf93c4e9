// Package inline builds the small IR fragments the emitter splices in for
// numeric and cons fast paths (spec §4.2's "inline primitives"): tag tests,
// type-error fallbacks, and the pure-region write guard. These never call
// out to the backend's Compile step themselves, they only add statements
// to a caller-supplied backend.Block.
package inline

import (
	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/codegen"
)

// Library wraps a codegen.Builder with the host's error-reporting entry
// points, memoized the same way every other host function is (spec §4.2).
type Library struct {
	b *codegen.Builder

	wrongTypeArgument backend.Declaration
	pureWriteError    backend.Declaration
	carSafe           backend.Declaration
	cdrSafe           backend.Declaration
	pseudovectorp     backend.Declaration
}

// New returns a Library bound to b, declaring the handful of host helper
// functions the fast paths fall back to.
func New(b *codegen.Builder) (*Library, error) {
	l := &Library{b: b}
	var err error
	l.wrongTypeArgument, err = b.DeclareFunction("wrong_type_argument", codegen.Shape{Arity: 2})
	if err != nil {
		return nil, err
	}
	l.pureWriteError, err = b.DeclareFunction("pure_write_error", codegen.Shape{Arity: 1})
	if err != nil {
		return nil, err
	}
	l.carSafe, err = b.DeclareFunction("Fcar_safe", codegen.Shape{Arity: 1})
	if err != nil {
		return nil, err
	}
	l.cdrSafe, err = b.DeclareFunction("Fcdr_safe", codegen.Shape{Arity: 1})
	if err != nil {
		return nil, err
	}
	l.pseudovectorp, err = b.DeclareFunction("helper_PSEUDOVECTORP", codegen.Shape{Arity: 2})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) tagTest(v backend.RValue, kind abi.TagKind) (backend.RValue, error) {
	return l.b.TagTest(v, kind)
}

// CAR emits the fast path for the `car` opcode: if v is a cons cell, the
// result is its car field; if v is nil, the result is nil; otherwise
// wrong_type_argument is raised. This mirrors the host's own
// define_CAR_CDR, which builds exactly three blocks (is_cons/is_nil/
// not_nil) rather than collapsing nil into the type-error path — (car
// nil) is the single most common call shape and must not signal.
func (l *Library) CAR(fn backend.Function, block backend.Block, v backend.RValue, symCar backend.RValue) (backend.Block, backend.RValue, error) {
	return l.carCdr(fn, block, v, symCar, l.b.ConsCar)
}

// CDR is CAR's sibling for the `cdr` opcode.
func (l *Library) CDR(fn backend.Function, block backend.Block, v backend.RValue, symCdr backend.RValue) (backend.Block, backend.RValue, error) {
	return l.carCdr(fn, block, v, symCdr, l.b.ConsCdr)
}

// carCdr builds the shared three-block car/cdr fast path: is_cons_b reads
// field(v), is_nil_b passes v through unchanged, not_nil_b raises
// wrong_type_argument(predicateSym, v). The cons and nil paths join into
// okBlock through a dedicated local, since backend.Block has no phi.
func (l *Library) carCdr(fn backend.Function, block backend.Block, v backend.RValue, predicateSym backend.RValue, field func(backend.RValue) backend.LValue) (backend.Block, backend.RValue, error) {
	ctx := l.b.Context()

	isCons, err := l.tagTest(v, abi.TagCons)
	if err != nil {
		return nil, nil, err
	}
	consBlock := fn.NewBlock(block.Name() + ".iscons")
	notConsBlock := fn.NewBlock(block.Name() + ".notcons")
	block.EndWithConditional(isCons, consBlock, notConsBlock)

	nilWord := ctx.Const(backend.TypeValue, 0)
	isNil := ctx.Compare(backend.CmpEQ, v, nilWord)
	nilBlock := fn.NewBlock(block.Name() + ".isnil")
	notNilBlock := fn.NewBlock(block.Name() + ".notnil")
	notConsBlock.EndWithConditional(isNil, nilBlock, notNilBlock)

	result := l.wrongTypeArgument.Call(predicateSym, v)
	notNilBlock.EndWithReturn(result)

	okBlock := fn.NewBlock(block.Name() + ".ok")
	local := fn.NewLocal(block.Name()+".carcdr", backend.TypeValue)

	consBlock.Assign(local, field(v).RValue())
	consBlock.EndWithJump(okBlock)

	nilBlock.Assign(local, nilWord)
	nilBlock.EndWithJump(okBlock)

	return okBlock, local.RValue(), nil
}

// CarSafe and CdrSafe call through to the host's car-safe/cdr-safe helpers
// directly: these opcodes never signal, so there is no fast path worth
// inlining beyond the ordinary call (spec §4.2 only inlines car/cdr, not
// their -safe forms).
func (l *Library) CarSafe(v backend.RValue) backend.RValue {
	return l.carSafe.Call(v)
}

func (l *Library) CdrSafe(v backend.RValue) backend.RValue {
	return l.cdrSafe.Call(v)
}

// Pseudovectorp calls the host's pseudovector-type check helper. No
// opcode emitter in lang/emit calls it; the SAVE_* and UNWIND_PROTECT
// groups pass their operands to the host entry points unchecked.
func (l *Library) Pseudovectorp(v, typeConst backend.RValue) backend.RValue {
	return l.pseudovectorp.Call(v, typeConst)
}

// CheckImpure emits the pure-region write guard used ahead of setcar/
// setcdr (spec §4.2): if v's address falls within [pure_base,
// pure_base+pure_size), pure_write_error(v) is called and that block
// returns its result; otherwise control falls through to the returned
// okBlock, where the caller is safe to perform the actual field store.
func (l *Library) CheckImpure(fn backend.Function, block backend.Block, v backend.RValue) (backend.Block, error) {
	ctx := l.b.Context()
	d := l.b.Descriptor()
	addr := l.b.Cast(v, backend.TypeInt64)
	base := ctx.GlobalRef(d.Pure.BaseSymbol, backend.TypeInt64).RValue()
	size := ctx.Const(backend.TypeInt64, d.Pure.Size)
	end := ctx.Binary(backend.BinAdd, base, size)
	geBase := ctx.Compare(backend.CmpGE, addr, base)
	ltEnd := ctx.Compare(backend.CmpLT, addr, end)
	// within = geBase && ltEnd, built with bitwise AND since both operands
	// are already 0/1-valued booleans from Compare.
	within := ctx.Binary(backend.BinBitAnd, geBase, ltEnd)

	failBlock := fn.NewBlock(block.Name() + ".purefail")
	okBlock := fn.NewBlock(block.Name() + ".pureok")
	block.EndWithConditional(within, failBlock, okBlock)

	result := l.pureWriteError.Call(v)
	failBlock.EndWithReturn(result)

	return okBlock, nil
}

// BoolToLisp converts a native 0/1 boolean RValue into the host's tagged Qt
// or Qnil, per spec §4.2's predicate-opcode convention (CONSP, NUMBERP,
// INTEGERP all end this way): result = nil_word + cond * (t_word -
// nil_word). It goes through b.Cast (not a raw ctx.Cast) so the
// reinterpretation is routed through the Builder's one scratch cast union,
// the same as every other cast in this compiler (spec §9).
func BoolToLisp(b *codegen.Builder, cond backend.RValue) backend.RValue {
	ctx := b.Context()
	d := b.Descriptor()
	nilWord := ctx.Const(backend.TypeInt64, d.Tags[abi.TagSymbol])
	tWord := ctx.Const(backend.TypeInt64, d.Tags[abi.TagSymbol]+8)
	diff := ctx.Binary(backend.BinSub, tWord, nilWord)
	scaled := ctx.Binary(backend.BinMul, cond, diff)
	word := ctx.Binary(backend.BinAdd, nilWord, scaled)
	return b.Cast(word, backend.TypeValue)
}
