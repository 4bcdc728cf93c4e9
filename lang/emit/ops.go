package emit

import (
	"fmt"

	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/bytecode"
	"github.com/mna/natcomp/lang/codegen"
	"github.com/mna/natcomp/lang/inline"
)

// --- stack reference ---------------------------------------------------

func (e *Emitter) emitStackRef(k int) error {
	idx := e.depth - k - 1
	if idx < 0 || idx >= e.depth {
		return fmt.Errorf("stack_ref%d: index %d out of range (depth=%d)", k, idx, e.depth)
	}
	src := e.stack[idx]
	return e.pushValue(src.rvalue(), src.Type, src.Const, src.ConstSet)
}

// --- variable reference / set / bind ------------------------------------

func (e *Emitter) constantSymbol(k int) (bytecode.Value, error) {
	cs := e.constants()
	if k < 0 || k >= len(cs) {
		return nil, fmt.Errorf("constant index %d out of range (pool size %d)", k, len(cs))
	}
	return cs[k], nil
}

// loadConstant emits a call into the host's constant-pool accessor (spec
// §1: the host's value representation is read-only to us, so producing
// the native encoding of an arbitrary constant is its job, addressed by
// pool index) and returns the resulting RValue.
func (e *Emitter) loadConstant(k int) (backend.RValue, error) {
	decl, err := e.b.DeclareFunction("natcomp_load_constant", codegen.Shape{
		Arity:      1,
		ParamTypes: []backend.Type{backend.TypeInt64},
	})
	if err != nil {
		return nil, err
	}
	idx := e.b.Context().Const(backend.TypeInt64, int64(k))
	return decl.Call(idx), nil
}

func (e *Emitter) symbolConst(k int) (backend.RValue, error) {
	v, err := e.constantSymbol(k)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(bytecode.Symbol); !ok {
		return nil, fmt.Errorf("constant %d is not a symbol (got %T)", k, v)
	}
	return e.loadConstant(k)
}

func (e *Emitter) emitVarRef(k int) error {
	decl, err := e.b.DeclareFunction("Fsymbol_value", codegen.Shape{Arity: 1})
	if err != nil {
		return err
	}
	sym, err := e.symbolConst(k)
	if err != nil {
		return err
	}
	result := decl.Call(sym)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

func (e *Emitter) emitVarSet(k int) error {
	decl, err := e.b.DeclareFunction("set_internal", codegen.Shape{Arity: 4})
	if err != nil {
		return err
	}
	val, err := e.pop()
	if err != nil {
		return err
	}
	sym, err := e.symbolConst(k)
	if err != nil {
		return err
	}
	ctx := e.b.Context()
	nilVal := ctx.Const(backend.TypeValue, 0)
	setInternalSet := ctx.Const(backend.TypeInt64, 0)
	e.cur.backend.Eval(decl.Call(sym, val.rvalue(), nilVal, setInternalSet))
	return nil
}

func (e *Emitter) emitVarBind(k int) error {
	decl, err := e.b.DeclareFunction("specbind", codegen.Shape{Arity: 2})
	if err != nil {
		return err
	}
	val, err := e.pop()
	if err != nil {
		return err
	}
	sym, err := e.symbolConst(k)
	if err != nil {
		return err
	}
	e.cur.backend.Eval(decl.Call(sym, val.rvalue()))
	return nil
}

// --- simple call table (CASE_CALL_N family) -------------------------------

// emitSimpleCall implements an opcode from bytecode.SimpleCalls: pop Arity
// values, call the named host function, push the result. Unlike the Call
// family these opcodes name their host function directly in the bytecode
// table rather than via a constant-pool symbol, so none of Call's
// call-site specialization applies.
func (e *Emitter) emitSimpleCall(sc bytecode.SimpleCall) error {
	decl, err := e.b.DeclareFunction(sc.Host, codegen.Shape{Arity: sc.Arity})
	if err != nil {
		return err
	}
	args := make([]backend.RValue, sc.Arity)
	for i := sc.Arity - 1; i >= 0; i-- {
		s, err := e.pop()
		if err != nil {
			return err
		}
		args[i] = s.rvalue()
	}
	result := decl.Call(args...)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

// --- call ----------------------------------------------------------------

// emitCall implements spec §4.2's Call family, including the single local
// call-site specialization: case (i) direct self-recursion when the
// function operand is the constant symbol currently being compiled, case
// (ii) a direct typed call when lookupPrimitive resolves the symbol to a
// fixed-arity primitive of matching arity, and otherwise the generic
// funcall(n, &stack_base) fallback.
func (e *Emitter) emitCall(k int) error {
	args := make([]backend.RValue, k)
	for i := k - 1; i >= 0; i-- {
		s, err := e.pop()
		if err != nil {
			return err
		}
		args[i] = s.rvalue()
	}
	fnSlot, err := e.pop()
	if err != nil {
		return err
	}

	if fnSlot.ConstSet {
		if sym, ok := fnSlot.Const.(bytecode.Symbol); ok {
			if string(sym) == e.selfName && e.selfDecl != nil && e.selfArgc == k {
				e.logf("pc: direct self-call to %s", sym)
				return e.pushValue(e.selfDecl.Call(args...), abi.TagUnknown, nil, false)
			}
			if e.lookupPrimitive != nil {
				if shape, decl, ok := e.lookupPrimitive(string(sym), k); ok {
					e.logf("pc: direct primitive dispatch to %s (%s)", sym, shape)
					return e.pushValue(decl.Call(args...), abi.TagUnknown, nil, false)
				}
			}
		}
	}

	funcall, err := e.b.DeclareFunction("Ffuncall", codegen.Shape{Variadic: true})
	if err != nil {
		return err
	}
	// The generic path needs &stack_base: fn and its k args already sit in
	// k+1 contiguous meta-stack locals (pushValue always assigns depth d
	// into locals[d], and this Emitter never reshuffles that mapping), so
	// the fn slot's own lvalue IS the first element of the argv array
	// comp.c's emit_call_n_ref takes the address of — no separate array
	// needs to be built.
	argv := e.b.Context().AddressOf(fnSlot.Value)
	result := e.b.CallVariadic(funcall, argv, 1+k)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

// --- unbind ---------------------------------------------------------------

func (e *Emitter) emitUnbind(k int) error {
	decl, err := e.b.DeclareFunction("unbind_n", codegen.Shape{
		Arity:      1,
		ParamTypes: []backend.Type{backend.TypeInt64},
	})
	if err != nil {
		return err
	}
	n := e.b.Context().Const(backend.TypeInt64, int64(k))
	e.cur.backend.Eval(decl.Call(n))
	return nil
}

// --- handler push / pop ---------------------------------------------------

func (e *Emitter) emitHandlerPush(targetPC uint32, kind int64) error {
	pushHandler, err := e.b.DeclareFunction("push_handler", codegen.Shape{
		Arity:      2,
		ParamTypes: []backend.Type{backend.TypeValue, backend.TypeInt64},
		Ret:        backend.TypePointer,
		RetSet:     true,
	})
	if err != nil {
		return err
	}
	tag, err := e.pop()
	if err != nil {
		return err
	}
	ctx := e.b.Context()
	kindConst := ctx.Const(backend.TypeInt64, kind)
	handlerPtr := pushHandler.Call(tag.rvalue(), kindConst)

	handlerLocal := e.fn.NewLocal(fmt.Sprintf("handler%d", targetPC), backend.TypePointer)
	e.cur.backend.Assign(handlerLocal, handlerPtr)

	jmpBuf := e.b.Field(handlerLocal.RValue(), e.b.Descriptor().Handler.Jmp, backend.TypePointer)
	setjmpResult := e.b.Setjmp(jmpBuf)

	zero := ctx.Const(backend.TypeInt64, 0)
	isZero := ctx.Compare(backend.CmpEQ, setjmpResult, zero)

	continueBlock := e.fn.NewBlock(fmt.Sprintf("bb_pushcatch_cont_%d", targetPC))
	handlerBlock := e.fn.NewBlock(fmt.Sprintf("bb_pushcatch_handler_%d", targetPC))
	e.cur.backend.EndWithConditional(isZero, continueBlock, handlerBlock)

	// Handler-entry block: m_handlerlist = c->next; push c->val; jump to
	// the target PC's block (a recognized leader, see lang/blocks).
	next := e.b.Field(handlerLocal.RValue(), e.b.Descriptor().Handler.Next, backend.TypePointer)
	handlerBlock.Assign(e.b.HandlerList(), next.RValue())
	val := e.b.Field(handlerLocal.RValue(), e.b.Descriptor().Handler.Val, backend.TypeValue)

	targetIdx := e.disc.BlockIndex(targetPC)
	if targetIdx < 0 {
		return fmt.Errorf("pushcatch/pushconditioncase target pc=%d is not a recognized block leader", targetPC)
	}
	targetState := e.blockStateFor(targetIdx)
	// The handler block joins the target with one extra slot (the thrown
	// value) relative to the depth recorded when the push executed.
	entryDepth := e.depth + 1
	if targetState.entryStackDepth < 0 {
		targetState.entryStackDepth = entryDepth
	} else if targetState.entryStackDepth != entryDepth {
		return fmt.Errorf("pushcatch/pushconditioncase: handler-entry depth mismatch at pc=%d (have %d, want %d)", targetPC, entryDepth, targetState.entryStackDepth)
	}
	handlerBlock.Assign(e.locals[e.depth], val.RValue())
	handlerBlock.EndWithJump(targetState.backend)

	// Continuation: fall through at the instruction following the push,
	// stack unchanged (the tag was already popped above).
	e.cur = &blockState{backend: continueBlock, entryStackDepth: e.depth, entered: true}
	e.joinBlock(e.cur)
	return nil
}

func (e *Emitter) emitHandlerPop() error {
	next := e.b.Field(e.b.HandlerList().RValue(), e.b.Descriptor().Handler.Next, backend.TypePointer)
	e.cur.backend.Assign(e.b.HandlerList(), next.RValue())
	return nil
}

// --- inline arithmetic fast paths -----------------------------------------

// emitNumericFastPath implements sub1/add1/negate as two sibling blocks
// joining the successor of this opcode, per spec §4.2: the fast block
// tests fixnum-ness and the relevant boundary constant, the slow block
// falls back to the host helper.
func (e *Emitter) emitNumericFastPath(op bytecode.Op) error {
	tos, err := e.pop()
	if err != nil {
		return err
	}
	ctx := e.b.Context()
	v := tos.rvalue()

	isFixnum, err := e.b.TagTest(v, abi.TagInt)
	if err != nil {
		return err
	}

	boundaryOK := ctx.Const(backend.TypeBool, 1)
	var hostName string
	var delta int64
	switch op {
	case bytecode.SUB1:
		hostName, delta = "Fsub1", -1
	case bytecode.ADD1:
		hostName, delta = "Fadd1", 1
	case bytecode.NEGATE:
		hostName = "Fminus"
	default:
		return fmt.Errorf("emitNumericFastPath: unexpected op %s", op)
	}
	bits := uint(e.b.Descriptor().IntTypeBits)
	mostNegativeFixnum := -(int64(1) << (bits - 1))
	mostPositiveFixnum := (int64(1) << (bits - 1)) - 1
	if op == bytecode.ADD1 {
		mostPos := ctx.Const(backend.TypeInt64, mostPositiveFixnum)
		boundaryOK = ctx.Compare(backend.CmpNE, e.b.UnpackFixnum(v), mostPos)
	} else {
		// SUB1 and NEGATE share the same boundary: both overflow a positive
		// fixnum when applied to MOST_NEGATIVE_FIXNUM (-(x) and x-1 alike).
		mostNeg := ctx.Const(backend.TypeInt64, mostNegativeFixnum)
		boundaryOK = ctx.Compare(backend.CmpNE, e.b.UnpackFixnum(v), mostNeg)
	}
	takeFast := ctx.Binary(backend.BinBitAnd, isFixnum, boundaryOK)

	fastBlock := e.fn.NewBlock(e.cur.backend.Name() + ".fast")
	slowBlock := e.fn.NewBlock(e.cur.backend.Name() + ".slow")
	joinBlock := e.fn.NewBlock(e.cur.backend.Name() + ".join")

	e.cur.backend.EndWithConditional(takeFast, fastBlock, slowBlock)

	// Fast block: replace TOS with packed fixnum(extract(TOS)+delta).
	unpacked := e.b.UnpackFixnum(v)
	var fastResult backend.RValue
	if op == bytecode.NEGATE {
		zero := ctx.Const(backend.TypeInt64, 0)
		negated := ctx.Binary(backend.BinSub, zero, unpacked)
		fastResult = e.b.PackFixnum(negated)
	} else {
		deltaC := ctx.Const(backend.TypeInt64, delta)
		sum := ctx.Binary(backend.BinAdd, unpacked, deltaC)
		fastResult = e.b.PackFixnum(sum)
	}
	fastLocal := e.locals[e.depth]
	fastBlock.Assign(fastLocal, fastResult)
	fastBlock.EndWithJump(joinBlock)

	// Slow block: call the host helper.
	slowDecl, err := e.b.DeclareFunction(hostName, codegen.Shape{Arity: 1})
	if err != nil {
		return err
	}
	slowResult := slowDecl.Call(v)
	slowBlock.Assign(fastLocal, slowResult)
	slowBlock.EndWithJump(joinBlock)

	e.cur = &blockState{backend: joinBlock, entryStackDepth: e.depth, entered: true}
	return e.pushValue(fastLocal.RValue(), abi.TagUnknown, nil, false)
}

// --- arithmetic comparisons ------------------------------------------------

func (e *Emitter) emitCompare(op bytecode.Op) error {
	decl, err := e.b.DeclareFunction("arithcompare", codegen.Shape{
		Arity:      3,
		ParamTypes: []backend.Type{backend.TypeValue, backend.TypeValue, backend.TypeInt64},
	})
	if err != nil {
		return err
	}
	b, err := e.pop()
	if err != nil {
		return err
	}
	a, err := e.pop()
	if err != nil {
		return err
	}
	kind := bytecode.CompareKind(op - bytecode.EQLSIGN)
	kindConst := e.b.Context().Const(backend.TypeInt64, int64(kind))
	result := decl.Call(a.rvalue(), b.rvalue(), kindConst)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

// --- cons primitives --------------------------------------------------------

func (e *Emitter) emitCar() error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	symCar := e.b.Context().Const(backend.TypePointer, 0)
	okBlock, rv, err := e.inline.CAR(e.fn, e.cur.backend, v.rvalue(), symCar)
	if err != nil {
		return err
	}
	e.cur = &blockState{backend: okBlock, entryStackDepth: e.depth, entered: true}
	return e.pushValue(rv, abi.TagUnknown, nil, false)
}

func (e *Emitter) emitCdr() error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	symCdr := e.b.Context().Const(backend.TypePointer, 0)
	okBlock, rv, err := e.inline.CDR(e.fn, e.cur.backend, v.rvalue(), symCdr)
	if err != nil {
		return err
	}
	e.cur = &blockState{backend: okBlock, entryStackDepth: e.depth, entered: true}
	return e.pushValue(rv, abi.TagUnknown, nil, false)
}

func (e *Emitter) emitSetCar() error {
	return e.emitSetConsField(e.b.ConsCar)
}

func (e *Emitter) emitSetCdr() error {
	return e.emitSetConsField(e.b.ConsCdr)
}

func (e *Emitter) emitSetConsField(field func(backend.RValue) backend.LValue) error {
	val, err := e.pop()
	if err != nil {
		return err
	}
	cell, err := e.pop()
	if err != nil {
		return err
	}
	// CHECK_IMPURE(cell): a write into the pure (read-only, purecopy'd)
	// region raises pure_write_error instead of corrupting it; only the
	// not-pure path reaches the actual field store (spec §4.3).
	okBlock, err := e.inline.CheckImpure(e.fn, e.cur.backend, cell.rvalue())
	if err != nil {
		return err
	}
	e.cur = &blockState{backend: okBlock, entryStackDepth: e.depth, entered: true}
	lv := field(cell.rvalue())
	e.cur.backend.Assign(lv, val.rvalue())
	return e.pushValue(val.rvalue(), abi.TagUnknown, nil, false)
}

func (e *Emitter) emitCallHost1(call func(backend.RValue) backend.RValue) error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	return e.pushValue(call(v.rvalue()), abi.TagUnknown, nil, false)
}

// --- list construction -------------------------------------------------------

func (e *Emitter) emitListN(n int) error {
	decl, err := e.b.DeclareFunction("Fcons", codegen.Shape{Arity: 2})
	if err != nil {
		return err
	}
	vals := make([]backend.RValue, n)
	for i := n - 1; i >= 0; i-- {
		s, err := e.pop()
		if err != nil {
			return err
		}
		vals[i] = s.rvalue()
	}
	nilVal := e.b.Context().Const(backend.TypeValue, 0)
	acc := nilVal
	for i := n - 1; i >= 0; i-- {
		acc = decl.Call(vals[i], acc)
	}
	return e.pushValue(acc, abi.TagUnknown, nil, false)
}

// --- control flow ------------------------------------------------------------

func (e *Emitter) emitGoto(target uint32) error {
	idx := e.disc.BlockIndex(target)
	if idx < 0 {
		return fmt.Errorf("goto: target pc=%d is not a recognized block leader", target)
	}
	dest := e.blockStateFor(idx)
	e.cur.backend.EndWithJump(dest.backend)
	e.joinBlock(dest)
	return nil
}

// emitGotoIf implements the five gotoif{non,}nil{,elsepop} opcodes and
// their BR* counterparts. wantNonNil selects nil-vs-non-nil; elsePop
// selects whether the untaken (fall-through) edge pops TOS.
func (e *Emitter) emitGotoIf(target uint32, wantNonNil, elsePop bool) error {
	var cond Slot
	var err error
	if elsePop {
		cond, err = e.top()
	} else {
		cond, err = e.pop()
	}
	if err != nil {
		return err
	}

	ctx := e.b.Context()
	nilVal := ctx.Const(backend.TypeValue, 0)
	isNil := ctx.Compare(backend.CmpEQ, cond.rvalue(), nilVal)
	taken := isNil
	if wantNonNil {
		taken = ctx.Compare(backend.CmpNE, cond.rvalue(), nilVal)
	}

	idx := e.disc.BlockIndex(target)
	if idx < 0 {
		return fmt.Errorf("gotoif: target pc=%d is not a recognized block leader", target)
	}
	takenDest := e.blockStateFor(idx)

	fallDepth := e.depth
	if elsePop {
		fallDepth = e.depth - 1
	}
	fallBlock := e.fn.NewBlock(e.cur.backend.Name() + ".fall")

	e.cur.backend.EndWithConditional(taken, takenDest.backend, fallBlock)
	e.joinBlock(takenDest)

	if elsePop {
		if _, err := e.pop(); err != nil {
			return err
		}
	}
	e.cur = &blockState{backend: fallBlock, entryStackDepth: fallDepth, entered: true}
	return nil
}

// --- return --------------------------------------------------------------

func (e *Emitter) emitReturn() error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	e.cur.backend.EndWithReturn(v.rvalue())
	return nil
}

// --- stack manipulation -----------------------------------------------------

func (e *Emitter) emitDup() error {
	top, err := e.top()
	if err != nil {
		return err
	}
	return e.pushValue(top.rvalue(), top.Type, top.Const, top.ConstSet)
}

func (e *Emitter) emitDiscardN(arg uint32) error {
	n := int(arg &^ 0x80)
	preserve := arg&0x80 != 0
	var tos Slot
	var err error
	if preserve {
		tos, err = e.top()
		if err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if _, err := e.pop(); err != nil {
			return err
		}
	}
	if preserve {
		return e.pushValue(tos.rvalue(), tos.Type, tos.Const, tos.ConstSet)
	}
	return nil
}

func (e *Emitter) emitStackSet(k int) error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	idx := e.depth - k - 1
	if idx < 0 || idx >= e.depth {
		return fmt.Errorf("stack_set: index %d out of range (depth=%d)", idx, e.depth)
	}
	e.cur.backend.Assign(e.locals[idx], v.rvalue())
	e.stack[idx] = Slot{Value: e.locals[idx]}
	return nil
}

// --- scoped primitives -------------------------------------------------------

// scopedPrimitiveTable names the record_unwind_protect/internal_catch-style
// host entry point and argument count for each scoped-primitive opcode,
// per spec §4.2 and §6 ("argument shuffling per the host signatures").
var scopedPrimitiveTable = map[bytecode.Op]struct {
	host  string
	shape codegen.Shape
}{
	bytecode.SAVE_CURRENT_BUFFER:      {"record_unwind_current_buffer", codegen.Shape{Arity: 0}},
	bytecode.SAVE_EXCURSION:           {"save_excursion_save", codegen.Shape{Arity: 0}},
	bytecode.SAVE_WINDOW_EXCURSION:    {"Fsave_window_excursion", codegen.Shape{Arity: 1}},
	bytecode.SAVE_RESTRICTION:         {"save_restriction_save", codegen.Shape{Arity: 0}},
	bytecode.UNWIND_PROTECT:           {"record_unwind_protect", codegen.Shape{Arity: 1}},
	bytecode.CATCH:                    {"internal_catch", codegen.Shape{Arity: 2}},
	bytecode.CONDITION_CASE:           {"internal_lisp_condition_case", codegen.Shape{Arity: 3}},
	bytecode.TEMP_OUTPUT_BUFFER_SETUP: {"Ftemp_output_buffer_setup", codegen.Shape{Arity: 1}},
	bytecode.TEMP_OUTPUT_BUFFER_SHOW:  {"Ftemp_output_buffer_show", codegen.Shape{Arity: 1}},
}

func (e *Emitter) emitScopedPrimitive(op bytecode.Op) error {
	entry, ok := scopedPrimitiveTable[op]
	if !ok {
		return fmt.Errorf("emitScopedPrimitive: no table entry for %s", op)
	}
	decl, err := e.b.DeclareFunction(entry.host, entry.shape)
	if err != nil {
		return err
	}
	args := make([]backend.RValue, entry.shape.Arity)
	for i := entry.shape.Arity - 1; i >= 0; i-- {
		s, err := e.pop()
		if err != nil {
			return err
		}
		args[i] = s.rvalue()
	}
	result := decl.Call(args...)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

// --- predicate -> bool -> value ----------------------------------------------

func (e *Emitter) emitPredicate(kind abi.TagKind) error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	test, err := e.b.TagTest(v.rvalue(), kind)
	if err != nil {
		return err
	}
	result := inline.BoolToLisp(e.b, test)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

func (e *Emitter) emitPredicateAny(kinds ...abi.TagKind) error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	ctx := e.b.Context()
	var acc backend.RValue
	for _, k := range kinds {
		test, err := e.b.TagTest(v.rvalue(), k)
		if err != nil {
			return err
		}
		if acc == nil {
			acc = test
		} else {
			acc = ctx.Binary(backend.BinBitOr, acc, test)
		}
	}
	result := inline.BoolToLisp(e.b, acc)
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

// --- constant / switch --------------------------------------------------------

func (e *Emitter) emitConstant(k int) error {
	v, err := e.constantSymbol(k)
	if err != nil {
		return err
	}
	// The constant's native representation is out of scope here (spec §1:
	// the host's value representation is read-only to us); emitting a
	// real backend constant for an arbitrary Lisp value requires the
	// host's own literal-encoding helper, which a complete driver
	// supplies as a declared function taking the constant pool index.
	result, err := e.loadConstant(k)
	if err != nil {
		return err
	}

	if sym, ok := v.(bytecode.Symbol); ok {
		return e.pushValue(result, abi.TagSymbol, sym, true)
	}
	return e.pushValue(result, abi.TagUnknown, nil, false)
}

// emitSwitch supports exactly the one pattern the source acknowledges
// (spec §4.2, §9): a SWITCH immediately following the CONSTANT/CONSTANT2
// that pushed its dispatch table. In that pattern the pushed constant is
// simply consumed; explicit multi-way dispatch on its value is not
// implemented (Non-goals: optimization passes beyond trivial
// constant-symbol tracking). Any other arrangement is malformed bytecode.
func (e *Emitter) emitSwitch() error {
	if !e.hasLastOp || (e.lastOp != bytecode.CONSTANT && e.lastOp != bytecode.CONSTANT2) {
		return fmt.Errorf("%w: switch reached outside the constant lookahead pattern", errSwitchMisuse)
	}
	_, err := e.pop()
	return err
}
