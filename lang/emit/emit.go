// Package emit implements the meta-stack abstract interpreter: the main
// loop that walks a function's bytecode in PC order, maintains a
// compile-time operand stack of backend lvalues, and emits IR into the
// current basic block via lang/codegen and lang/inline. This is the
// largest package in the module, mirroring the share the opcode emitter
// takes in the source this was distilled from.
package emit

import (
	"fmt"

	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/blocks"
	"github.com/mna/natcomp/lang/bytecode"
	"github.com/mna/natcomp/lang/codegen"
	"github.com/mna/natcomp/lang/inline"
)

// Slot is one position of the compile-time operand stack. Type/Const/
// ConstSet are populated only immediately after a CONSTANT load naming a
// symbol, copied along when dup, stack_ref or discardN's preserve flag
// copies that slot, and cleared by every other write; they are also
// dropped on entry to every block, so this fact, which enables call-site
// specialization, never crosses a join.
type Slot struct {
	Value    backend.LValue
	Type     abi.TagKind
	Const    bytecode.Value
	ConstSet bool
}

func (s Slot) rvalue() backend.RValue { return s.Value.RValue() }

// blockState wraps one backend.Block with the meta-stack bookkeeping
// lang/blocks doesn't know about: the stack depth recorded on first
// entry, and whether it has started receiving emitted instructions yet.
type blockState struct {
	backend         backend.Block
	entryStackDepth int // -1 == unset
	entered         bool
}

// PrimitiveLookup resolves a symbol's function cell to a fixed-arity
// primitive declaration, for call-site specialization case (ii) of the
// Call family below. The driver supplies this from whatever primitive
// table the host embeds; a nil PrimitiveLookup (the default) means case
// (ii) never fires and every non-self call falls through to funcall,
// which is always semantically correct, just not specialized.
type PrimitiveLookup func(symbolName string, arity int) (codegen.Shape, backend.Declaration, bool)

// Emitter walks one function's bytecode and emits IR for it.
type Emitter struct {
	b      *codegen.Builder
	inline *inline.Library
	fn     backend.Function
	cf     *bytecode.CompiledFunction
	disc   *blocks.Discovery

	// selfName is the symbol name of the function currently being
	// compiled, used by the Call family's case (i) self-recursion check.
	selfName string
	selfDecl backend.Declaration
	selfArgc int

	lookupPrimitive PrimitiveLookup

	locals []backend.LValue
	stack  []Slot
	depth  int

	blockStates []*blockState
	cur         *blockState

	// lastOp is the previously emitted opcode, tracked only so SWITCH can
	// detect the one pattern it supports: immediately following a
	// CONSTANT/CONSTANT2 that pushed the dispatch value (spec §4.2, §9).
	lastOp    bytecode.Op
	hasLastOp bool

	logf func(format string, args ...any)
}

// Config groups the inputs Run needs beyond the bytecode itself.
type Config struct {
	Builder         *codegen.Builder
	Inline          *inline.Library
	Function        backend.Function
	CompiledFunc    *bytecode.CompiledFunction
	Discovery       *blocks.Discovery
	SelfName        string
	SelfDecl        backend.Declaration
	SelfArgc        int
	// InitialDepth is the meta-stack depth at pc=0: the prologue has
	// already bound the function's arguments into locals[0:InitialDepth],
	// the bytecode's own instructions begin executing with those values
	// already on the stack (spec §4.4).
	InitialDepth int
	// PrologueBlock, if non-nil, is the driver's prologue block (where
	// parameters were copied into locals); Run falls through from it into
	// pc=0's block exactly as it falls through between any two blocks,
	// so the prologue never needs its own explicit terminator.
	PrologueBlock   backend.Block
	LookupPrimitive PrimitiveLookup
	Logf            func(format string, args ...any)
}

// New returns an Emitter ready to Run over cfg.CompiledFunc's bytecode.
// locals must have length >= cfg.CompiledFunc.MaxDepth; it is the
// contiguous local array the driver allocated in the prologue (spec
// §4.4), and Run never grows it.
func New(cfg Config, locals []backend.LValue) *Emitter {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	blockStates := make([]*blockState, len(cfg.Discovery.Leaders))
	stack := make([]Slot, cfg.InitialDepth, len(locals))
	for i := range stack {
		stack[i] = Slot{Value: locals[i]}
	}
	e := &Emitter{
		b:               cfg.Builder,
		inline:          cfg.Inline,
		fn:              cfg.Function,
		cf:              cfg.CompiledFunc,
		disc:            cfg.Discovery,
		selfName:        cfg.SelfName,
		selfDecl:        cfg.SelfDecl,
		selfArgc:        cfg.SelfArgc,
		lookupPrimitive: cfg.LookupPrimitive,
		locals:          locals,
		stack:           stack,
		depth:           cfg.InitialDepth,
		blockStates:     blockStates,
		logf:            logf,
	}
	if cfg.PrologueBlock != nil {
		e.cur = &blockState{backend: cfg.PrologueBlock, entryStackDepth: cfg.InitialDepth, entered: true}
	}
	return e
}

func (e *Emitter) blockStateFor(idx int) *blockState {
	if e.blockStates[idx] == nil {
		name := fmt.Sprintf("bb%d", idx)
		e.blockStates[idx] = &blockState{backend: e.fn.NewBlock(name), entryStackDepth: -1}
	}
	return e.blockStates[idx]
}

// switchBlock moves emission to the block owning pc, falling through from
// the previous block if it is still open (spec §4.2, Invariant iii), and
// truncates/validates the meta-stack against the recorded entry depth
// (Invariant ii).
func (e *Emitter) switchBlock(pc uint32) error {
	idx := e.disc.BlockIndex(pc)
	if idx < 0 {
		return fmt.Errorf("emit: pc=%d is not a recognized block leader or member", pc)
	}
	if e.cur != nil && e.disc.Leaders[idx] != pc {
		// pc is inside the block emission is already in, possibly in a
		// continuation block an inline primitive left open; stay there.
		return nil
	}
	next := e.blockStateFor(idx)
	if e.cur != nil && e.cur != next && !e.cur.backend.Terminated() {
		e.cur.backend.EndWithJump(next.backend)
		e.joinBlock(next)
	}
	if !next.entered {
		next.entered = true
		if next.entryStackDepth < 0 {
			next.entryStackDepth = e.depth
		} else if next.entryStackDepth != e.depth {
			return fmt.Errorf("emit: pc=%d: meta-stack depth mismatch on block entry (have %d, block expects %d)", pc, e.depth, next.entryStackDepth)
		}
		e.depth = next.entryStackDepth
		e.stack = e.stack[:e.depth]
		for i := range e.stack {
			e.stack[i] = Slot{Value: e.stack[i].Value}
		}
	}
	e.cur = next
	return nil
}

// joinBlock records the stack depth an edge to next carries when next has
// none recorded yet, without switching emission to it. It does not compare
// the edge's depth against one already recorded; the only depth check is
// switchBlock's, made when emission first enters next.
func (e *Emitter) joinBlock(next *blockState) {
	if next.entryStackDepth < 0 {
		next.entryStackDepth = e.depth
	}
}

// pushValue assigns rv into the next free local and pushes a slot
// referencing it, recording typ/c/cset for the call-site specialization
// fact (set by emitConstant, copied by dup/stack_ref/discardN's preserve
// flag, cleared by every other push).
func (e *Emitter) pushValue(rv backend.RValue, typ abi.TagKind, c bytecode.Value, cset bool) error {
	if e.depth >= e.cf.MaxDepth {
		return fmt.Errorf("emit: meta-stack overflow: depth %d exceeds max_depth %d", e.depth+1, e.cf.MaxDepth)
	}
	lv := e.locals[e.depth]
	e.cur.backend.Assign(lv, rv)
	slot := Slot{Value: lv, Type: typ, Const: c, ConstSet: cset}
	if len(e.stack) <= e.depth {
		e.stack = append(e.stack, slot)
	} else {
		e.stack[e.depth] = slot
	}
	e.depth++
	return nil
}

func (e *Emitter) pop() (Slot, error) {
	if e.depth == 0 {
		return Slot{}, fmt.Errorf("emit: meta-stack underflow")
	}
	e.depth--
	return e.stack[e.depth], nil
}

func (e *Emitter) top() (Slot, error) {
	if e.depth == 0 {
		return Slot{}, fmt.Errorf("emit: meta-stack is empty")
	}
	return e.stack[e.depth-1], nil
}

// Run walks the bytecode in PC order, emitting every instruction. It
// returns once every PC has been visited; every block must be terminated
// by then (callers should assert this, it is Invariant iii).
func (e *Emitter) Run() error {
	code := e.cf.Bytecode
	var pc uint32
	for int(pc) < len(code) {
		if err := e.switchBlock(pc); err != nil {
			return err
		}
		op := bytecode.Op(code[pc])
		width := bytecode.OpWidth(op)
		if int(pc)+1+width > len(code) {
			return fmt.Errorf("emit: truncated instruction at pc=%d (op=%s)", pc, op)
		}
		var arg uint32
		switch width {
		case 1:
			arg = uint32(code[pc+1])
		case 2:
			arg = uint32(code[pc+1]) | uint32(code[pc+2])<<8
		}
		next := pc + 1 + uint32(width)
		if err := e.emitOne(op, arg, pc, next); err != nil {
			return fmt.Errorf("emit: pc=%d: %w", pc, err)
		}
		e.lastOp, e.hasLastOp = op, true
		pc = next
	}
	return nil
}

func (e *Emitter) emitOne(op bytecode.Op, arg uint32, pc, next uint32) error {
	switch {
	case op >= bytecode.STACK_REF0 && op <= bytecode.STACK_REF7:
		return e.emitStackRef(int(e.widthArg(op, arg, bytecode.STACK_REF0, bytecode.STACK_REF6, bytecode.STACK_REF7)))
	case op >= bytecode.VARREF0 && op <= bytecode.VARREF7:
		return e.emitVarRef(e.constantArg(op, arg, bytecode.VARREF0, bytecode.VARREF6, bytecode.VARREF7))
	case op >= bytecode.VARSET0 && op <= bytecode.VARSET7:
		return e.emitVarSet(e.constantArg(op, arg, bytecode.VARSET0, bytecode.VARSET6, bytecode.VARSET7))
	case op >= bytecode.VARBIND0 && op <= bytecode.VARBIND7:
		return e.emitVarBind(e.constantArg(op, arg, bytecode.VARBIND0, bytecode.VARBIND6, bytecode.VARBIND7))
	case op >= bytecode.CALL0 && op <= bytecode.CALL7:
		return e.emitCall(int(e.widthArg(op, arg, bytecode.CALL0, bytecode.CALL6, bytecode.CALL7)))
	case op >= bytecode.UNBIND0 && op <= bytecode.UNBIND7:
		return e.emitUnbind(int(e.widthArg(op, arg, bytecode.UNBIND0, bytecode.UNBIND6, bytecode.UNBIND7)))
	}

	switch op {
	case bytecode.NOP:
		return nil
	case bytecode.DUP:
		return e.emitDup()
	case bytecode.DISCARD:
		_, err := e.pop()
		return err
	case bytecode.DISCARDN:
		return e.emitDiscardN(arg)
	case bytecode.STACK_SET:
		return e.emitStackSet(int(arg))
	case bytecode.STACK_SET2:
		return e.emitStackSet(int(arg))
	case bytecode.PUSHCATCH:
		return e.emitHandlerPush(arg, handlerCatcher)
	case bytecode.PUSHCONDITIONCASE:
		return e.emitHandlerPush(arg, handlerConditionCase)
	case bytecode.POPHANDLER:
		return e.emitHandlerPop()
	case bytecode.SUB1, bytecode.ADD1, bytecode.NEGATE:
		return e.emitNumericFastPath(op)
	case bytecode.EQLSIGN, bytecode.GTR, bytecode.LSS, bytecode.LEQ, bytecode.GEQ:
		return e.emitCompare(op)
	case bytecode.CAR:
		return e.emitCar()
	case bytecode.CDR:
		return e.emitCdr()
	case bytecode.SETCAR:
		return e.emitSetCar()
	case bytecode.SETCDR:
		return e.emitSetCdr()
	case bytecode.CAR_SAFE:
		return e.emitCallHost1(e.inline.CarSafe)
	case bytecode.CDR_SAFE:
		return e.emitCallHost1(e.inline.CdrSafe)
	case bytecode.LIST1, bytecode.LIST2, bytecode.LIST3, bytecode.LIST4:
		return e.emitListN(int(op-bytecode.LIST1) + 1)
	case bytecode.LISTN:
		return e.emitListN(int(arg))
	case bytecode.GOTO:
		return e.emitGoto(arg)
	case bytecode.GOTOIFNIL:
		return e.emitGotoIf(arg, false, false)
	case bytecode.GOTOIFNONNIL:
		return e.emitGotoIf(arg, true, false)
	case bytecode.GOTOIFNILELSEPOP:
		return e.emitGotoIf(arg, false, true)
	case bytecode.GOTOIFNONNILELSEPOP:
		return e.emitGotoIf(arg, true, true)
	case bytecode.BRGOTO:
		return e.emitGoto(relTarget(arg, next))
	case bytecode.BRGOTOIFNIL:
		return e.emitGotoIf(relTarget(arg, next), false, false)
	case bytecode.BRGOTOIFNONNIL:
		return e.emitGotoIf(relTarget(arg, next), true, false)
	case bytecode.BRGOTOIFNILELSEPOP:
		return e.emitGotoIf(relTarget(arg, next), false, true)
	case bytecode.BRGOTOIFNONNILELSEPOP:
		return e.emitGotoIf(relTarget(arg, next), true, true)
	case bytecode.RETURN:
		return e.emitReturn()
	case bytecode.CONSP:
		return e.emitPredicate(abi.TagCons)
	case bytecode.NUMBERP:
		return e.emitPredicateAny(abi.TagInt, abi.TagFloat)
	case bytecode.INTEGERP:
		return e.emitPredicate(abi.TagInt)
	case bytecode.SAVE_CURRENT_BUFFER, bytecode.SAVE_EXCURSION, bytecode.SAVE_WINDOW_EXCURSION,
		bytecode.SAVE_RESTRICTION, bytecode.UNWIND_PROTECT, bytecode.CATCH, bytecode.CONDITION_CASE,
		bytecode.TEMP_OUTPUT_BUFFER_SETUP, bytecode.TEMP_OUTPUT_BUFFER_SHOW:
		return e.emitScopedPrimitive(op)
	case bytecode.CONSTANT:
		return e.emitConstant(int(arg))
	case bytecode.CONSTANT2:
		return e.emitConstant(int(arg))
	case bytecode.SWITCH:
		return e.emitSwitch()
	}

	if sc, ok := bytecode.SimpleCallFor(op); ok {
		return e.emitSimpleCall(sc)
	}
	return fmt.Errorf("%w: unrecognized opcode %s", errUnknownOpcode, op)
}

func (e *Emitter) constantArg(op bytecode.Op, arg uint32, base0, base6, base7 bytecode.Op) int {
	return int(e.widthArg(op, arg, base0, base6, base7))
}

func (e *Emitter) widthArg(op bytecode.Op, arg uint32, base0, base6, base7 bytecode.Op) uint32 {
	switch {
	case op == base6:
		return arg
	case op == base7:
		return arg
	case op >= base0 && op < base6:
		return uint32(op - base0)
	default:
		return arg
	}
}

func relTarget(arg uint32, pcAfter uint32) uint32 {
	return uint32(int64(pcAfter) + int64(arg) - 128)
}

func (e *Emitter) constants() []bytecode.Value { return e.cf.Constants }
