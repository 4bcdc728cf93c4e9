// Package bytecode defines the Go-level representation of the bytecode
// produced upstream by the host's byte compiler: the opcode table, operand
// widths, and the compiled-function object that lang/blocks and lang/emit
// consume. It does not execute or interpret bytecode — that is the host
// runtime's job — it only describes its shape.
package bytecode

import "fmt"

// Op identifies a single bytecode instruction.
type Op uint8

// "x OP x x" stack pictures follow the same convention as the teacher's
// own opcode table: left of OP is the operand stack before, right is after.
//
//nolint:revive
const (
	NOP Op = iota // - NOP -

	// Stack reference: push meta_stack[depth-k-1]. Six inline variants carry
	// k in the opcode byte itself (0 operand bytes); STACK_REF6 takes a
	// 1-byte operand, STACK_REF7 a 2-byte operand, for k beyond the inline
	// range.
	STACK_REF0
	STACK_REF1
	STACK_REF2
	STACK_REF3
	STACK_REF4
	STACK_REF5
	STACK_REF6
	STACK_REF7

	DUP //   x DUP x x

	// Stack manipulation.
	DISCARD    //   x DISCARD -
	DISCARDN   //   DISCARDN<n>   - (high bit 0x80 of n: preserve TOS as new top)
	STACK_SET  //   x STACK_SET<k>  -   (meta_stack[depth-k-1] = x)
	STACK_SET2 //   x STACK_SET2<k> -   (2-byte k)

	// Variable reference / set / bind. Symbol is constants[k]. Six inline
	// variants (k 0-5), a 1-byte-operand variant (k 0-255), a 2-byte-operand
	// variant (k 0-65535).
	VARREF0
	VARREF1
	VARREF2
	VARREF3
	VARREF4
	VARREF5
	VARREF6
	VARREF7

	VARSET0
	VARSET1
	VARSET2
	VARSET3
	VARSET4
	VARSET5
	VARSET6
	VARSET7

	VARBIND0
	VARBIND1
	VARBIND2
	VARBIND3
	VARBIND4
	VARBIND5
	VARBIND6
	VARBIND7

	// Unbind N dynamic bindings.
	UNBIND0
	UNBIND1
	UNBIND2
	UNBIND3
	UNBIND4
	UNBIND5
	UNBIND6
	UNBIND7

	// Call with k+1 operands (function + k args) already on the stack.
	CALL0
	CALL1
	CALL2
	CALL3
	CALL4
	CALL5
	CALL6
	CALL7

	// Handler push/pop for catch and condition-case.
	PUSHCATCH         //  tag PUSHCATCH<addr>         -   (addr = handler PC, 2-byte absolute)
	PUSHCONDITIONCASE //  tag PUSHCONDITIONCASE<addr> -   (addr = handler PC, 2-byte absolute)
	POPHANDLER        //    - POPHANDLER               -

	// Inline arithmetic fast paths.
	SUB1   // x SUB1   x-1
	ADD1   // x ADD1   x+1
	NEGATE // x NEGATE -x

	// Arithmetic comparisons (order matches the CompareKind enum below).
	EQLSIGN
	GTR
	LSS
	LEQ
	GEQ

	// Cons primitives.
	CAR      // c CAR  (car c)
	CDR      // c CDR  (cdr c)
	SETCAR   // c v SETCAR v
	SETCDR   // c v SETCDR v
	CAR_SAFE // c CAR_SAFE (car-safe c)
	CDR_SAFE // c CDR_SAFE (cdr-safe c)

	// List construction.
	LIST1 //       x1 LIST1       (list x1)
	LIST2 //    x1 x2 LIST2       (list x1 x2)
	LIST3 // x1 x2 x3 LIST3       (list x1 x2 x3)
	LIST4 //          LIST4       (list x1 x2 x3 x4)
	LISTN //          LISTN<n>    (list x1 .. xn)

	// Control flow, absolute 2-byte targets.
	GOTO                 //        - GOTO<addr>                 -
	GOTOIFNIL            //     cond GOTOIFNIL<addr>            -
	GOTOIFNONNIL         //     cond GOTOIFNONNIL<addr>         -
	GOTOIFNILELSEPOP     //     cond GOTOIFNILELSEPOP<addr>     cond (if not taken, pop)
	GOTOIFNONNILELSEPOP  //     cond GOTOIFNONNILELSEPOP<addr>  cond (if not taken, pop)

	// PC-relative 1-byte-displacement counterparts of the above.
	BRGOTO
	BRGOTOIFNIL
	BRGOTOIFNONNIL
	BRGOTOIFNILELSEPOP
	BRGOTOIFNONNILELSEPOP

	RETURN // value RETURN -

	// Predicates (bit-pattern tag test, coerced to canonical true/nil).
	CONSP
	NUMBERP
	INTEGERP

	// Scoped primitives; host entry points and argument counts are in
	// lang/emit's scopedPrimitiveTable.
	SAVE_CURRENT_BUFFER
	SAVE_EXCURSION
	SAVE_WINDOW_EXCURSION
	SAVE_RESTRICTION
	UNWIND_PROTECT
	CATCH
	CONDITION_CASE
	TEMP_OUTPUT_BUFFER_SETUP
	TEMP_OUTPUT_BUFFER_SHOW

	CONSTANT  // - CONSTANT<k>  constants[k]   (1-byte k)
	CONSTANT2 // - CONSTANT2<k> constants[k]   (2-byte k)

	SWITCH // map CONSTANT-looked-ahead dispatch, see lang/emit

	// simpleCallBase marks the start of the CASE_CALL_N family: plain
	// "pop arity args, call host function, push result" opcodes. Their
	// arity and host function name are in simpleCalls (calltable.go),
	// indexed by op-simpleCallBase.
	simpleCallBase

	opMax = 255
)

// OpcodeArgMin is the first opcode (inclusive) past the variable-width
// inline families, mirroring the teacher's OpcodeArgMin split in
// lang/compiler/opcode.go. Below this point sit the stack-ref/varref/
// varset/varbind/call/unbind families, whose operand width depends on the
// variant, and a few fixed-width stack opcodes; from it on every opcode
// has one fixed operand width of 0, 1 or 2 bytes, as OpWidth reports.
const OpcodeArgMin = PUSHCATCH

// CompareKind enumerates the five arithmetic comparisons, in the same order
// as the EQLSIGN..GEQ opcode run, so kind = op - EQLSIGN.
type CompareKind uint8

const (
	CompareEQ CompareKind = iota
	CompareGT
	CompareLT
	CompareLE
	CompareGE
)

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	if call, ok := lookupSimpleCall(op); ok {
		return call.Mnemonic
	}
	return fmt.Sprintf("Op(%d)", op)
}

// IsJump reports whether op is one of the absolute 2-byte-target control
// flow opcodes or the PC-relative 1-byte-displacement counterparts.
func IsJump(op Op) bool {
	switch op {
	case GOTO, GOTOIFNIL, GOTOIFNONNIL, GOTOIFNILELSEPOP, GOTOIFNONNILELSEPOP,
		BRGOTO, BRGOTOIFNIL, BRGOTOIFNONNIL, BRGOTOIFNILELSEPOP, BRGOTOIFNONNILELSEPOP,
		PUSHCATCH, PUSHCONDITIONCASE:
		return true
	}
	return false
}

// IsRelativeJump reports whether op reads its target as a signed one-byte
// displacement rather than a two-byte absolute address.
func IsRelativeJump(op Op) bool {
	switch op {
	case BRGOTO, BRGOTOIFNIL, BRGOTOIFNONNIL, BRGOTOIFNILELSEPOP, BRGOTOIFNONNILELSEPOP:
		return true
	}
	return false
}

var opNames = [...]string{
	NOP:        "nop",
	STACK_REF0: "stack_ref0", STACK_REF1: "stack_ref1", STACK_REF2: "stack_ref2",
	STACK_REF3: "stack_ref3", STACK_REF4: "stack_ref4", STACK_REF5: "stack_ref5",
	STACK_REF6: "stack_ref6", STACK_REF7: "stack_ref7",
	DUP:        "dup",
	DISCARD:    "discard", DISCARDN: "discardN",
	STACK_SET:  "stack_set", STACK_SET2: "stack_set2",
	VARREF0: "varref0", VARREF1: "varref1", VARREF2: "varref2", VARREF3: "varref3",
	VARREF4: "varref4", VARREF5: "varref5", VARREF6: "varref6", VARREF7: "varref7",
	VARSET0: "varset0", VARSET1: "varset1", VARSET2: "varset2", VARSET3: "varset3",
	VARSET4: "varset4", VARSET5: "varset5", VARSET6: "varset6", VARSET7: "varset7",
	VARBIND0: "varbind0", VARBIND1: "varbind1", VARBIND2: "varbind2", VARBIND3: "varbind3",
	VARBIND4: "varbind4", VARBIND5: "varbind5", VARBIND6: "varbind6", VARBIND7: "varbind7",
	UNBIND0: "unbind0", UNBIND1: "unbind1", UNBIND2: "unbind2", UNBIND3: "unbind3",
	UNBIND4: "unbind4", UNBIND5: "unbind5", UNBIND6: "unbind6", UNBIND7: "unbind7",
	CALL0: "call0", CALL1: "call1", CALL2: "call2", CALL3: "call3",
	CALL4: "call4", CALL5: "call5", CALL6: "call6", CALL7: "call7",
	PUSHCATCH: "pushcatch", PUSHCONDITIONCASE: "pushconditioncase", POPHANDLER: "pophandler",
	SUB1: "sub1", ADD1: "add1", NEGATE: "negate",
	EQLSIGN: "eqlsign", GTR: "gtr", LSS: "lss", LEQ: "leq", GEQ: "geq",
	CAR: "car", CDR: "cdr", SETCAR: "setcar", SETCDR: "setcdr",
	CAR_SAFE: "car_safe", CDR_SAFE: "cdr_safe",
	LIST1: "list1", LIST2: "list2", LIST3: "list3", LIST4: "list4", LISTN: "listN",
	GOTO: "goto", GOTOIFNIL: "gotoifnil", GOTOIFNONNIL: "gotoifnonnil",
	GOTOIFNILELSEPOP: "gotoifnilelsepop", GOTOIFNONNILELSEPOP: "gotoifnonnilelsepop",
	BRGOTO: "BRgoto", BRGOTOIFNIL: "BRgotoifnil", BRGOTOIFNONNIL: "BRgotoifnonnil",
	BRGOTOIFNILELSEPOP: "BRgotoifnilelsepop", BRGOTOIFNONNILELSEPOP: "BRgotoifnonnilelsepop",
	RETURN: "return",
	CONSP:  "consp", NUMBERP: "numberp", INTEGERP: "integerp",
	SAVE_CURRENT_BUFFER: "save_current_buffer", SAVE_EXCURSION: "save_excursion",
	SAVE_WINDOW_EXCURSION: "save_window_excursion", SAVE_RESTRICTION: "save_restriction",
	UNWIND_PROTECT: "unwind_protect", CATCH: "catch", CONDITION_CASE: "condition_case",
	TEMP_OUTPUT_BUFFER_SETUP: "temp_output_buffer_setup", TEMP_OUTPUT_BUFFER_SHOW: "temp_output_buffer_show",
	CONSTANT: "constant", CONSTANT2: "constant2", SWITCH: "switch",
}
