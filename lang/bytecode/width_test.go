package bytecode

import "testing"

func TestOpWidthFamilies(t *testing.T) {
	cases := []struct {
		op    Op
		width int
	}{
		{STACK_REF0, 0}, {STACK_REF6, 1}, {STACK_REF7, 2},
		{VARREF3, 0}, {VARREF6, 1}, {VARREF7, 2},
		{CALL0, 0}, {CALL6, 1}, {CALL7, 2},
		{DISCARDN, 1}, {CONSTANT, 1}, {CONSTANT2, 2},
		{GOTO, 2}, {BRGOTO, 1}, {PUSHCATCH, 2},
		{RETURN, 0}, {NOP, 0},
	}
	for _, c := range cases {
		if got := OpWidth(c.op); got != c.width {
			t.Errorf("OpWidth(%s) = %d, want %d", c.op, got, c.width)
		}
	}
}

func TestStackEffectCall(t *testing.T) {
	// CALLk pops k+1 (function + k args), pushes 1 result.
	for k := 0; k <= 5; k++ {
		op := CALL0 + Op(k)
		if got, want := StackEffect(op, 0), -(k+1)+1; got != want {
			t.Errorf("StackEffect(%s) = %d, want %d", op, got, want)
		}
	}
	if got, want := StackEffect(CALL6, 3), -(3+1)+1; got != want {
		t.Errorf("StackEffect(CALL6, 3) = %d, want %d", got, want)
	}
}

func TestStackEffectDiscardN(t *testing.T) {
	if got, want := StackEffect(DISCARDN, 3), -3; got != want {
		t.Errorf("StackEffect(DISCARDN, 3) = %d, want %d", got, want)
	}
	if got, want := StackEffect(DISCARDN, 3|0x80), -2; got != want {
		t.Errorf("StackEffect(DISCARDN, 3|preserve) = %d, want %d", got, want)
	}
}

func TestStackEffectSimpleCall(t *testing.T) {
	for _, sc := range SimpleCalls() {
		if got, want := StackEffect(sc.Op, 0), -sc.Arity+1; got != want {
			t.Errorf("StackEffect(%s) = %d, want %d", sc.Mnemonic, got, want)
		}
	}
}
