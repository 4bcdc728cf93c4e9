package emit_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/backend/backendtest"
	"github.com/mna/natcomp/lang/blocks"
	"github.com/mna/natcomp/lang/bytecode"
	"github.com/mna/natcomp/lang/codegen"
	"github.com/mna/natcomp/lang/emit"
	"github.com/mna/natcomp/lang/inline"
)

// harness wires an Emitter the same way lang/compile.Driver does, but
// without the driver's verification/re-entrancy/compile steps, so these
// tests exercise only the meta-stack interpreter itself.
type harness struct {
	rec *backendtest.Recorder
	b   *codegen.Builder
	fn  backend.Function
}

func newHarness(t *testing.T, argc int) *harness {
	t.Helper()
	rec := backendtest.NewRecorder()
	d, err := abi.Default()
	require.NoError(t, err)
	b := codegen.New(rec, d, []backend.Type{backend.TypeValue, backend.TypeInt64, backend.TypePointer, backend.TypeBool})

	params := make([]backend.Param, argc)
	for i := range params {
		params[i] = backend.Param{Name: fmt.Sprintf("arg%d", i), Type: backend.TypeValue}
	}
	fn := rec.NewFunction("f", params, backend.TypeValue)
	return &harness{rec: rec, b: b, fn: fn}
}

// run assembles src, emits it over argc already-bound arguments, and
// returns the emitter's error (if any) plus the trace recorded during
// emission.
func (h *harness) run(t *testing.T, argc int, selfArgc int, selfDecl backend.Declaration, src string) error {
	t.Helper()
	cf, err := bytecode.Assemble(src)
	require.NoError(t, err)

	locals := make([]backend.LValue, cf.MaxDepth)
	for i := range locals {
		locals[i] = h.fn.NewLocal(fmt.Sprintf("slot%d", i), backend.TypeValue)
	}
	entry := h.fn.NewBlock("entry")
	for i := 0; i < argc; i++ {
		entry.Assign(locals[i], h.fn.Param(i).RValue())
	}

	disc, err := blocks.Discover(cf.Bytecode)
	require.NoError(t, err)

	lib, err := inline.New(h.b)
	require.NoError(t, err)

	e := emit.New(emit.Config{
		Builder:       h.b,
		Inline:        lib,
		Function:      h.fn,
		CompiledFunc:  cf,
		Discovery:     disc,
		SelfName:      "f",
		SelfDecl:      selfDecl,
		SelfArgc:      selfArgc,
		InitialDepth:  argc,
		PrologueBlock: entry,
	}, locals)
	return e.Run()
}

func countOps(trace []backendtest.Op, kind string) int {
	n := 0
	for _, op := range trace {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

func TestRunDupPushesTopAgain(t *testing.T) {
	h := newHarness(t, 1)
	before := len(h.rec.Trace)
	err := h.run(t, 1, 0, nil, `
maxdepth: 2
argtemplate: fixnum 1
code:
  dup
  discard
  return
`)
	require.NoError(t, err, "dup must not overflow max_depth 2 when one argument is already resident")
	require.Equal(t, 1, countOps(h.rec.Trace[before:], "return"))
}

func TestRunStackRefReachesArgument(t *testing.T) {
	h := newHarness(t, 1)
	err := h.run(t, 1, 0, nil, `
maxdepth: 2
argtemplate: fixnum 1
code:
  stack_ref0
  return
`)
	require.NoError(t, err)
}

func TestRunDiscardNPreservesTOS(t *testing.T) {
	h := newHarness(t, 1)
	err := h.run(t, 1, 0, nil, `
maxdepth: 3
argtemplate: fixnum 1
constants:
  int 1
  int 2
code:
  constant 0
  constant 1
  discardN 2 preserve
  return
`)
	require.NoError(t, err)
}

func TestRunDiscardNUnderflowsWithoutPreserve(t *testing.T) {
	h := newHarness(t, 0)
	err := h.run(t, 0, 0, nil, `
maxdepth: 1
code:
  discardN 1
  return
`)
	require.Error(t, err, "discardN 1 with nothing on the stack must underflow, not silently no-op")
}

func TestRunAdd1TakesFastPathOnNonBoundaryValue(t *testing.T) {
	h := newHarness(t, 1)
	before := len(h.rec.Trace)
	err := h.run(t, 1, 0, nil, `
maxdepth: 2
argtemplate: fixnum 1
code:
  add1
  return
`)
	require.NoError(t, err)

	trace := h.rec.Trace[before:]
	require.Equal(t, 1, countOps(trace, "conditional"), "add1 must branch fast-vs-slow exactly once")
	require.Equal(t, 1, countOps(trace, "call"), "the slow path's Fadd1 call must still be emitted even though it's unreachable at the boundary-free input")
}

func TestRunSub1BoundaryUsesDescriptorDerivedConstant(t *testing.T) {
	h := newHarness(t, 1)
	d, err := abi.Default()
	require.NoError(t, err)
	mostNeg := -(int64(1) << uint(d.IntTypeBits-1))

	before := len(h.rec.Trace)
	err = h.run(t, 1, 0, nil, `
maxdepth: 2
argtemplate: fixnum 1
code:
  sub1
  return
`)
	require.NoError(t, err)

	require.True(t, containsConst(h.rec.Trace[before:], mostNeg),
		"sub1's boundary check must compare against MOST_NEGATIVE_FIXNUM derived from the ABI descriptor's int_type_bits, not a hardcoded width")
}

func containsConst(trace []backendtest.Op, v int64) bool {
	want := fmt.Sprintf("= const(%v)", v)
	for _, op := range trace {
		if op.Kind == "const" && len(op.Text) >= len(want) && op.Text[len(op.Text)-len(want):] == want {
			return true
		}
	}
	return false
}

func TestRunCarOnNilArgumentJoinsWithoutSignaling(t *testing.T) {
	h := newHarness(t, 1)
	before := len(h.rec.Trace)
	err := h.run(t, 1, 0, nil, `
maxdepth: 1
argtemplate: fixnum 1
code:
  car
  return
`)
	require.NoError(t, err)

	trace := h.rec.Trace[before:]
	require.Equal(t, 2, countOps(trace, "conditional"), "car's fast path must branch cons-vs-not then nil-vs-not")
	// Two "return" ops are expected: one is car's own not-nil/not-cons
	// wrong_type_argument raise, the other is the RETURN opcode's own
	// terminator on the join block car leaves open for it.
	require.Equal(t, 2, countOps(trace, "return"), "the nil/cons join path must still reach the function's own RETURN, not car's raise path")
}

func TestRunSetCarGuardsPureRegionBeforeStore(t *testing.T) {
	h := newHarness(t, 2)
	before := len(h.rec.Trace)
	err := h.run(t, 2, 0, nil, `
maxdepth: 2
argtemplate: fixnum 2
code:
  setcar
  return
`)
	require.NoError(t, err)

	var sawPureFail bool
	for _, op := range h.rec.Trace[before:] {
		if op.Kind == "call" && len(op.Text) > 0 {
			if containsSubstr(op.Text, "pure_write_error") {
				sawPureFail = true
			}
		}
	}
	require.True(t, sawPureFail, "setcar must call pure_write_error on the guarded path before any field store")
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestRunGenericCallUsesAddressOfContiguousLocals(t *testing.T) {
	h := newHarness(t, 1)
	before := len(h.rec.Trace)
	err := h.run(t, 1, 0, nil, `
maxdepth: 3
argtemplate: fixnum 1
constants:
  sym some-other-fn
code:
  constant 0
  stack_ref1
  call1
  return
`)
	require.NoError(t, err)

	trace := h.rec.Trace[before:]
	require.Equal(t, 1, countOps(trace, "address_of"), "an unspecialized call must take the address of the contiguous fn/args run exactly once")
	require.GreaterOrEqual(t, countOps(trace, "call"), 1)
}

func TestRunSelfCallSkipsFuncallAndAddressOf(t *testing.T) {
	h := newHarness(t, 1)
	selfDecl, err := h.b.DeclareFunction("f", codegen.Shape{Arity: 1})
	require.NoError(t, err)

	before := len(h.rec.Trace)
	err = h.run(t, 1, 1, selfDecl, `
maxdepth: 3
argtemplate: fixnum 1
constants:
  sym f
code:
  constant 0
  stack_ref1
  call1
  return
`)
	require.NoError(t, err)

	trace := h.rec.Trace[before:]
	require.Equal(t, 0, countOps(trace, "address_of"), "a direct self-call must never build a generic funcall argv")
}
