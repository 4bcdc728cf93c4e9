package compile_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/backend/backendtest"
	"github.com/mna/natcomp/lang/bytecode"
	"github.com/mna/natcomp/lang/compile"
)

func newTestDriver(t *testing.T) (*compile.Driver, *backendtest.Recorder) {
	t.Helper()
	rec := backendtest.NewRecorder()
	drv, err := compile.NewDriver(compile.Config{}, func() (backend.Context, error) {
		return rec, nil
	})
	require.NoError(t, err)
	return drv, rec
}

func TestDriverFunctionConstantReturn(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("const_ret", 0xdeadbeef)

	cf, err := bytecode.Assemble(`
maxdepth: 1
argtemplate: nil
constants:
  int 42
code:
  constant 0
  return
`)
	require.NoError(t, err)

	result, err := drv.Function("const_ret", cf)
	require.NoError(t, err)
	require.Equal(t, uintptr(0xdeadbeef), result.FuncPtr)
}

func TestDriverFunctionDumpIR(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("with_ir", 1)

	cf, err := bytecode.Assemble(`
maxdepth: 1
code:
  constant 0
  return
constants:
  int 1
`)
	require.NoError(t, err)

	result, err := drv.FunctionOpts("with_ir", cf, compile.Options{DumpIR: true})
	require.NoError(t, err)
	require.NotEmpty(t, result.IR)
}

func TestDriverFunctionRejectsBadShape(t *testing.T) {
	drv, _ := newTestDriver(t)
	cf := &bytecode.CompiledFunction{} // nil Bytecode/Constants/ArgTemplate
	_, err := drv.Function("bad", cf)
	require.Error(t, err)
}

func TestDriverFunctionMaxDepthCeiling(t *testing.T) {
	rec := backendtest.NewRecorder()
	drv, err := compile.NewDriver(compile.Config{MaxDepth: 1}, func() (backend.Context, error) {
		return rec, nil
	})
	require.NoError(t, err)

	cf, err := bytecode.Assemble(`
maxdepth: 5
constants:
  int 1
code:
  constant 0
  return
`)
	require.NoError(t, err)

	_, err = drv.Function("too_deep", cf)
	require.Error(t, err)
}

func TestDriverFunctionRejectsReentrance(t *testing.T) {
	// The context factory runs while Function holds the driver's
	// semaphore, so a Function call made from inside it is a genuine
	// re-entrant call on the same Driver and must be refused.
	cf, err := bytecode.Assemble(`
maxdepth: 1
constants:
  int 1
code:
  constant 0
  return
`)
	require.NoError(t, err)

	rec := backendtest.NewRecorder()
	rec.Stub("outer", 1)
	var drv *compile.Driver
	var innerErr error
	drv, err = compile.NewDriver(compile.Config{}, func() (backend.Context, error) {
		_, innerErr = drv.Function("inner", cf)
		return rec, nil
	})
	require.NoError(t, err)

	_, err = drv.Function("outer", cf)
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, compile.ErrCompilationInProgress)

	require.Error(t, compile.ErrCompilationInProgress)
	require.Contains(t, compile.ErrCompilationInProgress.Error(), "already in progress")
}

func TestDriverFunctionGoto(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("loopy", 2)

	cf, err := bytecode.Assemble(`
maxdepth: 1
constants:
  int 7
code:
  constant 0
L1:
  BRgoto L1
`)
	require.NoError(t, err)

	// this function never returns a value on its only path (infinite
	// BRgoto), but Run must still emit it without error: the backend
	// records an unconditional jump rather than ever reaching a return.
	_, err = drv.Function("loopy", cf)
	require.NoError(t, err)
}

// TestDriverFunctionAdd1TakesFixnumFastPath is spec §8 scenario 2: [dup, add1,
// return] invoked with one argument takes add1's fixnum fast path, built
// as a single conditional straddling a fast block (UnpackFixnum/increment/
// repack) and a slow block (the Fadd1 call), both joining into the
// function's own RETURN.
func TestDriverFunctionAdd1TakesFixnumFastPath(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("inc", 1)

	cf, err := bytecode.Assemble(`
maxdepth: 2
argtemplate: fixnum 1
code:
  dup
  add1
  return
`)
	require.NoError(t, err)

	before := len(rec.Trace)
	_, err = drv.Function("inc", cf)
	require.NoError(t, err)

	trace := rec.Trace[before:]
	require.Equal(t, 1, countDriverOps(trace, "conditional"), "add1 must branch fast-vs-slow exactly once")
	require.GreaterOrEqual(t, countDriverOps(trace, "call"), 1, "the slow path's Fadd1 call must still be emitted")
}

// TestDriverFunctionConsConstruction is spec §8 scenario 3:
// [constant 0, constant 1, cons, return] with constants [sym:a, nil]
// builds (a) via a single Fcons call.
func TestDriverFunctionConsConstruction(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("make_pair", 1)

	cf, err := bytecode.Assemble(`
maxdepth: 2
argtemplate: nil
constants:
  sym a
  nil
code:
  constant 0
  constant 1
  cons
  return
`)
	require.NoError(t, err)

	before := len(rec.Trace)
	_, err = drv.Function("make_pair", cf)
	require.NoError(t, err)

	trace := rec.Trace[before:]
	require.True(t, anyDriverCall(trace, "Fcons"), "cons must dispatch to the Fcons host function")
}

// TestDriverFunctionThrowLongJumpsIntoHandler is spec §8 scenario 4:
// [pushcatch L1, constant 0, constant 1, throw, L1: return] with a tag
// on the stack. pushcatch installs a handler via push_handler/setjmp;
// throw calls Fthrow, which never returns normally on this path, but the
// handler block it longjmps into joins the same L1 return the fallthrough
// path reaches.
func TestDriverFunctionThrowLongJumpsIntoHandler(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("catcher", 1)

	cf, err := bytecode.Assemble(`
maxdepth: 2
argtemplate: nil
constants:
  sym mytag
  int 7
code:
  constant 0
  pushcatch L1
  constant 0
  constant 1
  throw
L1:
  return
`)
	require.NoError(t, err)

	before := len(rec.Trace)
	_, err = drv.Function("catcher", cf)
	require.NoError(t, err)

	trace := rec.Trace[before:]
	require.True(t, anyDriverCall(trace, "push_handler"), "pushcatch must install a handler via push_handler")
	require.True(t, anyDriverCall(trace, "Fthrow"), "throw must dispatch to the Fthrow host function")
	require.GreaterOrEqual(t, countDriverOps(trace, "setjmp"), 1, "pushcatch must set up the handler's setjmp target")
}

// TestDriverFunctionSelfRecursionSkipsFuncall is spec §8 scenario 5:
// [constant 0 (symbol:my-self), stack_ref1, call1, return], compiled as
// function "my-self", must take the direct self-call path and never
// build the generic funcall's argv.
func TestDriverFunctionSelfRecursionSkipsFuncall(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("my-self", 1)

	cf, err := bytecode.Assemble(`
maxdepth: 3
argtemplate: fixnum 1
constants:
  sym my-self
code:
  constant 0
  stack_ref1
  call1
  return
`)
	require.NoError(t, err)

	before := len(rec.Trace)
	_, err = drv.Function("my-self", cf)
	require.NoError(t, err)

	trace := rec.Trace[before:]
	require.Equal(t, 0, countDriverOps(trace, "address_of"), "a direct self-call must never build a generic funcall argv")
	require.False(t, anyDriverCall(trace, "Ffuncall"), "a direct self-call must not dispatch through Ffuncall")
}

// TestDriverFunctionBRgotoReturnsJumpedToConstant tightens
// TestDriverFunctionGoto into spec §8 scenario 6:
// [BRgoto +2, constant 0, return, constant 1, return] must return
// constants[1], reached only through the block BRgoto actually jumps to
// — never the dead fallthrough block's constants[0] path. Since
// backendtest.Recorder never executes anything, this is verified
// structurally: follow the BRgoto's own jump to its target block, find
// that block's own return, and trace the id it returns back through its
// natcomp_load_constant call to the literal constant-pool index loaded.
func TestDriverFunctionBRgotoReturnsJumpedToConstant(t *testing.T) {
	drv, rec := newTestDriver(t)
	rec.Stub("brtest", 1)

	cf, err := bytecode.Assemble(`
maxdepth: 1
constants:
  int 10
  int 20
code:
  BRgoto L1
  constant 0
  return
L1:
  constant 1
  return
`)
	require.NoError(t, err)

	before := len(rec.Trace)
	_, err = drv.Function("brtest", cf)
	require.NoError(t, err)

	require.Equal(t, int64(1), constantIndexReturnedAfterLastJump(t, rec.Trace[before:]),
		"BRgoto must reach the block loading constants[1], not the dead fallthrough loading constants[0]")
}

var (
	jumpRE   = regexp.MustCompile(`^\[(\S+)\] goto (\S+)$`)
	returnRE = regexp.MustCompile(`^\[(\S+)\] return (\S+)$`)
	assignRE = regexp.MustCompile(`^\[(\S+)\] (\S+) = (\S+)$`)
	callRE   = regexp.MustCompile(`^(\S+) = (\S+)\(\[(.*)\]\)$`)
	constRE  = regexp.MustCompile(`^(\S+) = const\((-?\d+)\)$`)
)

func countDriverOps(trace []backendtest.Op, kind string) int {
	n := 0
	for _, op := range trace {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

func anyDriverCall(trace []backendtest.Op, host string) bool {
	for _, op := range trace {
		if op.Kind != "call" {
			continue
		}
		m := callRE.FindStringSubmatch(op.Text)
		if m != nil && m[2] == host {
			return true
		}
	}
	return false
}

// constantIndexReturnedAfterLastJump finds the last unconditional jump in
// trace (the real BRgoto branch; any earlier jump is just the prologue's
// fallthrough into the first block), locates the return recorded for its
// target block, and follows the returned id back through the
// natcomp_load_constant call that produced it to the constant-pool index
// it loaded.
func constantIndexReturnedAfterLastJump(t *testing.T, trace []backendtest.Op) int64 {
	t.Helper()

	var target string
	for _, op := range trace {
		if op.Kind != "jump" {
			continue
		}
		m := jumpRE.FindStringSubmatch(op.Text)
		require.NotNil(t, m, "unparsable jump op: %q", op.Text)
		target = m[2]
	}
	require.NotEmpty(t, target, "expected at least one jump in the trace")

	var retID string
	for _, op := range trace {
		if op.Kind != "return" {
			continue
		}
		m := returnRE.FindStringSubmatch(op.Text)
		if m != nil && m[1] == target {
			retID = m[2]
		}
	}
	require.NotEmpty(t, retID, "expected a return recorded for jump target %q", target)

	// emit.pushValue always assigns a pushed RValue into a local before
	// recording the stack slot (see lang/emit/emit.go), so the id RETURN
	// hands to EndWithReturn is the local's id, not the producing call's
	// result id directly; find the assign, within the same block, that
	// last wrote that local to recover the call's result id.
	var producerID string
	for _, op := range trace {
		if op.Kind != "assign" {
			continue
		}
		m := assignRE.FindStringSubmatch(op.Text)
		if m != nil && m[1] == target && m[2] == retID {
			producerID = m[3]
		}
	}
	require.NotEmpty(t, producerID, "expected an assignment into %q within block %q", retID, target)

	var constArgID string
	for _, op := range trace {
		if op.Kind != "call" {
			continue
		}
		m := callRE.FindStringSubmatch(op.Text)
		if m != nil && m[1] == producerID && m[2] == "natcomp_load_constant" {
			constArgID = m[3]
		}
	}
	require.NotEmpty(t, constArgID, "expected id %q to trace back to a natcomp_load_constant call", producerID)

	for _, op := range trace {
		if op.Kind != "const" {
			continue
		}
		m := constRE.FindStringSubmatch(op.Text)
		if m != nil && m[1] == constArgID {
			var idx int64
			_, err := fmt.Sscanf(m[2], "%d", &idx)
			require.NoError(t, err)
			return idx
		}
	}
	t.Fatalf("expected a const op producing id %q", constArgID)
	return -1
}
