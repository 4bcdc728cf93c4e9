package inline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/backend/backendtest"
	"github.com/mna/natcomp/lang/codegen"
	"github.com/mna/natcomp/lang/inline"
)

func newLibrary(t *testing.T) (*inline.Library, *codegen.Builder, *backendtest.Recorder) {
	t.Helper()
	rec := backendtest.NewRecorder()
	d, err := abi.Default()
	require.NoError(t, err)
	b := codegen.New(rec, d, []backend.Type{backend.TypeValue, backend.TypeInt64, backend.TypePointer})
	lib, err := inline.New(b)
	require.NoError(t, err)
	return lib, b, rec
}

func TestNewDeclaresFallbackHelpers(t *testing.T) {
	_, _, rec := newLibrary(t)

	var declared []string
	for _, op := range rec.Trace {
		if op.Kind == "declare_import" {
			declared = append(declared, op.Text)
		}
	}
	require.Contains(t, declared, "wrong_type_argument")
	require.Contains(t, declared, "pure_write_error")
	require.Contains(t, declared, "Fcar_safe")
	require.Contains(t, declared, "Fcdr_safe")
	require.Contains(t, declared, "helper_PSEUDOVECTORP")
}

func TestCARBuildsThreeWayBranch(t *testing.T) {
	lib, _, rec := newLibrary(t)
	fn := rec.NewFunction("f", nil, backend.TypeValue)
	entry := fn.NewBlock("entry")
	v := rec.Const(backend.TypeValue, 0)
	sym := rec.Const(backend.TypeValue, 1)

	before := len(rec.Trace)
	okBlock, result, err := lib.CAR(fn, entry, v, sym)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, entry.Terminated(), "entry must end with the cons/not-cons conditional")
	require.False(t, okBlock.Terminated(), "CAR must leave okBlock open for the caller to continue emitting into")

	// is_cons_b / is_nil_b / not_nil_b: exactly two conditionals (cons-vs-not,
	// then nil-vs-not) and one call to wrong_type_argument on the not-nil path.
	var conditionals, calls int
	for _, op := range rec.Trace[before:] {
		switch op.Kind {
		case "conditional":
			conditionals++
		case "call":
			calls++
		}
	}
	require.Equal(t, 2, conditionals, "CAR must branch cons-vs-not then nil-vs-not, not collapse to one test")
	require.Equal(t, 1, calls, "wrong_type_argument must only be reached on the not-nil, not-cons path")
}

func TestCDRBuildsThreeWayBranch(t *testing.T) {
	lib, _, rec := newLibrary(t)
	fn := rec.NewFunction("f", nil, backend.TypeValue)
	entry := fn.NewBlock("entry")
	v := rec.Const(backend.TypeValue, 0)
	sym := rec.Const(backend.TypeValue, 1)

	okBlock, result, err := lib.CDR(fn, entry, v, sym)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, entry.Terminated())
	require.False(t, okBlock.Terminated())
}

func TestCARNilPassesThroughWithoutSignaling(t *testing.T) {
	// (car nil) must produce nil, not reach wrong_type_argument: the fast
	// path's nil branch assigns the nil word to the join local and jumps
	// straight to okBlock, it never terminates via EndWithReturn.
	lib, _, rec := newLibrary(t)
	fn := rec.NewFunction("f", nil, backend.TypeValue)
	entry := fn.NewBlock("entry")
	v := rec.Const(backend.TypeValue, 0)
	sym := rec.Const(backend.TypeValue, 1)

	_, _, err := lib.CAR(fn, entry, v, sym)
	require.NoError(t, err)

	var returns int
	for _, op := range rec.Trace {
		if op.Kind == "return" {
			returns++
		}
	}
	require.Equal(t, 1, returns, "only the not-nil/not-cons path may return (raise wrong_type_argument); the nil path must join okBlock instead")
}

func TestCarSafeCdrSafeCallThroughDirectly(t *testing.T) {
	lib, _, rec := newLibrary(t)
	v := rec.Const(backend.TypeValue, 0)

	lib.CarSafe(v)
	lib.CdrSafe(v)

	var calls []string
	for _, op := range rec.Trace {
		if op.Kind == "call" {
			calls = append(calls, op.Text)
		}
	}
	require.Len(t, calls, 2, "car-safe/cdr-safe must call through with no fast-path type test")
}

func TestCheckImpureBranchesToPureWriteError(t *testing.T) {
	lib, _, rec := newLibrary(t)
	fn := rec.NewFunction("f", nil, backend.TypeValue)
	entry := fn.NewBlock("entry")
	v := rec.Const(backend.TypeValue, 0)

	okBlock, err := lib.CheckImpure(fn, entry, v)
	require.NoError(t, err)
	require.True(t, entry.Terminated(), "entry must end with the pure-region conditional")
	require.False(t, okBlock.Terminated(), "CheckImpure must leave okBlock open for the caller's field store")

	var calls []string
	for _, op := range rec.Trace {
		if op.Kind == "call" {
			calls = append(calls, op.Text)
		}
	}
	require.Len(t, calls, 1)
	require.Contains(t, calls[0], "pure_write_error")
}

func TestBoolToLispRoutesThroughBuilderCast(t *testing.T) {
	_, b, rec := newLibrary(t)
	cond := rec.Const(backend.TypeInt64, 1)

	before := len(rec.Trace)
	result := inline.BoolToLisp(b, cond)
	require.Equal(t, backend.TypeValue, result.Type())

	var sawCast bool
	for _, op := range rec.Trace[before:] {
		if op.Kind == "cast" {
			sawCast = true
		}
	}
	require.True(t, sawCast, "BoolToLisp must cast the computed word through the Builder's scratch union")
}
