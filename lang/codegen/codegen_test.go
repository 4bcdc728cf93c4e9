package codegen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/backend/backendtest"
	"github.com/mna/natcomp/lang/codegen"
)

func newBuilder(t *testing.T) (*codegen.Builder, *backendtest.Recorder) {
	t.Helper()
	rec := backendtest.NewRecorder()
	d, err := abi.Default()
	require.NoError(t, err)
	b := codegen.New(rec, d, []backend.Type{backend.TypeValue, backend.TypeInt64, backend.TypePointer})
	return b, rec
}

func TestDeclareFunctionMemoizes(t *testing.T) {
	b, rec := newBuilder(t)

	d1, err := b.DeclareFunction("Fcons", codegen.Shape{Arity: 2})
	require.NoError(t, err)
	d2, err := b.DeclareFunction("Fcons", codegen.Shape{Arity: 2})
	require.NoError(t, err)
	require.Same(t, d1, d2)

	count := 0
	for _, op := range rec.Trace {
		if op.Kind == "declare_import" {
			count++
		}
	}
	require.Equal(t, 1, count, "DeclareFunction must declare only once across repeated calls")
}

func TestDeclareFunctionShapeMismatch(t *testing.T) {
	b, _ := newBuilder(t)

	_, err := b.DeclareFunction("Fplus", codegen.Shape{Arity: 2})
	require.NoError(t, err)
	_, err = b.DeclareFunction("Fplus", codegen.Shape{Arity: 3})
	require.ErrorContains(t, err, "previously declared")
}

func TestDeclareFunctionVariadic(t *testing.T) {
	b, rec := newBuilder(t)

	_, err := b.DeclareFunction("Ffuncall", codegen.Shape{Variadic: true})
	require.NoError(t, err)

	found := false
	for _, op := range rec.Trace {
		if op.Kind == "declare_import_variadic" && op.Text == "Ffuncall" {
			found = true
		}
	}
	require.True(t, found)
}

func TestPackUnpackFixnumRoundTrip(t *testing.T) {
	b, rec := newBuilder(t)
	d, err := abi.Default()
	require.NoError(t, err)

	raw := rec.Const(backend.TypeInt64, 7)
	packed := b.PackFixnum(raw)
	require.Equal(t, backend.TypeInt64, packed.Type())

	unpacked := b.UnpackFixnum(packed)
	require.Equal(t, backend.TypeInt64, unpacked.Type())
	_ = d
}

func TestTagTestUnknownKind(t *testing.T) {
	b, rec := newBuilder(t)
	v := rec.Const(backend.TypeInt64, 0)
	_, err := b.TagTest(v, abi.TagKind("no-such-tag"))
	require.ErrorContains(t, err, "no tag for")
}

func TestTagTestKnownKind(t *testing.T) {
	b, rec := newBuilder(t)
	v := rec.Const(backend.TypeInt64, 0)
	rv, err := b.TagTest(v, abi.TagCons)
	require.NoError(t, err)
	require.Equal(t, backend.TypeBool, rv.Type())
}

func TestConsCarCdrFieldOffsetsDiffer(t *testing.T) {
	b, rec := newBuilder(t)
	v := rec.Const(backend.TypeValue, 0)

	car := b.ConsCar(v)
	cdr := b.ConsCdr(v)
	require.NotEqual(t, car.RValue(), cdr.RValue())

	var offsets []string
	for _, op := range rec.Trace {
		if op.Kind == "field" {
			offsets = append(offsets, op.Text[strings.LastIndex(op.Text, "@")+1:])
		}
	}
	require.Len(t, offsets, 2)
	require.NotEqual(t, offsets[0], offsets[1], "car and cdr must read different byte offsets of the cons cell")
}
