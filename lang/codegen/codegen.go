// Package codegen wraps lang/backend with the host-specific vocabulary
// lang/emit actually wants to speak: tag tests, field accesses through the
// abi.Descriptor, fixnum packing, and memoized host-function declarations.
// Nothing below this package knows the backend.Context interface exists.
package codegen

import (
	"fmt"
	"sync"

	"github.com/dolthub/swiss"

	"github.com/mna/natcomp/lang/abi"
	"github.com/mna/natcomp/lang/backend"
)

// Shape describes a declared host function's calling convention: either a
// fixed arity of tagged-Value parameters, or the host's variadic
// (nargs, *Value) convention used by Ffuncall-like entry points. Most
// declared functions take and return tagged Values; a handful of runtime
// helpers (unbind_n's count, push_handler's kind, setjmp's buffer) take
// or return a raw backend type instead, named explicitly via ParamTypes/
// Ret so DeclareFunction doesn't have to assume every parameter is a
// Value.
type Shape struct {
	Arity    int
	Variadic bool

	// ParamTypes, if non-nil, overrides the uniform Value-typed parameter
	// list with explicit types; its length must equal Arity.
	ParamTypes []backend.Type
	// Ret overrides the default Value return type when RetSet is true; a
	// genuine TypeVoid return is expressed by setting Ret explicitly, so
	// the override is gated by RetSet rather than by Ret's zero value.
	Ret    backend.Type
	RetSet bool
}

func (s Shape) String() string {
	if s.Variadic {
		return "variadic"
	}
	return fmt.Sprintf("arity-%d", s.Arity)
}

// Builder adapts one backend.Context to the host's ABI, described by an
// abi.Descriptor. It memoizes host-function declarations by name so the
// same declaration is reused (and shape-checked) across every call site in
// a compilation, using a swiss.Map the way the teacher's name-resolution
// cache does (spec §4.2's "declare once per compilation unit").
type Builder struct {
	ctx   backend.Context
	abi   *abi.Descriptor
	union backend.Type

	mu      sync.Mutex
	decls   *swiss.Map[string, *declEntry]
	valueTy backend.Type
}

type declEntry struct {
	decl  backend.Declaration
	shape Shape
}

// New returns a Builder wrapping ctx, using d to interpret tagged values.
// unionMembers lists every Type the scratch cast union must be large
// enough to hold (spec §9).
func New(ctx backend.Context, d *abi.Descriptor, unionMembers []backend.Type) *Builder {
	union := ctx.NewUnionType("natcomp_scratch", unionMembers)
	return &Builder{
		ctx:     ctx,
		abi:     d,
		union:   union,
		decls:   swiss.NewMap[string, *declEntry](uint32(8)),
		valueTy: backend.TypeValue,
	}
}

// DeclareFunction returns the memoized Declaration for name, declaring it
// against ctx the first time it is seen. A later call naming the same
// function with a different Shape is a shape mismatch: the upstream
// bytecode disagrees with itself about that function's arity, which is a
// malformed-input condition the caller should surface as
// compile.UnsupportedCast.
func (b *Builder) DeclareFunction(name string, shape Shape) (backend.Declaration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.decls.Get(name); ok {
		if !shapesEqual(existing.shape, shape) {
			return nil, fmt.Errorf("codegen: %s previously declared as %s, now requested as %s", name, existing.shape, shape)
		}
		return existing.decl, nil
	}

	ret := b.valueTy
	if shape.RetSet {
		ret = shape.Ret
	}

	var decl backend.Declaration
	if shape.Variadic {
		decl = b.ctx.DeclareImportVariadic(name, backend.TypePointer, ret)
	} else {
		params := make([]backend.Param, shape.Arity)
		for i := range params {
			t := b.valueTy
			if shape.ParamTypes != nil {
				t = shape.ParamTypes[i]
			}
			params[i] = backend.Param{Name: fmt.Sprintf("a%d", i), Type: t}
		}
		decl = b.ctx.DeclareImport(name, params, ret)
	}
	b.decls.Put(name, &declEntry{decl: decl, shape: shape})
	return decl, nil
}

// shapesEqual compares two Shapes for the purpose of Invariant iv's
// "a second declaration of the same name must agree" check; ParamTypes is
// compared element-wise since Shape cannot use == while holding a slice.
func shapesEqual(a, b Shape) bool {
	if a.Arity != b.Arity || a.Variadic != b.Variadic || a.RetSet != b.RetSet || a.Ret != b.Ret {
		return false
	}
	if len(a.ParamTypes) != len(b.ParamTypes) {
		return false
	}
	for i := range a.ParamTypes {
		if a.ParamTypes[i] != b.ParamTypes[i] {
			return false
		}
	}
	return true
}

// Call builds a call to a fixed-arity declared function.
func (b *Builder) Call(decl backend.Declaration, args ...backend.RValue) backend.RValue {
	return decl.Call(args...)
}

// CallVariadic builds a call to a declared variadic function using the
// host's (nargs, *Value) convention: nargs becomes an Int64 constant and
// argv, a pointer to nargs contiguous values, is passed through unchanged,
// the stack-array packing being the emitter's responsibility (it owns the
// local array).
func (b *Builder) CallVariadic(decl backend.Declaration, argv backend.RValue, nargs int) backend.RValue {
	n := b.ctx.Const(backend.TypeInt64, int64(nargs))
	return decl.Call(n, argv)
}

// PackFixnum builds the IR for tagging an untagged integer payload as a
// fixnum word, per abi.Descriptor.PackFixnum.
func (b *Builder) PackFixnum(v backend.RValue) backend.RValue {
	shift := b.ctx.Const(backend.TypeInt64, int64(b.abi.IntTypeBits))
	shifted := b.ctx.Binary(backend.BinShl, v, shift)
	tag := b.ctx.Const(backend.TypeInt64, b.abi.Int0Tag)
	return b.ctx.Binary(backend.BinAdd, shifted, tag)
}

// UnpackFixnum builds the IR for extracting a fixnum's untagged payload by
// arithmetic right shift.
func (b *Builder) UnpackFixnum(v backend.RValue) backend.RValue {
	shift := b.ctx.Const(backend.TypeInt64, int64(b.abi.IntTypeBits))
	return b.ctx.Binary(backend.BinAshr, v, shift)
}

// TagTest builds a boolean RValue testing whether v carries the given tag:
// (v >> TagShift) & TagMask == tagValue.
func (b *Builder) TagTest(v backend.RValue, kind abi.TagKind) (backend.RValue, error) {
	tagValue, ok := b.abi.Tags[kind]
	if !ok {
		return nil, fmt.Errorf("codegen: descriptor has no tag for %q", kind)
	}
	word := b.Cast(v, backend.TypeInt64)
	var extracted backend.RValue = word
	if b.abi.TagShift != 0 {
		shift := b.ctx.Const(backend.TypeInt64, int64(b.abi.TagShift))
		extracted = b.ctx.Binary(backend.BinAshr, extracted, shift)
	}
	mask := b.ctx.Const(backend.TypeInt64, int64(b.abi.TagMask))
	masked := b.ctx.Binary(backend.BinBitAnd, extracted, mask)
	want := b.ctx.Const(backend.TypeInt64, tagValue)
	return b.ctx.Compare(backend.CmpEQ, masked, want), nil
}

// Cast reinterprets v's bit pattern as t through the scratch union.
func (b *Builder) Cast(v backend.RValue, t backend.Type) backend.RValue {
	return b.ctx.Cast(b.union, v, t)
}

// Field accesses a field of v, described declaratively rather than by a
// hardcoded struct layout, so a different abi.Descriptor retargets every
// field access in lang/inline and lang/emit without code changes.
func (b *Builder) Field(v backend.RValue, fd abi.FieldDescriptor, fieldType backend.Type) backend.LValue {
	ptr := b.Cast(v, backend.TypePointer)
	return b.ctx.Field(ptr, fd.Offset, fieldType)
}

// ConsCar and ConsCdr access the two fields of the host's cons cell.
func (b *Builder) ConsCar(v backend.RValue) backend.LValue {
	return b.Field(v, b.abi.ConsCell.Car, backend.TypeValue)
}

func (b *Builder) ConsCdr(v backend.RValue) backend.LValue {
	return b.Field(v, b.abi.ConsCell.Cdr, backend.TypeValue)
}

// CurrentThread resolves the process-wide "current thread" global as a
// pointer-typed LValue.
func (b *Builder) CurrentThread() backend.LValue {
	return b.ctx.GlobalRef(b.abi.CurrentThreadSymbol, backend.TypePointer)
}

// HandlerList accesses m_handlerlist off the current thread struct.
func (b *Builder) HandlerList() backend.LValue {
	thread := b.CurrentThread().RValue()
	return b.Field(thread, b.abi.ThreadState.HandlerList, backend.TypePointer)
}

// Setjmp wraps backend.Context.Setjmp.
func (b *Builder) Setjmp(buf backend.LValue) backend.RValue {
	return b.ctx.Setjmp(buf)
}

// Descriptor exposes the underlying abi.Descriptor, e.g. for
// lang/inline's pure-region bounds check.
func (b *Builder) Descriptor() *abi.Descriptor {
	return b.abi
}

// Context exposes the underlying backend.Context for emitters that need a
// raw Const, Binary, or Compare not covered by a Builder helper.
func (b *Builder) Context() backend.Context {
	return b.ctx
}
