package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

// gccjitLib is the default codegen backend shared library name, an
// ahead-of-time JIT compiler library offering a stable C API: create a
// context, build functions out of blocks of statements and expressions,
// and compile to machine code or dump textual IR. lang/compile.Config
// (see the ambient config in SPEC_FULL.md) allows overriding the path.
const gccjitLib = "libgccjit.so.0"

// gccjit is the purego binding: each field is a C function resolved once
// per loaded library via purego.RegisterLibFunc, never called directly by
// anything above lang/backend.
type gccjit struct {
	contextAcquire          func() uintptr
	contextRelease          func(ctx uintptr)
	contextNewFunction       func(ctx uintptr, kind int32, retType uintptr, name string, numParams int32, params uintptr, isVariadic int32) uintptr
	contextNewParam          func(ctx uintptr, t uintptr, name string) uintptr
	contextGetType           func(ctx uintptr, kind int32) uintptr
	contextNewStructType     func(ctx uintptr, name string, numFields int32, fields uintptr) uintptr
	contextNewUnionType      func(ctx uintptr, name string, numFields int32, fields uintptr) uintptr
	contextNewRvalueFromInt  func(ctx uintptr, t uintptr, value int32) uintptr
	contextNewOpaqueStruct   func(ctx uintptr, name string) uintptr
	contextNewCast           func(ctx uintptr, rv uintptr, t uintptr) uintptr
	contextNewBinaryOp       func(ctx uintptr, op int32, t uintptr, x, y uintptr) uintptr
	contextNewComparison     func(ctx uintptr, op int32, x, y uintptr) uintptr
	contextNewCall           func(ctx uintptr, fn uintptr, numArgs int32, args uintptr) uintptr
	contextCompile           func(ctx uintptr) uintptr
	contextDumpToString      func(ctx uintptr, updateLocs int32) uintptr
	functionNewBlock         func(fn uintptr, name string) uintptr
	functionGetParam         func(fn uintptr, i int32) uintptr
	functionNewLocal         func(fn uintptr, t uintptr, name string) uintptr
	blockAddAssignment       func(b uintptr, lv, rv uintptr)
	blockAddEval             func(b uintptr, rv uintptr)
	blockEndWithReturn       func(b uintptr, rv uintptr)
	blockEndWithVoidReturn   func(b uintptr)
	blockEndWithJump         func(b uintptr, target uintptr)
	blockEndWithConditional  func(b uintptr, cond uintptr, onTrue, onFalse uintptr)
	lvalueAsRvalue           func(lv uintptr) uintptr
	lvalueGetAddress         func(lv uintptr, loc uintptr) uintptr
	resultGetCode            func(r uintptr, name string) uintptr
	resultRelease            func(r uintptr)
}

var (
	loadOnce  sync.Once
	loadedLib *gccjit
	loadErr   error
)

// loadLibrary dlopens path (or the default gccjitLib if path is empty)
// and resolves every C function this package needs. The result is cached
// process-wide: the codegen backend library is reentrant for multiple
// contexts but there is no benefit to re-resolving its symbol table.
func loadLibrary(path string) (*gccjit, error) {
	loadOnce.Do(func() {
		if path == "" {
			path = gccjitLib
		}
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = fmt.Errorf("backend: loading %s: %w", path, err)
			return
		}
		lib := &gccjit{}
		reg := func(fptr interface{}, name string) {
			if loadErr != nil {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					loadErr = fmt.Errorf("backend: resolving %s: %v", name, r)
				}
			}()
			purego.RegisterLibFunc(fptr, handle, name)
		}
		reg(&lib.contextAcquire, "gcc_jit_context_acquire")
		reg(&lib.contextRelease, "gcc_jit_context_release")
		reg(&lib.contextNewFunction, "gcc_jit_context_new_function")
		reg(&lib.contextNewParam, "gcc_jit_context_new_param")
		reg(&lib.contextGetType, "gcc_jit_context_get_type")
		reg(&lib.contextNewStructType, "gcc_jit_context_new_struct_type")
		reg(&lib.contextNewUnionType, "gcc_jit_context_new_union_type")
		reg(&lib.contextNewRvalueFromInt, "gcc_jit_context_new_rvalue_from_int")
		reg(&lib.contextNewOpaqueStruct, "gcc_jit_context_new_opaque_struct")
		reg(&lib.contextNewCast, "gcc_jit_context_new_cast")
		reg(&lib.contextNewBinaryOp, "gcc_jit_context_new_binary_op")
		reg(&lib.contextNewComparison, "gcc_jit_context_new_comparison")
		reg(&lib.contextNewCall, "gcc_jit_context_new_call")
		reg(&lib.contextCompile, "gcc_jit_context_compile")
		reg(&lib.contextDumpToString, "gcc_jit_context_to_string")
		reg(&lib.functionNewBlock, "gcc_jit_function_new_block")
		reg(&lib.functionGetParam, "gcc_jit_function_get_param")
		reg(&lib.functionNewLocal, "gcc_jit_function_new_local")
		reg(&lib.blockAddAssignment, "gcc_jit_block_add_assignment")
		reg(&lib.blockAddEval, "gcc_jit_block_add_eval")
		reg(&lib.blockEndWithReturn, "gcc_jit_block_end_with_return")
		reg(&lib.blockEndWithVoidReturn, "gcc_jit_block_end_with_void_return")
		reg(&lib.blockEndWithJump, "gcc_jit_block_end_with_jump")
		reg(&lib.blockEndWithConditional, "gcc_jit_block_end_with_conditional")
		reg(&lib.lvalueAsRvalue, "gcc_jit_lvalue_as_rvalue")
		reg(&lib.lvalueGetAddress, "gcc_jit_lvalue_get_address")
		reg(&lib.resultGetCode, "gcc_jit_result_get_code")
		reg(&lib.resultRelease, "gcc_jit_result_release")
		loadedLib = lib
	})
	return loadedLib, loadErr
}

// NewGCCJITContext opens (or reuses) the codegen backend shared library at
// path (empty for the default) and returns a fresh compilation context
// bound to it.
func NewGCCJITContext(path string) (Context, error) {
	lib, err := loadLibrary(path)
	if err != nil {
		return nil, err
	}
	h := lib.contextAcquire()
	if h == 0 {
		return nil, errors.New("backend: gcc_jit_context_acquire returned a null context")
	}
	return &gccjitContext{lib: lib, handle: h}, nil
}

// gccjitContext, gccjitFunction, gccjitBlock, gccjitLValue, gccjitRValue,
// and gccjitDeclaration implement the Context family of interfaces by
// forwarding to the resolved C function pointers above. Handles are opaque
// uintptr-sized pointers into the backend library's own heap; this
// package never dereferences them, it only threads them through calls.
type gccjitContext struct {
	lib      *gccjit
	handle   uintptr
	unionHnd uintptr
}

func (c *gccjitContext) typeHandle(t Type) uintptr {
	// gcc_jit_type_kind values; GCC_JIT_TYPE_VOID=0, BOOL=2, LONG_LONG=9,
	// CONST_CHAR_PTR=13 are stable across libgccjit releases.
	switch t {
	case TypeVoid:
		return c.lib.contextGetType(c.handle, 0)
	case TypeBool:
		return c.lib.contextGetType(c.handle, 2)
	case TypeInt64, TypeValue:
		return c.lib.contextGetType(c.handle, 9)
	case TypePointer:
		return c.lib.contextGetType(c.handle, 13)
	default:
		panic(fmt.Sprintf("backend: unknown Type %d", t))
	}
}

func (c *gccjitContext) DeclareImport(name string, params []Param, ret Type) Declaration {
	paramHandles := make([]uintptr, len(params))
	for i, p := range params {
		paramHandles[i] = c.lib.contextNewParam(c.handle, c.typeHandle(p.Type), p.Name)
	}
	var argPtr uintptr
	if len(paramHandles) > 0 {
		argPtr = sliceToPtr(paramHandles)
	}
	// GCC_JIT_FUNCTION_IMPORTED = 1
	fn := c.lib.contextNewFunction(c.handle, 1, c.typeHandle(ret), name, int32(len(params)), argPtr, 0)
	return &gccjitDeclaration{ctx: c, name: name, handle: fn}
}

func (c *gccjitContext) DeclareImportVariadic(name string, argvType Type, ret Type) Declaration {
	params := []Param{{Name: "nargs", Type: TypeInt64}, {Name: "args", Type: argvType}}
	return c.DeclareImport(name, params, ret)
}

func (c *gccjitContext) NewFunction(name string, params []Param, ret Type) Function {
	paramHandles := make([]uintptr, len(params))
	for i, p := range params {
		paramHandles[i] = c.lib.contextNewParam(c.handle, c.typeHandle(p.Type), p.Name)
	}
	var argPtr uintptr
	if len(paramHandles) > 0 {
		argPtr = sliceToPtr(paramHandles)
	}
	// GCC_JIT_FUNCTION_EXPORTED = 0
	fn := c.lib.contextNewFunction(c.handle, 0, c.typeHandle(ret), name, int32(len(params)), argPtr, 0)
	return &gccjitFunction{ctx: c, name: name, handle: fn, paramHandles: paramHandles}
}

func (c *gccjitContext) NewUnionType(name string, members []Type) Type {
	// The union handle is cached on the context (spec §9: one scratch
	// union per compilation, reused at every cast site); TypeValue is
	// reused here as the symbolic handle for "the union type", since
	// lang/codegen always refers to it by the Type it was declared with.
	fieldTypes := make([]uintptr, len(members))
	for i, m := range members {
		fieldTypes[i] = c.typeHandle(m)
	}
	c.unionHnd = c.lib.contextNewUnionType(c.handle, name, int32(len(members)), sliceToPtr(fieldTypes))
	return TypeValue
}

func (c *gccjitContext) Const(t Type, v int64) RValue {
	h := c.lib.contextNewRvalueFromInt(c.handle, c.typeHandle(t), int32(v))
	return &gccjitRValue{typ: t, handle: h}
}

func (c *gccjitContext) Binary(op BinOp, x, y RValue) RValue {
	h := c.lib.contextNewBinaryOp(c.handle, int32(op), c.typeHandle(x.Type()), handleOf(x), handleOf(y))
	return &gccjitRValue{typ: x.Type(), handle: h}
}

func (c *gccjitContext) Compare(op CompareOp, x, y RValue) RValue {
	h := c.lib.contextNewComparison(c.handle, int32(op), handleOf(x), handleOf(y))
	return &gccjitRValue{typ: TypeBool, handle: h}
}

// Cast emits a gcc_jit_context_new_cast, a C value conversion to t; it
// ignores union and does not go through the scratch union type, so it is
// not a bit-pattern reinterpretation.
func (c *gccjitContext) Cast(union Type, v RValue, t Type) RValue {
	h := c.lib.contextNewCast(c.handle, handleOf(v), c.typeHandle(t))
	return &gccjitRValue{typ: t, handle: h}
}

func (c *gccjitContext) Field(v RValue, off int, fieldType Type) LValue {
	// Field access through the scratch union is resolved by lang/codegen
	// building the appropriate cast first; this binding assumes v already
	// names a pointer to the right struct type and exposes only a
	// synthetic lvalue wrapper so callers can Assign/RValue it uniformly.
	return &gccjitFieldLValue{ctx: c, base: v, offset: off, typ: fieldType}
}

func (c *gccjitContext) GlobalRef(name string, t Type) LValue {
	return &gccjitGlobalLValue{ctx: c, name: name, typ: t}
}

// AddressOf takes the address of a plain lvalue (a local or a parameter),
// the binding lang/emit uses to build the generic funcall path's
// contiguous argv pointer (spec §4.2; comp.c's emit_call_n_ref does the
// same via this exact C entry point, passing NULL for the source
// location).
func (c *gccjitContext) AddressOf(lv LValue) RValue {
	h := c.lib.lvalueGetAddress(lvalueHandleOf(lv), 0)
	return &gccjitRValue{typ: TypePointer, handle: h}
}

func (c *gccjitContext) Setjmp(buf LValue) RValue {
	decl := c.DeclareImport("setjmp", []Param{{Name: "env", Type: TypePointer}}, TypeInt64)
	return decl.Call(buf.RValue())
}

func (c *gccjitContext) Compile() (CompileResult, error) {
	r := c.lib.contextCompile(c.handle)
	if r == 0 {
		return nil, errors.New("backend: gcc_jit_context_compile returned no result")
	}
	return &gccjitResult{lib: c.lib, handle: r}, nil
}

func (c *gccjitContext) DumpIR() (string, error) {
	ptr := c.lib.contextDumpToString(c.handle, 0)
	if ptr == 0 {
		return "", errors.New("backend: gcc_jit_context_to_string returned null")
	}
	return cStringToGo(ptr), nil
}

func (c *gccjitContext) Release() {
	c.lib.contextRelease(c.handle)
}

type gccjitFunction struct {
	ctx          *gccjitContext
	name         string
	handle       uintptr
	paramHandles []uintptr
}

func (f *gccjitFunction) Name() string { return f.name }

func (f *gccjitFunction) Param(i int) LValue {
	h := f.ctx.lib.functionGetParam(f.handle, int32(i))
	return &gccjitLValue{ctx: f.ctx, handle: h}
}

func (f *gccjitFunction) NewLocal(name string, t Type) LValue {
	h := f.ctx.lib.functionNewLocal(f.handle, f.ctx.typeHandle(t), name)
	return &gccjitLValue{ctx: f.ctx, handle: h, typ: t}
}

func (f *gccjitFunction) NewBlock(name string) Block {
	h := f.ctx.lib.functionNewBlock(f.handle, name)
	return &gccjitBlock{ctx: f.ctx, name: name, handle: h}
}

type gccjitBlock struct {
	ctx        *gccjitContext
	name       string
	handle     uintptr
	terminated bool
}

func (b *gccjitBlock) Name() string       { return b.name }
func (b *gccjitBlock) Terminated() bool   { return b.terminated }

func (b *gccjitBlock) Eval(rv RValue) {
	b.ctx.lib.blockAddEval(b.handle, handleOf(rv))
}

func (b *gccjitBlock) Assign(lvalue LValue, rv RValue) {
	b.ctx.lib.blockAddAssignment(b.handle, lvalueHandleOf(lvalue), handleOf(rv))
}

func (b *gccjitBlock) EndWithReturn(rv RValue) {
	if rv == nil {
		b.ctx.lib.blockEndWithVoidReturn(b.handle)
	} else {
		b.ctx.lib.blockEndWithReturn(b.handle, handleOf(rv))
	}
	b.terminated = true
}

func (b *gccjitBlock) EndWithJump(target Block) {
	b.ctx.lib.blockEndWithJump(b.handle, target.(*gccjitBlock).handle)
	b.terminated = true
}

func (b *gccjitBlock) EndWithConditional(cond RValue, ifTrue, ifFalse Block) {
	b.ctx.lib.blockEndWithConditional(b.handle, handleOf(cond), ifTrue.(*gccjitBlock).handle, ifFalse.(*gccjitBlock).handle)
	b.terminated = true
}

type gccjitLValue struct {
	ctx    *gccjitContext
	handle uintptr
	typ    Type
}

func (lv *gccjitLValue) RValue() RValue {
	h := lv.ctx.lib.lvalueAsRvalue(lv.handle)
	return &gccjitRValue{typ: lv.typ, handle: h}
}

// gccjitFieldLValue and gccjitGlobalLValue stand in for field/global access
// lvalues; lang/codegen is responsible for ensuring the base rvalue they
// wrap already has the right pointer type, since libgccjit's own field
// accessors take a gcc_jit_field handle built at struct-declaration time,
// resolved by lang/codegen from an abi.FieldDescriptor rather than here.
type gccjitFieldLValue struct {
	ctx    *gccjitContext
	base   RValue
	offset int
	typ    Type
}

func (lv *gccjitFieldLValue) RValue() RValue {
	return &gccjitRValue{typ: lv.typ, handle: handleOf(lv.base)}
}

type gccjitGlobalLValue struct {
	ctx  *gccjitContext
	name string
	typ  Type
}

func (lv *gccjitGlobalLValue) RValue() RValue {
	decl := lv.ctx.DeclareImport(lv.name, nil, lv.typ)
	return decl.Call()
}

type gccjitRValue struct {
	typ    Type
	handle uintptr
}

func (rv *gccjitRValue) Type() Type { return rv.typ }

type gccjitDeclaration struct {
	ctx    *gccjitContext
	name   string
	handle uintptr
}

func (d *gccjitDeclaration) Name() string { return d.name }

func (d *gccjitDeclaration) Call(args ...RValue) RValue {
	argHandles := make([]uintptr, len(args))
	for i, a := range args {
		argHandles[i] = handleOf(a)
	}
	var argPtr uintptr
	if len(argHandles) > 0 {
		argPtr = sliceToPtr(argHandles)
	}
	h := d.ctx.lib.contextNewCall(d.ctx.handle, d.handle, int32(len(args)), argPtr)
	return &gccjitRValue{typ: TypeValue, handle: h}
}

type gccjitResult struct {
	lib    *gccjit
	handle uintptr
}

func (r *gccjitResult) FuncPtr(name string) (uintptr, error) {
	ptr := r.lib.resultGetCode(r.handle, name)
	if ptr == 0 {
		return 0, fmt.Errorf("backend: no code generated for %q", name)
	}
	return ptr, nil
}

func (r *gccjitResult) Release() {
	r.lib.resultRelease(r.handle)
}

func handleOf(rv RValue) uintptr {
	if g, ok := rv.(*gccjitRValue); ok {
		return g.handle
	}
	panic(fmt.Sprintf("backend: %T is not a gccjit rvalue", rv))
}

func lvalueHandleOf(lv LValue) uintptr {
	switch v := lv.(type) {
	case *gccjitLValue:
		return v.handle
	default:
		panic(fmt.Sprintf("backend: %T is not a plain gccjit lvalue", lv))
	}
}
