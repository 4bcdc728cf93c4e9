// Package backendtest provides an in-memory stand-in for lang/backend's
// Context, used by lang/emit and lang/compile tests so the suite runs
// without a codegen backend shared library installed. It records every
// operation instead of generating machine code, then exposes a flat trace
// tests can assert against.
package backendtest

import (
	"fmt"

	"github.com/mna/natcomp/lang/backend"
)

// Op is one recorded operation in a Recorder's trace.
type Op struct {
	Kind string // e.g. "const", "binary", "call", "assign", "jump", "return"
	Text string // human-readable rendering, e.g. "r3 = r1 + r2"
}

// Recorder implements backend.Context by building a trace of every
// expression and statement instead of compiling anything. FuncPtr on its
// CompileResult returns a small set of canned entry points registered via
// Stub, so lang/compile tests can simulate "the backend produced code for
// this function" without a real JIT.
type Recorder struct {
	Trace   []Op
	nextID  int
	stubs   map[string]uintptr
	unionOK bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{stubs: map[string]uintptr{}}
}

// Stub registers a canned function pointer so CompileResult.FuncPtr(name)
// succeeds in tests without a real backend.
func (r *Recorder) Stub(name string, ptr uintptr) {
	r.stubs[name] = ptr
}

func (r *Recorder) id() string {
	r.nextID++
	return fmt.Sprintf("r%d", r.nextID)
}

func (r *Recorder) emit(kind, text string) {
	r.Trace = append(r.Trace, Op{Kind: kind, Text: text})
}

func (r *Recorder) DeclareImport(name string, params []backend.Param, ret backend.Type) backend.Declaration {
	r.emit("declare_import", name)
	return &recDecl{r: r, name: name}
}

func (r *Recorder) DeclareImportVariadic(name string, argvType backend.Type, ret backend.Type) backend.Declaration {
	r.emit("declare_import_variadic", name)
	return &recDecl{r: r, name: name}
}

func (r *Recorder) NewFunction(name string, params []backend.Param, ret backend.Type) backend.Function {
	r.emit("new_function", name)
	return &recFunction{r: r, name: name, numParams: len(params)}
}

func (r *Recorder) NewUnionType(name string, members []backend.Type) backend.Type {
	r.emit("new_union_type", name)
	r.unionOK = true
	return backend.TypeValue
}

func (r *Recorder) Const(t backend.Type, v int64) backend.RValue {
	id := r.id()
	r.emit("const", fmt.Sprintf("%s = const(%v)", id, v))
	return &recValue{r: r, id: id, typ: t}
}

func (r *Recorder) Binary(op backend.BinOp, x, y backend.RValue) backend.RValue {
	id := r.id()
	r.emit("binary", fmt.Sprintf("%s = %s %v %s", id, idOf(x), op, idOf(y)))
	return &recValue{r: r, id: id, typ: x.Type()}
}

func (r *Recorder) Compare(op backend.CompareOp, x, y backend.RValue) backend.RValue {
	id := r.id()
	r.emit("compare", fmt.Sprintf("%s = %s %v %s", id, idOf(x), op, idOf(y)))
	return &recValue{r: r, id: id, typ: backend.TypeBool}
}

func (r *Recorder) Cast(union backend.Type, v backend.RValue, t backend.Type) backend.RValue {
	id := r.id()
	r.emit("cast", fmt.Sprintf("%s = cast(%s, %v)", id, idOf(v), t))
	return &recValue{r: r, id: id, typ: t}
}

func (r *Recorder) Field(v backend.RValue, off int, fieldType backend.Type) backend.LValue {
	id := r.id()
	r.emit("field", fmt.Sprintf("%s = %s->field@%d", id, idOf(v), off))
	return &recValue{r: r, id: id, typ: fieldType}
}

func (r *Recorder) GlobalRef(name string, t backend.Type) backend.LValue {
	id := r.id()
	r.emit("global_ref", fmt.Sprintf("%s = &%s", id, name))
	return &recValue{r: r, id: id, typ: t}
}

func (r *Recorder) AddressOf(lv backend.LValue) backend.RValue {
	id := r.id()
	r.emit("address_of", fmt.Sprintf("%s = &%s", id, idOf(lv.RValue())))
	return &recValue{r: r, id: id, typ: backend.TypePointer}
}

func (r *Recorder) Setjmp(buf backend.LValue) backend.RValue {
	id := r.id()
	r.emit("setjmp", fmt.Sprintf("%s = setjmp(%s)", id, idOf(buf.RValue())))
	return &recValue{r: r, id: id, typ: backend.TypeInt64}
}

func (r *Recorder) Compile() (backend.CompileResult, error) {
	r.emit("compile", "compile")
	return &recResult{r: r}, nil
}

func (r *Recorder) DumpIR() (string, error) {
	var out string
	for _, op := range r.Trace {
		out += op.Kind + ": " + op.Text + "\n"
	}
	return out, nil
}

func (r *Recorder) Release() {
	r.emit("release", "release")
}

func idOf(rv backend.RValue) string {
	if v, ok := rv.(*recValue); ok {
		return v.id
	}
	return "?"
}

type recDecl struct {
	r    *Recorder
	name string
}

func (d *recDecl) Name() string { return d.name }

func (d *recDecl) Call(args ...backend.RValue) backend.RValue {
	id := d.r.id()
	argIDs := make([]string, len(args))
	for i, a := range args {
		argIDs[i] = idOf(a)
	}
	d.r.emit("call", fmt.Sprintf("%s = %s(%v)", id, d.name, argIDs))
	return &recValue{r: d.r, id: id, typ: backend.TypeValue}
}

type recFunction struct {
	r         *Recorder
	name      string
	numParams int
}

func (f *recFunction) Name() string { return f.name }

func (f *recFunction) Param(i int) backend.LValue {
	id := fmt.Sprintf("param%d", i)
	return &recValue{r: f.r, id: id, typ: backend.TypeValue}
}

func (f *recFunction) NewLocal(name string, t backend.Type) backend.LValue {
	id := f.r.id()
	f.r.emit("new_local", fmt.Sprintf("%s = local(%s)", id, name))
	return &recValue{r: f.r, id: id, typ: t}
}

func (f *recFunction) NewBlock(name string) backend.Block {
	f.r.emit("new_block", name)
	return &recBlock{r: f.r, name: name}
}

type recBlock struct {
	r          *Recorder
	name       string
	terminated bool
}

func (b *recBlock) Name() string     { return b.name }
func (b *recBlock) Terminated() bool { return b.terminated }

func (b *recBlock) Eval(rv backend.RValue) {
	b.r.emit("eval", fmt.Sprintf("[%s] eval %s", b.name, idOf(rv)))
}

func (b *recBlock) Assign(lvalue backend.LValue, rv backend.RValue) {
	b.r.emit("assign", fmt.Sprintf("[%s] %s = %s", b.name, idOf(lvalue.RValue()), idOf(rv)))
}

func (b *recBlock) EndWithReturn(rv backend.RValue) {
	if rv == nil {
		b.r.emit("return", fmt.Sprintf("[%s] return", b.name))
	} else {
		b.r.emit("return", fmt.Sprintf("[%s] return %s", b.name, idOf(rv)))
	}
	b.terminated = true
}

func (b *recBlock) EndWithJump(target backend.Block) {
	b.r.emit("jump", fmt.Sprintf("[%s] goto %s", b.name, target.Name()))
	b.terminated = true
}

func (b *recBlock) EndWithConditional(cond backend.RValue, ifTrue, ifFalse backend.Block) {
	b.r.emit("conditional", fmt.Sprintf("[%s] if %s goto %s else %s", b.name, idOf(cond), ifTrue.Name(), ifFalse.Name()))
	b.terminated = true
}

type recValue struct {
	r   *Recorder
	id  string
	typ backend.Type
}

func (v *recValue) Type() backend.Type  { return v.typ }
func (v *recValue) RValue() backend.RValue { return v }

type recResult struct {
	r *Recorder
}

func (res *recResult) FuncPtr(name string) (uintptr, error) {
	if ptr, ok := res.r.stubs[name]; ok {
		return ptr, nil
	}
	return 0, fmt.Errorf("backendtest: no stub registered for %q (call Recorder.Stub first)", name)
}

func (res *recResult) Release() {
	res.r.emit("result_release", "result_release")
}
