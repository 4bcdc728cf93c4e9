package bytecode

// Value is the minimal, read-only model of a host Lisp value needed to
// describe constants-pool entries and argument templates. It is not the
// runtime representation used during execution (that belongs to the host
// runtime, out of scope per spec §1) — it only lets this package talk about
// *which* constant a bytecode index refers to, e.g. to detect that a
// CONSTANT opcode pushed a Symbol (for call-site specialization, see
// lang/emit) or decode a dotted argument-template list.
type Value interface {
	isBytecodeValue()
}

// Nil is the canonical empty list / false value.
type Nil struct{}

func (Nil) isBytecodeValue() {}

// Int is a fixnum-range constant.
type Int int64

func (Int) isBytecodeValue() {}

// Float is a floating point constant.
type Float float64

func (Float) isBytecodeValue() {}

// String is a string constant.
type String string

func (String) isBytecodeValue() {}

// Symbol is a symbol constant, e.g. a function or variable name.
type Symbol string

func (Symbol) isBytecodeValue() {}

// Cons is a two-element cell used to represent list-form constants (such as
// a list-form argument template).
type Cons struct {
	Car, Cdr Value
}

func (*Cons) isBytecodeValue() {}

// ListLength reports the length of a proper list rooted at v and whether it
// is proper (nil-terminated) or dotted (terminated by a non-nil atom).
func ListLength(v Value) (length int, proper bool) {
	cur := v
	for {
		c, ok := cur.(*Cons)
		if !ok {
			break
		}
		length++
		cur = c.Cdr
	}
	_, proper = cur.(Nil)
	return length, proper
}
