package bytecode

// SimpleCall describes one member of the CASE_CALL_N family: an opcode that
// pops Arity values, calls the named host function, and pushes the result.
// This is the Go-level form of the table in spec §6.
type SimpleCall struct {
	Op       Op
	Mnemonic string
	Host     string // host function name, e.g. "Fcar_safe"
	Arity    int
}

// simpleCalls lists every CASE_CALL_N opcode in table order; their Op values
// are assigned sequentially starting at simpleCallBase so that
// op-simpleCallBase indexes directly into this slice.
var simpleCalls = []SimpleCall{
	{Mnemonic: "nth", Host: "Fnth", Arity: 2},
	{Mnemonic: "symbolp", Host: "Fsymbolp", Arity: 1},
	{Mnemonic: "stringp", Host: "Fstringp", Arity: 1},
	{Mnemonic: "listp", Host: "Flistp", Arity: 1},
	{Mnemonic: "not", Host: "Fnot", Arity: 1},
	{Mnemonic: "length", Host: "Flength", Arity: 1},
	{Mnemonic: "symbol_value", Host: "Fsymbol_value", Arity: 1},
	{Mnemonic: "symbol_function", Host: "Fsymbol_function", Arity: 1},
	{Mnemonic: "current_buffer", Host: "Fcurrent_buffer", Arity: 1},
	{Mnemonic: "eolp", Host: "Feolp", Arity: 1},
	{Mnemonic: "eobp", Host: "Feobp", Arity: 1},
	{Mnemonic: "bolp", Host: "Fbolp", Arity: 1},
	{Mnemonic: "bobp", Host: "Fbobp", Arity: 1},
	{Mnemonic: "widen", Host: "Fwiden", Arity: 1},
	{Mnemonic: "current_column", Host: "Fcurrent_column", Arity: 1},
	{Mnemonic: "following_char", Host: "Ffollowing_char", Arity: 1},
	{Mnemonic: "preceding_char", Host: "Fpreceding_char", Arity: 1},

	{Mnemonic: "eq", Host: "Feq", Arity: 2},
	{Mnemonic: "memq", Host: "Fmemq", Arity: 2},
	{Mnemonic: "cons", Host: "Fcons", Arity: 2},
	{Mnemonic: "throw", Host: "Fthrow", Arity: 2},
	{Mnemonic: "aref", Host: "Faref", Arity: 2},
	{Mnemonic: "set", Host: "Fset", Arity: 2},
	{Mnemonic: "fset", Host: "Ffset", Arity: 2},
	{Mnemonic: "get", Host: "Fget", Arity: 2},
	{Mnemonic: "nthcdr", Host: "Fnthcdr", Arity: 2},
	{Mnemonic: "elt", Host: "Felt", Arity: 2},
	{Mnemonic: "member", Host: "Fmember", Arity: 2},
	{Mnemonic: "assq", Host: "Fassq", Arity: 2},
	{Mnemonic: "equal", Host: "Fequal", Arity: 2},
	{Mnemonic: "goto_char", Host: "Fgoto_char", Arity: 1},
	{Mnemonic: "buffer_substring", Host: "Fbuffer_substring", Arity: 2},
	{Mnemonic: "delete_region", Host: "Fdelete_region", Arity: 2},
	{Mnemonic: "narrow_to_region", Host: "Fnarrow_to_region", Arity: 2},
	{Mnemonic: "set_buffer", Host: "Fset_buffer", Arity: 1},
	{Mnemonic: "forward_char", Host: "Fforward_char", Arity: 1},
	{Mnemonic: "forward_word", Host: "Fforward_word", Arity: 1},
	{Mnemonic: "forward_line", Host: "Fforward_line", Arity: 1},
	{Mnemonic: "char_syntax", Host: "Fchar_syntax", Arity: 1},
	{Mnemonic: "end_of_line", Host: "Fend_of_line", Arity: 1},
	{Mnemonic: "skip_chars_forward", Host: "Fskip_chars_forward", Arity: 2},
	{Mnemonic: "skip_chars_backward", Host: "Fskip_chars_backward", Arity: 2},
	{Mnemonic: "rem", Host: "Frem", Arity: 2},
	{Mnemonic: "stringeqlsign", Host: "Fstring_equal", Arity: 2},
	{Mnemonic: "stringlss", Host: "Fstring_lessp", Arity: 2},
	{Mnemonic: "indent_to", Host: "Findent_to", Arity: 2},
	{Mnemonic: "char_after", Host: "Fchar_after", Arity: 1},
	{Mnemonic: "upcase", Host: "Fupcase", Arity: 1},
	{Mnemonic: "downcase", Host: "Fdowncase", Arity: 1},
	{Mnemonic: "match_beginning", Host: "Fmatch_beginning", Arity: 1},
	{Mnemonic: "match_end", Host: "Fmatch_end", Arity: 1},

	{Mnemonic: "aset", Host: "Faset", Arity: 3},
	{Mnemonic: "set_marker", Host: "Fset_marker", Arity: 3},
	{Mnemonic: "substring", Host: "Fsubstring", Arity: 3},
}

func init() {
	for i := range simpleCalls {
		simpleCalls[i].Op = simpleCallBase + Op(i)
	}
}

// SimpleCalls returns the CASE_CALL_N opcode table in opcode order.
func SimpleCalls() []SimpleCall { return simpleCalls }

func lookupSimpleCall(op Op) (SimpleCall, bool) {
	i := int(op) - int(simpleCallBase)
	if i < 0 || i >= len(simpleCalls) {
		return SimpleCall{}, false
	}
	return simpleCalls[i], true
}

// SimpleCallFor returns the table entry for op, if op belongs to the
// CASE_CALL_N family.
func SimpleCallFor(op Op) (SimpleCall, bool) { return lookupSimpleCall(op) }

// VariadicHosts is the set of host functions declared with the variadic
// (nargs, *Value) shape rather than a fixed arity, per spec §6.
var VariadicHosts = map[string]bool{
	"Ffuncall": true, "Fconcat": true, "Finsert": true, "Fnconc": true,
	"Fquo": true, "Fminus": true, "Fplus": true, "Fmax": true, "Fmin": true, "Ftimes": true,
}
