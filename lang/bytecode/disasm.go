package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders cf's bytecode as one line per instruction, the
// mirror image of Assemble's textual form: "<pc>: <mnemonic> <operand>",
// with CONSTANT/CONSTANT2 operands annotated with the constant they
// name and absolute/relative jumps annotated with their resolved
// target pc. It is read by the cmd/natcomp "disasm" subcommand and by
// tests that want a human-diffable view of an assembled fixture.
func Disassemble(cf *CompiledFunction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "maxdepth: %d\n", cf.MaxDepth)
	fmt.Fprintf(&b, "argtemplate: %s\n", formatValue(cf.ArgTemplate))
	if len(cf.Constants) > 0 {
		fmt.Fprintln(&b, "constants:")
		for i, c := range cf.Constants {
			fmt.Fprintf(&b, "  %d: %s\n", i, formatValue(c))
		}
	}
	fmt.Fprintln(&b, "code:")

	code := cf.Bytecode
	for pc := 0; pc < len(code); {
		op := Op(code[pc])
		width := OpWidth(op)
		var arg uint32
		for i := 0; i < width; i++ {
			arg |= uint32(code[pc+1+i]) << (8 * i)
		}

		fmt.Fprintf(&b, "  %4d: %s", pc, op)
		switch {
		case width == 0:
			// no operand
		case op == CONSTANT || op == CONSTANT2:
			fmt.Fprintf(&b, " %d", arg)
			if int(arg) < len(cf.Constants) {
				fmt.Fprintf(&b, "  ; %s", formatValue(cf.Constants[arg]))
			}
		case IsJump(op):
			target := arg
			if IsRelativeJump(op) {
				target = uint32(int64(pc+1+width) + int64(arg) - 128)
			}
			fmt.Fprintf(&b, " -> %d", target)
		default:
			fmt.Fprintf(&b, " %d", arg)
		}
		fmt.Fprintln(&b)

		pc += 1 + width
	}
	return b.String()
}

func formatValue(v Value) string {
	switch t := v.(type) {
	case Nil:
		return "nil"
	case Int:
		return fmt.Sprintf("int %d", int64(t))
	case Float:
		return fmt.Sprintf("float %v", float64(t))
	case String:
		return fmt.Sprintf("str %q", string(t))
	case Symbol:
		return fmt.Sprintf("sym %s", string(t))
	case *Cons:
		return fmt.Sprintf("(%s . %s)", formatValue(t.Car), formatValue(t.Cdr))
	default:
		return fmt.Sprintf("%v", v)
	}
}
