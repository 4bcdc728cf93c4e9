package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// This file implements a small human-writable textual form of a
// CompiledFunction, in the spirit of the teacher's own
// lang/compiler/asm.go: it exists so tests and the cmd/natcomp "compile"
// subcommand can construct bytecode fixtures without a front-end compiler,
// which is explicitly out of scope for this package (spec §1 — bytecode
// arrives pre-compiled).
//
// Format:
//
//	maxdepth: 3
//	argtemplate: nil                 # nil | fixnum <n> | list <name> ...
//	constants:
//	  int 42
//	  str "hello"
//	  float 1.5
//	  sym foo
//	  nil
//	code:
//	  constant 0
//	  return
//	L1:                              # label, resolved as a jump target
//	  goto L1

// Assemble parses the textual form described above into a CompiledFunction.
func Assemble(src string) (*CompiledFunction, error) {
	a := &assembler{sc: bufio.NewScanner(strings.NewReader(src))}
	return a.run()
}

type instrLine struct {
	label string // label defined on this line, if any
	op    Op
	opSet bool
	arg   string // raw operand token: integer literal or label reference
}

type assembler struct {
	sc   *bufio.Scanner
	line int
}

func (a *assembler) run() (*CompiledFunction, error) {
	fn := &CompiledFunction{}
	section := ""
	var lines []instrLine

	for a.sc.Scan() {
		a.line++
		raw := a.sc.Text()
		if idx := strings.IndexByte(raw, '#'); idx >= 0 {
			raw = raw[:idx]
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		switch {
		case strings.HasPrefix(text, "maxdepth:"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(text, "maxdepth:")))
			if err != nil {
				return nil, a.errf("bad maxdepth: %w", err)
			}
			fn.MaxDepth = n
		case strings.HasPrefix(text, "argtemplate:"):
			v, err := parseArgTemplate(strings.TrimSpace(strings.TrimPrefix(text, "argtemplate:")))
			if err != nil {
				return nil, a.errf("bad argtemplate: %w", err)
			}
			fn.ArgTemplate = v
		case text == "constants:":
			section = "constants"
		case text == "code:":
			section = "code"
		default:
			switch section {
			case "constants":
				v, err := parseConstant(text)
				if err != nil {
					return nil, a.errf("bad constant: %w", err)
				}
				fn.Constants = append(fn.Constants, v)
			case "code":
				il, err := a.parseInstrLine(text)
				if err != nil {
					return nil, err
				}
				lines = append(lines, il)
			default:
				return nil, a.errf("unexpected line outside any section: %q", text)
			}
		}
	}
	if fn.Constants == nil {
		fn.Constants = []Value{}
	}
	if fn.ArgTemplate == nil {
		fn.ArgTemplate = Nil{}
	}

	code, err := encodeLines(lines)
	if err != nil {
		return nil, err
	}
	fn.Bytecode = code
	return fn, nil
}

func (a *assembler) errf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", a.line, fmt.Sprintf(format, args...))
}

func (a *assembler) parseInstrLine(text string) (instrLine, error) {
	var il instrLine
	if i := strings.IndexByte(text, ':'); i >= 0 && !strings.Contains(text[:i], " ") {
		il.label = text[:i]
		text = strings.TrimSpace(text[i+1:])
		if text == "" {
			return il, nil
		}
	}
	fields := strings.Fields(text)
	op, ok := lookupMnemonic(fields[0])
	if !ok {
		return il, a.errf("unknown opcode %q", fields[0])
	}
	il.op = op
	il.opSet = true
	if len(fields) > 1 {
		il.arg = strings.Join(fields[1:], " ")
	}
	return il, nil
}

var mnemonicToOp map[string]Op

func init() {
	mnemonicToOp = make(map[string]Op, len(opNames)+len(simpleCalls))
	for op, name := range opNames {
		if name != "" {
			mnemonicToOp[name] = Op(op)
		}
	}
	for _, c := range simpleCalls {
		mnemonicToOp[c.Mnemonic] = c.Op
	}
}

func lookupMnemonic(s string) (Op, bool) {
	op, ok := mnemonicToOp[s]
	return op, ok
}

func parseConstant(text string) (Value, error) {
	fields := strings.SplitN(text, " ", 2)
	kind := fields[0]
	var rest string
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}
	switch kind {
	case "nil":
		return Nil{}, nil
	case "int":
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case "str":
		s, err := strconv.Unquote(rest)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case "sym":
		return Symbol(rest), nil
	default:
		return nil, fmt.Errorf("unknown constant kind %q", kind)
	}
}

func parseArgTemplate(text string) (Value, error) {
	if text == "nil" || text == "" {
		return Nil{}, nil
	}
	fields := strings.Fields(text)
	switch fields[0] {
	case "fixnum":
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case "list":
		var v Value = Nil{}
		for i := len(fields) - 1; i >= 1; i-- {
			v = &Cons{Car: Symbol(fields[i]), Cdr: v}
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown argtemplate form %q", fields[0])
	}
}

// encodeLines runs the two-pass label resolution: first compute each
// instruction's PC so label references can be resolved, then encode.
func encodeLines(lines []instrLine) ([]byte, error) {
	labelPC := map[string]uint32{}
	var pc uint32
	for _, il := range lines {
		if il.label != "" {
			labelPC[il.label] = pc
		}
		if !il.opSet {
			continue
		}
		pc += 1 + uint32(OpWidth(il.op))
	}

	var code []byte
	pc = 0
	for _, il := range lines {
		if !il.opSet {
			continue
		}
		width := OpWidth(il.op)
		instrPC := pc
		code = append(code, byte(il.op))
		pc++

		if width == 0 {
			continue
		}

		arg, err := resolveArg(il, instrPC+1+uint32(width), labelPC)
		if err != nil {
			return nil, err
		}
		switch width {
		case 1:
			code = append(code, byte(arg))
		case 2:
			code = append(code, byte(arg), byte(arg>>8))
		}
		pc += uint32(width)
	}
	return code, nil
}

// resolveArg turns an instruction's raw operand token into its encoded
// value. pcAfter is the PC of the instruction immediately following this
// one, needed to encode PC-relative branch displacements.
func resolveArg(il instrLine, pcAfter uint32, labelPC map[string]uint32) (uint32, error) {
	if il.arg == "" {
		if IsJump(il.op) {
			return 0, fmt.Errorf("%s requires a target operand", il.op)
		}
		return 0, nil
	}

	// discardN accepts an optional trailing "preserve" flag.
	if il.op == DISCARDN {
		fields := strings.Fields(il.arg)
		n, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return 0, err
		}
		if len(fields) > 1 && fields[1] == "preserve" {
			n |= 0x80
		}
		return uint32(n), nil
	}

	if IsJump(il.op) {
		target, ok := labelPC[il.arg]
		if !ok {
			return 0, fmt.Errorf("undefined label %q", il.arg)
		}
		if IsRelativeJump(il.op) {
			disp := int64(target) - int64(pcAfter) + 128
			if disp < 0 || disp > 255 {
				return 0, fmt.Errorf("relative branch to %q out of range (disp=%d)", il.arg, disp)
			}
			return uint32(disp), nil
		}
		return target, nil
	}

	n, err := strconv.ParseUint(il.arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q: %w", il.arg, err)
	}
	return uint32(n), nil
}
