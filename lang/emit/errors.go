package emit

import "errors"

// errUnknownOpcode and errSwitchMisuse are wrapped into
// compile.BytecodeMalformed by lang/compile; lang/emit itself stays
// independent of lang/compile's error type to avoid an import cycle
// (lang/compile imports lang/emit, not the reverse).
var (
	errUnknownOpcode = errors.New("unknown opcode")
	errSwitchMisuse  = errors.New("bswitch misuse")
)

// handler kinds recognized by push_handler, per the GLOSSARY.
const (
	handlerCatcher       = 0
	handlerConditionCase = 1
)
