package compile

import (
	"fmt"
	"io"
	"os"
)

// Logger receives recoverable diagnostics from the driver and the
// emitter, e.g. "falling back from direct-call specialization: arity
// mismatch". Its only implementation here is stderrLogger, gated by
// Config.Debug, matching the teacher's debug-bool-gated fmt.Fprintf
// style (lang/compiler/compiler.go) rather than a structured-logging
// framework the teacher never reaches for either.
type Logger interface {
	Logf(format string, args ...any)
}

// stderrLogger writes to Out when enabled is true, and is silent
// otherwise.
type stderrLogger struct {
	Out     io.Writer
	Enabled bool
}

func (l *stderrLogger) Logf(format string, args ...any) {
	if !l.Enabled {
		return
	}
	fmt.Fprintf(l.Out, format+"\n", args...)
}

// newLogger builds the default stderr-backed Logger for cfg.
func newLogger(cfg Config) Logger {
	return &stderrLogger{Out: os.Stderr, Enabled: cfg.Debug}
}
