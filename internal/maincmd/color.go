package maincmd

import (
	"fmt"
	"os"

	"github.com/mna/mainer"
	"golang.org/x/term"
)

// printError writes err to stdio.Stderr, in red when stderr is an
// interactive terminal (spec's AMBIENT STACK: CLI diagnostics dim or
// color based on terminal detection the way a real toolchain's driver
// does, never when output is redirected to a file or pipe).
func printError(stdio mainer.Stdio, prefix string, err error) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf("%s: %s\n", prefix, err)
	if f, ok := stdio.Stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	fmt.Fprint(stdio.Stderr, msg)
	return err
}
