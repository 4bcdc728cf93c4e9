package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/natcomp/lang/bytecode"
)

func (c *Cmd) Disasm(_ context.Context, stdio mainer.Stdio, args []string) error {
	var firstErr error
	for _, path := range args {
		if err := c.disasmOne(stdio, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Cmd) disasmOne(stdio mainer.Stdio, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, path, err)
	}
	cf, err := bytecode.Assemble(string(src))
	if err != nil {
		return printError(stdio, path, err)
	}
	fmt.Fprintf(stdio.Stdout, "; %s\n", functionName(c.Name, path))
	fmt.Fprint(stdio.Stdout, bytecode.Disassemble(cf))
	return nil
}
