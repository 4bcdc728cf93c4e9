package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/natcomp/lang/backend"
	"github.com/mna/natcomp/lang/bytecode"
	"github.com/mna/natcomp/lang/compile"
)

func (c *Cmd) Compile(_ context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := compile.LoadConfig()
	if err != nil {
		return printError(stdio, "config", err)
	}
	if c.BackendLib != "" {
		cfg.BackendLib = c.BackendLib
	}

	drv, err := compile.NewDriver(cfg, func() (backend.Context, error) {
		return backend.NewGCCJITContext(cfg.BackendLib)
	})
	if err != nil {
		return printError(stdio, "driver", err)
	}

	var firstErr error
	for _, path := range args {
		if err := c.compileOne(stdio, drv, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Cmd) compileOne(stdio mainer.Stdio, drv *compile.Driver, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, path, err)
	}
	cf, err := bytecode.Assemble(string(src))
	if err != nil {
		return printError(stdio, path, err)
	}

	name := functionName(c.Name, path)
	result, err := drv.FunctionOpts(name, cf, compile.Options{DumpIR: c.DumpIR})
	if err != nil {
		return printError(stdio, path, err)
	}

	fmt.Fprintf(stdio.Stdout, "%s: compiled, entry point 0x%x\n", name, result.FuncPtr)
	if c.DumpIR {
		fmt.Fprintln(stdio.Stdout, result.IR)
	}
	return nil
}
