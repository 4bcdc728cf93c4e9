package blocks_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/natcomp/lang/blocks"
	"github.com/mna/natcomp/lang/bytecode"
)

func assemble(t *testing.T, src string) *bytecode.CompiledFunction {
	t.Helper()
	cf, err := bytecode.Assemble(src)
	require.NoError(t, err)
	return cf
}

func TestDiscoverLeaders(t *testing.T) {
	cf := assemble(t, `
maxdepth: 1
constants:
  int 1
code:
  constant 0
  goto L1
  return
L1:
  return
`)
	disc, err := blocks.Discover(cf.Bytecode)
	require.NoError(t, err)
	// constant 0 is pc 0-1, goto L1 is pc 2-4, the first return is pc 5 and
	// L1's return is pc 6. pc=0 (entry), pc=5 (after the goto) and pc=6
	// (the goto's target L1, also the pc after the first return) must all
	// be leaders; pc=0 is always present.
	require.Contains(t, disc.Leaders, uint32(0))
	require.Contains(t, disc.Leaders, uint32(5))
	require.Contains(t, disc.Leaders, uint32(6))
	require.Equal(t, 0, disc.BlockIndex(0))
}

func TestDiscoverTruncatedInstruction(t *testing.T) {
	// a CONSTANT opcode (1-byte operand) with no operand byte following it.
	_, err := blocks.Discover([]byte{byte(bytecode.CONSTANT)})
	require.Error(t, err)
}

func TestBlockIndexOutOfRange(t *testing.T) {
	cf := assemble(t, "code:\n  return\n")
	disc, err := blocks.Discover(cf.Bytecode)
	require.NoError(t, err)
	require.Equal(t, -1, disc.BlockIndex(uint32(len(cf.Bytecode)+10)))
}

func TestDiscoverRelativeBranchAgreesWithEmission(t *testing.T) {
	// BRgoto encodes disp = target - pcAfter + 128; Discover must resolve
	// the same target emit.go does at emission time (spec §9's Open
	// Question on the discovery/emission discrepancy).
	cf := assemble(t, `
code:
L1:
  BRgoto L1
`)
	disc, err := blocks.Discover(cf.Bytecode)
	require.NoError(t, err)
	require.Contains(t, disc.Leaders, uint32(0))

	// A forward branch over constant 0 (pc 2-3) and return (pc 4) to L1 at
	// pc 5: pcAfter is 2, so the operand byte is 5-2+128 = 131. Resolved as
	// emit.go does, the leader is 2+131-128 = 5; read as a bare absolute PC
	// it would be 131-128 = 3, the operand byte of constant 0.
	fwd := assemble(t, `
maxdepth: 1
constants:
  int 1
code:
  BRgoto L1
  constant 0
  return
L1:
  constant 0
  return
`)
	disc, err = blocks.Discover(fwd.Bytecode)
	require.NoError(t, err)
	require.Contains(t, disc.Leaders, uint32(5))
	require.NotContains(t, disc.Leaders, uint32(3))
}
