// Package blocks implements basic-block discovery over raw bytecode: a
// single linear scan that identifies block-leader program counters so
// lang/emit can recover structured control flow from the flat,
// jump-indexed instruction stream.
package blocks

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/mna/natcomp/lang/bytecode"
)

// Discovery is the result of scanning a function's bytecode: the sorted,
// deduplicated list of leader PCs, and a lookup from any PC to the index
// (into Leaders) of the block it belongs to.
type Discovery struct {
	Leaders []uint32
	// blockOf maps the PC of every instruction start to the index of its
	// owning leader in Leaders; PCs inside an instruction's operand bytes
	// have no entry.
	blockOf map[uint32]int
}

// BlockIndex returns the index into d.Leaders of the block owning pc, or
// -1 if pc was never recorded as the start of an instruction during
// Discover (e.g. a branch target past the end of the code, or into the
// middle of an instruction) — callers treat a negative result as
// malformed bytecode rather than silently falling back to block 0.
func (d *Discovery) BlockIndex(pc uint32) int {
	idx, ok := d.blockOf[pc]
	if !ok {
		return -1
	}
	return idx
}

// Discover scans code and returns the block-leader PCs per spec §4.1:
// PC 0; the absolute target of every two-byte absolute branch (goto, the
// nil/non-nil conditional branches, pushcatch, pushconditioncase); the
// resolved target of every one-byte PC-relative branch; the instruction
// immediately following any branch; and the instruction immediately
// following sub1/add1/negate/return.
//
// Decision on the discovery/emission discrepancy noted in spec §9 (Open
// Questions): the one-byte relative branches are resolved here exactly as
// lang/emit resolves them at emission time — target = pc_after_branch +
// (byte-128) — so that the leader set this pass produces always contains
// every PC the emitter will actually jump to. Reading the displacement as
// a bare absolute PC, as spec §4.1(b)'s literal text suggests, would make
// discovery and emission disagree on the leader set for any bytecode using
// relative branches; SPEC_FULL.md §4.1 records this as a latent bug in the
// described source rather than behavior worth preserving, and
// TestDiscoverRelativeBranchAgreesWithEmission in discover_test.go checks
// a forward relative branch's leader against the emitter's resolution.
func Discover(code []byte) (*Discovery, error) {
	leaderSet := map[uint32]bool{0: true}
	starts := map[uint32]bool{}

	var pc uint32
	for int(pc) < len(code) {
		starts[pc] = true
		op := bytecode.Op(code[pc])
		width := bytecode.OpWidth(op)
		if int(pc)+1+width > len(code) {
			return nil, fmt.Errorf("truncated instruction at pc=%d (op=%s, width=%d)", pc, op, width)
		}

		var arg uint32
		switch width {
		case 1:
			arg = uint32(code[pc+1])
		case 2:
			arg = uint32(code[pc+1]) | uint32(code[pc+2])<<8
		}

		next := pc + 1 + uint32(width)

		if bytecode.IsJump(op) {
			var target uint32
			if bytecode.IsRelativeJump(op) {
				target = uint32(int64(next) + int64(arg) - 128)
			} else {
				target = arg
			}
			leaderSet[target] = true
			leaderSet[next] = true
		} else {
			switch op {
			case bytecode.SUB1, bytecode.ADD1, bytecode.NEGATE, bytecode.RETURN:
				leaderSet[next] = true
			}
		}

		pc = next
	}

	leaders := make([]uint32, 0, len(leaderSet))
	for pc := range leaderSet {
		if int(pc) <= len(code) {
			leaders = append(leaders, pc)
		}
	}
	slices.Sort(leaders)
	leaders = slices.Compact(leaders)

	blockOf := make(map[uint32]int, len(code))
	li := -1
	for pc := 0; pc < len(code); pc++ {
		if li+1 < len(leaders) && leaders[li+1] == uint32(pc) {
			li++
		}
		if starts[uint32(pc)] {
			blockOf[uint32(pc)] = li
		}
	}

	return &Discovery{Leaders: leaders, blockOf: blockOf}, nil
}
