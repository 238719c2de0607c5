package loader_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex/isa"
	"apex/loader"
)

func TestParseValidProgram(t *testing.T) {
	insns, err := loader.Parse(strings.NewReader(`
		; comment-only line
		MOVC R1,#5   // trailing comment
		ADD R2,R1,R1
		HALT
	`))
	require.NoError(t, err)
	require.Len(t, insns, 3)

	assert.Equal(t, isa.MOVC, insns[0].Opcode)
	assert.Equal(t, 1, insns[0].Rd)
	assert.EqualValues(t, 5, insns[0].Imm)

	assert.Equal(t, isa.ADD, insns[1].Opcode)
	assert.Equal(t, 2, insns[1].Rd)
	assert.Equal(t, 1, insns[1].Rs1)
	assert.Equal(t, 1, insns[1].Rs2)

	assert.Equal(t, isa.HALT, insns[2].Opcode)
}

func TestParseHashPrefixIsNeverAComment(t *testing.T) {
	// '#' always introduces an immediate, never a comment; only ';' and
	// '//' do.
	insns, err := loader.Parse(strings.NewReader(`MOVC R1,#5`))
	require.NoError(t, err)
	require.Len(t, insns, 1)
	assert.EqualValues(t, 5, insns[0].Imm)
}

func TestParseEmptyProgramIsAnError(t *testing.T) {
	_, err := loader.Parse(strings.NewReader(`
		; nothing but comments here
	`))
	require.Error(t, err)
}

func TestParseUnrecognizedMnemonic(t *testing.T) {
	_, err := loader.Parse(strings.NewReader(`FROB R1,R2,R3`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "FROB")
}

func TestParseBadRegisterIndex(t *testing.T) {
	_, err := loader.Parse(strings.NewReader(`MOVC R16,#1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "R16")
}

func TestParseBadImmediate(t *testing.T) {
	_, err := loader.Parse(strings.NewReader(`MOVC R1,five`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "five")
}

func TestParseWrongArity(t *testing.T) {
	_, err := loader.Parse(strings.NewReader(`ADD R1,R2`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 operand")
}

func TestParseNullaryRejectsOperands(t *testing.T) {
	_, err := loader.Parse(strings.NewReader(`HALT R1`))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := loader.Load("/nonexistent/path/to/program.asm")
	require.Error(t, err)
}

func TestParseBranchTargetOutsideCodeMemory(t *testing.T) {
	// BZ at the second instruction (pc 4004) with #1000 targets 5004,
	// well past the three-instruction program's end.
	_, err := loader.Parse(strings.NewReader(`
		MOVC R1,#0
		BZ #1000
		HALT
	`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside code memory")
}

func TestParseBranchTargetWithinCodeMemory(t *testing.T) {
	// BZ at pc 4004 with #4 targets 4008, the HALT — in range.
	insns, err := loader.Parse(strings.NewReader(`
		MOVC R1,#0
		BZ #4
		HALT
	`))
	require.NoError(t, err)
	require.Len(t, insns, 3)
}

func TestParseBranchTargetNegativeOffsetOutsideCodeMemory(t *testing.T) {
	// BZ at pc 4000 (the first instruction) with a negative offset
	// targets an address before code memory starts.
	_, err := loader.Parse(strings.NewReader(`
		BZ #-4
		HALT
	`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside code memory")
}
