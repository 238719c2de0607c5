// Package loader parses an APEX assembly text file into the decoded
// instruction sequence that becomes code memory. This is the assembler
// boundary spec.md §6.1 describes: out of scope for the pipeline core, but
// still part of a complete repository.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"apex/isa"
	"apex/mem"
)

// commentPattern matches a full-line or trailing comment. APEX immediates use
// '#', so comments use ';' or '//' instead, never '#'.
var commentPattern = regexp.MustCompile(`;.*$|//.*$`)

// registerPattern matches a register operand like "R0".."R15".
var registerPattern = regexp.MustCompile(`^R([0-9]{1,2})$`)

// immediatePattern matches a signed immediate operand like "#-8" or "#100".
var immediatePattern = regexp.MustCompile(`^#(-?[0-9]+)$`)

// Load reads path and returns the decoded instruction sequence, or a
// load-time error identifying the failing line.
func Load(path string) ([]isa.Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads assembly source from r. Exported separately from Load so
// tests can load an in-memory program without a file.
func Parse(r io.Reader) ([]isa.Instruction, error) {
	var insns []isa.Instruction
	var lines []int // source line number per entry in insns, for error messages

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := commentPattern.ReplaceAllString(scanner.Text(), "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		insn, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("loader: line %d: %w", lineNo, err)
		}
		insns = append(insns, insn)
		lines = append(lines, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	if len(insns) == 0 {
		return nil, fmt.Errorf("loader: no instructions found")
	}
	if err := validateBranchTargets(insns, lines); err != nil {
		return nil, err
	}
	return insns, nil
}

// validateBranchTargets checks that every PC-relative conditional branch's
// computed target (pc + imm) lands inside code memory. JUMP and JALR
// targets are register-relative and can only be checked once the simulator
// is running (spec.md §7 treats that as a simulation-time concern).
func validateBranchTargets(insns []isa.Instruction, lines []int) error {
	low := int32(mem.CodeOrigin)
	high := low + int32(len(insns))*mem.WordSize
	for i, insn := range insns {
		if insn.Opcode.Class() != isa.ClassBranch {
			continue
		}
		pc := low + int32(i)*mem.WordSize
		target := pc + insn.Imm
		if target < low || target >= high {
			return fmt.Errorf("loader: line %d: branch target %d outside code memory [%d,%d)",
				lines[i], target, low, high)
		}
	}
	return nil
}

// parseLine parses a single non-blank, comment-stripped line.
func parseLine(line string) (isa.Instruction, error) {
	fields := strings.Fields(line)
	mnemonic := fields[0]
	rest := strings.Join(fields[1:], " ")

	var operands []string
	if rest != "" {
		for _, tok := range strings.Split(rest, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				operands = append(operands, tok)
			}
		}
	}

	op, ok := isa.Lookup(mnemonic)
	if !ok {
		return isa.Instruction{}, fmt.Errorf("unrecognized mnemonic %q", mnemonic)
	}

	insn := isa.Instruction{Opcode: op, Mnemonic: line}
	if err := fillOperands(&insn, op.Class(), operands); err != nil {
		return isa.Instruction{}, fmt.Errorf("%s: %w", mnemonic, err)
	}
	return insn, nil
}

// fillOperands validates operand count and kind against the opcode's class,
// and fills the relevant Instruction fields.
func fillOperands(insn *isa.Instruction, class isa.Class, ops []string) error {
	reg := func(i int) (int, error) { return parseRegister(ops[i]) }
	imm := func(i int) (int32, error) { return parseImmediate(ops[i]) }

	switch class {
	case isa.ClassALU3:
		if err := expect(ops, 3); err != nil {
			return err
		}
		var err error
		if insn.Rd, err = reg(0); err != nil {
			return err
		}
		if insn.Rs1, err = reg(1); err != nil {
			return err
		}
		if insn.Rs2, err = reg(2); err != nil {
			return err
		}

	case isa.ClassALU2Imm, isa.ClassJALR, isa.ClassLoad, isa.ClassLoadP:
		if err := expect(ops, 3); err != nil {
			return err
		}
		var err error
		if insn.Rd, err = reg(0); err != nil {
			return err
		}
		if insn.Rs1, err = reg(1); err != nil {
			return err
		}
		if insn.Imm, err = imm(2); err != nil {
			return err
		}

	case isa.ClassJump:
		if err := expect(ops, 2); err != nil {
			return err
		}
		var err error
		if insn.Rs1, err = reg(0); err != nil {
			return err
		}
		if insn.Imm, err = imm(1); err != nil {
			return err
		}

	case isa.ClassStore, isa.ClassStoreP:
		if err := expect(ops, 3); err != nil {
			return err
		}
		var err error
		if insn.Rs1, err = reg(0); err != nil {
			return err
		}
		if insn.Rs2, err = reg(1); err != nil {
			return err
		}
		if insn.Imm, err = imm(2); err != nil {
			return err
		}

	case isa.ClassMOVC:
		if err := expect(ops, 2); err != nil {
			return err
		}
		var err error
		if insn.Rd, err = reg(0); err != nil {
			return err
		}
		if insn.Imm, err = imm(1); err != nil {
			return err
		}

	case isa.ClassCompareReg:
		if err := expect(ops, 2); err != nil {
			return err
		}
		var err error
		if insn.Rs1, err = reg(0); err != nil {
			return err
		}
		if insn.Rs2, err = reg(1); err != nil {
			return err
		}

	case isa.ClassCompareImm:
		if err := expect(ops, 2); err != nil {
			return err
		}
		var err error
		if insn.Rs1, err = reg(0); err != nil {
			return err
		}
		if insn.Imm, err = imm(1); err != nil {
			return err
		}

	case isa.ClassBranch:
		if err := expect(ops, 1); err != nil {
			return err
		}
		var err error
		if insn.Imm, err = imm(0); err != nil {
			return err
		}

	case isa.ClassNullary:
		if err := expect(ops, 0); err != nil {
			return err
		}
	}
	return nil
}

func expect(ops []string, n int) error {
	if len(ops) != n {
		return fmt.Errorf("expected %d operand(s), got %d", n, len(ops))
	}
	return nil
}

func parseRegister(tok string) (int, error) {
	m := registerPattern.FindStringSubmatch(tok)
	if m == nil {
		return 0, fmt.Errorf("invalid register operand %q", tok)
	}
	n, _ := strconv.Atoi(m[1])
	if n < 0 || n > 15 {
		return 0, fmt.Errorf("register index out of range: %q", tok)
	}
	return n, nil
}

func parseImmediate(tok string) (int32, error) {
	m := immediatePattern.FindStringSubmatch(tok)
	if m == nil {
		return 0, fmt.Errorf("invalid immediate operand %q", tok)
	}
	n, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("immediate out of range: %q", tok)
	}
	return int32(n), nil
}
