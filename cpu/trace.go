package cpu

import (
	"fmt"
	"io"
	"strings"

	"apex/isa"
)

// stageName labels a latch by the stage that produced it, for trace output.
type stageName struct {
	latch *Latch
	name  string
}

// operands renders a latch's operand list the way the reference
// implementation's print_instruction does: which fields print depends on
// the opcode's class.
func operands(l *Latch) string {
	switch l.Opcode.Class() {
	case isa.ClassALU3:
		return fmt.Sprintf("%s,R%d,R%d,R%d", l.Opcode, l.Rd, l.Rs1, l.Rs2)
	case isa.ClassALU2Imm, isa.ClassJALR, isa.ClassLoad, isa.ClassLoadP:
		return fmt.Sprintf("%s,R%d,R%d,#%d", l.Opcode, l.Rd, l.Rs1, l.Imm)
	case isa.ClassJump:
		return fmt.Sprintf("%s,R%d,#%d", l.Opcode, l.Rs1, l.Imm)
	case isa.ClassStore, isa.ClassStoreP:
		return fmt.Sprintf("%s,R%d,R%d,#%d", l.Opcode, l.Rs1, l.Rs2, l.Imm)
	case isa.ClassMOVC:
		return fmt.Sprintf("%s,R%d,#%d", l.Opcode, l.Rd, l.Imm)
	case isa.ClassCompareReg:
		return fmt.Sprintf("%s,R%d,R%d", l.Opcode, l.Rs1, l.Rs2)
	case isa.ClassCompareImm:
		return fmt.Sprintf("%s,R%d,#%d", l.Opcode, l.Rs1, l.Imm)
	case isa.ClassBranch:
		return fmt.Sprintf("%s,#%d", l.Opcode, l.Imm)
	default: // ClassNullary
		return l.Opcode.String()
	}
}

// PrintCycle writes the per-tick trace spec.md §6.4 describes: one line per
// non-empty stage, a register-file dump, the flags, and the touched-memory
// addresses.
func (c *Cpu) PrintCycle(w io.Writer) {
	for _, s := range []stageName{
		{&c.W, "Writeback"},
		{&c.M, "Memory"},
		{&c.X, "Execute"},
		{&c.D, "Decode/RF"},
		{&c.F, "Fetch"},
	} {
		if s.latch.HasInsn {
			fmt.Fprintf(w, "%-15s: pc(%d) %s\n", s.name, s.latch.PC, operands(s.latch))
		}
	}
	c.PrintRegisters(w)
}

// PrintRegisters writes the register file (two rows of 8), the flags, and
// the touched data-memory addresses with their current values.
func (c *Cpu) PrintRegisters(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("-", 10))
	fmt.Fprintln(w, "Registers:")
	fmt.Fprintln(w, strings.Repeat("-", 10))
	for i := 0; i < RegisterCount/2; i++ {
		fmt.Fprintf(w, "R%-3d[%-3d] ", i, c.Regs[i])
	}
	fmt.Fprintln(w)
	for i := RegisterCount / 2; i < RegisterCount; i++ {
		fmt.Fprintf(w, "R%-3d[%-3d] ", i, c.Regs[i])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("-", 10))
	fmt.Fprintln(w, "FLAGS (+,-,0):")
	fmt.Fprintln(w, strings.Repeat("-", 10))
	fmt.Fprintf(w, "Zero flag = %v\n", c.CC.Z)
	fmt.Fprintf(w, "Positive flag = %v\n", c.CC.P)
	fmt.Fprintf(w, "Negative flag = %v\n", c.CC.N)

	fmt.Fprintln(w, strings.Repeat("-", 10))
	fmt.Fprintln(w, "MEMORY:")
	fmt.Fprintln(w, strings.Repeat("-", 10))
	for _, addr := range c.Data.Touched() {
		v, _ := c.Data.Read(addr)
		fmt.Fprintf(w, "Memory[%d] = %d\n", addr, v)
	}
}
