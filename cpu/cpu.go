// Package cpu implements the APEX five-stage in-order pipeline: the
// datapath latches, the register file and scoreboard, and the tick driver
// that advances the whole machine one clock at a time.
package cpu

import (
	"fmt"

	"apex/isa"
	"apex/mem"
)

// RegisterCount is the number of architectural registers, R0..R15.
const RegisterCount = 16

// Latch is the shared shape of the four inter-stage boundaries (F/D, D/X,
// X/M, M/W): the decoded instruction fields, the operand/result snapshots a
// stage computed, and the two control bits (HasInsn, Stalled) spec.md §3
// names explicitly.
type Latch struct {
	PC       int32
	Opcode   isa.Opcode
	Mnemonic string
	Rd       int
	Rs1      int
	Rs2      int
	Imm      int32

	Rs1Value      int32
	Rs2Value      int32
	ResultBuffer  int32
	MemoryAddress int32

	HasInsn bool // valid bit; also doubles as "still fetching" on the F latch
	Stalled bool // only meaningful on F and D
}

// fill copies an instruction's decoded fields into the latch, leaving the
// value/result/control fields untouched.
func (l *Latch) fill(pc int32, insn isa.Instruction) {
	l.PC = pc
	l.Opcode = insn.Opcode
	l.Mnemonic = insn.Mnemonic
	l.Rd = insn.Rd
	l.Rs1 = insn.Rs1
	l.Rs2 = insn.Rs2
	l.Imm = insn.Imm
}

// ConditionCode holds the three independent flags updated by arithmetic and
// compare instructions in Execute. Exactly one of Z/P/N is true after any
// flag-setting instruction retires Execute; all three may be false only
// before the first such instruction (spec.md §8, invariant 2).
type ConditionCode struct {
	Z, P, N bool
}

func (cc *ConditionCode) set(result int32) {
	cc.Z = result == 0
	cc.N = result < 0
	cc.P = result > 0
}

// Cpu is the aggregate architectural state: registers, flags, the five
// latches, the scoreboard, and the code/data memories it is wired to. One
// Cpu is owned exclusively by its driver (whoever calls Tick); there is no
// process-wide singleton.
type Cpu struct {
	PC   int32
	Regs [RegisterCount]int32
	CC   ConditionCode

	// Scoreboard[r] counts in-flight writers of register r. Zero means
	// free. A single bit would suffice for this scalar in-order design
	// (spec.md §9), but a counter generalizes without changing call
	// sites if a future variant allows more than one in-flight writer.
	Scoreboard [RegisterCount]int

	Code *mem.CodeMemory
	Data *mem.DataMemory

	F, D, X, M, W Latch

	fetchFromNextCycle bool

	Cycles        int
	InsnCompleted int
	Halted        bool
}

// New creates a Cpu wired to the given code and data memories, with PC at
// the architectural origin and the F latch primed to start fetching.
func New(code *mem.CodeMemory, data *mem.DataMemory) *Cpu {
	c := &Cpu{
		PC:   mem.CodeOrigin,
		Code: code,
		Data: data,
	}
	c.F.HasInsn = true
	return c
}

func (c *Cpu) busy(r int) bool { return c.Scoreboard[r] > 0 }

func (c *Cpu) markBusy(r int) { c.Scoreboard[r]++ }

func (c *Cpu) release(r int) {
	if c.Scoreboard[r] > 0 {
		c.Scoreboard[r]--
	}
}

// Tick advances the whole machine by one clock: Writeback, Memory, Execute,
// Decode, Fetch, in that order (spec.md §2, §5) so that every stage reads
// its input latch before the stage upstream of it overwrites that latch
// this same tick. Returns true once HALT retires Writeback, or once a
// code-memory overrun has drained every latch with no HALT ever seen
// (spec.md §7's HALT-equivalent case). A simulation-time error
// (data-memory out of range, division by zero) is returned as a non-nil
// error with false.
func (c *Cpu) Tick() (bool, error) {
	if c.drained() {
		// Fetch ran off the end of code memory and every in-flight
		// instruction has since retired with no HALT: nothing will ever
		// change again, so this is HALT-equivalent (spec.md §7).
		c.Halted = true
		c.Cycles++
		return true, nil
	}
	halted := c.writeback()
	if halted {
		c.Halted = true
		c.Cycles++
		return true, nil
	}
	if err := c.memory(); err != nil {
		return false, err
	}
	if err := c.execute(); err != nil {
		return false, err
	}
	c.decode()
	c.fetch()
	c.Cycles++
	return false, nil
}

// drained reports whether every latch is empty. New primes F.HasInsn, so
// this happens only after a code-memory overrun once every fetched
// instruction has retired, or on a Tick after HALT has already retired;
// either way it is the signal that the simulation has nothing left to do.
func (c *Cpu) drained() bool {
	return !c.F.HasInsn && !c.D.HasInsn && !c.X.HasInsn && !c.M.HasInsn && !c.W.HasInsn
}

// fetch implements spec.md §4.2.
func (c *Cpu) fetch() {
	if !c.F.HasInsn {
		return
	}
	if c.fetchFromNextCycle {
		c.fetchFromNextCycle = false
		return
	}

	insn, ok := c.Code.Fetch(c.PC)
	if !ok {
		// Code-memory overrun without seeing HALT: stop presenting new
		// instructions. Tick.drained reports the whole simulation as
		// HALT-equivalent once the rest of the pipeline empties out too.
		c.F.HasInsn = false
		return
	}
	c.F.fill(c.PC, insn)

	if !c.F.Stalled {
		c.PC += mem.WordSize
		c.D = c.F
		c.D.HasInsn = true
		if c.F.Opcode == isa.HALT {
			c.F.HasInsn = false
		}
	}
}

// decode implements spec.md §4.3: read operands, check the scoreboard,
// issue into X on success, or stall both F and D on failure.
func (c *Cpu) decode() {
	if !c.D.HasInsn {
		return
	}

	if c.issue() {
		c.D.Stalled = false
		c.F.Stalled = false
		c.X = c.D
		c.D.HasInsn = false
	} else {
		c.D.Stalled = true
		c.F.Stalled = true
	}
}

// issue applies the read-then-issue policy of spec.md §4.3's opcode-class
// table, snapshotting operands and marking the scoreboard on success.
func (c *Cpu) issue() bool {
	d := &c.D
	switch d.Opcode.Class() {
	case isa.ClassALU3:
		if c.busy(d.Rs1) || c.busy(d.Rs2) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		d.Rs2Value = c.Regs[d.Rs2]
		c.markBusy(d.Rd)

	case isa.ClassALU2Imm, isa.ClassJALR:
		if c.busy(d.Rs1) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		c.markBusy(d.Rd)

	case isa.ClassJump:
		if c.busy(d.Rs1) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]

	case isa.ClassLoad:
		if c.busy(d.Rs1) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		c.markBusy(d.Rd)

	case isa.ClassLoadP:
		if c.busy(d.Rs1) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		c.markBusy(d.Rd)
		c.markBusy(d.Rs1) // post-increment writes rs1 back in Writeback

	case isa.ClassStore:
		if c.busy(d.Rs1) || c.busy(d.Rs2) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		d.Rs2Value = c.Regs[d.Rs2]

	case isa.ClassStoreP:
		if c.busy(d.Rs1) || c.busy(d.Rs2) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		d.Rs2Value = c.Regs[d.Rs2]
		// Only rs2 is over-reserved: it is the only register STOREP
		// writes back (post-incremented base). Reserving rs1 too would
		// be the over-reservation bug spec.md §9(c) calls out.
		c.markBusy(d.Rs2)

	case isa.ClassMOVC:
		c.markBusy(d.Rd)

	case isa.ClassCompareReg:
		if c.busy(d.Rs1) || c.busy(d.Rs2) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]
		d.Rs2Value = c.Regs[d.Rs2]

	case isa.ClassCompareImm:
		if c.busy(d.Rs1) {
			return false
		}
		d.Rs1Value = c.Regs[d.Rs1]

	case isa.ClassBranch, isa.ClassNullary:
		// no operands to read, always issues

	default:
		panic(fmt.Sprintf("cpu: unhandled opcode class for %s", d.Opcode))
	}
	return true
}

// flush is the shared control-transfer action: suppress this cycle's fetch
// (Fetch runs after Execute in reverse-order scheduling, so without this
// the new PC would be sampled too early), invalidate the younger
// instruction in D, and make sure F is re-enabled in case HALT was already
// seen on the stale path (spec.md §4.4, §5).
func (c *Cpu) flush() {
	c.fetchFromNextCycle = true
	c.D.HasInsn = false
	c.F.HasInsn = true
}

func (c *Cpu) branchTaken() bool {
	switch c.X.Opcode {
	case isa.BZ:
		return c.CC.Z
	case isa.BNZ:
		return !c.CC.Z
	case isa.BP:
		return c.CC.P
	case isa.BNP:
		return !c.CC.P
	case isa.BN:
		return c.CC.N
	case isa.BNN:
		return !c.CC.N
	default:
		return false
	}
}

// execute implements spec.md §4.4: the ALU, address calculation, flag
// update, and control-transfer dispatch.
func (c *Cpu) execute() error {
	if !c.X.HasInsn {
		return nil
	}
	x := &c.X

	switch x.Opcode {
	case isa.ADD:
		x.ResultBuffer = x.Rs1Value + x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.ADDL:
		x.ResultBuffer = x.Rs1Value + x.Imm
		c.CC.set(x.ResultBuffer)
	case isa.SUB:
		x.ResultBuffer = x.Rs1Value - x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.SUBL:
		x.ResultBuffer = x.Rs1Value - x.Imm
		c.CC.set(x.ResultBuffer)
	case isa.MUL:
		x.ResultBuffer = x.Rs1Value * x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.DIV:
		if x.Rs2Value == 0 {
			return fmt.Errorf("cpu: division by zero at pc(%d)", x.PC)
		}
		x.ResultBuffer = x.Rs1Value / x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.AND:
		x.ResultBuffer = x.Rs1Value & x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.OR:
		x.ResultBuffer = x.Rs1Value | x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.XOR:
		x.ResultBuffer = x.Rs1Value ^ x.Rs2Value
		c.CC.set(x.ResultBuffer)

	case isa.LOAD:
		x.MemoryAddress = x.Rs1Value + x.Imm
	case isa.LOADP:
		x.MemoryAddress = x.Rs1Value + x.Imm
		x.Rs1Value += mem.WordSize

	case isa.STORE:
		x.MemoryAddress = x.Rs2Value + x.Imm
		c.Data.MarkTouched(x.MemoryAddress)
	case isa.STOREP:
		x.MemoryAddress = x.Rs2Value + x.Imm
		c.Data.MarkTouched(x.MemoryAddress)
		x.Rs2Value += mem.WordSize

	case isa.MOVC:
		x.ResultBuffer = x.Imm

	case isa.CMP:
		x.ResultBuffer = x.Rs1Value - x.Rs2Value
		c.CC.set(x.ResultBuffer)
	case isa.CML:
		x.ResultBuffer = x.Rs1Value - x.Imm
		c.CC.set(x.ResultBuffer)

	case isa.BZ, isa.BNZ, isa.BP, isa.BNP, isa.BN, isa.BNN:
		if c.branchTaken() {
			c.PC = x.PC + x.Imm
			c.flush()
		}

	case isa.JUMP:
		c.PC = x.Rs1Value + x.Imm
		c.flush()

	case isa.JALR:
		x.ResultBuffer = x.PC + mem.WordSize
		c.PC = x.Rs1Value + x.Imm
		c.flush()

	case isa.HALT, isa.NOP:
		// no datapath effect
	}

	c.M = c.X
	c.X.HasInsn = false
	return nil
}

// memory implements spec.md §4.5: data-memory load/store, pass-through
// otherwise.
func (c *Cpu) memory() error {
	if !c.M.HasInsn {
		return nil
	}
	m := &c.M

	switch m.Opcode {
	case isa.LOAD, isa.LOADP:
		v, err := c.Data.Read(m.MemoryAddress)
		if err != nil {
			return err
		}
		m.ResultBuffer = v
	case isa.STORE, isa.STOREP:
		if err := c.Data.Write(m.MemoryAddress, m.Rs1Value); err != nil {
			return err
		}
	}

	c.W = c.M
	c.M.HasInsn = false
	return nil
}

// writeback implements spec.md §4.6: register-file commit, scoreboard
// release, and the halt signal back to the driver.
func (c *Cpu) writeback() bool {
	if !c.W.HasInsn {
		return false
	}
	w := &c.W

	switch w.Opcode {
	case isa.ADD, isa.ADDL, isa.SUB, isa.SUBL, isa.MUL, isa.DIV, isa.AND, isa.OR, isa.XOR,
		isa.MOVC, isa.LOAD, isa.JALR:
		c.Regs[w.Rd] = w.ResultBuffer
		c.release(w.Rd)

	case isa.LOADP:
		c.Regs[w.Rd] = w.ResultBuffer
		c.Regs[w.Rs1] = w.Rs1Value
		c.release(w.Rd)
		c.release(w.Rs1)

	case isa.STOREP:
		c.Regs[w.Rs2] = w.Rs2Value
		c.release(w.Rs2)

		// STORE, CMP, CML, branches, JUMP, NOP, HALT: nothing to the
		// register file.
	}

	c.InsnCompleted++
	halted := w.Opcode == isa.HALT
	c.W.HasInsn = false
	return halted
}
