// Package mem implements the APEX memory subsystem: an ordered code-memory
// store the fetch stage walks by program counter, and a flat data-memory
// array the memory stage loads and stores through.
package mem

import (
	"fmt"

	"apex/isa"
)

// CodeOrigin is the architectural convention that the first instruction of
// any program lives at this address; pc always satisfies pc >= CodeOrigin
// and pc % WordSize == 0.
const CodeOrigin = 4000

// WordSize is the fixed instruction width: pc advances by this much per
// successful fetch.
const WordSize = 4

// CodeMemory is the ordered, read-only store of decoded instructions
// produced by the loader. Index 0 lives at CodeOrigin.
type CodeMemory struct {
	insns []isa.Instruction
}

// NewCodeMemory wraps an already-decoded instruction sequence (as produced
// by package loader) for PC-indexed fetch.
func NewCodeMemory(insns []isa.Instruction) *CodeMemory {
	return &CodeMemory{insns: insns}
}

// Len returns the number of instructions in code memory.
func (c *CodeMemory) Len() int { return len(c.insns) }

// indexForPC converts a PC (4000, 4004, ...) into a code-memory slice index.
func indexForPC(pc int32) int {
	return int((pc - CodeOrigin) / WordSize)
}

// Fetch returns the instruction at pc, and false if pc has run past the end
// of the program (the overrun case spec.md §7 treats as HALT-equivalent).
func (c *CodeMemory) Fetch(pc int32) (isa.Instruction, bool) {
	i := indexForPC(pc)
	if i < 0 || i >= len(c.insns) {
		return isa.Instruction{}, false
	}
	return c.insns[i], true
}

// DataMemory is a flat array of signed words, addressable by byte offset,
// plus an ordered record of addresses touched by stores for end-of-run
// reporting.
type DataMemory struct {
	words   []int32
	touched []int32
	seen    map[int32]bool
}

// NewDataMemory allocates a zeroed data memory of size words, one word per
// address 0..size-1.
func NewDataMemory(size int) *DataMemory {
	return &DataMemory{
		words: make([]int32, size),
		seen:  make(map[int32]bool),
	}
}

func (d *DataMemory) bounds(addr int32) error {
	if addr < 0 || int(addr) >= len(d.words) {
		return fmt.Errorf("data memory address out of range: %d", addr)
	}
	return nil
}

// Read loads the word at addr.
func (d *DataMemory) Read(addr int32) (int32, error) {
	if err := d.bounds(addr); err != nil {
		return 0, err
	}
	return d.words[addr], nil
}

// Write stores value at addr. The caller is expected to have already
// recorded addr via MarkTouched (Execute records the address the same
// cycle it computes it, ahead of the actual write in Memory).
func (d *DataMemory) Write(addr int32, value int32) error {
	if err := d.bounds(addr); err != nil {
		return err
	}
	d.words[addr] = value
	return nil
}

// MarkTouched records addr in the touched-address set, in first-touch
// order, without requiring the word to have been written yet.
func (d *DataMemory) MarkTouched(addr int32) {
	if d.seen[addr] {
		return
	}
	d.seen[addr] = true
	d.touched = append(d.touched, addr)
}

// Touched returns the addresses touched by stores, in first-touch order.
func (d *DataMemory) Touched() []int32 {
	return d.touched
}

// Seed sets the word at addr directly, bypassing the touched-address
// bookkeeping; used by tests and to set up initial data memory contents.
func (d *DataMemory) Seed(addr int32, value int32) error {
	if err := d.bounds(addr); err != nil {
		return err
	}
	d.words[addr] = value
	return nil
}
