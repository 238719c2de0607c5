// Command apex loads an APEX assembly program and drives it through the
// pipeline simulator: free-running simulation with a per-cycle trace, a
// single final-state dump, an interactive single-step TUI, or a one-shot
// memory read.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"apex/cpu"
	"apex/loader"
	"apex/mem"
)

var (
	quiet     bool
	dataWords int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "apex",
		Short:         "APEX five-stage pipeline simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress the per-cycle trace")
	root.PersistentFlags().IntVar(&dataWords, "data-words", 4096, "size of data memory, in words")

	root.AddCommand(newSimulateCmd(), newDisplayCmd(), newSingleStepCmd(), newShowMemCmd())
	return root
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <N> <file>",
		Short: "run up to N ticks or until HALT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("apex: invalid cycle count %q: %w", args[0], err)
			}
			c, err := loadCpu(args[1])
			if err != nil {
				return err
			}
			return runFor(c, n)
		},
	}
}

func newDisplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display <file>",
		Short: "run to HALT with a per-cycle trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCpu(args[0])
			if err != nil {
				return err
			}
			return runFor(c, -1)
		},
	}
}

func newSingleStepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "single_step <file>",
		Short: "interactively step the pipeline one tick at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCpu(args[0])
			if err != nil {
				return err
			}
			return cpu.Debug(c)
		},
	}
}

func newShowMemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show_mem <file> <addr>",
		Short: "run to HALT, then print one data-memory word",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("apex: invalid address %q: %w", args[1], err)
			}
			c, err := loadCpu(args[0])
			if err != nil {
				return err
			}
			if err := runQuietly(c, -1); err != nil {
				return err
			}
			v, err := c.Data.Read(int32(addr))
			if err != nil {
				return fmt.Errorf("apex: %w", err)
			}
			fmt.Printf("Memory[%d] = %d\n", addr, v)
			return nil
		},
	}
}

// loadCpu assembles the program at path and wires it to a fresh Cpu. Any
// failure here is a load-time error (spec.md §7).
func loadCpu(path string) (*cpu.Cpu, error) {
	insns, err := loader.Load(path)
	if err != nil {
		log.Printf("apex: load error: %v", err)
		return nil, fmt.Errorf("apex: %w", err)
	}
	return cpu.New(mem.NewCodeMemory(insns), mem.NewDataMemory(dataWords)), nil
}

// runFor ticks c until HALT, a simulation-time error, or limit ticks
// elapse (limit < 0 means run until HALT). Prints a per-cycle trace unless
// --quiet, always printing the final register dump and the cycles/
// insn_completed summary spec.md §4.1 requires once Writeback reports halt.
func runFor(c *cpu.Cpu, limit int) error {
	for i := 0; limit < 0 || i < limit; i++ {
		halted, err := c.Tick()
		if err != nil {
			log.Printf("apex: simulation error: %v", err)
			return err
		}
		if !quiet {
			c.PrintCycle(os.Stdout)
		}
		if halted {
			printSummary(c)
			break
		}
	}
	if quiet {
		c.PrintRegisters(os.Stdout)
	}
	return nil
}

// runQuietly is runFor without any trace output, for subcommands (show_mem)
// whose final output format spec.md §6.2 defines separately.
func runQuietly(c *cpu.Cpu, limit int) error {
	for i := 0; limit < 0 || i < limit; i++ {
		halted, err := c.Tick()
		if err != nil {
			log.Printf("apex: simulation error: %v", err)
			return err
		}
		if halted {
			printSummary(c)
			break
		}
	}
	return nil
}

// printSummary prints the cycles/insn_completed line spec.md §4.1 requires
// once the driver stops: "print summary (cycles, insn_completed) and stop".
func printSummary(c *cpu.Cpu) {
	fmt.Printf("cycles = %d\n", c.Cycles)
	fmt.Printf("insn_completed = %d\n", c.InsnCompleted)
}
