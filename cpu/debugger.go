package cpu

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"
)

// model is the single_step TUI state: a reference to the running Cpu, the
// most recent simulation error (if Tick ever fails), and whether the user
// has quit.
type model struct {
	cpu     *Cpu
	err     error
	halted  bool
	stopped bool
}

// Init returns no initial command; the pipeline is already primed by New.
func (m model) Init() tea.Cmd {
	return nil
}

// Update advances the Cpu by one tick on space/j, quits on q.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.stopped = true
			return m, tea.Quit

		case " ", "j":
			if m.halted {
				return m, nil
			}
			halted, err := m.cpu.Tick()
			if err != nil {
				m.err = err
				return m, tea.Quit
			}
			m.halted = halted
		}
	}
	return m, nil
}

var (
	panelStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder())
	headStyle  = lipgloss.NewStyle().Bold(true)
)

// latchPanel renders every stage's latch, one labeled row per stage.
func (m model) latchPanel() string {
	rows := []string{headStyle.Render("Pipeline")}
	for _, s := range []stageName{
		{&m.cpu.F, "Fetch"},
		{&m.cpu.D, "Decode/RF"},
		{&m.cpu.X, "Execute"},
		{&m.cpu.M, "Memory"},
		{&m.cpu.W, "Writeback"},
	} {
		if s.latch.HasInsn {
			rows = append(rows, fmt.Sprintf("%-10s pc(%d) %s", s.name, s.latch.PC, operands(s.latch)))
		} else {
			rows = append(rows, fmt.Sprintf("%-10s -", s.name))
		}
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

// statusPanel renders PC, cycle count, flags, and the register file.
func (m model) statusPanel() string {
	var regs strings.Builder
	for i := 0; i < RegisterCount; i++ {
		fmt.Fprintf(&regs, "R%-2d=%-6d", i, m.cpu.Regs[i])
		if i%4 == 3 {
			regs.WriteByte('\n')
		}
	}
	return panelStyle.Render(fmt.Sprintf(
		"%s\npc=%d cycles=%d insns=%d\nZ=%v P=%v N=%v\n\n%s",
		headStyle.Render("Status"),
		m.cpu.PC, m.cpu.Cycles, m.cpu.InsnCompleted,
		m.cpu.CC.Z, m.cpu.CC.P, m.cpu.CC.N,
		regs.String(),
	))
}

// View renders the full TUI: the latch table beside the status panel, and
// a raw struct dump of the latches below it for close inspection.
func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.latchPanel(), m.statusPanel())

	footer := "space/j: step   q: quit"
	if m.halted {
		footer = "halted — q: quit"
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		body,
		"",
		footer,
		"",
		spew.Sdump(struct{ F, D, X, M, W Latch }{m.cpu.F, m.cpu.D, m.cpu.X, m.cpu.M, m.cpu.W}),
	)
}

// Debug starts an interactive TUI that steps c one tick per keypress.
// Returns the error the Cpu stopped on, if any.
func Debug(c *Cpu) error {
	m, err := tea.NewProgram(model{cpu: c}).Run()
	if err != nil {
		return err
	}
	final := m.(model)
	return final.err
}
