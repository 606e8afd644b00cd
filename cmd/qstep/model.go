package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qtermsim/internal/circuit"
	"qtermsim/internal/density"
	"qtermsim/internal/evaluator"
	"qtermsim/internal/gates"
	"qtermsim/internal/quantum"
)

const (
	defaultSavePath = "circuit.qasm"
	historySize     = 8
)

// focus represents which panel has keyboard input.
type focus int

const (
	focusCircuit focus = iota
	focusQASM
	focusGates
)

// transitionLog keeps the most recent transitions reported to the observer.
// It is shared by pointer so copies of Model see the same history.
type transitionLog struct {
	entries []evaluator.Transition
}

func (l *transitionLog) push(t evaluator.Transition) {
	l.entries = append(l.entries, t)
	if len(l.entries) > historySize {
		l.entries = l.entries[len(l.entries)-historySize:]
	}
}

func (l *transitionLog) last() (evaluator.Transition, bool) {
	if len(l.entries) == 0 {
		return evaluator.Transition{}, false
	}
	return l.entries[len(l.entries)-1], true
}

func describeTransition(t evaluator.Transition) string {
	switch {
	case t.NoOp:
		return fmt.Sprintf("stayed at %d", t.Cursor)
	case t.OutputChanged:
		return fmt.Sprintf("%d → %d, state changed", t.From, t.Cursor)
	default:
		return fmt.Sprintf("%d → %d, state unchanged", t.From, t.Cursor)
	}
}

// densityMsg carries a finished background partial trace.
type densityMsg struct {
	seq int
	rho density.Matrix
	err error
}

func waitForDensity(job *density.Job, seq int) tea.Cmd {
	return func() tea.Msg {
		rho, err := job.Wait()
		return densityMsg{seq: seq, rho: rho, err: err}
	}
}

// Model represents the stepper application state.
type Model struct {
	eval     *evaluator.Evaluator
	lib      *gates.Library
	history  *transitionLog
	selected int
	path     string

	width      int
	height     int
	qasmEditor textarea.Model
	focus      focus
	keys       keyMap
	help       help.Model
	gateCat    int

	statusMsg string
	statusErr bool

	// Background reduction for the selected qubit when it is entangled.
	job      *density.Job
	jobSeq   int
	rho      density.Matrix
	rhoReady bool
	rhoErr   error
}

func newModel(eval *evaluator.Evaluator, lib *gates.Library, path, source string) Model {
	ta := textarea.New()
	ta.Placeholder = "OPENQASM 2.0;\nqreg q[2];\nh q[0];\ncx q[0],q[1];"
	ta.SetWidth(40)
	ta.SetHeight(20)
	ta.ShowLineNumbers = true
	ta.SetValue(source)

	history := &transitionLog{}
	eval.Subscribe(history.push)

	return Model{
		eval:       eval,
		lib:        lib,
		history:    history,
		path:       path,
		qasmEditor: ta,
		focus:      focusCircuit,
		keys:       newKeyMap(),
		help:       help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// setStatus records a transient message; errors are shown in the error style.
func (m *Model) setStatus(err error, format string, args ...any) {
	if err != nil {
		m.statusMsg = err.Error()
		m.statusErr = true
		return
	}
	m.statusMsg = fmt.Sprintf(format, args...)
	m.statusErr = false
}

// refreshDensity starts a background partial trace when the selected qubit
// has no pure description; any earlier job is cancelled.
func (m *Model) refreshDensity() tea.Cmd {
	if m.job != nil {
		m.job.Cancel()
		m.job = nil
	}
	m.jobSeq++
	m.rhoReady = false
	m.rhoErr = nil

	v, err := m.eval.Qubit(m.selected)
	if err != nil {
		return nil
	}
	if _, err := m.eval.AmplitudesOf(v); !errors.Is(err, quantum.ErrNotPure) {
		return nil
	}
	m.job = m.eval.Calculator().Async(context.Background(), m.eval.State(), m.eval.Width(), m.selected)
	return waitForDensity(m.job, m.jobSeq)
}

// step runs one evaluator transition and refreshes the state view.
func (m *Model) step(move func() (evaluator.Transition, error)) tea.Cmd {
	t, err := move()
	if err != nil {
		m.setStatus(err, "")
		return nil
	}
	m.statusMsg = ""
	return m.settle(t)
}

// settle refreshes the state view after t, keeping the current ρ or running
// job when the amplitudes did not change.
func (m *Model) settle(t evaluator.Transition) tea.Cmd {
	if !t.OutputChanged && (m.rhoReady || m.job != nil) {
		return nil
	}
	return m.refreshDensity()
}

// loadEditor parses the QASM pane and replaces the evaluator's circuit.
func (m *Model) loadEditor() tea.Cmd {
	c, err := circuit.ParseQASM(m.qasmEditor.Value())
	if err == nil {
		err = m.eval.Load(c)
	}
	if err != nil {
		m.setStatus(err, "")
		return nil
	}
	m.selected = max(min(m.selected, m.eval.Width()-1), 0)
	m.setStatus(nil, "loaded %d qubits, %d steps", c.NumQubits, c.Len())
	return m.refreshDensity()
}

// compact relayers the loaded circuit and writes it back to the QASM pane.
func (m *Model) compact() tea.Cmd {
	c := m.eval.Circuit().Compact()
	src, err := circuit.ToQASM(c)
	if err == nil {
		err = m.eval.Load(c)
	}
	if err != nil {
		m.setStatus(err, "")
		return nil
	}
	m.qasmEditor.SetValue(src)
	m.setStatus(nil, "compacted to %d steps", c.Len())
	return m.refreshDensity()
}

func (m *Model) save() {
	path := m.path
	if path == "" {
		path = defaultSavePath
	}
	if err := os.WriteFile(path, []byte(m.qasmEditor.Value()), 0o644); err != nil {
		m.setStatus(err, "")
		return
	}
	m.setStatus(nil, "saved %s", path)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width - 4
		m.qasmEditor.SetWidth(max(msg.Width/3-6, 20))
		m.qasmEditor.SetHeight(max(msg.Height/2-8, 4))
		return m, nil

	case densityMsg:
		if msg.seq != m.jobSeq {
			return m, nil
		}
		m.job = nil
		if errors.Is(msg.err, context.Canceled) {
			return m, nil
		}
		m.rho, m.rhoErr, m.rhoReady = msg.rho, msg.err, msg.err == nil
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.focus {
		case focusQASM:
			return m.updateEditor(msg)
		case focusGates:
			return m.updateGates(msg), nil
		default:
			return m.updateCircuit(msg)
		}
	}

	if m.focus == focusQASM {
		var cmd tea.Cmd
		m.qasmEditor, cmd = m.qasmEditor.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateCircuit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		cmd := m.step(m.eval.NextStep)
		return m, cmd
	case key.Matches(msg, m.keys.Prev):
		cmd := m.step(m.eval.PrevStep)
		return m, cmd
	case key.Matches(msg, m.keys.End):
		cmd := m.step(m.eval.RunToEnd)
		return m, cmd
	case key.Matches(msg, m.keys.Restart):
		t := m.eval.Restart()
		m.statusMsg = ""
		cmd := m.settle(t)
		return m, cmd
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
			cmd := m.refreshDensity()
			return m, cmd
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < m.eval.Width()-1 {
			m.selected++
			cmd := m.refreshDensity()
			return m, cmd
		}
	case key.Matches(msg, m.keys.Compact):
		cmd := m.compact()
		return m, cmd
	case key.Matches(msg, m.keys.Reload):
		cmd := m.loadEditor()
		return m, cmd
	case key.Matches(msg, m.keys.Save):
		m.save()
	case key.Matches(msg, m.keys.Gates):
		m.focus = focusGates
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Focus):
		m.focus = focusQASM
		cmd := m.qasmEditor.Focus()
		return m, cmd
	}
	return m, nil
}

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Focus):
		m.focus = focusCircuit
		m.qasmEditor.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		cmd := m.loadEditor()
		return m, cmd
	case key.Matches(msg, m.keys.Save):
		m.save()
		return m, nil
	}
	var cmd tea.Cmd
	m.qasmEditor, cmd = m.qasmEditor.Update(msg)
	return m, cmd
}

func (m Model) updateGates(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc", "g", "q":
		m.focus = focusCircuit
	case "left", "h":
		if m.gateCat > 0 {
			m.gateCat--
		}
	case "right", "l":
		if m.gateCat < len(gateCategories(m.lib))-1 {
			m.gateCat++
		}
	}
	return m
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sideWidth := m.width / 3
	circuitWidth := m.width - sideWidth - 4
	controls := m.renderControlsPanel(m.width - 4)
	bodyHeight := max(m.height-lipgloss.Height(controls)-2, 8)
	stateHeight := bodyHeight / 2
	qasmHeight := bodyHeight - stateHeight

	circuitPanel := m.renderCircuitPanel(circuitWidth, bodyHeight)
	side := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatePanel(sideWidth, stateHeight-2),
		m.renderQASMPanel(sideWidth, qasmHeight-2),
	)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, circuitPanel, side)
	frame := lipgloss.JoinVertical(lipgloss.Left, topRow, controls)

	if m.focus == focusGates {
		frame = overlayAt(frame, m.renderGateList(), 2, 2)
	}
	return frame
}
