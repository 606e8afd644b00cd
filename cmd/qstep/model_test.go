package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"qtermsim/internal/circuit"
	"qtermsim/internal/density"
	"qtermsim/internal/evaluator"
	"qtermsim/internal/gates"
)

const bellQASM = `OPENQASM 2.0;
include "qelib1.inc";
qreg q[2];
h q[0];
cx q[0],q[1];
`

func newTestModel(t *testing.T, src string) Model {
	t.Helper()
	lib := gates.NewLibrary()
	eval, err := evaluator.New(lib)
	require.NoError(t, err)
	c, err := circuit.ParseQASM(src)
	require.NoError(t, err)
	require.NoError(t, eval.Load(c))
	return newModel(eval, lib, "", src)
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "ctrl+r":
			msg = tea.KeyMsg{Type: tea.KeyCtrlR}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(Model), c
	}
	return m, cmd
}

func TestModelStepping(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, _ = press(t, m, "l")
	assert.Equal(t, 1, m.eval.Cursor())
	last, ok := m.history.last()
	require.True(t, ok)
	assert.Equal(t, evaluator.Transition{From: 0, Cursor: 1, OutputChanged: true}, last)

	m, _ = press(t, m, "e")
	assert.Equal(t, 2, m.eval.Cursor())

	m, _ = press(t, m, "l")
	last, _ = m.history.last()
	assert.True(t, last.NoOp)

	m, _ = press(t, m, "h")
	assert.Equal(t, 1, m.eval.Cursor())

	m, _ = press(t, m, "r")
	assert.Equal(t, 0, m.eval.Cursor())
	assert.Equal(t, 1.0, real(m.eval.State()[0]))
}

func TestModelQubitSelection(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, _ = press(t, m, "k")
	assert.Equal(t, 0, m.selected)
	m, _ = press(t, m, "j", "j", "j")
	assert.Equal(t, 1, m.selected)
}

func TestModelEntangledQubitComputesDensity(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, cmd := press(t, m, "l")
	assert.Nil(t, cmd, "q[0] is still separable after H")

	m, cmd = press(t, m, "l")
	require.NotNil(t, cmd)
	require.NotNil(t, m.job)
	assert.Contains(t, m.qubitSummary(), "entangled")

	next, _ := m.Update(cmd())
	m = next.(Model)
	require.True(t, m.rhoReady)
	assert.Nil(t, m.job)
	assert.True(t, m.rho.EqualApprox(density.Matrix{{0.5, 0}, {0, 0.5}}, 1e-9))
	assert.Contains(t, m.qubitSummary(), "Bloch Vector")
}

func TestModelKeepsDensityWhenStateUnchanged(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, cmd := press(t, m, "e")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	require.True(t, m.rhoReady)
	seq := m.jobSeq

	m, cmd = press(t, m, "l")
	last, _ := m.history.last()
	require.True(t, last.NoOp)
	assert.Nil(t, cmd)
	assert.Nil(t, m.job)
	assert.True(t, m.rhoReady)
	assert.Equal(t, seq, m.jobSeq)

	m, _ = press(t, m, "h")
	assert.Greater(t, m.jobSeq, seq, "moving back changes the state")
	assert.False(t, m.rhoReady)
}

func TestModelDropsStaleDensity(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, cmd := press(t, m, "e")
	require.NotNil(t, cmd)
	stale := cmd()

	m, _ = press(t, m, "r")
	next, _ := m.Update(stale)
	m = next.(Model)
	assert.False(t, m.rhoReady)
}

func TestModelReloadFromEditor(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m.qasmEditor.SetValue("qreg q[3];\nx q[2];\n")
	m, _ = press(t, m, "ctrl+r")
	assert.False(t, m.statusErr, m.statusMsg)
	assert.Equal(t, 3, m.eval.Width())
	assert.Equal(t, 1, m.eval.Len())

	m.qasmEditor.SetValue("qreg q[1];\nmeasure q[0] -> c[0];\n")
	m, _ = press(t, m, "ctrl+r")
	assert.True(t, m.statusErr)
	assert.Equal(t, 3, m.eval.Width(), "failed reload keeps the loaded circuit")
}

func TestModelReloadWithoutQubits(t *testing.T) {
	m := newTestModel(t, bellQASM)
	m, _ = press(t, m, "j")
	require.Equal(t, 1, m.selected)

	m.qasmEditor.SetValue("OPENQASM 2.0;\n")
	m, _ = press(t, m, "ctrl+r")
	require.False(t, m.statusErr, m.statusMsg)
	assert.Equal(t, 0, m.selected)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 48})
	m = next.(Model)
	assert.NotContains(t, m.View(), "q[-1]")
	assert.Contains(t, m.View(), "State q[0]")
}

func TestModelEditorFocus(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, _ = press(t, m, "tab")
	assert.Equal(t, focusQASM, m.focus)

	m, _ = press(t, m, "l")
	assert.Equal(t, 0, m.eval.Cursor(), "keys go to the editor while it has focus")

	m, _ = press(t, m, "tab")
	assert.Equal(t, focusCircuit, m.focus)
}

func TestModelCompact(t *testing.T) {
	m := newTestModel(t, "qreg q[2];\nh q[0];\nbarrier q;\nx q[1];\n")
	require.Equal(t, 2, m.eval.Len())

	m, _ = press(t, m, "c")
	assert.Equal(t, 1, m.eval.Len())
	assert.Contains(t, m.qasmEditor.Value(), "x q[1];")
}

func TestModelSave(t *testing.T) {
	m := newTestModel(t, bellQASM)
	m.path = filepath.Join(t.TempDir(), "bell.qasm")

	m.save()
	require.False(t, m.statusErr, m.statusMsg)
	data, err := os.ReadFile(m.path)
	require.NoError(t, err)
	assert.Equal(t, m.qasmEditor.Value(), string(data))
}

func TestModelGateList(t *testing.T) {
	m := newTestModel(t, bellQASM)

	m, _ = press(t, m, "g")
	assert.Equal(t, focusGates, m.focus)
	m, _ = press(t, m, "l", "l", "l", "l", "l")
	assert.Equal(t, 3, m.gateCat)
	m, _ = press(t, m, "esc")
	assert.Equal(t, focusCircuit, m.focus)
}

func TestGateCategories(t *testing.T) {
	lib := gates.NewLibrary()
	require.NoError(t, lib.RegisterMatrix("myx", mat.NewCDense(2, 2, []complex128{0, 1, 1, 0})))

	find := func(cats []gateCategory, name string) string {
		for _, cat := range cats {
			for _, def := range cat.gates {
				if def.Name == name {
					return cat.name
				}
			}
		}
		return ""
	}

	cats := gateCategories(lib)
	assert.Equal(t, "Single Qubit", find(cats, "H"))
	assert.Equal(t, "Rotation", find(cats, "RX"))
	assert.Equal(t, "Multi Qubit", find(cats, "CX"))
	assert.Equal(t, "Extensions", find(cats, "MYX"))
}

func TestModelView(t *testing.T) {
	m := newTestModel(t, bellQASM)
	assert.Equal(t, "Loading...", m.View())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 48})
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "Circuit")
	assert.Contains(t, view, "q[1]")
	assert.Contains(t, view, "Basis states")

	m, _ = press(t, m, "g")
	assert.Contains(t, m.View(), "Gates")
}

func TestWriteReport(t *testing.T) {
	m := newTestModel(t, bellQASM)
	_, err := m.eval.RunToEnd()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, m.eval))
	out := buf.String()

	assert.Contains(t, out, "cursor 2/2, 2 qubits")
	assert.Contains(t, out, "ρ₀₀ = 0.50")
	assert.Contains(t, out, "|00⟩  p=0.5000")
	assert.Contains(t, out, "|11⟩  p=0.5000")
	assert.NotContains(t, out, "|01⟩")
}

func TestWriteReportPure(t *testing.T) {
	m := newTestModel(t, "qreg q[2];\nx q[1];\n")
	_, err := m.eval.RunToEnd()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, m.eval))
	assert.Contains(t, buf.String(), "β ≈ 1.00 + 0.00i")
	assert.Contains(t, buf.String(), "|10⟩  p=1.0000")
}
