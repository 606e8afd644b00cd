package main

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"qtermsim/internal/circuit"
	"qtermsim/internal/density"
	"qtermsim/internal/quantum"
)

const (
	gateBoxW        = gateNameW + 2
	maxBasisRows    = 8
	basisStateFloor = 1e-6
	barW            = 12
)

// ──────────────────────────── Rendering helpers ────────────────────────────

// padCenter centres a string within the given width.
func padCenter(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		if r := []rune(s); len(r) > width {
			return string(r[:width])
		}
		return s
	}
	total := width - n
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

// leadingControls reports how many leading targets of a built-in controlled gate are controls.
func leadingControls(gate string) int {
	switch strings.ToUpper(gate) {
	case "CX", "CNOT", "CY", "CZ", "CH", "CRX", "CRY", "CRZ", "CP", "CU1", "CU3", "CSWAP":
		return 1
	case "CCX", "TOFFOLI":
		return 2
	default:
		return 0
	}
}

// gateDisplayName returns the short label drawn inside a gate box.
func gateDisplayName(gate string) string {
	name := strings.ToUpper(gate)
	name = name[leadingControls(name):]
	switch name {
	case "SDG":
		name = "S†"
	case "TDG":
		name = "T†"
	case "SX":
		name = "√X"
	case "SXDG":
		name = "√X†"
	}
	if r := []rune(name); len(r) > gateNameW {
		name = string(r[:gateNameW])
	}
	return name
}

// targetSymbol returns the wire symbol for a target, or "" when the target is drawn as a box.
func targetSymbol(gate string) string {
	switch strings.ToUpper(gate) {
	case "CX", "CNOT", "CCX", "TOFFOLI":
		return "⊕"
	case "CZ":
		return "●"
	case "SWAP", "CSWAP":
		return "×"
	default:
		return ""
	}
}

// ──────────────────────────── Cell rendering ────────────────────────────

type cellInfo struct {
	placement   *circuit.Placement
	isControl   bool
	passThrough bool
	vertAbove   bool
	vertBelow   bool
}

// cellAt describes what qubit shows in the given step column.
func cellAt(c *circuit.Circuit, step, qubit int) cellInfo {
	var info cellInfo
	if step < 0 || step >= c.Len() {
		return info
	}
	for i := range c.Steps[step].Placements {
		p := &c.Steps[step].Placements[i]
		qubits := p.Qubits()
		lo, hi := qubits[0], qubits[0]
		for _, q := range qubits {
			lo = min(lo, q)
			hi = max(hi, q)
		}
		if p.References(qubit) {
			return cellInfo{
				placement: p,
				isControl: isControl(p, qubit),
				vertAbove: qubit > lo,
				vertBelow: qubit < hi,
			}
		}
		if qubit > lo && qubit < hi {
			info.passThrough = true
			info.vertAbove = true
			info.vertBelow = true
		}
	}
	return info
}

func isControl(p *circuit.Placement, qubit int) bool {
	for _, q := range p.Controls {
		if q == qubit {
			return true
		}
	}
	lead := leadingControls(p.Gate)
	for i, q := range p.Targets {
		if q == qubit {
			return i < lead
		}
	}
	return false
}

// stepPhase places a column relative to the evaluator cursor.
type stepPhase int

const (
	phaseApplied stepPhase = iota
	phaseNext
	phasePending
)

func phaseOf(step, cursor int) stepPhase {
	switch {
	case step < cursor:
		return phaseApplied
	case step == cursor:
		return phaseNext
	default:
		return phasePending
	}
}

// renderCell returns 3 lines (top, mid, bot) for a single cell, each cellW characters wide.
func renderCell(info cellInfo, phase stepPhase) (top, mid, bot string) {
	glyph, wire := gateStyle, lipgloss.NewStyle()
	switch phase {
	case phaseNext:
		glyph, wire = cursorStyle, activeStyle
	case phasePending:
		glyph, wire = dimStyle, dimStyle
	}

	emptyRow := strings.Repeat(" ", cellW)
	halfW := cellW / 2
	vertRow := strings.Repeat(" ", halfW) + wire.Render("│") + strings.Repeat(" ", cellW-halfW-1)
	dashL := (cellW - 1) / 2
	dashR := cellW - dashL - 1

	connect := func() {
		top, bot = emptyRow, emptyRow
		if info.vertAbove {
			top = vertRow
		}
		if info.vertBelow {
			bot = vertRow
		}
	}
	onWire := func(sym string) string {
		return wire.Render(strings.Repeat("─", dashL)) + glyph.Render(sym) + wire.Render(strings.Repeat("─", dashR))
	}

	switch {
	case info.placement != nil && info.isControl:
		connect()
		mid = onWire("●")

	case info.placement != nil && targetSymbol(info.placement.Gate) != "":
		connect()
		mid = onWire(targetSymbol(info.placement.Gate))

	case info.placement != nil:
		margin := (cellW - gateBoxW) / 2
		rightMargin := cellW - margin - gateBoxW
		name := padCenter(gateDisplayName(info.placement.Gate), gateNameW)

		top = strings.Repeat(" ", margin) + glyph.Render("┌"+strings.Repeat("─", gateNameW)+"┐") + strings.Repeat(" ", rightMargin)
		mid = wire.Render(strings.Repeat("─", margin)) + glyph.Render("┤"+name+"├") + wire.Render(strings.Repeat("─", rightMargin))
		bot = strings.Repeat(" ", margin) + glyph.Render("└"+strings.Repeat("─", gateNameW)+"┘") + strings.Repeat(" ", rightMargin)
		if info.vertAbove {
			top = strings.Repeat(" ", margin) + glyph.Render("┌"+padCenter("┴", gateNameW)+"┐") + strings.Repeat(" ", rightMargin)
		}
		if info.vertBelow {
			bot = strings.Repeat(" ", margin) + glyph.Render("└"+padCenter("┬", gateNameW)+"┘") + strings.Repeat(" ", rightMargin)
		}

	case info.passThrough:
		top, bot = vertRow, vertRow
		mid = onWire("┼")

	default:
		top, bot = emptyRow, emptyRow
		mid = wire.Render(strings.Repeat("─", cellW))
	}
	return
}

// ──────────────────────────── Panel rendering ────────────────────────────

// renderCircuitPanel renders the circuit grid with the next step to apply highlighted.
func (m Model) renderCircuitPanel(width, height int) string {
	var sb strings.Builder

	c := m.eval.Circuit()
	cursor := m.eval.Cursor()

	title := "Circuit"
	if m.path != "" {
		title += "  " + dimStyle.Render(m.path)
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")

	availWidth := width - labelVisualW - 4
	maxSteps := max(availWidth/cellW, 1)

	startStep := 0
	if cursor >= maxSteps {
		startStep = cursor - maxSteps + 1
	}
	endStep := min(startStep+maxSteps, c.Len())

	if startStep > 0 {
		fmt.Fprintf(&sb, "  ◀ showing steps %d–%d\n", startStep, endStep-1)
	}

	header := strings.Repeat(" ", labelVisualW)
	marker := strings.Repeat(" ", labelVisualW)
	for step := startStep; step < endStep; step++ {
		label := padCenter(fmt.Sprintf("%d", step), cellW)
		if step == cursor {
			header += cursorStyle.Render(label)
			marker += cursorStyle.Render(padCenter("▼", cellW))
			continue
		}
		header += dimStyle.Render(label)
		marker += strings.Repeat(" ", cellW)
	}
	sb.WriteString(header + "\n")
	sb.WriteString(marker + "\n")

	for qubit := range c.NumQubits {
		label := fmt.Sprintf("q[%d]", qubit)
		labelStyle := qubitLabelStyle
		if qubit == m.selected {
			labelStyle = selectedLabelStyle
		}
		topLine := strings.Repeat(" ", labelVisualW)
		midLine := labelStyle.Render(fmt.Sprintf("%-5s", label)) + "──"
		botLine := strings.Repeat(" ", labelVisualW)

		for step := startStep; step < endStep; step++ {
			top, mid, bot := renderCell(cellAt(c, step, qubit), phaseOf(step, cursor))
			topLine += top
			midLine += mid
			botLine += bot
		}

		sb.WriteString(topLine + "\n")
		sb.WriteString(midLine + "\n")
		sb.WriteString(botLine + "\n")
	}

	fmt.Fprintf(&sb, "\n  Cursor: %d/%d", cursor, c.Len())
	if t, ok := m.history.last(); ok {
		fmt.Fprintf(&sb, "  │  %s", describeTransition(t))
	}
	if m.statusMsg != "" {
		style := activeStyle
		if m.statusErr {
			style = errorStyle
		}
		fmt.Fprintf(&sb, "\n  %s", style.Render(m.statusMsg))
	}

	return circuitStyle.Width(width).Height(height).Render(sb.String())
}

// renderStatePanel renders the selected qubit's state, per-qubit probabilities and populated basis states.
func (m Model) renderStatePanel(width, height int) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("State q[%d]", m.selected)))
	sb.WriteString("\n\n")
	sb.WriteString(m.qubitSummary())
	sb.WriteString("\n\n")

	sb.WriteString(activeStyle.Render("P(|1⟩)"))
	sb.WriteString("\n")
	for q, qp := range m.eval.QubitProbabilities() {
		filled := min(max(int(math.Round(qp.Prob1*barW)), 0), barW)
		bar := barStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", barW-filled))
		fmt.Fprintf(&sb, "q[%d] %s %.3f\n", q, bar, qp.Prob1)
	}

	sb.WriteString("\n")
	sb.WriteString(activeStyle.Render("Basis states"))
	sb.WriteString("\n")
	states := m.eval.BasisStates(basisStateFloor)
	for i, bs := range states {
		if i == maxBasisRows {
			sb.WriteString(dimStyle.Render(fmt.Sprintf("… %d more", len(states)-maxBasisRows)))
			sb.WriteString("\n")
			break
		}
		fmt.Fprintf(&sb, "%s  p=%.3f  φ=%+.3f\n", ket(bs.Index, m.eval.Width()), bs.Prob, bs.Phase)
	}

	return stateStyle.Width(width).Height(height).Render(sb.String())
}

// qubitSummary describes the selected qubit as a pure pair or, when entangled, as a density matrix.
func (m Model) qubitSummary() string {
	v, err := m.eval.Qubit(m.selected)
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	amps, err := m.eval.AmplitudesOf(v)
	if err == nil {
		rho := density.FromAmplitudes(amps[0], amps[1])
		return density.DescribePure(amps[0], amps[1]) + "\nBloch " + rho.Bloch().String()
	}
	if !errors.Is(err, quantum.ErrNotPure) {
		return errorStyle.Render(err.Error())
	}

	switch {
	case m.job != nil:
		return dimStyle.Render("entangled; ρ " + m.job.Status().String() + "…")
	case m.rhoErr != nil:
		return errorStyle.Render(m.rhoErr.Error())
	case m.rhoReady:
		return density.DescribeMixed(m.rho) + fmt.Sprintf("\npurity %.3f", m.rho.Purity())
	default:
		return dimStyle.Render("entangled")
	}
}

// ket formats a basis index as |q[W-1]…q[0]⟩.
func ket(index uint64, width int) string {
	return fmt.Sprintf("|%0*b⟩", width, index)
}

// renderQASMPanel renders the QASM editor panel.
func (m Model) renderQASMPanel(width, height int) string {
	var sb strings.Builder

	title := "QASM"
	if m.focus == focusQASM {
		title += " [ACTIVE]"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	sb.WriteString(m.qasmEditor.View())

	return qasmStyle.Width(width).Height(height).Render(sb.String())
}

// renderControlsPanel renders the bottom key help bar.
func (m Model) renderControlsPanel(width int) string {
	return controlsStyle.Width(width).Render(m.help.View(m.keys))
}

// ──────────────────────────── Overlay helpers ────────────────────────────

// overlayAt composites the overlay string on top of the background at position (x, y).
func overlayAt(bg, overlay string, x, y int) string {
	bgLines := strings.Split(bg, "\n")
	for i, ovLine := range strings.Split(overlay, "\n") {
		idx := y + i
		if idx < 0 || idx >= len(bgLines) {
			continue
		}
		bgLines[idx] = spliceLineAt(bgLines[idx], ovLine, x)
	}
	return strings.Join(bgLines, "\n")
}

// spliceLineAt replaces visible columns starting at x in bgLine with overlay.
// Escape sequences in the background are copied through to keep its styling intact.
func spliceLineAt(bgLine, overlay string, x int) string {
	runes := []rune(bgLine)
	ovWidth := visibleLen(overlay)

	var prefix, suffix strings.Builder
	col, i := 0, 0
	for i < len(runes) && col < x {
		if runes[i] == '\x1b' {
			i = copyEscape(&prefix, runes, i)
			continue
		}
		prefix.WriteRune(runes[i])
		col++
		i++
	}
	for ; col < x; col++ {
		prefix.WriteRune(' ')
	}

	for skipped := 0; i < len(runes) && skipped < ovWidth; {
		if runes[i] == '\x1b' {
			i = copyEscape(nil, runes, i)
			continue
		}
		skipped++
		i++
	}
	for ; i < len(runes); i++ {
		suffix.WriteRune(runes[i])
	}

	return prefix.String() + overlay + "\x1b[0m" + suffix.String()
}

// copyEscape consumes one escape sequence starting at i, writing it to sb when non-nil.
func copyEscape(sb *strings.Builder, runes []rune, i int) int {
	for j := i; j < len(runes); j++ {
		if sb != nil {
			sb.WriteRune(runes[j])
		}
		if j > i && isEscapeFinal(runes[j]) {
			return j + 1
		}
	}
	return len(runes)
}

func isEscapeFinal(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

// visibleLen returns the number of visible (non-escape) characters in a string.
func visibleLen(s string) int {
	n := 0
	inEsc := false
	for _, r := range s {
		if r == '\x1b' {
			inEsc = true
			continue
		}
		if inEsc {
			if isEscapeFinal(r) {
				inEsc = false
			}
			continue
		}
		n++
	}
	return n
}
