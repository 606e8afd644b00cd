package main

import (
	"fmt"
	"strings"

	"qtermsim/internal/gates"
)

// gateCategory groups library gates under a tab of the reference overlay.
type gateCategory struct {
	name  string
	gates []gates.Definition
}

// gateCategories sorts every library definition into a tab.
func gateCategories(lib *gates.Library) []gateCategory {
	cats := []gateCategory{
		{name: "Single Qubit"},
		{name: "Rotation"},
		{name: "Multi Qubit"},
		{name: "Extensions"},
	}
	for _, name := range lib.Names() {
		def, err := lib.Lookup(name)
		if err != nil {
			continue
		}
		switch {
		case def.Extension:
			cats[3].gates = append(cats[3].gates, def)
		case def.Qubits > 1:
			cats[2].gates = append(cats[2].gates, def)
		case def.Params > 0:
			cats[1].gates = append(cats[1].gates, def)
		default:
			cats[0].gates = append(cats[0].gates, def)
		}
	}
	return cats
}

// gateSignature renders how a gate is written in QASM, e.g. "crz(θ) q,q".
func gateSignature(def gates.Definition) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(def.Name))
	if def.Params > 0 {
		sb.WriteString("(" + strings.TrimSuffix(strings.Repeat("θ,", def.Params), ",") + ")")
	}
	sb.WriteString(" " + strings.TrimSuffix(strings.Repeat("q,", def.Qubits), ","))
	return sb.String()
}

// renderGateList renders the floating gate reference popup.
func (m Model) renderGateList() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Gates"))
	sb.WriteString("\n")

	cats := gateCategories(m.lib)
	for i, cat := range cats {
		name := fmt.Sprintf(" %s (%d) ", cat.name, len(cat.gates))
		if i == m.gateCat {
			sb.WriteString(activeStyle.Render(name))
		} else {
			sb.WriteString(dimStyle.Render(name))
		}
		if i < len(cats)-1 {
			sb.WriteString(dimStyle.Render("│"))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(strings.Repeat("─", 48)))
	sb.WriteString("\n")

	cat := cats[min(m.gateCat, len(cats)-1)]
	if len(cat.gates) == 0 {
		sb.WriteString(dimStyle.Render("   none registered"))
		sb.WriteString("\n")
	}
	for _, def := range cat.gates {
		sb.WriteString("   ")
		sb.WriteString(gateStyle.Render(fmt.Sprintf("%-18s", gateSignature(def))))
		if !def.Reversible {
			sb.WriteString(dimStyle.Render(" no inverse"))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render(" ←→ Category  g/Esc Close"))

	return menuBorderStyle.Render(sb.String())
}
