// Package circuit models a circuit as ordered steps of simultaneous placements.
package circuit

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrOverlappingPlacement = errors.New("placements in one step share a qubit")
	ErrQubitOutOfRange      = errors.New("qubit index out of range")
	ErrEmptyPlacement       = errors.New("placement addresses no target qubit")
	ErrDuplicateQubit       = errors.New("placement uses a qubit twice")
	ErrStepOutOfRange       = errors.New("step index out of range")
)

// Placement is one gate applied to specific qubits. Targets are the qubits
// the gate's matrix acts on, in matrix bit order. Controls are extra qubits
// that must all be 1 for the gate to act.
type Placement struct {
	Gate     string
	Targets  []int
	Controls []int
	Params   []float64
}

// Qubits returns every qubit the placement touches.
func (p Placement) Qubits() []int {
	qs := make([]int, 0, len(p.Targets)+len(p.Controls))
	qs = append(qs, p.Targets...)
	return append(qs, p.Controls...)
}

// References reports whether the placement touches qubit.
func (p Placement) References(qubit int) bool {
	return slices.Contains(p.Targets, qubit) || slices.Contains(p.Controls, qubit)
}

func (p Placement) String() string {
	var sb strings.Builder
	sb.WriteString(p.Gate)
	if len(p.Params) > 0 {
		parts := make([]string, len(p.Params))
		for i, v := range p.Params {
			parts[i] = FormatParam(v)
		}
		fmt.Fprintf(&sb, "(%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&sb, " %v", p.Targets)
	if len(p.Controls) > 0 {
		fmt.Fprintf(&sb, " ctrl %v", p.Controls)
	}
	return sb.String()
}

func (p Placement) clone() Placement {
	return Placement{
		Gate:     p.Gate,
		Targets:  slices.Clone(p.Targets),
		Controls: slices.Clone(p.Controls),
		Params:   slices.Clone(p.Params),
	}
}

// Step is a set of placements applied simultaneously. Their qubits must be
// disjoint, so application order within a step does not matter.
type Step struct {
	Placements []Placement
}

// Qubits returns the set of qubits used in the step.
func (s Step) Qubits() map[int]bool {
	used := make(map[int]bool)
	for _, p := range s.Placements {
		for _, q := range p.Qubits() {
			used[q] = true
		}
	}
	return used
}

// Circuit is an ordered list of steps over NumQubits qubits.
type Circuit struct {
	NumQubits int
	Steps     []Step
}

// New returns an empty circuit.
func New(numQubits int) *Circuit {
	return &Circuit{NumQubits: numQubits}
}

// Len returns the number of steps.
func (c *Circuit) Len() int {
	return len(c.Steps)
}

// AddStep appends a step and returns its index.
func (c *Circuit) AddStep(placements ...Placement) int {
	c.Steps = append(c.Steps, Step{Placements: placements})
	return len(c.Steps) - 1
}

// CanPlace reports whether the qubits are all free at step.
func (c *Circuit) CanPlace(step int, qubits []int) bool {
	if step < 0 {
		return false
	}
	if step >= len(c.Steps) {
		return true
	}
	for _, q := range qubits {
		if c.PlacementAt(step, q) != nil {
			return false
		}
	}
	return true
}

// Place adds p to step, growing the circuit as needed.
func (c *Circuit) Place(step int, p Placement) error {
	if step < 0 {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, step)
	}
	if err := c.checkPlacement(p); err != nil {
		return err
	}
	if !c.CanPlace(step, p.Qubits()) {
		return fmt.Errorf("%w: step %d, %s", ErrOverlappingPlacement, step, p)
	}
	for len(c.Steps) <= step {
		c.Steps = append(c.Steps, Step{})
	}
	c.Steps[step].Placements = append(c.Steps[step].Placements, p)
	return nil
}

// PlacementAt returns the placement touching qubit at step, or nil.
func (c *Circuit) PlacementAt(step, qubit int) *Placement {
	if step < 0 || step >= len(c.Steps) {
		return nil
	}
	for i := range c.Steps[step].Placements {
		p := &c.Steps[step].Placements[i]
		if p.References(qubit) {
			return p
		}
	}
	return nil
}

// RemoveAt removes the placement touching qubit at step.
func (c *Circuit) RemoveAt(step, qubit int) {
	if step < 0 || step >= len(c.Steps) {
		return
	}
	c.Steps[step].Placements = slices.DeleteFunc(c.Steps[step].Placements, func(p Placement) bool {
		return p.References(qubit)
	})
}

// Clone returns a deep copy.
func (c *Circuit) Clone() *Circuit {
	out := &Circuit{NumQubits: c.NumQubits, Steps: make([]Step, len(c.Steps))}
	for i, s := range c.Steps {
		ps := make([]Placement, len(s.Placements))
		for j, p := range s.Placements {
			ps[j] = p.clone()
		}
		out.Steps[i] = Step{Placements: ps}
	}
	return out
}

func (c *Circuit) checkPlacement(p Placement) error {
	if len(p.Targets) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPlacement, p.Gate)
	}
	seen := make(map[int]bool)
	for _, q := range p.Qubits() {
		if q < 0 || q >= c.NumQubits {
			return fmt.Errorf("%w: %s uses q[%d], circuit has %d", ErrQubitOutOfRange, p, q, c.NumQubits)
		}
		if seen[q] {
			return fmt.Errorf("%w: %s repeats q[%d]", ErrDuplicateQubit, p, q)
		}
		seen[q] = true
	}
	return nil
}

// Validate checks qubit ranges and that no two placements in a step overlap.
func (c *Circuit) Validate() error {
	for i, s := range c.Steps {
		used := make(map[int]bool)
		for j, p := range s.Placements {
			if err := c.checkPlacement(p); err != nil {
				return fmt.Errorf("step %d placement %d: %w", i, j, err)
			}
			for _, q := range p.Qubits() {
				if used[q] {
					return fmt.Errorf("step %d placement %d: %w: q[%d]", i, j, ErrOverlappingPlacement, q)
				}
				used[q] = true
			}
		}
	}
	return nil
}

// Compact moves every placement to the earliest step after the last
// placement that shares one of its qubits. Relative order on each qubit is
// kept, so the compacted circuit computes the same unitary.
func (c *Circuit) Compact() *Circuit {
	out := &Circuit{NumQubits: c.NumQubits}
	last := make(map[int]int)
	for _, s := range c.Steps {
		for _, p := range s.Placements {
			step := 0
			for _, q := range p.Qubits() {
				if at, ok := last[q]; ok {
					step = max(step, at+1)
				}
			}
			for len(out.Steps) <= step {
				out.Steps = append(out.Steps, Step{})
			}
			out.Steps[step].Placements = append(out.Steps[step].Placements, p.clone())
			for _, q := range p.Qubits() {
				last[q] = step
			}
		}
	}
	return out
}

// GateNames lists the distinct gate names used, in order of first use.
func (c *Circuit) GateNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range c.Steps {
		for _, p := range s.Placements {
			key := strings.ToUpper(p.Gate)
			if !seen[key] {
				seen[key] = true
				names = append(names, p.Gate)
			}
		}
	}
	return names
}
