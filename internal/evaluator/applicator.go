package evaluator

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"qtermsim/internal/circuit"
	"qtermsim/internal/gates"
	"qtermsim/internal/quantum"
)

// Applicator resolves placements through a gate library and applies them to
// a register.
type Applicator struct {
	lib *gates.Library
	log zerolog.Logger
}

// NewApplicator creates an applicator backed by lib.
func NewApplicator(lib *gates.Library, log zerolog.Logger) *Applicator {
	return &Applicator{
		lib: lib,
		log: log.With().Str("component", "applicator").Logger(),
	}
}

// Library returns the gate library placements are resolved against.
func (a *Applicator) Library() *gates.Library {
	return a.lib
}

// ApplyPlacement applies one placement. On error the register may already
// hold earlier placements of the same step; callers work on a clone.
func (a *Applicator) ApplyPlacement(reg *quantum.Register, p circuit.Placement) error {
	u, err := a.lib.Unitary(p.Gate, p.Params)
	if err != nil {
		return fmt.Errorf("placement %s: %w", p, err)
	}
	return a.apply(reg, p, u)
}

func (a *Applicator) apply(reg *quantum.Register, p circuit.Placement, u mat.CMatrix) error {
	v, err := reg.View(p.Targets...)
	if err != nil {
		return fmt.Errorf("placement %s: %w", p, err)
	}
	if err := reg.ApplyControlled(v, p.Controls, u); err != nil {
		return fmt.Errorf("placement %s: %w", p, err)
	}
	return nil
}

// ApplyStep applies every placement of a step. Placements act on disjoint
// qubits, so their order does not change the result.
func (a *Applicator) ApplyStep(reg *quantum.Register, step circuit.Step) error {
	if err := checkDisjoint(step); err != nil {
		return err
	}
	for _, p := range step.Placements {
		if err := a.ApplyPlacement(reg, p); err != nil {
			return err
		}
	}
	return nil
}

// CanUndo reports whether every placement in step has a known inverse.
func (a *Applicator) CanUndo(step circuit.Step) bool {
	for _, p := range step.Placements {
		d, err := a.lib.Lookup(p.Gate)
		if err != nil || !d.Reversible {
			return false
		}
	}
	return true
}

// UndoStep applies the inverse of every placement in step.
func (a *Applicator) UndoStep(reg *quantum.Register, step circuit.Step) error {
	if err := checkDisjoint(step); err != nil {
		return err
	}
	for _, p := range step.Placements {
		inv, err := a.lib.Inverse(p.Gate, p.Params)
		if err != nil {
			return fmt.Errorf("placement %s: %w", p, err)
		}
		if err := a.apply(reg, p, inv); err != nil {
			return err
		}
	}
	return nil
}

func checkDisjoint(step circuit.Step) error {
	used := make(map[int]bool)
	for _, p := range step.Placements {
		for _, q := range p.Qubits() {
			if used[q] {
				return fmt.Errorf("%w: q[%d] in %s", circuit.ErrOverlappingPlacement, q, p)
			}
			used[q] = true
		}
	}
	return nil
}
