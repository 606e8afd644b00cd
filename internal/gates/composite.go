package gates

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"qtermsim/internal/quantum"
)

// MaxCompositeQubits bounds the matrix a composite gate expands to.
const MaxCompositeQubits = 10

// Op is one gate application inside a composite body, addressed by local
// offsets in [0, qubits).
type Op struct {
	Gate     string
	Targets  []int
	Controls []int
	Params   []float64
}

// DefineComposite registers name as body applied in order. Its matrix is
// derived once by evolving every basis state through the body; column j is
// the image of |j⟩. The composite is reversible when every body gate is.
func (l *Library) DefineComposite(name string, qubits int, body []Op) error {
	if qubits < 1 || qubits > MaxCompositeQubits || len(body) == 0 {
		return fmt.Errorf("%w: composite %q on %d qubits", ErrInvalidGate, normalize(name), qubits)
	}

	reversible := true
	for _, op := range body {
		d, err := l.Lookup(op.Gate)
		if err != nil {
			return fmt.Errorf("composite %s: %w", normalize(name), err)
		}
		reversible = reversible && d.Reversible
	}

	u, err := l.expand(qubits, body)
	if err != nil {
		return fmt.Errorf("composite %s: %w", normalize(name), err)
	}

	opts := []ExtensionOption{}
	if reversible {
		opts = append(opts, Reversible())
	}
	return l.RegisterExtension(name, qubits, 0, func([]float64) (*mat.CDense, error) {
		return clone(u), nil
	}, opts...)
}

func (l *Library) expand(qubits int, body []Op) (*mat.CDense, error) {
	dim := 1 << uint(qubits)
	out := mat.NewCDense(dim, dim, nil)
	reg, err := quantum.NewRegister(qubits)
	if err != nil {
		return nil, err
	}
	for col := range dim {
		if err := reg.Load(quantum.Amplitudes{uint64(col): 1}); err != nil {
			return nil, err
		}
		for i, op := range body {
			u, err := l.Unitary(op.Gate, op.Params)
			if err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
			v, err := reg.View(op.Targets...)
			if err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
			if err := reg.ApplyControlled(v, op.Controls, u); err != nil {
				return nil, fmt.Errorf("op %d (%s): %w", i, normalize(op.Gate), err)
			}
		}
		for row := range dim {
			out.Set(row, col, reg.Amplitude(uint64(row)))
		}
	}
	return out, nil
}
