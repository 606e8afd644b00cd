package quantum

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Apply multiplies the amplitudes addressed by v with the unitary u. The
// unitary must be 2^k×2^k for a k-qubit view; row/column bit i corresponds to
// the view's i-th offset.
func (r *Register) Apply(v View, u mat.CMatrix) error {
	return r.ApplyControlled(v, nil, u)
}

// ApplyControlled applies u to v only on basis states whose control qubits are all 1.
func (r *Register) ApplyControlled(v View, controls []int, u mat.CMatrix) error {
	if err := r.owns(v); err != nil {
		return err
	}
	if len(controls) > 0 {
		claimed := make(map[int]bool, len(v.offsets))
		for _, o := range v.offsets {
			claimed[o] = true
		}
		if err := r.checkOffsets(controls, claimed); err != nil {
			return fmt.Errorf("controls: %w", err)
		}
	}

	k := len(v.offsets)
	dim := 1 << k
	rows, cols := u.Dims()
	if rows != dim || cols != dim {
		return fmt.Errorf("%w: %dx%d unitary for %d-qubit view", ErrDimensionMismatch, rows, cols, k)
	}

	m := make([]complex128, dim*dim)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			m[i*dim+j] = u.At(i, j)
		}
	}

	targetMask := offsetMask(v.offsets)
	controlMask := offsetMask(controls)

	next := make(Amplitudes, len(r.amps))
	groups := make(map[uint64][]complex128)
	for index, amp := range r.amps {
		if index&controlMask != controlMask {
			next[index] = amp
			continue
		}
		base := index &^ targetMask
		vec, ok := groups[base]
		if !ok {
			vec = make([]complex128, dim)
			groups[base] = vec
		}
		vec[gather(index, v.offsets)] = amp
	}

	for base, vec := range groups {
		for row := 0; row < dim; row++ {
			var sum complex128
			for col, amp := range vec {
				if amp != 0 {
					sum += m[row*dim+col] * amp
				}
			}
			if cmplx.Abs(sum) > r.pruneTolerance {
				next[base|scatter(row, v.offsets)] = sum
			}
		}
	}

	r.amps = next
	return nil
}
