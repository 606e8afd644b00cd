package quantum

import (
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/cmplxs"
)

// AmplitudesOf returns the pure state of the qubits addressed by v, indexed by
// view-local basis index. It fails with ErrNotPure when the view is entangled
// with the rest of the register. An empty register yields all-zero amplitudes.
//
// When the view covers the whole register the amplitudes keep their phase;
// otherwise the factor is taken from the most populated rest-of-system state
// and normalized.
func (r *Register) AmplitudesOf(v View) ([]complex128, error) {
	if err := r.owns(v); err != nil {
		return nil, err
	}

	dim := 1 << len(v.offsets)
	viewMask := v.Mask()

	groups := make(map[uint64][]complex128)
	for index, amp := range r.amps {
		rest := index &^ viewMask
		vec, ok := groups[rest]
		if !ok {
			vec = make([]complex128, dim)
			groups[rest] = vec
		}
		vec[gather(index, v.offsets)] = amp
	}
	if len(groups) == 0 {
		return make([]complex128, dim), nil
	}

	rests := make([]uint64, 0, len(groups))
	for rest := range groups {
		rests = append(rests, rest)
	}
	slices.Sort(rests)

	ref := groups[rests[0]]
	refNorm := vectorNorm(ref)
	for _, rest := range rests[1:] {
		if n := vectorNorm(groups[rest]); n > refNorm {
			ref, refNorm = groups[rest], n
		}
	}

	// (refNorm*n - overlap²)/refNorm is the weight of vec orthogonal to ref.
	for _, rest := range rests {
		vec := groups[rest]
		n := vectorNorm(vec)
		overlap := cmplx.Abs(cmplxs.Dot(ref, vec))
		if refNorm*n-overlap*overlap > r.epsilon*refNorm {
			return nil, ErrNotPure
		}
	}

	out := make([]complex128, dim)
	copy(out, ref)
	if refNorm > 0 {
		cmplxs.Scale(complex(1/math.Sqrt(refNorm), 0), out)
	}
	return out, nil
}

// vectorNorm returns the squared Euclidean norm.
func vectorNorm(vec []complex128) float64 {
	var n float64
	for _, a := range vec {
		n += probability(a)
	}
	return n
}
