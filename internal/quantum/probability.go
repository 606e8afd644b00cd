package quantum

import (
	"math/bits"
	"math/cmplx"
)

type QubitProbability struct {
	Prob0 float64
	Prob1 float64
}

// QubitProbabilities returns P(0) and P(1) for every qubit offset.
func (r *Register) QubitProbabilities() []QubitProbability {
	probs := make([]QubitProbability, r.width)
	for _, index := range r.amps.SortedKeys() {
		prob := probability(r.amps[index])
		for q := 0; q < r.width; q++ {
			if index&(1<<uint(q)) != 0 {
				probs[q].Prob1 += prob
			} else {
				probs[q].Prob0 += prob
			}
		}
	}
	return probs
}

// BasisState describes one populated computational basis state.
type BasisState struct {
	Index     uint64
	Amplitude complex128
	Prob      float64
	Phase     float64
	Hamming   int
}

// BasisStates lists populated basis states with probability above minProb, in index order.
func (r *Register) BasisStates(minProb float64) []BasisState {
	states := make([]BasisState, 0, len(r.amps))
	for _, index := range r.amps.SortedKeys() {
		amp := r.amps[index]
		prob := probability(amp)
		if prob <= minProb {
			continue
		}
		states = append(states, BasisState{
			Index:     index,
			Amplitude: amp,
			Prob:      prob,
			Phase:     cmplx.Phase(amp),
			Hamming:   bits.OnesCount64(index),
		})
	}
	return states
}
