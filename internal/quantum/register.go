package quantum

import (
	"errors"
	"fmt"
	"math/cmplx"
	"slices"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// MaxWidth is the widest register a uint64 basis index can address.
const MaxWidth = 63

const (
	defaultEpsilon        = 1e-9
	defaultPruneTolerance = 1e-12
)

var (
	ErrDimensionMismatch = errors.New("unitary dimension does not match view width")
	ErrNotPure           = errors.New("view has no pure-state representation")
	ErrInvalidWidth      = errors.New("register width out of range")
	ErrInvalidOffset     = errors.New("qubit offset out of range")
	ErrDuplicateOffset   = errors.New("qubit offset used twice")
	ErrForeignView       = errors.New("view belongs to a different register")
)

// Amplitudes maps a basis index to its complex amplitude. Indices that are
// absent have amplitude exactly zero.
type Amplitudes map[uint64]complex128

// SortedKeys returns the populated basis indices in ascending order.
func (a Amplitudes) SortedKeys() []uint64 {
	keys := make([]uint64, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns an independent copy of the map.
func (a Amplitudes) Clone() Amplitudes {
	out := make(Amplitudes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Norm returns the sum of squared moduli, accumulated in ascending key order.
func (a Amplitudes) Norm() float64 {
	probs := make([]float64, 0, len(a))
	for _, k := range a.SortedKeys() {
		probs = append(probs, probability(a[k]))
	}
	return floats.Sum(probs)
}

// EqualApprox reports whether both maps agree on every basis index within eps.
// A key missing on one side counts as a zero amplitude.
func (a Amplitudes) EqualApprox(b Amplitudes, eps float64) bool {
	for k, va := range a {
		if cmplx.Abs(va-b[k]) > eps {
			return false
		}
	}
	for k, vb := range b {
		if _, ok := a[k]; !ok && cmplx.Abs(vb) > eps {
			return false
		}
	}
	return true
}

// Register is a root quantum register: the single owner of an amplitude map.
type Register struct {
	id             uuid.UUID
	width          int
	amps           Amplitudes
	epsilon        float64
	pruneTolerance float64
}

// Option configures a Register.
type Option func(*Register)

// WithEpsilon sets the tolerance used for purity and equality checks.
func WithEpsilon(eps float64) Option {
	return func(r *Register) {
		r.epsilon = eps
	}
}

// WithPruneTolerance sets the modulus below which amplitudes are dropped after Apply.
func WithPruneTolerance(tol float64) Option {
	return func(r *Register) {
		r.pruneTolerance = tol
	}
}

// NewRegister creates a register of the given width in the all-zero basis state.
func NewRegister(width int, opts ...Option) (*Register, error) {
	r := &Register{
		id:             uuid.New(),
		epsilon:        defaultEpsilon,
		pruneTolerance: defaultPruneTolerance,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reset(width); err != nil {
		return nil, err
	}
	return r, nil
}

// ID identifies the register; views carry it to prove which root they address.
func (r *Register) ID() uuid.UUID {
	return r.id
}

// Width returns the number of qubits.
func (r *Register) Width() int {
	return r.width
}

// Epsilon returns the numerical tolerance the register was configured with.
func (r *Register) Epsilon() float64 {
	return r.epsilon
}

// Reset reinitializes the register to |0...0⟩ with the given width.
func (r *Register) Reset(width int) error {
	if width < 1 || width > MaxWidth {
		return fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	r.width = width
	r.amps = Amplitudes{0: 1}
	return nil
}

// Read returns a copy of the amplitude map. Mutating it does not touch the register.
func (r *Register) Read() Amplitudes {
	return r.amps.Clone()
}

// Len returns the number of populated basis states.
func (r *Register) Len() int {
	return len(r.amps)
}

// Amplitude returns the amplitude of one basis index.
func (r *Register) Amplitude(index uint64) complex128 {
	return r.amps[index]
}

// Norm returns Σ|amplitude|².
func (r *Register) Norm() float64 {
	return r.amps.Norm()
}

// IsZeroState reports whether the register holds |0...0⟩ within epsilon.
func (r *Register) IsZeroState() bool {
	return r.amps.EqualApprox(Amplitudes{0: 1}, r.epsilon)
}

// Load replaces the amplitude map. Indices must fit the register width.
func (r *Register) Load(amps Amplitudes) error {
	limit := uint64(1) << r.width
	next := make(Amplitudes, len(amps))
	for k, v := range amps {
		if k >= limit {
			return fmt.Errorf("%w: basis index %d exceeds width %d", ErrInvalidOffset, k, r.width)
		}
		if v != 0 {
			next[k] = v
		}
	}
	r.amps = next
	return nil
}

// Clone returns a deep copy sharing the same identity, so views of r remain valid on it.
func (r *Register) Clone() *Register {
	return &Register{
		id:             r.id,
		width:          r.width,
		amps:           r.amps.Clone(),
		epsilon:        r.epsilon,
		pruneTolerance: r.pruneTolerance,
	}
}

// CopyFrom commits the state of another register with the same identity.
func (r *Register) CopyFrom(other *Register) error {
	if other.id != r.id {
		return ErrForeignView
	}
	r.width = other.width
	r.amps = other.amps.Clone()
	return nil
}

func probability(a complex128) float64 {
	return real(a)*real(a) + imag(a)*imag(a)
}
