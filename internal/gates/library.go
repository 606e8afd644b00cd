// Package gates resolves gate names to unitary matrices.
package gates

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
)

const unitaryTolerance = 1e-9

var (
	ErrUnknownGate   = errors.New("unknown gate")
	ErrParamCount    = errors.New("wrong number of gate parameters")
	ErrNotUnitary    = errors.New("matrix is not unitary")
	ErrDuplicateGate = errors.New("gate already defined")
	ErrNoInverse     = errors.New("gate has no known inverse")
	ErrInvalidGate   = errors.New("invalid gate definition")
)

// Generator builds a unitary from gate parameters.
type Generator func(params []float64) (*mat.CDense, error)

// Definition describes one named gate.
type Definition struct {
	Name   string
	Qubits int
	Params int
	// Reversible gates can be undone by applying the conjugate transpose.
	Reversible bool
	Extension  bool
	generate   Generator
}

// Library maps gate names to definitions. Names are case-insensitive.
// A Library is safe for concurrent use.
type Library struct {
	mu         sync.RWMutex
	defs       map[string]Definition
	extensions []string
}

// NewLibrary returns a library holding the built-in gate set.
func NewLibrary() *Library {
	l := &Library{defs: make(map[string]Definition)}
	for _, d := range builtins() {
		l.defs[d.Name] = d
	}
	return l
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Lookup returns the definition registered under name.
func (l *Library) Lookup(name string) (Definition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.defs[normalize(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownGate, name)
	}
	return d, nil
}

// Has reports whether name resolves.
func (l *Library) Has(name string) bool {
	_, err := l.Lookup(name)
	return err == nil
}

// Unitary resolves name with params to its matrix.
func (l *Library) Unitary(name string, params []float64) (*mat.CDense, error) {
	d, err := l.Lookup(name)
	if err != nil {
		return nil, err
	}
	return d.Unitary(params)
}

// Inverse returns the matrix undoing name(params).
func (l *Library) Inverse(name string, params []float64) (*mat.CDense, error) {
	d, err := l.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !d.Reversible {
		return nil, fmt.Errorf("%w: %s", ErrNoInverse, d.Name)
	}
	u, err := d.Unitary(params)
	if err != nil {
		return nil, err
	}
	return Dagger(u), nil
}

// Unitary evaluates the definition's generator.
func (d Definition) Unitary(params []float64) (*mat.CDense, error) {
	if len(params) != d.Params {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrParamCount, d.Name, d.Params, len(params))
	}
	u, err := d.generate(params)
	if err != nil {
		return nil, fmt.Errorf("gate %s: %w", d.Name, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s returned no matrix", ErrInvalidGate, d.Name)
	}
	if k := qubitsFor(u); k != d.Qubits {
		r, c := u.Dims()
		return nil, fmt.Errorf("%w: %s produced %dx%d for %d qubits", ErrInvalidGate, d.Name, r, c, d.Qubits)
	}
	return u, nil
}

// ExtensionOption configures a registered extension.
type ExtensionOption func(*Definition)

// Reversible marks an extension as undoable by its conjugate transpose.
func Reversible() ExtensionOption {
	return func(d *Definition) {
		d.Reversible = true
	}
}

// RegisterExtension adds a parametrised gate. The generator is called on
// every resolution and must return a 2^qubits square unitary.
func (l *Library) RegisterExtension(name string, qubits, params int, gen Generator, opts ...ExtensionOption) error {
	name = normalize(name)
	if name == "" || qubits < 1 || params < 0 || gen == nil {
		return fmt.Errorf("%w: %q", ErrInvalidGate, name)
	}
	d := Definition{
		Name:      name,
		Qubits:    qubits,
		Params:    params,
		Extension: true,
		generate:  gen,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return l.add(d)
}

// RegisterMatrix adds a fixed extension gate after checking it is unitary.
func (l *Library) RegisterMatrix(name string, u mat.CMatrix) error {
	k := qubitsFor(u)
	if k < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidGate, normalize(name))
	}
	if !IsUnitary(u, unitaryTolerance) {
		return fmt.Errorf("%w: %s", ErrNotUnitary, normalize(name))
	}
	fixed := clone(u)
	return l.RegisterExtension(name, k, 0, func([]float64) (*mat.CDense, error) {
		return clone(fixed), nil
	}, Reversible())
}

func (l *Library) add(d Definition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.defs[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGate, d.Name)
	}
	l.defs[d.Name] = d
	l.extensions = append(l.extensions, d.Name)
	return nil
}

// ExtensionNames lists registered extension and composite gates in registration order.
func (l *Library) ExtensionNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.extensions)
}

// Names lists every gate the library resolves, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.defs))
	for n := range l.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
