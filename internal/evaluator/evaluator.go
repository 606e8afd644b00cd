// Package evaluator steps a circuit forwards and backwards over a sparse register.
package evaluator

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"qtermsim/internal/circuit"
	"qtermsim/internal/config"
	"qtermsim/internal/density"
	"qtermsim/internal/gates"
	"qtermsim/internal/quantum"
)

var (
	ErrCursorOutOfRange = errors.New("cursor out of range")
	ErrReverseMode      = errors.New("unknown reverse mode")
)

// Transition describes one cursor move.
type Transition struct {
	From   int
	Cursor int
	// OutputChanged is set when the amplitude map differs from before the move.
	OutputChanged bool
	// NoOp is set when the cursor did not move.
	NoOp bool
}

// Observer receives every completed transition.
type Observer func(Transition)

// Evaluator owns the register of one loaded circuit and a cursor into its
// steps. The state always equals steps [0, cursor) applied to |0...0⟩.
// An Evaluator is not safe for concurrent mutation; observers run on the
// goroutine that caused the transition.
type Evaluator struct {
	app         *Applicator
	calc        *density.Calculator
	log         zerolog.Logger
	reverseMode string
	epsilon     float64
	pruneTol    float64

	circ   *circuit.Circuit
	reg    *quantum.Register
	cursor int
	snaps  *snapshotCache

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReverseMode selects how PrevStep rewinds: config.ReverseInverse or config.ReverseReplay.
func WithReverseMode(mode string) Option {
	return func(e *Evaluator) {
		e.reverseMode = mode
	}
}

// WithSnapshotInterval caches the state every n steps; 0 disables caching.
func WithSnapshotInterval(n int) Option {
	return func(e *Evaluator) {
		e.snaps = newSnapshotCache(n)
	}
}

// WithEpsilon sets the tolerance for output-change detection and purity checks.
func WithEpsilon(eps float64) Option {
	return func(e *Evaluator) {
		e.epsilon = eps
	}
}

// WithPruneTolerance sets the modulus below which amplitudes are dropped.
func WithPruneTolerance(tol float64) Option {
	return func(e *Evaluator) {
		e.pruneTol = tol
	}
}

// WithCalculator sets the partial trace calculator.
func WithCalculator(c *density.Calculator) Option {
	return func(e *Evaluator) {
		e.calc = c
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Evaluator) {
		e.log = log.With().Str("component", "evaluator").Logger()
	}
}

// New creates an evaluator with an empty one-qubit circuit loaded.
func New(lib *gates.Library, opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		log:         zerolog.Nop(),
		reverseMode: config.ReverseInverse,
		epsilon:     1e-9,
		pruneTol:    1e-12,
		snaps:       newSnapshotCache(config.Default().SnapshotInterval),
		observers:   make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reverseMode != config.ReverseInverse && e.reverseMode != config.ReverseReplay {
		return nil, fmt.Errorf("%w: %q", ErrReverseMode, e.reverseMode)
	}
	if e.calc == nil {
		e.calc = density.NewCalculator(density.WithEpsilon(e.epsilon), density.WithLogger(e.log))
	}
	e.app = NewApplicator(lib, e.log)
	if err := e.Load(circuit.New(1)); err != nil {
		return nil, err
	}
	return e, nil
}

// FromConfig builds an evaluator and its calculator from cfg.
func FromConfig(cfg *config.Config, lib *gates.Library, log zerolog.Logger) (*Evaluator, error) {
	calc := density.NewCalculator(
		density.WithThreshold(cfg.ParallelThreshold),
		density.WithWorkers(cfg.Workers),
		density.WithEpsilon(cfg.Epsilon),
		density.WithLogger(log),
	)
	return New(lib,
		WithReverseMode(cfg.ReverseMode),
		WithSnapshotInterval(cfg.SnapshotInterval),
		WithEpsilon(cfg.Epsilon),
		WithPruneTolerance(cfg.PruneTolerance),
		WithCalculator(calc),
		WithLogger(log),
	)
}

// Load validates c and makes it the active circuit with the cursor at 0.
// Views created before Load belong to the previous register and are rejected.
func (e *Evaluator) Load(c *circuit.Circuit) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("load circuit: %w", err)
	}
	reg, err := quantum.NewRegister(max(c.NumQubits, 1),
		quantum.WithEpsilon(e.epsilon),
		quantum.WithPruneTolerance(e.pruneTol),
	)
	if err != nil {
		return fmt.Errorf("load circuit: %w", err)
	}
	e.circ = c.Clone()
	e.reg = reg
	e.cursor = 0
	e.snaps.reset()
	e.log.Info().
		Int("qubits", reg.Width()).
		Int("steps", c.Len()).
		Msg("circuit loaded")
	return nil
}

// Circuit returns a copy of the loaded circuit.
func (e *Evaluator) Circuit() *circuit.Circuit {
	return e.circ.Clone()
}

// Cursor returns the number of steps applied.
func (e *Evaluator) Cursor() int {
	return e.cursor
}

// Len returns the number of steps in the loaded circuit.
func (e *Evaluator) Len() int {
	return e.circ.Len()
}

// Width returns the register width.
func (e *Evaluator) Width() int {
	return e.reg.Width()
}

// Calculator returns the partial trace calculator used for visualization queries.
func (e *Evaluator) Calculator() *density.Calculator {
	return e.calc
}

// Subscribe registers o for every transition and returns a function removing it.
func (e *Evaluator) Subscribe(o Observer) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = o
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		delete(e.observers, id)
	}
}

func (e *Evaluator) notify(t Transition) {
	e.log.Debug().
		Int("from", t.From).
		Int("cursor", t.Cursor).
		Bool("output_changed", t.OutputChanged).
		Bool("noop", t.NoOp).
		Msg("transition")

	e.obsMu.Lock()
	ids := make([]int, 0, len(e.observers))
	for id := range e.observers {
		ids = append(ids, id)
	}
	e.obsMu.Unlock()

	// deliver in subscription order
	slices.Sort(ids)
	for _, id := range ids {
		e.obsMu.Lock()
		o, ok := e.observers[id]
		e.obsMu.Unlock()
		if ok {
			o(t)
		}
	}
}

// commit installs work as the new state and reports the move.
func (e *Evaluator) commit(work *quantum.Register, to int) (Transition, error) {
	before := e.reg.Read()
	if err := e.reg.CopyFrom(work); err != nil {
		return Transition{}, err
	}
	t := Transition{
		From:          e.cursor,
		Cursor:        to,
		OutputChanged: !before.EqualApprox(e.reg.Read(), e.epsilon),
		NoOp:          e.cursor == to,
	}
	e.cursor = to
	e.notify(t)
	return t, nil
}

func (e *Evaluator) fail(op string, err error) error {
	e.log.Warn().Err(err).Str("op", op).Int("cursor", e.cursor).Msg("transition aborted")
	return fmt.Errorf("%s at step %d: %w", op, e.cursor, err)
}

// Restart returns to cursor 0 and the all-zero state. It always succeeds.
func (e *Evaluator) Restart() Transition {
	work := e.reg.Clone()
	// width is already valid, so Reset cannot fail
	_ = work.Reset(work.Width())
	t, _ := e.commit(work, 0)
	return t
}

// NextStep applies the step at the cursor. At the end of the circuit it
// reports a no-op.
func (e *Evaluator) NextStep() (Transition, error) {
	if e.cursor >= e.circ.Len() {
		return e.commit(e.reg.Clone(), e.cursor)
	}
	work := e.reg.Clone()
	if err := e.app.ApplyStep(work, e.circ.Steps[e.cursor]); err != nil {
		return Transition{}, e.fail("next", err)
	}
	e.remember(e.cursor+1, work)
	return e.commit(work, e.cursor+1)
}

// PrevStep undoes the step before the cursor. At cursor 0 it restarts.
func (e *Evaluator) PrevStep() (Transition, error) {
	if e.cursor == 0 {
		return e.Restart(), nil
	}
	target := e.cursor - 1
	step := e.circ.Steps[target]

	if e.reverseMode == config.ReverseInverse && e.app.CanUndo(step) {
		if _, ok := e.snaps.entries[target]; !ok {
			work := e.reg.Clone()
			if err := e.app.UndoStep(work, step); err != nil {
				return Transition{}, e.fail("prev", err)
			}
			return e.commit(work, target)
		}
	}

	work, err := e.rebuild(target)
	if err != nil {
		return Transition{}, e.fail("prev", err)
	}
	return e.commit(work, target)
}

// RunToEnd applies every remaining step.
func (e *Evaluator) RunToEnd() (Transition, error) {
	return e.Seek(e.circ.Len())
}

// Seek moves the cursor to target, replaying from the nearest snapshot when
// moving backwards.
func (e *Evaluator) Seek(target int) (Transition, error) {
	if target < 0 || target > e.circ.Len() {
		return Transition{}, fmt.Errorf("%w: %d not in [0, %d]", ErrCursorOutOfRange, target, e.circ.Len())
	}
	if target == 0 {
		return e.Restart(), nil
	}

	var work *quantum.Register
	if target >= e.cursor {
		work = e.reg.Clone()
		if err := e.forward(work, e.cursor, target); err != nil {
			return Transition{}, e.fail("seek", err)
		}
	} else {
		var err error
		if work, err = e.rebuild(target); err != nil {
			return Transition{}, e.fail("seek", err)
		}
	}
	return e.commit(work, target)
}

// rebuild returns a fresh register holding the state at cursor target,
// starting from the nearest snapshot at or before it.
func (e *Evaluator) rebuild(target int) (*quantum.Register, error) {
	work := e.reg.Clone()
	from, amps, ok, err := e.snaps.nearest(target)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := work.Load(amps); err != nil {
			return nil, err
		}
	} else {
		from = 0
		if err := work.Reset(work.Width()); err != nil {
			return nil, err
		}
	}
	e.log.Debug().Int("from", from).Int("to", target).Msg("replay")
	return work, e.forward(work, from, target)
}

func (e *Evaluator) forward(work *quantum.Register, from, to int) error {
	for k := from; k < to; k++ {
		if err := e.app.ApplyStep(work, e.circ.Steps[k]); err != nil {
			return fmt.Errorf("step %d: %w", k, err)
		}
		e.remember(k+1, work)
	}
	return nil
}

func (e *Evaluator) remember(cursor int, reg *quantum.Register) {
	if !e.snaps.wants(cursor) {
		return
	}
	if err := e.snaps.store(cursor, reg); err != nil {
		e.log.Warn().Err(err).Int("cursor", cursor).Msg("snapshot skipped")
	}
}

// State returns a copy of the amplitude map.
func (e *Evaluator) State() quantum.Amplitudes {
	return e.reg.Read()
}

// Qubit returns a view of one qubit of the current register.
func (e *Evaluator) Qubit(offset int) (quantum.View, error) {
	return e.reg.Qubit(offset)
}

// View returns a view over offsets of the current register.
func (e *Evaluator) View(offsets ...int) (quantum.View, error) {
	return e.reg.View(offsets...)
}

// AmplitudesOf returns the pure amplitudes of v, or quantum.ErrNotPure.
func (e *Evaluator) AmplitudesOf(v quantum.View) ([]complex128, error) {
	return e.reg.AmplitudesOf(v)
}

// ReducedDensityMatrix traces out every qubit except the one v addresses.
func (e *Evaluator) ReducedDensityMatrix(v quantum.View) (density.Matrix, error) {
	return e.calc.ReducedDensityMatrix(e.reg, v)
}

// QubitProbabilities returns P(0) and P(1) per qubit.
func (e *Evaluator) QubitProbabilities() []quantum.QubitProbability {
	return e.reg.QubitProbabilities()
}

// BasisStates lists populated basis states with probability above minProb.
func (e *Evaluator) BasisStates(minProb float64) []quantum.BasisState {
	return e.reg.BasisStates(minProb)
}
