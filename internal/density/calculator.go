package density

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"qtermsim/internal/quantum"
)

// DefaultThreshold is the register width from which the reduction fans out.
const DefaultThreshold = 14

const (
	defaultEpsilon = 1e-9
	// cancelCheckEvery bounds how many entries a worker scans between context checks.
	cancelCheckEvery = 1024
)

var (
	ErrWidth          = errors.New("register width out of range")
	ErrTargetOffset   = errors.New("target qubit offset out of range")
	ErrNotSingleQubit = errors.New("reduced density matrix needs a single-qubit view")
)

// Calculator computes single-qubit reduced density matrices by partial trace.
// It never mutates the amplitude map it is given and is safe for concurrent use.
type Calculator struct {
	threshold int
	workers   int
	epsilon   float64
	log       zerolog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithThreshold sets the width at which the parallel path is taken.
func WithThreshold(width int) Option {
	return func(c *Calculator) {
		c.threshold = width
	}
}

// WithWorkers sets the number of goroutines used by the parallel path.
func WithWorkers(n int) Option {
	return func(c *Calculator) {
		c.workers = n
	}
}

// WithEpsilon sets the trace normalisation tolerance.
func WithEpsilon(eps float64) Option {
	return func(c *Calculator) {
		c.epsilon = eps
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Calculator) {
		c.log = log.With().Str("component", "partial_trace").Logger()
	}
}

// NewCalculator creates a calculator with the given options.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		threshold: DefaultThreshold,
		workers:   runtime.NumCPU(),
		epsilon:   defaultEpsilon,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = 1
	}
	return c
}

var defaultCalculator = NewCalculator()

// Calculate runs the default calculator.
func Calculate(amps quantum.Amplitudes, width, target int) (Matrix, error) {
	return defaultCalculator.Calculate(amps, width, target)
}

// Calculate returns the reduced density matrix of qubit target within a
// register of the given width. An empty map yields the zero matrix, which
// callers must treat as "no population".
func (c *Calculator) Calculate(amps quantum.Amplitudes, width, target int) (Matrix, error) {
	return c.CalculateContext(context.Background(), amps, width, target)
}

// CalculateContext is Calculate with cancellation. Only the parallel path
// observes ctx while running; the sequential path checks it once up front.
func (c *Calculator) CalculateContext(ctx context.Context, amps quantum.Amplitudes, width, target int) (Matrix, error) {
	if width < 1 || width > quantum.MaxWidth {
		return Matrix{}, fmt.Errorf("%w: %d", ErrWidth, width)
	}
	if target < 0 || target >= width {
		return Matrix{}, fmt.Errorf("%w: %d not in [0, %d)", ErrTargetOffset, target, width)
	}
	if err := ctx.Err(); err != nil {
		return Matrix{}, err
	}

	masks := newMasks(width, target)
	entries := snapshot(amps)

	parallel := width >= c.threshold
	c.log.Debug().
		Int("width", width).
		Int("target", target).
		Int("entries", len(entries)).
		Bool("parallel", parallel).
		Msg("partial trace")

	if !parallel {
		return c.sequential(entries, masks), nil
	}
	return c.parallel(ctx, entries, masks)
}

// ReducedDensityMatrix traces out everything except the qubit addressed by v.
func (c *Calculator) ReducedDensityMatrix(r *quantum.Register, v quantum.View) (Matrix, error) {
	if v.Root() != r.ID() {
		return Matrix{}, quantum.ErrForeignView
	}
	if v.Width() != 1 {
		return Matrix{}, fmt.Errorf("%w: view covers %d qubits", ErrNotSingleQubit, v.Width())
	}
	return c.Calculate(r.Read(), r.Width(), v.Offsets()[0])
}

type masks struct {
	target uint64
	rest   uint64
}

func newMasks(width, target int) masks {
	t := uint64(1) << uint(target)
	return masks{
		target: t,
		rest:   ^t & ((uint64(1) << uint(width)) - 1),
	}
}

type entry struct {
	index uint64
	amp   complex128
}

// snapshot copies the map into an index-ordered slice; workers read only this copy.
func snapshot(amps quantum.Amplitudes) []entry {
	entries := make([]entry, 0, len(amps))
	for _, k := range amps.SortedKeys() {
		entries = append(entries, entry{index: k, amp: amps[k]})
	}
	return entries
}

// partial is the immutable result of scanning one chunk of entries.
type partial struct {
	rho00, rho11 float64
	rest0, rest1 map[uint64]complex128
	collisions   int
}

func newPartial() partial {
	return partial{
		rest0: make(map[uint64]complex128),
		rest1: make(map[uint64]complex128),
	}
}

// scan folds entries into p. Later entries overwrite earlier ones on a rest-state collision.
func (p *partial) scan(entries []entry, m masks) {
	for _, e := range entries {
		prob := real(e.amp)*real(e.amp) + imag(e.amp)*imag(e.amp)
		rest := e.index & m.rest
		bucket := p.rest0
		if e.index&m.target != 0 {
			p.rho11 += prob
			bucket = p.rest1
		} else {
			p.rho00 += prob
		}
		if _, dup := bucket[rest]; dup {
			p.collisions++
		}
		bucket[rest] = e.amp
	}
}

// coherence sums amp0·conj(amp1) over the given rest-states of the target=0 partition.
func coherence(keys []uint64, rest0, rest1 map[uint64]complex128) complex128 {
	var sum complex128
	for _, k := range keys {
		if amp1, ok := rest1[k]; ok {
			sum += rest0[k] * cmplx.Conj(amp1)
		}
	}
	return sum
}

func sortedRestKeys(m map[uint64]complex128) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *Calculator) sequential(entries []entry, m masks) Matrix {
	p := newPartial()
	p.scan(entries, m)
	rho01 := coherence(sortedRestKeys(p.rest0), p.rest0, p.rest1)
	return c.assemble(p.rho00, p.rho11, rho01)
}

// parallel fans the snapshot out in contiguous chunks. Each worker returns an
// immutable partial; merging happens on the calling goroutine in chunk order,
// so the result does not depend on scheduling.
func (c *Calculator) parallel(ctx context.Context, entries []entry, m masks) (Matrix, error) {
	chunks := split(len(entries), c.workers)

	partials := make([]partial, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, ch := range chunks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newPartial()
			for start := ch[0]; start < ch[1]; start += cancelCheckEvery {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					return
				}
				p.scan(entries[start:min(start+cancelCheckEvery, ch[1])], m)
			}
			partials[i] = p
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return Matrix{}, err
	}

	merged := mergePartials(partials)
	if merged.collisions > 0 {
		c.log.Warn().Int("collisions", merged.collisions).Msg("rest-state collisions during partial trace")
	}

	keys := sortedRestKeys(merged.rest0)
	keyChunks := split(len(keys), c.workers)
	sums := make([]complex128, len(keyChunks))
	errs = make([]error, len(keyChunks))
	for i, ch := range keyChunks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var sum complex128
			for start := ch[0]; start < ch[1]; start += cancelCheckEvery {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					return
				}
				end := min(start+cancelCheckEvery, ch[1])
				sum += coherence(keys[start:end], merged.rest0, merged.rest1)
			}
			sums[i] = sum
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return Matrix{}, err
	}

	var rho01 complex128
	for _, s := range sums {
		rho01 += s
	}
	return c.assemble(merged.rho00, merged.rho11, rho01), nil
}

func mergePartials(partials []partial) partial {
	merged := newPartial()
	for _, p := range partials {
		merged.rho00 += p.rho00
		merged.rho11 += p.rho11
		merged.collisions += p.collisions
		for k, v := range p.rest0 {
			if _, dup := merged.rest0[k]; dup {
				merged.collisions++
			}
			merged.rest0[k] = v
		}
		for k, v := range p.rest1 {
			if _, dup := merged.rest1[k]; dup {
				merged.collisions++
			}
			merged.rest1[k] = v
		}
	}
	return merged
}

// split divides n items into at most parts contiguous [start, end) ranges.
func split(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	parts = min(parts, n)
	size := (n + parts - 1) / parts
	ranges := make([][2]int, 0, parts)
	for start := 0; start < n; start += size {
		ranges = append(ranges, [2]int{start, min(start+size, n)})
	}
	return ranges
}

func (c *Calculator) assemble(rho00, rho11 float64, rho01 complex128) Matrix {
	m := Matrix{
		{complex(rho00, 0), rho01},
		{cmplx.Conj(rho01), complex(rho11, 0)},
	}

	trace := m.Trace()
	if math.Abs(trace-1) > c.epsilon && math.Abs(trace) > c.epsilon {
		inv := complex(1/trace, 0)
		for i := range m {
			for j := range m[i] {
				m[i][j] *= inv
			}
		}
	}
	return m
}
