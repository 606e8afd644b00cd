package gates

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const eps = 1e-9

func paramsFor(d Definition) []float64 {
	p := make([]float64, d.Params)
	for i := range p {
		p[i] = 0.3 + 0.7*float64(i)
	}
	return p
}

func mul(a, b mat.CMatrix) *mat.CDense {
	n, _ := a.Dims()
	out := mat.NewCDense(n, n, nil)
	for i := range n {
		for j := range n {
			var sum complex128
			for k := range n {
				sum += a.At(i, k) * b.At(k, j)
			}
			out.Set(i, j, sum)
		}
	}
	return out
}

func TestBuiltins_AreUnitary(t *testing.T) {
	l := NewLibrary()
	for _, name := range l.Names() {
		t.Run(name, func(t *testing.T) {
			d, err := l.Lookup(name)
			require.NoError(t, err)
			u, err := d.Unitary(paramsFor(d))
			require.NoError(t, err)
			assert.True(t, IsUnitary(u, eps), "%s is not unitary", name)
			assert.True(t, d.Reversible)
			assert.False(t, d.Extension)
		})
	}
}

func TestInverse_UndoesGate(t *testing.T) {
	l := NewLibrary()
	for _, name := range []string{"H", "S", "T", "SX", "RX", "U3", "CRZ", "CCX", "CU3"} {
		t.Run(name, func(t *testing.T) {
			d, err := l.Lookup(name)
			require.NoError(t, err)
			p := paramsFor(d)
			u, err := l.Unitary(name, p)
			require.NoError(t, err)
			inv, err := l.Inverse(name, p)
			require.NoError(t, err)

			dim, _ := u.Dims()
			assert.True(t, EqualApprox(mul(inv, u), identity(dim), eps))
		})
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	l := NewLibrary()
	d, err := l.Lookup(" cx ")
	require.NoError(t, err)
	assert.Equal(t, "CX", d.Name)
	assert.Equal(t, 2, d.Qubits)
	assert.True(t, l.Has("sdg"))
}

func TestLookup_UnknownGate(t *testing.T) {
	_, err := NewLibrary().Unitary("frobnicate", nil)
	require.ErrorIs(t, err, ErrUnknownGate)
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestUnitary_ParamCount(t *testing.T) {
	l := NewLibrary()
	_, err := l.Unitary("RX", nil)
	assert.ErrorIs(t, err, ErrParamCount)
	_, err = l.Unitary("H", []float64{1})
	assert.ErrorIs(t, err, ErrParamCount)
}

func TestDaggerPairs(t *testing.T) {
	l := NewLibrary()
	pairs := [][2]string{{"S", "SDG"}, {"T", "TDG"}, {"SX", "SXDG"}}
	for _, p := range pairs {
		u, err := l.Unitary(p[0], nil)
		require.NoError(t, err)
		inv, err := l.Unitary(p[1], nil)
		require.NoError(t, err)
		assert.True(t, EqualApprox(Dagger(u), inv, eps), "%s/%s", p[0], p[1])
	}
}

func TestKnownMatrices(t *testing.T) {
	l := NewLibrary()

	sx, err := l.Unitary("SX", nil)
	require.NoError(t, err)
	assert.True(t, EqualApprox(mul(sx, sx), matX, eps), "SX² = X")

	rz, err := l.Unitary("RZ", []float64{math.Pi})
	require.NoError(t, err)
	assert.InDelta(t, 0, real(rz.At(0, 0)), eps)
	assert.InDelta(t, -1, imag(rz.At(0, 0)), eps)

	p, err := l.Unitary("P", []float64{math.Pi / 2})
	require.NoError(t, err)
	assert.True(t, EqualApprox(p, matS, eps), "P(pi/2) = S")

	u3, err := l.Unitary("U3", []float64{math.Pi / 2, 0, math.Pi})
	require.NoError(t, err)
	assert.True(t, EqualApprox(u3, matH, eps), "U3(pi/2, 0, pi) = H")

	u2, err := l.Unitary("U2", []float64{0, math.Pi})
	require.NoError(t, err)
	assert.True(t, EqualApprox(u2, matH, eps), "U2(0, pi) = H")
}

func TestControlled(t *testing.T) {
	cx := Controlled(matX, 1)
	// control is local bit 0: |c=1,t=0⟩ (1) <-> |c=1,t=1⟩ (3)
	want := square(4,
		1, 0, 0, 0,
		0, 0, 0, 1,
		0, 0, 1, 0,
		0, 1, 0, 0)
	assert.True(t, EqualApprox(cx, want, eps))

	ccx := Controlled(matX, 2)
	r, c := ccx.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 8, c)
	assert.Equal(t, complex(1, 0), ccx.At(7, 3))
	assert.Equal(t, complex(1, 0), ccx.At(3, 7))
	assert.Equal(t, complex(1, 0), ccx.At(5, 5))
}

func TestIsUnitary_Rejects(t *testing.T) {
	assert.False(t, IsUnitary(square(2, 1, 1, 0, 1), eps))
	assert.False(t, IsUnitary(mat.NewCDense(2, 4, nil), eps))
	assert.False(t, IsUnitary(identity(3), eps))
}

func TestRegisterExtension(t *testing.T) {
	l := NewLibrary()
	err := l.RegisterExtension("phase2", 2, 1, func(p []float64) (*mat.CDense, error) {
		m := identity(4)
		m.Set(3, 3, phase(p[0]))
		return m, nil
	})
	require.NoError(t, err)

	d, err := l.Lookup("PHASE2")
	require.NoError(t, err)
	assert.True(t, d.Extension)
	assert.False(t, d.Reversible)
	assert.Equal(t, []string{"PHASE2"}, l.ExtensionNames())

	u, err := l.Unitary("phase2", []float64{math.Pi})
	require.NoError(t, err)
	assert.InDelta(t, -1, real(u.At(3, 3)), eps)

	_, err = l.Inverse("phase2", []float64{math.Pi})
	assert.ErrorIs(t, err, ErrNoInverse)

	err = l.RegisterExtension("h", 1, 0, func([]float64) (*mat.CDense, error) { return identity(2), nil })
	assert.ErrorIs(t, err, ErrDuplicateGate)

	err = l.RegisterExtension("", 1, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidGate)
}

func TestRegisterExtension_GeneratorErrors(t *testing.T) {
	l := NewLibrary()
	boom := errors.New("boom")
	require.NoError(t, l.RegisterExtension("bad", 1, 0, func([]float64) (*mat.CDense, error) {
		return nil, boom
	}))
	require.NoError(t, l.RegisterExtension("wide", 1, 0, func([]float64) (*mat.CDense, error) {
		return identity(4), nil
	}))

	_, err := l.Unitary("bad", nil)
	assert.ErrorIs(t, err, boom)
	_, err = l.Unitary("wide", nil)
	assert.ErrorIs(t, err, ErrInvalidGate)
}

func TestRegisterExtension_NilMatrix(t *testing.T) {
	l := NewLibrary()
	require.NoError(t, l.RegisterExtension("empty", 1, 0, func([]float64) (*mat.CDense, error) {
		return nil, nil
	}, Reversible()))

	_, err := l.Unitary("empty", nil)
	assert.ErrorIs(t, err, ErrInvalidGate)
	_, err = l.Inverse("empty", nil)
	assert.ErrorIs(t, err, ErrInvalidGate)
}

func TestRegisterMatrix(t *testing.T) {
	l := NewLibrary()
	require.NoError(t, l.RegisterMatrix("iswap", square(4,
		1, 0, 0, 0,
		0, 0, 1i, 0,
		0, 1i, 0, 0,
		0, 0, 0, 1)))

	u, err := l.Unitary("ISWAP", nil)
	require.NoError(t, err)
	u.Set(0, 0, 5)
	again, err := l.Unitary("ISWAP", nil)
	require.NoError(t, err)
	assert.Equal(t, complex(1, 0), again.At(0, 0), "resolutions must not share storage")

	_, err = l.Inverse("iswap", nil)
	assert.NoError(t, err)

	err = l.RegisterMatrix("skew", square(2, 1, 1, 0, 1))
	assert.ErrorIs(t, err, ErrNotUnitary)
}

func TestDefineComposite_Bell(t *testing.T) {
	l := NewLibrary()
	require.NoError(t, l.DefineComposite("bell", 2, []Op{
		{Gate: "H", Targets: []int{0}},
		{Gate: "CX", Targets: []int{0, 1}},
	}))

	u, err := l.Unitary("BELL", nil)
	require.NoError(t, err)
	assert.True(t, IsUnitary(u, eps))
	// |00⟩ -> (|00⟩ + |11⟩)/√2
	assert.InDelta(t, 1/math.Sqrt2, real(u.At(0, 0)), eps)
	assert.InDelta(t, 1/math.Sqrt2, real(u.At(3, 0)), eps)
	assert.InDelta(t, 0, real(u.At(1, 0)), eps)

	d, err := l.Lookup("bell")
	require.NoError(t, err)
	assert.True(t, d.Reversible)
	assert.True(t, d.Extension)
}

func TestDefineComposite_MatchesBuiltin(t *testing.T) {
	l := NewLibrary()
	// H·X·H = Z
	require.NoError(t, l.DefineComposite("hxh", 1, []Op{
		{Gate: "H", Targets: []int{0}},
		{Gate: "X", Targets: []int{0}},
		{Gate: "H", Targets: []int{0}},
	}))
	u, err := l.Unitary("hxh", nil)
	require.NoError(t, err)
	assert.True(t, EqualApprox(u, matZ, eps))

	// X with an extra control equals CX
	require.NoError(t, l.DefineComposite("cx2", 2, []Op{
		{Gate: "X", Targets: []int{1}, Controls: []int{0}},
	}))
	cx, err := l.Unitary("cx2", nil)
	require.NoError(t, err)
	want, err := l.Unitary("CX", nil)
	require.NoError(t, err)
	assert.True(t, EqualApprox(cx, want, eps))
}

func TestDefineComposite_Errors(t *testing.T) {
	l := NewLibrary()
	err := l.DefineComposite("nope", 1, []Op{{Gate: "missing", Targets: []int{0}}})
	assert.ErrorIs(t, err, ErrUnknownGate)

	err = l.DefineComposite("oob", 1, []Op{{Gate: "H", Targets: []int{1}}})
	assert.Error(t, err)

	err = l.DefineComposite("empty", 1, nil)
	assert.ErrorIs(t, err, ErrInvalidGate)

	require.NoError(t, l.RegisterExtension("opaque", 1, 0, func([]float64) (*mat.CDense, error) {
		return identity(2), nil
	}))
	require.NoError(t, l.DefineComposite("wrapped", 1, []Op{{Gate: "opaque", Targets: []int{0}}}))
	d, err := l.Lookup("wrapped")
	require.NoError(t, err)
	assert.False(t, d.Reversible)
}
