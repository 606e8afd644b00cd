package gates

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"
)

var invSqrt2 = complex(1/math.Sqrt2, 0)

func square(n int, data ...complex128) *mat.CDense {
	return mat.NewCDense(n, n, data)
}

func identity(dim int) *mat.CDense {
	m := mat.NewCDense(dim, dim, nil)
	for i := range dim {
		m.Set(i, i, 1)
	}
	return m
}

func phase(theta float64) complex128 {
	return cmplx.Exp(complex(0, theta))
}

func clone(u mat.CMatrix) *mat.CDense {
	r, c := u.Dims()
	out := mat.NewCDense(r, c, nil)
	for i := range r {
		for j := range c {
			out.Set(i, j, u.At(i, j))
		}
	}
	return out
}

// Dagger returns the conjugate transpose of u.
func Dagger(u mat.CMatrix) *mat.CDense {
	r, c := u.Dims()
	out := mat.NewCDense(c, r, nil)
	for i := range r {
		for j := range c {
			out.Set(j, i, cmplx.Conj(u.At(i, j)))
		}
	}
	return out
}

// Controlled extends u with n control qubits. The controls occupy the low
// local bits, so a placement lists its control offsets before its targets.
func Controlled(u mat.CMatrix, n int) *mat.CDense {
	dim, _ := u.Dims()
	size := dim << uint(n)
	all := (1 << uint(n)) - 1
	out := identity(size)
	for row := range size {
		if row&all != all {
			continue
		}
		for col := range size {
			if col&all != all {
				continue
			}
			out.Set(row, col, u.At(row>>uint(n), col>>uint(n)))
		}
	}
	return out
}

func columns(u mat.CMatrix) [][]complex128 {
	r, c := u.Dims()
	cols := make([][]complex128, c)
	for j := range c {
		cols[j] = make([]complex128, r)
		for i := range r {
			cols[j][i] = u.At(i, j)
		}
	}
	return cols
}

// IsUnitary reports whether u is square, a power of two in size, and has
// orthonormal columns within eps.
func IsUnitary(u mat.CMatrix, eps float64) bool {
	r, c := u.Dims()
	if r != c || r == 0 || r&(r-1) != 0 {
		return false
	}
	cols := columns(u)
	for i := range cols {
		for j := i; j < len(cols); j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(cmplx.Abs(cmplxs.Dot(cols[i], cols[j]))-want) > eps {
				return false
			}
		}
	}
	return true
}

// EqualApprox compares two matrices entry-wise.
func EqualApprox(a, b mat.CMatrix, eps float64) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	for i := range ar {
		for j := range ac {
			if cmplx.Abs(a.At(i, j)-b.At(i, j)) > eps {
				return false
			}
		}
	}
	return true
}

// qubitsFor returns k for a 2^k x 2^k matrix, or -1.
func qubitsFor(u mat.CMatrix) int {
	r, c := u.Dims()
	if r != c || r == 0 || r&(r-1) != 0 {
		return -1
	}
	k := 0
	for d := r; d > 1; d >>= 1 {
		k++
	}
	return k
}
