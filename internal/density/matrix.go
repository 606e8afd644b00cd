package density

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats/scalar"
)

// Matrix is a single-qubit reduced density matrix, indexed [row][col].
type Matrix [2][2]complex128

// Trace returns ρ00 + ρ11 (real parts).
func (m Matrix) Trace() float64 {
	return real(m[0][0]) + real(m[1][1])
}

// IsZero reports an all-zero matrix, the result for a register with no population.
func (m Matrix) IsZero(eps float64) bool {
	for i := range m {
		for j := range m[i] {
			if cmplx.Abs(m[i][j]) > eps {
				return false
			}
		}
	}
	return true
}

// IsHermitian checks real diagonal entries and conjugate off-diagonal entries.
func (m Matrix) IsHermitian(eps float64) bool {
	return scalar.EqualWithinAbs(imag(m[0][0]), 0, eps) &&
		scalar.EqualWithinAbs(imag(m[1][1]), 0, eps) &&
		cmplx.Abs(m[0][1]-cmplx.Conj(m[1][0])) <= eps
}

// Purity returns Tr(ρ²): 1 for a pure state, 1/2 for a maximally mixed qubit.
func (m Matrix) Purity() float64 {
	p00 := cmplx.Abs(m[0][0])
	p11 := cmplx.Abs(m[1][1])
	c := cmplx.Abs(m[0][1])
	return p00*p00 + p11*p11 + 2*c*c
}

// EqualApprox compares entry-wise within eps.
func (m Matrix) EqualApprox(o Matrix, eps float64) bool {
	for i := range m {
		for j := range m[i] {
			if cmplx.Abs(m[i][j]-o[i][j]) > eps {
				return false
			}
		}
	}
	return true
}

func (m Matrix) String() string {
	return fmt.Sprintf("ρ₀₀ = %.2f\nρ₁₁ = %.2f\nρ₀₁ = %.2f + %.2fi",
		real(m[0][0]), real(m[1][1]), real(m[0][1]), imag(m[0][1]))
}

// Vector is a point in or on the Bloch sphere.
type Vector struct {
	X, Y, Z float64
}

// Length is 1 for pure states and shrinks towards 0 as the state mixes.
func (v Vector) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector) String() string {
	return fmt.Sprintf("(x=%.2f, y=%.2f, z=%.2f)", v.X, v.Y, v.Z)
}

// Bloch returns the Bloch vector of ρ = (I + xX + yY + zZ)/2.
func (m Matrix) Bloch() Vector {
	return Vector{
		X: 2 * real(m[1][0]),
		Y: 2 * imag(m[1][0]),
		Z: real(m[0][0]) - real(m[1][1]),
	}
}

// FromAmplitudes builds |ψ⟩⟨ψ| for ψ = α|0⟩ + β|1⟩ after normalising the pair.
func FromAmplitudes(alpha, beta complex128) Matrix {
	n := math.Sqrt(real(alpha*cmplx.Conj(alpha)) + real(beta*cmplx.Conj(beta)))
	if n == 0 {
		return Matrix{}
	}
	alpha /= complex(n, 0)
	beta /= complex(n, 0)
	return Matrix{
		{alpha * cmplx.Conj(alpha), alpha * cmplx.Conj(beta)},
		{beta * cmplx.Conj(alpha), beta * cmplx.Conj(beta)},
	}
}

// DescribePure renders a pure pair as approximate amplitudes.
func DescribePure(alpha, beta complex128) string {
	return fmt.Sprintf("α ≈ %.2f + %.2fi\nβ ≈ %.2f + %.2fi",
		real(alpha), imag(alpha), real(beta), imag(beta))
}

// DescribeMixed renders ρ entries and the Bloch vector.
func DescribeMixed(m Matrix) string {
	return m.String() + "\nBloch Vector: " + m.Bloch().String()
}
