package gates

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Local bit 0 of every matrix is the first qubit of the placement. Controlled
// built-ins (CX, CRZ, CCX...) take their controls first and their target last.

func fixed(name string, u *mat.CDense) Definition {
	return Definition{
		Name:       name,
		Qubits:     qubitsFor(u),
		Reversible: true,
		generate: func([]float64) (*mat.CDense, error) {
			return clone(u), nil
		},
	}
}

func parametric(name string, qubits, params int, gen func(p []float64) *mat.CDense) Definition {
	return Definition{
		Name:       name,
		Qubits:     qubits,
		Params:     params,
		Reversible: true,
		generate: func(p []float64) (*mat.CDense, error) {
			return gen(p), nil
		},
	}
}

func controlledParametric(name string, base func(p []float64) *mat.CDense, params int) Definition {
	return parametric(name, 2, params, func(p []float64) *mat.CDense {
		return Controlled(base(p), 1)
	})
}

var (
	matI = square(2,
		1, 0,
		0, 1)
	matH = square(2,
		invSqrt2, invSqrt2,
		invSqrt2, -invSqrt2)
	matX = square(2,
		0, 1,
		1, 0)
	matY = square(2,
		0, -1i,
		1i, 0)
	matZ = square(2,
		1, 0,
		0, -1)
	matS = square(2,
		1, 0,
		0, 1i)
	matT = square(2,
		1, 0,
		0, phase(math.Pi/4))
	matSX = square(2,
		complex(0.5, 0.5), complex(0.5, -0.5),
		complex(0.5, -0.5), complex(0.5, 0.5))
	matSWAP = square(4,
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1)
)

func rx(p []float64) *mat.CDense {
	c := complex(math.Cos(p[0]/2), 0)
	s := complex(0, -math.Sin(p[0]/2))
	return square(2,
		c, s,
		s, c)
}

func ry(p []float64) *mat.CDense {
	c := complex(math.Cos(p[0]/2), 0)
	s := complex(math.Sin(p[0]/2), 0)
	return square(2,
		c, -s,
		s, c)
}

func rz(p []float64) *mat.CDense {
	return square(2,
		phase(-p[0]/2), 0,
		0, phase(p[0]/2))
}

func p1(p []float64) *mat.CDense {
	return square(2,
		1, 0,
		0, phase(p[0]))
}

func u2(p []float64) *mat.CDense {
	phi, lambda := p[0], p[1]
	return square(2,
		invSqrt2, -invSqrt2*phase(lambda),
		invSqrt2*phase(phi), invSqrt2*phase(phi+lambda))
}

func u3(p []float64) *mat.CDense {
	theta, phi, lambda := p[0], p[1], p[2]
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return square(2,
		c, -s*phase(lambda),
		s*phase(phi), c*phase(phi+lambda))
}

func builtins() []Definition {
	return []Definition{
		fixed("I", matI),
		fixed("ID", matI),
		fixed("H", matH),
		fixed("X", matX),
		fixed("Y", matY),
		fixed("Z", matZ),
		fixed("S", matS),
		fixed("SDG", Dagger(matS)),
		fixed("T", matT),
		fixed("TDG", Dagger(matT)),
		fixed("SX", matSX),
		fixed("SXDG", Dagger(matSX)),
		fixed("SWAP", matSWAP),
		fixed("CX", Controlled(matX, 1)),
		fixed("CNOT", Controlled(matX, 1)),
		fixed("CY", Controlled(matY, 1)),
		fixed("CZ", Controlled(matZ, 1)),
		fixed("CH", Controlled(matH, 1)),
		fixed("CCX", Controlled(matX, 2)),
		fixed("TOFFOLI", Controlled(matX, 2)),
		fixed("CSWAP", Controlled(matSWAP, 1)),
		parametric("RX", 1, 1, rx),
		parametric("RY", 1, 1, ry),
		parametric("RZ", 1, 1, rz),
		parametric("P", 1, 1, p1),
		parametric("U1", 1, 1, p1),
		parametric("U2", 1, 2, u2),
		parametric("U3", 1, 3, u3),
		parametric("U", 1, 3, u3),
		controlledParametric("CRX", rx, 1),
		controlledParametric("CRY", ry, 1),
		controlledParametric("CRZ", rz, 1),
		controlledParametric("CP", p1, 1),
		controlledParametric("CU1", p1, 1),
		controlledParametric("CU3", u3, 3),
	}
}
