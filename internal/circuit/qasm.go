package circuit

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	ErrSyntax         = errors.New("qasm syntax error")
	ErrUnsupported    = errors.New("qasm statement not supported")
	ErrNotExpressible = errors.New("placement cannot be written as qasm 2.0")
)

var (
	qregRegex    = regexp.MustCompile(`^qreg\s+(\w+)\s*\[\s*(\d+)\s*\]\s*;?$`)
	gateRegex    = regexp.MustCompile(`^(\w+)\s*(?:\(([^)]*)\))?\s+([^;]+?)\s*;?$`)
	operandRegex = regexp.MustCompile(`^(\w+)\s*\[\s*(\d+)\s*\]$`)
)

// Unitary evolution only: these statements have no place in a stepwise simulation.
var unsupported = []string{"measure", "reset", "if", "opaque", "gate"}

// ParseQASM reads an OpenQASM 2.0 program. Consecutive gates on disjoint
// qubits share a step; a gate touching a qubit already used in the current
// step starts a new one. A barrier closes the current step.
func ParseQASM(src string) (*Circuit, error) {
	c := &Circuit{}
	regName := ""
	declared := -1
	maxQubit := -1
	current := map[int]bool{}

	for n, raw := range strings.Split(src, "\n") {
		lineNo := n + 1
		line := raw
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "OPENQASM") || strings.HasPrefix(line, "include") {
			continue
		}

		if strings.HasPrefix(line, "qreg") {
			matches := qregRegex.FindStringSubmatch(line)
			if matches == nil {
				return nil, fmt.Errorf("line %d: %w: %q", lineNo, ErrSyntax, line)
			}
			if regName != "" {
				return nil, fmt.Errorf("line %d: %w: more than one qreg", lineNo, ErrUnsupported)
			}
			regName = matches[1]
			declared, _ = strconv.Atoi(matches[2])
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '(' || r == '\t'
		})
		if len(fields) == 0 {
			return nil, fmt.Errorf("line %d: %w: %q", lineNo, ErrSyntax, line)
		}
		switch keyword := strings.ToLower(fields[0]); {
		case keyword == "barrier":
			current = map[int]bool{}
			continue
		case keyword == "creg":
			// harmless without measurements
			continue
		case slices.Contains(unsupported, keyword):
			return nil, fmt.Errorf("line %d: %w: %s", lineNo, ErrUnsupported, keyword)
		}

		p, err := parseGateLine(line, regName)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		for _, q := range p.Targets {
			if declared >= 0 && q >= declared {
				return nil, fmt.Errorf("line %d: %w: q[%d] with qreg of %d", lineNo, ErrQubitOutOfRange, q, declared)
			}
			maxQubit = max(maxQubit, q)
		}

		for _, q := range p.Targets {
			if current[q] {
				current = map[int]bool{}
				break
			}
		}
		if len(current) == 0 {
			c.Steps = append(c.Steps, Step{})
		}
		last := &c.Steps[len(c.Steps)-1]
		last.Placements = append(last.Placements, p)
		for _, q := range p.Targets {
			current[q] = true
		}
	}

	c.NumQubits = max(declared, maxQubit+1)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseGateLine(line, regName string) (Placement, error) {
	matches := gateRegex.FindStringSubmatch(line)
	if matches == nil {
		return Placement{}, fmt.Errorf("%w: %q", ErrSyntax, line)
	}

	p := Placement{Gate: strings.ToUpper(matches[1])}
	if matches[2] != "" {
		params, err := ParseParams(matches[2])
		if err != nil {
			return Placement{}, err
		}
		p.Params = params
	}

	for _, operand := range strings.Split(matches[3], ",") {
		om := operandRegex.FindStringSubmatch(strings.TrimSpace(operand))
		if om == nil {
			return Placement{}, fmt.Errorf("%w: operand %q", ErrSyntax, strings.TrimSpace(operand))
		}
		if regName != "" && om[1] != regName {
			return Placement{}, fmt.Errorf("%w: unknown register %q", ErrSyntax, om[1])
		}
		q, err := strconv.Atoi(om[2])
		if err != nil {
			return Placement{}, fmt.Errorf("%w: %q", ErrSyntax, operand)
		}
		p.Targets = append(p.Targets, q)
	}
	return p, nil
}

// ToQASM writes c as OpenQASM 2.0. Barriers are emitted only where ParseQASM
// would otherwise merge two steps, so parsing the output restores the steps.
// Empty steps are not representable and are dropped.
func ToQASM(c *Circuit) (string, error) {
	numQubits := max(c.NumQubits, 1)

	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\n")
	sb.WriteString("include \"qelib1.inc\";\n\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n\n", numQubits)

	var prev map[int]bool
	for i, s := range c.Steps {
		if len(s.Placements) == 0 {
			continue
		}
		if prev != nil {
			first := s.Placements[0]
			conflict := false
			for _, q := range first.Targets {
				if prev[q] {
					conflict = true
					break
				}
			}
			if !conflict {
				sb.WriteString("barrier q;\n")
			}
		}
		for _, p := range s.Placements {
			if len(p.Controls) > 0 {
				return "", fmt.Errorf("step %d: %w: %s", i, ErrNotExpressible, p)
			}
			writePlacement(&sb, p)
		}
		prev = s.Qubits()
	}
	return sb.String(), nil
}

func writePlacement(sb *strings.Builder, p Placement) {
	sb.WriteString(strings.ToLower(p.Gate))
	if len(p.Params) > 0 {
		parts := make([]string, len(p.Params))
		for i, v := range p.Params {
			parts[i] = FormatParam(v)
		}
		fmt.Fprintf(sb, "(%s)", strings.Join(parts, ", "))
	}
	for i, q := range p.Targets {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "q[%d]", q)
	}
	sb.WriteString(";\n")
}
