// Command qstep steps an OpenQASM 2.0 circuit forwards and backwards over a
// sparse state vector and shows each qubit's state as it evolves.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"qtermsim/internal/circuit"
	"qtermsim/internal/config"
	"qtermsim/internal/density"
	"qtermsim/internal/evaluator"
	"qtermsim/internal/gates"
	"qtermsim/internal/quantum"
	"qtermsim/pkg/logger"
)

const demoQASM = `OPENQASM 2.0;
include "qelib1.inc";
qreg q[3];
h q[0];
cx q[0],q[1];
cx q[1],q[2];
rz(pi/4) q[2];
`

func main() {
	headless := flag.Bool("run", false, "run the circuit to the end and print the final state")
	logPath := flag.String("log", "", "write logs to this file (the UI discards them otherwise)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-run] [-log file] [circuit.qasm]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*headless, *logPath, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "qstep:", err)
		os.Exit(1)
	}
}

func run(headless bool, logPath, qasmPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		out = f
	} else if !headless {
		out = io.Discard
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty && logPath == "", Output: out})
	logger.SetGlobalLogger(log)

	source := demoQASM
	if qasmPath != "" {
		data, err := os.ReadFile(qasmPath)
		if err != nil {
			return err
		}
		source = string(data)
	}

	lib := gates.NewLibrary()
	eval, err := evaluator.FromConfig(cfg, lib, log)
	if err != nil {
		return err
	}
	c, err := circuit.ParseQASM(source)
	if err != nil {
		return err
	}
	if err := eval.Load(c); err != nil {
		return err
	}
	log.Info().
		Str("source", sourceName(qasmPath)).
		Int("qubits", c.NumQubits).
		Int("steps", c.Len()).
		Msg("circuit loaded")

	if headless {
		if _, err := eval.RunToEnd(); err != nil {
			return err
		}
		return writeReport(os.Stdout, eval)
	}

	p := tea.NewProgram(newModel(eval, lib, qasmPath, source), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func sourceName(path string) string {
	if path == "" {
		return "demo"
	}
	return path
}

// writeReport prints every qubit's state followed by the populated basis states.
func writeReport(w io.Writer, eval *evaluator.Evaluator) error {
	fmt.Fprintf(w, "cursor %d/%d, %d qubits\n\n", eval.Cursor(), eval.Len(), eval.Width())

	for q := range eval.Width() {
		v, err := eval.Qubit(q)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "q[%d]\n", q)
		amps, err := eval.AmplitudesOf(v)
		switch {
		case err == nil:
			fmt.Fprintln(w, density.DescribePure(amps[0], amps[1]))
		case errors.Is(err, quantum.ErrNotPure):
			rho, err := eval.ReducedDensityMatrix(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, density.DescribeMixed(rho))
		default:
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "basis states")
	for _, bs := range eval.BasisStates(basisStateFloor) {
		fmt.Fprintf(w, "%s  p=%.4f  phase=%+.4f\n", ket(bs.Index, eval.Width()), bs.Prob, bs.Phase)
	}
	return nil
}
