// Package commands implements cmd/ribbit's subcommands: run, inspect, test.
// Each is a plain function returning error, matching the reference stack's
// commands.BuildCommand/WatchCommand/CleanCommand shape.
package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"ribbit/internal/bytecode"
	"ribbit/internal/conformance"
	"ribbit/internal/decoder"
	"ribbit/internal/diagnostics"
	"ribbit/internal/heap"
	"ribbit/internal/store"
	"ribbit/internal/telemetry"
	"ribbit/internal/vm"
	"ribbit/internal/vmerrors"
)

// RunCommand decodes a program (embedded by default, or fetched from a SQL
// program-store) and executes it to completion, wiring stdin/stdout,
// optional telemetry, and an optional diagnostics report.
func RunCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	programStore := fs.String("program-store", "", "program source driver: sqlite3, mysql, postgres, sqlserver (default: embedded)")
	dsn := fs.String("dsn", "", "data source name for -program-store")
	programName := fs.String("program", "", "program name to look up in -program-store")
	telemetryAddr := fs.String("telemetry-addr", "", "address to serve a read-only telemetry websocket on (disabled unless set)")
	diagnosticsMode := fs.String("diagnostics", "", "print a run summary to stderr: \"text\" or \"json\"")
	heapRibs := fs.Uint64("heap-ribs", 0, "rib capacity per semi-space (0 = reference default)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := log.New(stderr, "ribbit: ", 0)

	program, err := resolveProgram(*programStore, *dsn, *programName)
	if err != nil {
		return err
	}

	h := heap.New(*heapRibs)
	if err := decoder.Decode(h, program); err != nil {
		return vmerrors.New(vmerrors.MalformedProgram, "decode", err)
	}

	machine := vm.New(h, stdin, stdout)
	machine.SetLogger(logger)

	var telem *telemetry.Server
	if *telemetryAddr != "" {
		telem = telemetry.New(*telemetryAddr, logger)
		if err := telem.Start(); err != nil {
			return fmt.Errorf("commands: start telemetry server: %w", err)
		}
		defer telem.Close()
		machine.AttachTelemetry(telem)
		logger.Printf("telemetry listening on %s", *telemetryAddr)
	}

	if err := machine.InitializeGlobals(); err != nil {
		return err
	}
	if err := machine.InitializeStack(); err != nil {
		return err
	}

	runErr := machine.Run()

	if *diagnosticsMode != "" {
		report := diagnostics.NewWithRunID(machine.RunID())
		report.Instructions = machine.Instructions()
		report.GCCycles = h.GCCycles()
		report.HeapRibsLive = h.LiveRibCount()
		report.HeapBytes = h.HeapBytes()
		report.Halted = runErr == nil
		report.ExitCode = exitCode(runErr)

		switch *diagnosticsMode {
		case "json":
			data, err := report.JSON()
			if err != nil {
				logger.Printf("diagnostics: %v", err)
			} else {
				fmt.Fprintln(stderr, string(data))
			}
		default:
			fmt.Fprintln(stderr, report.Text())
		}
	}

	return runErr
}

// resolveProgram picks the embedded default or opens a SQL-backed store per
// the -program-store/-dsn flags.
func resolveProgram(driver, dsn, name string) ([]byte, error) {
	if driver == "" {
		return store.EmbeddedStore{}.LoadProgram(context.Background(), name)
	}

	s, err := store.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.LoadProgram(context.Background(), name)
}

// exitCode maps a VM run's terminal error to the process exit status spec.md
// §6-7 mandates.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ribbitErr, ok := err.(*vmerrors.Error); ok {
		return ribbitErr.ExitCode()
	}
	return 1
}

// InspectCommand decodes a program and prints its static instruction graph
// without executing it.
func InspectCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	programStore := fs.String("program-store", "", "program source driver (default: embedded)")
	dsn := fs.String("dsn", "", "data source name for -program-store")
	programName := fs.String("program", "", "program name to look up in -program-store")

	if err := fs.Parse(args); err != nil {
		return err
	}

	program, err := resolveProgram(*programStore, *dsn, *programName)
	if err != nil {
		return err
	}

	h := heap.New(0)
	if err := decoder.Decode(h, program); err != nil {
		return vmerrors.New(vmerrors.MalformedProgram, "decode", err)
	}

	fmt.Fprint(stdout, bytecode.Disassemble(h, h.ProgramCounter))
	return nil
}

// TestCommand runs the conformance harness against a fixture directory and
// reports pass/fail to stdout, exiting non-zero if any fixture failed.
func TestCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("commands: test requires a fixture directory argument")
	}

	fixtures, err := conformance.LoadDir(fs.Arg(0))
	if err != nil {
		return err
	}
	if len(fixtures) == 0 {
		fmt.Fprintln(stdout, "no fixtures found")
		return nil
	}

	results := conformance.Run(fixtures)
	conformance.WriteText(stdout, results)

	if !conformance.AllPassed(results) {
		return fmt.Errorf("commands: %d fixture(s) failed", countFailed(results))
	}
	return nil
}

func countFailed(results []conformance.Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed() {
			n++
		}
	}
	return n
}
