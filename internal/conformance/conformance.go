// Package conformance runs fixture-driven end-to-end checks of a compressed
// program against expected stdout and exit code, adapted from the reference
// stack's internal/testing suite runner and trimmed to ribbit's single
// run-to-completion shape: no suites, no hooks, one fixture in and one
// Result out.
package conformance

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ribbit/internal/decoder"
	"ribbit/internal/heap"
	"ribbit/internal/vm"
	"ribbit/internal/vmerrors"
)

// Fixture is one compiled program plus the stdin it is fed and the stdout
// and exit code it must produce.
type Fixture struct {
	Name         string
	Program      []byte
	Stdin        []byte
	WantStdout   []byte
	WantExitCode int
}

// Result pairs a Fixture with what actually happened running it.
type Result struct {
	Fixture
	Got         []byte
	GotExitCode int
	Err         error
	Duration    time.Duration
}

// Passed reports whether the fixture's stdout and exit code matched.
func (r Result) Passed() bool {
	return r.Err == nil && bytes.Equal(r.Got, r.WantStdout) && r.GotExitCode == r.WantExitCode
}

// Run executes each fixture in turn, building a fresh heap and VM per
// fixture so one fixture's state can never leak into the next.
func Run(fixtures []Fixture) []Result {
	results := make([]Result, 0, len(fixtures))
	for _, f := range fixtures {
		results = append(results, runOne(f))
	}
	return results
}

func runOne(f Fixture) Result {
	start := time.Now()
	result := Result{Fixture: f}

	h := heap.New(0)
	if err := decoder.Decode(h, f.Program); err != nil {
		result.Err = err
		result.GotExitCode = exitCodeFor(err)
		result.Duration = time.Since(start)
		return result
	}

	var stdout bytes.Buffer
	machine := vm.New(h, bytes.NewReader(f.Stdin), &stdout)
	if err := machine.InitializeGlobals(); err != nil {
		result.Err = err
		result.GotExitCode = exitCodeFor(err)
		result.Duration = time.Since(start)
		return result
	}
	if err := machine.InitializeStack(); err != nil {
		result.Err = err
		result.GotExitCode = exitCodeFor(err)
		result.Duration = time.Since(start)
		return result
	}

	runErr := machine.Run()
	result.Got = stdout.Bytes()
	result.Err = runErr
	result.GotExitCode = exitCodeFor(runErr)
	result.Duration = time.Since(start)
	return result
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if ribbitErr, ok := err.(*vmerrors.Error); ok {
		return ribbitErr.ExitCode()
	}
	return 1
}

// LoadDir reads a directory of <name>.rvm / <name>.stdin / <name>.stdout
// fixture triples. A missing .stdin file means empty stdin; .stdout is
// required. The exit code defaults to 0 unless a sibling <name>.exitcode
// file holds a different decimal value.
func LoadDir(dir string) ([]Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("conformance: read fixture dir %q: %w", dir, err)
	}

	var fixtures []Fixture
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rvm") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".rvm")

		program, err := os.ReadFile(filepath.Join(dir, name+".rvm"))
		if err != nil {
			return nil, fmt.Errorf("conformance: read program for %q: %w", name, err)
		}
		wantStdout, err := os.ReadFile(filepath.Join(dir, name+".stdout"))
		if err != nil {
			return nil, fmt.Errorf("conformance: read expected stdout for %q: %w", name, err)
		}

		stdin, _ := os.ReadFile(filepath.Join(dir, name+".stdin"))

		wantExit := 0
		if raw, err := os.ReadFile(filepath.Join(dir, name+".exitcode")); err == nil {
			fmt.Sscanf(strings.TrimSpace(string(raw)), "%d", &wantExit)
		}

		fixtures = append(fixtures, Fixture{
			Name:         name,
			Program:      program,
			Stdin:        stdin,
			WantStdout:   wantStdout,
			WantExitCode: wantExit,
		})
	}
	return fixtures, nil
}
