package conformance

import (
	"fmt"
	"io"
	"strings"
)

// WriteText renders results in the reference stack's reporter style: one
// line per fixture with a pass/fail marker, a failure detail block, and a
// trailing summary line.
func WriteText(w io.Writer, results []Result) {
	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed() {
			passed++
			fmt.Fprintf(w, "  PASS %s (%v)\n", r.Name, r.Duration)
			continue
		}
		failed++
		fmt.Fprintf(w, "  FAIL %s (%v)\n", r.Name, r.Duration)
		if r.Err != nil {
			fmt.Fprintf(w, "       error: %v\n", r.Err)
		}
		if r.GotExitCode != r.WantExitCode {
			fmt.Fprintf(w, "       exit code: got %d, want %d\n", r.GotExitCode, r.WantExitCode)
		}
		if string(r.Got) != string(r.WantStdout) {
			fmt.Fprintf(w, "       stdout: got %q, want %q\n", r.Got, r.WantStdout)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", passed, failed, len(results))
}

// AllPassed reports whether every result in the slice passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed() {
			return false
		}
	}
	return true
}
