package conformance

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"ribbit/internal/store"
)

// TestMalformedProgramFixtureFails matches spec.md §8 scenario 1: a bare
// ";" literal must fail before any instruction executes, reported as a
// non-passing Result rather than a panic or silent success.
func TestMalformedProgramFixtureFails(t *testing.T) {
	results := Run([]Fixture{
		{Name: "trivial-halt", Program: []byte(";"), WantStdout: nil, WantExitCode: 1},
	})
	if len(results) != 1 {
		t.Fatalf("Run returned %d results, want 1", len(results))
	}
	r := results[0]
	if r.Err == nil {
		t.Fatal("expected a decode error for the bare ';' literal, got nil")
	}
}

// TestEchoProgramEchoesStdinPrefix matches spec.md §8 scenario 3 using the
// embedded bootstrap program (a byte-at-a-time stdin echo), confirming the
// first bytes written to stdout match the first bytes fed to stdin.
func TestEchoProgramEchoesStdinPrefix(t *testing.T) {
	program, err := (store.EmbeddedStore{}).LoadProgram(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}

	results := Run([]Fixture{
		{
			Name:       "echo-loop",
			Program:    program,
			Stdin:      []byte{0x68, 0x69},
			WantStdout: []byte{0x68, 0x69},
		},
	})
	got := results[0].Got
	if !bytes.HasPrefix(got, []byte{0x68, 0x69}) {
		t.Fatalf("stdout = %v, want it to start with [0x68, 0x69]", got)
	}
}

func TestWriteTextReportsPassAndFail(t *testing.T) {
	results := []Result{
		{Fixture: Fixture{Name: "ok", WantStdout: []byte("A")}, Got: []byte("A")},
		{Fixture: Fixture{Name: "bad", WantStdout: []byte("A")}, Got: []byte("B")},
	}
	var buf strings.Builder
	WriteText(&buf, results)

	out := buf.String()
	if !strings.Contains(out, "PASS ok") {
		t.Errorf("report %q missing PASS line for ok", out)
	}
	if !strings.Contains(out, "FAIL bad") {
		t.Errorf("report %q missing FAIL line for bad", out)
	}
	if AllPassed(results) {
		t.Error("AllPassed = true, want false with one failing fixture")
	}
}
