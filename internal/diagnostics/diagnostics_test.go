package diagnostics

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTextIncludesExitCodeAndStatus(t *testing.T) {
	r := New()
	r.Halted = true
	r.ExitCode = 0
	r.Instructions = 42
	r.HeapRibsLive = 3
	r.GCCycles = 1

	text := r.Text()
	if !strings.Contains(text, "halted") {
		t.Errorf("Text() = %q, want it to mention halted status", text)
	}
	if !strings.Contains(text, "exit 0") {
		t.Errorf("Text() = %q, want it to mention exit code", text)
	}
}

func TestTextReportsAbortedOnFailure(t *testing.T) {
	r := New()
	r.Halted = false
	r.ExitCode = 6

	if got := r.Text(); !strings.Contains(got, "aborted") || !strings.Contains(got, "exit 6") {
		t.Errorf("Text() = %q, want aborted status and exit 6", got)
	}
}

func TestJSONRoundTrips(t *testing.T) {
	r := New()
	r.Instructions = 7
	r.HeapBytes = 1024

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Instructions != 7 || decoded.HeapBytes != 1024 {
		t.Errorf("decoded = %+v, want Instructions=7 HeapBytes=1024", decoded)
	}
}
