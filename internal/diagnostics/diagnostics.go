// Package diagnostics summarizes a completed or aborted VM run. Reports are
// printed to stderr only — stdout stays reserved for the running program's
// own putc output, per spec.md §7.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Report is a point-in-time summary of one VM run, populated by
// internal/commands once the run halts or fails.
type Report struct {
	RunID        uuid.UUID     `json:"run_id"`
	HeapRibsLive int           `json:"heap_ribs_live"`
	HeapBytes    uint64        `json:"heap_bytes"`
	GCCycles     int           `json:"gc_cycles"`
	Instructions uint64        `json:"instructions"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Halted       bool          `json:"halted"`
	ExitCode     int           `json:"exit_code"`
}

// New stamps a fresh report with a random run id; callers fill in the rest
// once the run completes.
func New() *Report {
	return &Report{RunID: uuid.New()}
}

// NewWithRunID stamps a report with a run id supplied by the caller, so a
// report can share its id with the same run's telemetry frames (vm.Snapshot
// carries the same uuid.UUID) instead of minting an independent one.
func NewWithRunID(id uuid.UUID) *Report {
	return &Report{RunID: id}
}

// Text renders a short human-readable summary for stderr.
func (r *Report) Text() string {
	status := "halted"
	if !r.Halted {
		status = "aborted"
	}
	return fmt.Sprintf(
		"run %s: %s (exit %d) — %s instructions, %s heap live (%d ribs), %s GC cycles, %s elapsed",
		r.RunID, status, r.ExitCode,
		humanize.Comma(int64(r.Instructions)),
		humanize.Bytes(r.HeapBytes), r.HeapRibsLive,
		humanize.Comma(int64(r.GCCycles)),
		r.Elapsed,
	)
}

// JSON renders the report for the -diagnostics=json flag.
func (r *Report) JSON() ([]byte, error) {
	return json.Marshal(r)
}
