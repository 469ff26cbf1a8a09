package runner

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/inference-sim/chunksim/sim/chunk"
)

// PhaseMetrics counts chunk manager activity within one phase of a run.
type PhaseMetrics struct {
	Steps          int   `json:"steps"`
	Accesses       int64 `json:"accesses"`
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Evictions      int64 `json:"evictions"`
	EvictedBytes   int64 `json:"evicted_bytes"`
	MovedBytes     int64 `json:"moved_bytes"`
	FailedAccesses int64 `json:"failed_accesses"`
	Releases       int64 `json:"releases"`
}

// HitRate returns hits / accesses, 0 when nothing was accessed.
func (p PhaseMetrics) HitRate() float64 {
	if p.Accesses == 0 {
		return 0
	}
	return float64(p.Hits) / float64(p.Accesses)
}

// add folds a manager stats delta into the phase.
func (p *PhaseMetrics) add(before, after chunk.Stats) {
	p.Hits += after.Hits - before.Hits
	p.Misses += after.Misses - before.Misses
	p.Evictions += after.Evictions - before.Evictions
	p.EvictedBytes += after.EvictedBytes - before.EvictedBytes
	p.MovedBytes += after.MovedBytes - before.MovedBytes
	p.FailedAccesses += after.FailedAccess - before.FailedAccess
}

// Metrics summarizes a run, split into the warm-up step and the replayed steps.
type Metrics struct {
	Workload       string       `json:"workload"`
	Policy         string       `json:"policy"`
	StepLength     int          `json:"step_length"`
	RestoredTrace  bool         `json:"restored_trace"`
	Warmup         PhaseMetrics `json:"warmup"`
	Steady         PhaseMetrics `json:"steady"`
	PeakDeviceUsed int64        `json:"peak_device_used"`
}

// Print writes a human-readable summary to w.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Eviction Metrics ===")
	fmt.Fprintf(w, "Workload             : %s\n", m.Workload)
	fmt.Fprintf(w, "Policy               : %s\n", m.Policy)
	fmt.Fprintf(w, "Accesses per step    : %d\n", m.StepLength)
	fmt.Fprintf(w, "Restored trace       : %v\n", m.RestoredTrace)
	fmt.Fprintf(w, "Peak device usage    : %s\n", humanize.IBytes(uint64(m.PeakDeviceUsed)))
	for _, phase := range []struct {
		name string
		p    PhaseMetrics
	}{{"warm-up", m.Warmup}, {"steady", m.Steady}} {
		if phase.p.Steps == 0 {
			continue
		}
		fmt.Fprintf(w, "--- %s (%d steps) ---\n", phase.name, phase.p.Steps)
		fmt.Fprintf(w, "Hit rate             : %.4f\n", phase.p.HitRate())
		fmt.Fprintf(w, "Evictions            : %d (%s)\n", phase.p.Evictions, humanize.IBytes(uint64(phase.p.EvictedBytes)))
		fmt.Fprintf(w, "Bytes moved in       : %s\n", humanize.IBytes(uint64(phase.p.MovedBytes)))
		fmt.Fprintf(w, "Failed accesses      : %d\n", phase.p.FailedAccesses)
		fmt.Fprintf(w, "Releases             : %d\n", phase.p.Releases)
	}
}
