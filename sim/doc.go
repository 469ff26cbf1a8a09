// Package sim provides the core chunk eviction engine for iterative training workloads.
//
// # Reading Guide
//
// Start with these three files to understand the engine:
//   - metronome.go: the moment counter and the warm-up → replay transition
//   - access_trace.go: per-(chunk, device) access moments recorded during warm-up
//   - eviction_predictive.go: next-use prediction and the farthest-first eviction plan
//
// # Architecture
//
// The sim package defines the engine and its interfaces; collaborators live in
// sub-packages:
//   - sim/chunk/: chunk registry with per-device byte accounting (the Evictor's caller)
//   - sim/workload/: YAML training workloads and per-step access generation
//   - sim/runner/: the step loop driving Engine and chunk.Manager in moment order
//   - sim/trace/: eviction decision recording and summaries
//   - sim/tracestore/: SQLite persistence and CSV export of warm-up traces
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - EvictionPolicy: record accesses and derive an eviction plan for a device
//   - ChunkView: the read-only chunk state an eviction policy may consult
//
// Engine wraps one Metronome and one EvictionPolicy behind a mutex and is the only
// type collaborators need to hold.
package sim
