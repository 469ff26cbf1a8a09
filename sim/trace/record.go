// Package trace provides decision-trace recording for eviction policy analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// EvictionRecord captures a single eviction plan.
type EvictionRecord struct {
	Moment        int64
	Device        string
	Warmup        bool // plan derived before the access trace was complete
	RequiredBytes int64
	FreedBytes    int64
	Chosen        []int // chunk IDs in eviction order
	Candidates    int   // evictable chunks considered
}

// Underfilled reports whether the plan freed fewer bytes than requested.
func (r EvictionRecord) Underfilled() bool {
	return r.FreedBytes < r.RequiredBytes
}
