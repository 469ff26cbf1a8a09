package sim

import "math"

// RecencyEviction is classic LRU keyed by (chunk, device): the chunk whose last use on
// the target device is oldest goes first. Unlike the predictive policy it keeps
// learning after warm-up.
type RecencyEviction struct {
	metronome *Metronome
	lastUse   map[accessKey]Moment
}

// NewRecencyEviction creates an LRU policy.
func NewRecencyEviction(metronome *Metronome) *RecencyEviction {
	return &RecencyEviction{
		metronome: metronome,
		lastUse:   make(map[accessKey]Moment),
	}
}

func (r *RecencyEviction) Name() string { return "recency" }

func (r *RecencyEviction) TraceAccess(id ChunkID, dev Device) {
	r.lastUse[accessKey{chunk: id, device: dev}] = r.metronome.Moment()
}

func (r *RecencyEviction) DeriveEvictionList(chunks []ChunkView, requiredBytes int64, target Device) EvictionPlan {
	return selectEvictions(r.Name(), chunks, requiredBytes, target, func(id ChunkID) int64 {
		last, ok := r.lastUse[accessKey{chunk: id, device: target}]
		if !ok {
			return math.MaxInt64
		}
		return -int64(last)
	})
}
