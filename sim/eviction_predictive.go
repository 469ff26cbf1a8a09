package sim

// PredictiveEviction replays the warm-up access trace to predict when each chunk is
// next needed, and evicts the chunk needed farthest in the future first. On an
// iterative workload this approximates Belady's optimal replacement.
type PredictiveEviction struct {
	metronome *Metronome
	trace     *AccessTrace
}

// NewPredictiveEviction creates a predictive policy recording into a fresh AccessTrace.
func NewPredictiveEviction(metronome *Metronome) *PredictiveEviction {
	return &PredictiveEviction{
		metronome: metronome,
		trace:     NewAccessTrace(metronome),
	}
}

func (p *PredictiveEviction) Name() string { return "predictive" }

// Trace exposes the recorded warm-up trace for persistence.
func (p *PredictiveEviction) Trace() *AccessTrace { return p.trace }

func (p *PredictiveEviction) TraceAccess(id ChunkID, dev Device) {
	p.trace.Record(id, dev)
}

// NextUsedMoment predicts the moment at which chunk id is next needed on dev.
//
//   - warm-up: 0 for every chunk, so all chunks tie
//   - never traced on dev: 2 * TotalMoment, later than any traced chunk
//   - otherwise the first traced moment after the current position in the period,
//     or TotalMoment + the first traced moment when this period's uses have passed
func (p *PredictiveEviction) NextUsedMoment(id ChunkID, dev Device) Moment {
	if p.metronome.IsWarmup() {
		return 0
	}
	total := p.metronome.TotalMoment()
	moments, ok := p.trace.Moments(id, dev)
	if !ok {
		return 2 * total
	}
	cur := p.metronome.Position()
	for _, mom := range moments {
		if mom > cur {
			return mom
		}
	}
	return total + moments[0]
}

func (p *PredictiveEviction) DeriveEvictionList(chunks []ChunkView, requiredBytes int64, target Device) EvictionPlan {
	return selectEvictions(p.Name(), chunks, requiredBytes, target, func(id ChunkID) int64 {
		return int64(p.NextUsedMoment(id, target))
	})
}
