package sim

import "math/rand"

// RandomEviction evicts candidates in a seeded pseudo-random order.
// It is a baseline for comparing the other policies.
type RandomEviction struct {
	metronome *Metronome
	rng       *rand.Rand
}

// NewRandomEviction creates a random policy drawing from rng.
func NewRandomEviction(metronome *Metronome, rng *rand.Rand) *RandomEviction {
	return &RandomEviction{metronome: metronome, rng: rng}
}

func (r *RandomEviction) Name() string { return "random" }

func (r *RandomEviction) TraceAccess(ChunkID, Device) {}

func (r *RandomEviction) DeriveEvictionList(chunks []ChunkView, requiredBytes int64, target Device) EvictionPlan {
	return selectEvictions(r.Name(), chunks, requiredBytes, target, func(ChunkID) int64 {
		return r.rng.Int63()
	})
}
