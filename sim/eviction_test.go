package sim

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cyclicFixture builds a predictive policy whose warm-up recorded chunk 0 on
// cuda:0 at moments 2 and 7 in a period of 10, then advances to the given
// position inside the second period.
func cyclicFixture(t *testing.T, position Moment) (*Metronome, *PredictiveEviction) {
	t.Helper()
	m := NewMetronome()
	p := NewPredictiveEviction(m)
	recordAt(m, p, 0, CUDA(0), 2, 7)
	advance(m, int(10-m.Moment()))
	m.EndWarmup()
	require.Equal(t, Moment(10), m.TotalMoment())
	advance(m, int(position))
	return m, p
}

func TestPredictiveEviction_NextUsedMoment_Cyclic(t *testing.T) {
	tests := []struct {
		name     string
		position Moment
		want     Moment
	}{
		{"before first use", 0, 2},
		{"between uses", 5, 7},
		{"on a use moment", 2, 7},
		{"after last use wraps", 8, 12},
		{"end of period wraps", 9, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := cyclicFixture(t, tt.position)
			assert.Equal(t, tt.want, p.NextUsedMoment(0, CUDA(0)))
		})
	}
}

func TestPredictiveEviction_NextUsedMoment_UnseenChunkPenalty(t *testing.T) {
	// GIVEN chunk 1 never used on cuda:0 during a 10-moment warm-up
	_, p := cyclicFixture(t, 8)

	// THEN it is predicted beyond one full period
	assert.Equal(t, Moment(20), p.NextUsedMoment(1, CUDA(0)))
	// AND the same chunk on another device is unseen too
	assert.Equal(t, Moment(20), p.NextUsedMoment(0, CPU()))
	// AND it outranks the traced chunk, whose wrapped prediction is 12
	assert.Greater(t, p.NextUsedMoment(1, CUDA(0)), p.NextUsedMoment(0, CUDA(0)))
}

func TestPredictiveEviction_NextUsedMoment_WarmupIsZero(t *testing.T) {
	m := NewMetronome()
	p := NewPredictiveEviction(m)
	recordAt(m, p, 0, CUDA(0), 2, 7)
	advance(m, 1)
	assert.Equal(t, Moment(0), p.NextUsedMoment(0, CUDA(0)))
	assert.Equal(t, Moment(0), p.NextUsedMoment(5, CUDA(0)))
}

func TestPredictiveEviction_EndToEnd_RanksByFarthestNextUse(t *testing.T) {
	// GIVEN A (500B, next use 3), B (300B, next use 9), C (200B, next use 6)
	m := NewMetronome()
	p := NewPredictiveEviction(m)
	gpu := CUDA(0)
	const a, b, c ChunkID = 0, 1, 2
	recordAt(m, p, a, gpu, 3)
	recordAt(m, p, c, gpu, 6)
	recordAt(m, p, b, gpu, 9)
	advance(m, 1)
	m.EndWarmup()
	chunks := views(onDevice(gpu, 500), onDevice(gpu, 300), onDevice(gpu, 200))

	// WHEN 400 bytes are required
	plan := p.DeriveEvictionList(chunks, 400, gpu)

	// THEN B then C are chosen; A (needed soonest) stays
	if diff := cmp.Diff([]ChunkID{b, c}, plan.ChunkIDs); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(500), plan.FreedBytes)
	assert.True(t, plan.Satisfied())
	assert.Equal(t, 3, plan.Candidates)

	// AND asking for everything yields the full ranking B, C, A
	full := p.DeriveEvictionList(chunks, 1000, gpu)
	assert.Equal(t, []ChunkID{b, c, a}, full.ChunkIDs)
}

func TestPredictiveEviction_Warmup_TiesBreakByChunkID(t *testing.T) {
	// GIVEN five evictable chunks during warm-up
	m := NewMetronome()
	p := NewPredictiveEviction(m)
	gpu := CUDA(0)
	recordAt(m, p, 4, gpu, 0)
	recordAt(m, p, 2, gpu, 1)
	chunks := views(onDevice(gpu, 10), onDevice(gpu, 10), onDevice(gpu, 10), onDevice(gpu, 10), onDevice(gpu, 10))

	// WHEN every chunk is needed
	plan := p.DeriveEvictionList(chunks, 50, gpu)

	// THEN order is ascending chunk ID regardless of trace
	assert.Equal(t, []ChunkID{0, 1, 2, 3, 4}, plan.ChunkIDs)
}

func TestPredictiveEviction_ExcludesInadmissibleChunks(t *testing.T) {
	// GIVEN a registry where only chunks 0 and 5 are admissible on cuda
	gpu := CUDA(0)
	compute := onDevice(gpu, 100)
	compute.state = ChunkCompute
	released := onDevice(gpu, 100)
	released.state = ChunkReleased
	pinned := onDevice(gpu, 100)
	pinned.pinned = true
	unplaced := &testChunk{state: ChunkHold, bytes: 100}
	chunks := views(
		onDevice(gpu, 100),     // 0 admissible
		compute,                // 1 in use
		released,               // 2 already free
		pinned,                 // 3 pinned
		onDevice(CPU(), 100),   // 4 wrong device type
		onDevice(CUDA(1), 100), // 5 same type, other ordinal
		unplaced,               // 6 unplaced
	)

	// WHEN far more is required than exists, after warm-up so unseen chunks rank highest
	m := NewMetronome()
	p := NewPredictiveEviction(m)
	recordAt(m, p, 1, gpu, 0)
	recordAt(m, p, 3, gpu, 1)
	advance(m, 1)
	m.EndWarmup()
	plan := p.DeriveEvictionList(chunks, 10_000, gpu)

	// THEN only admissible chunks appear and the plan is under-filled, not rejected
	assert.ElementsMatch(t, []ChunkID{0, 5}, plan.ChunkIDs)
	for _, id := range plan.ChunkIDs {
		assert.True(t, Evictable(chunks[id], gpu), "chunk %d not admissible", id)
	}
	assert.False(t, plan.Satisfied())
	assert.Equal(t, int64(9_800), plan.Shortfall())
}

func TestPredictiveEviction_ZeroRequired_EmptyPlan(t *testing.T) {
	p := NewPredictiveEviction(NewMetronome())
	plan := p.DeriveEvictionList(views(onDevice(CUDA(0), 10)), 0, CUDA(0))
	assert.Empty(t, plan.ChunkIDs)
	assert.True(t, plan.Satisfied())
}

func TestPredictiveEviction_Preconditions_Panic(t *testing.T) {
	p := NewPredictiveEviction(NewMetronome())
	assert.PanicsWithValue(t, "predictive eviction: required bytes must be >= 0, got -1", func() {
		p.DeriveEvictionList(nil, -1, CUDA(0))
	})
	assert.PanicsWithValue(t, "predictive eviction: target device has no type", func() {
		p.DeriveEvictionList(nil, 10, Device{})
	})
}

// randomRegistry builds a registry mixing states, devices and pin flags.
func randomRegistry(rng *rand.Rand, n int) []ChunkView {
	devices := []Device{CUDA(0), CUDA(1), CPU()}
	chunks := make([]ChunkView, n)
	for i := range chunks {
		c := onDevice(devices[rng.Intn(len(devices))], int64(1+rng.Intn(1000)))
		c.state = ChunkState(rng.Intn(int(ChunkReleased) + 1))
		c.pinned = rng.Intn(5) == 0
		if rng.Intn(10) == 0 {
			c.device = nil
		}
		chunks[i] = c
	}
	return chunks
}

func TestEvictionPolicies_Properties(t *testing.T) {
	// Admissibility, monotonic sufficiency and determinism for every policy
	// in both phases, over many random registries.
	gpu := CUDA(0)
	for name := range ValidEvictionPolicies {
		if name == "" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			for trial := 0; trial < 200; trial++ {
				chunks := randomRegistry(rng, 1+rng.Intn(40))
				required := rng.Int63n(20_000)

				newPolicy := func() EvictionPolicy {
					m := NewMetronome()
					pol := NewEvictionPolicy(name, m, rand.New(rand.NewSource(int64(trial))))
					for i := range chunks {
						if rng.Intn(2) == 0 {
							pol.TraceAccess(ChunkID(i), gpu)
						}
						m.Advance()
					}
					if trial%2 == 1 {
						m.EndWarmup()
					}
					return pol
				}
				snapshot := rng.Int63()
				rng.Seed(snapshot)
				first := newPolicy().DeriveEvictionList(chunks, required, gpu)
				rng.Seed(snapshot)
				second := newPolicy().DeriveEvictionList(chunks, required, gpu)

				require.Equal(t, first, second, "trial %d: plan not deterministic", trial)

				var available int64
				for _, c := range chunks {
					if Evictable(c, gpu) {
						available += c.PayloadBytes()
					}
				}
				seen := make(map[ChunkID]bool)
				for _, id := range first.ChunkIDs {
					require.True(t, Evictable(chunks[id], gpu), "trial %d: chunk %d not admissible", trial, id)
					require.False(t, seen[id], "trial %d: chunk %d planned twice", trial, id)
					seen[id] = true
				}
				if available >= required {
					require.GreaterOrEqual(t, first.FreedBytes, required, "trial %d: plan under-filled", trial)
				} else {
					require.Equal(t, available, first.FreedBytes, "trial %d: partial plan must take every candidate", trial)
				}
			}
		})
	}
}

func TestRecencyEviction_EvictsLeastRecentlyUsedFirst(t *testing.T) {
	// GIVEN chunks 0..3 on cuda where 2 was never used and 0 was used most recently
	m := NewMetronome()
	p := NewRecencyEviction(m)
	gpu := CUDA(0)
	recordAt(m, p, 1, gpu, 1)
	recordAt(m, p, 3, gpu, 2)
	recordAt(m, p, 0, gpu, 5)
	m.EndWarmup()
	// recency keeps learning after warm-up
	recordAt(m, p, 1, gpu, 6)
	chunks := views(onDevice(gpu, 10), onDevice(gpu, 10), onDevice(gpu, 10), onDevice(gpu, 10))

	plan := p.DeriveEvictionList(chunks, 40, gpu)

	assert.Equal(t, []ChunkID{2, 3, 0, 1}, plan.ChunkIDs)
}

func TestRandomEviction_SameSeedSamePlan(t *testing.T) {
	gpu := CUDA(0)
	chunks := views(onDevice(gpu, 1), onDevice(gpu, 1), onDevice(gpu, 1), onDevice(gpu, 1), onDevice(gpu, 1), onDevice(gpu, 1))
	a := NewRandomEviction(NewMetronome(), rand.New(rand.NewSource(3))).DeriveEvictionList(chunks, 6, gpu)
	b := NewRandomEviction(NewMetronome(), rand.New(rand.NewSource(3))).DeriveEvictionList(chunks, 6, gpu)
	assert.Equal(t, a.ChunkIDs, b.ChunkIDs)
	assert.ElementsMatch(t, []ChunkID{0, 1, 2, 3, 4, 5}, a.ChunkIDs)
}

func TestNewEvictionPolicy_Names(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "predictive"},
		{"predictive", "predictive"},
		{"recency", "recency"},
		{"random", "random"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p := NewEvictionPolicy(tt.name, NewMetronome(), rand.New(rand.NewSource(1)))
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestNewEvictionPolicy_Unknown_Panics(t *testing.T) {
	assert.PanicsWithValue(t, `unknown eviction policy "lfu"`, func() {
		NewEvictionPolicy("lfu", NewMetronome(), nil)
	})
}

func TestNewEvictionPolicy_RandomWithoutRNG_Panics(t *testing.T) {
	assert.Panics(t, func() { NewEvictionPolicy("random", NewMetronome(), nil) })
}

func TestSelectEvictions_UnderfilledWarning_ListsCandidatesInRegistryOrder(t *testing.T) {
	// GIVEN chunks 2, 1, 0 used at moments 0, 1, 2 of a 3-moment period,
	// so at position 0 their priorities are 2, 1 and 3 (wrapped)
	hook := logrustest.NewGlobal()
	defer hook.Reset()
	gpu := CUDA(0)
	m := NewMetronome()
	p := NewPredictiveEviction(m)
	recordAt(m, p, 2, gpu, 0)
	recordAt(m, p, 1, gpu, 1)
	recordAt(m, p, 0, gpu, 2)
	advance(m, 1)
	m.EndWarmup()

	// WHEN more bytes are requested than all three chunks hold
	plan := p.DeriveEvictionList(views(onDevice(gpu, 10), onDevice(gpu, 10), onDevice(gpu, 10)), 100, gpu)

	// THEN the plan takes them in rank order and the warning lists them by chunk ID
	assert.Equal(t, []ChunkID{2, 0, 1}, plan.ChunkIDs)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "candidates [2_0 1_1 3_2]")
}
