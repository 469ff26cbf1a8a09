package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/chunksim/sim"
	"github.com/inference-sim/chunksim/sim/internal/testutil"
	"github.com/inference-sim/chunksim/sim/workload"
)

// TestRun_GoldenDataset replays each golden workload and checks its exact counters.
func TestRun_GoldenDataset(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.Tests)

	for _, tc := range dataset.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			spec := &workload.WorkloadSpec{
				Name:    tc.Name,
				Seed:    tc.Seed,
				Steps:   tc.Steps,
				Pattern: tc.Pattern,
				Devices: []workload.DeviceSpec{
					{Name: "cuda:0", CapacityBytes: tc.CapacityBytes},
					{Name: "cpu", Host: true},
				},
				Chunks: []workload.ChunkGroupSpec{{Group: "layers", Count: tc.Chunks, Bytes: tc.ChunkBytes}},
			}
			r, err := New(spec, sim.NewEngine(sim.EngineConfig{Policy: tc.Policy, Seed: tc.Seed}), nil)
			require.NoError(t, err)

			m, err := r.Run(context.Background())
			require.NoError(t, err)

			want := tc.Metrics
			assert.Equal(t, want.Warmup.Hits, m.Warmup.Hits, "warm-up hits")
			assert.Equal(t, want.Warmup.Misses, m.Warmup.Misses, "warm-up misses")
			assert.Equal(t, want.Warmup.Evictions, m.Warmup.Evictions, "warm-up evictions")
			assert.Equal(t, want.Steady.Hits, m.Steady.Hits, "steady hits")
			assert.Equal(t, want.Steady.Misses, m.Steady.Misses, "steady misses")
			assert.Equal(t, want.Steady.Evictions, m.Steady.Evictions, "steady evictions")
			testutil.AssertFloat64Equal(t, "steady_hit_rate", want.SteadyHitRate, m.Steady.HitRate(), 1e-9)
		})
	}
}
