// Package testutil provides shared test infrastructure for the chunk simulator.
// It holds the golden dataset types and assertion helpers used by the runner tests.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one workload/policy pair and the outcome it must reproduce.
type GoldenTestCase struct {
	Name          string        `json:"name"`
	Policy        string        `json:"policy"`
	Pattern       string        `json:"pattern"`
	Seed          int64         `json:"seed"`
	Steps         int           `json:"steps"`
	Chunks        int           `json:"chunks"`
	ChunkBytes    int64         `json:"chunk_bytes"`
	CapacityBytes int64         `json:"capacity_bytes"`
	Metrics       GoldenMetrics `json:"metrics"`
}

// GoldenPhase holds the exact counters of one run phase.
type GoldenPhase struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// GoldenMetrics represents the expected metrics from a golden test case.
type GoldenMetrics struct {
	// Exact match counters
	Warmup GoldenPhase `json:"warmup"`
	Steady GoldenPhase `json:"steady"`

	// Derived from the steady counters
	SteadyHitRate float64 `json:"steady_hit_rate"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
