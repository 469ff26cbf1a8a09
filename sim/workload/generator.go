package workload

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/chunksim/sim"
)

// Phase is the part of a training step an access belongs to.
type Phase string

const (
	PhaseForward   Phase = "forward"
	PhaseBackward  Phase = "backward"
	PhaseOptimizer Phase = "optimizer"
)

var validPhases = map[Phase]bool{PhaseForward: true, PhaseBackward: true, PhaseOptimizer: true}

// IsValidPhase reports whether name is a recognized step phase.
func IsValidPhase(name string) bool {
	return validPhases[Phase(name)]
}

// HoldState is the chunk state after an access in this phase completes.
func (p Phase) HoldState() sim.ChunkState {
	switch p {
	case PhaseForward:
		return sim.ChunkHoldAfterFwd
	case PhaseBackward:
		return sim.ChunkHoldAfterBwd
	default:
		return sim.ChunkHold
	}
}

// Access is one chunk touch within a training step.
type Access struct {
	Chunk  sim.ChunkID
	Device sim.Device
	Phase  Phase
}

// GenerateStep returns the access sequence of one training step. Every step of a run
// replays the same sequence; rng is only drawn from for the shuffled pattern.
// The spec must have passed Validate.
func GenerateStep(spec *WorkloadSpec, rng *rand.Rand) ([]Access, error) {
	compute, err := sim.ParseDevice(spec.ComputeDeviceOrDefault())
	if err != nil {
		return nil, fmt.Errorf("compute device: %w", err)
	}

	n := spec.TotalChunks()
	order := make([]sim.ChunkID, n)
	for i := range order {
		order[i] = sim.ChunkID(i)
	}
	if spec.Pattern == PatternShuffled {
		if rng == nil {
			return nil, fmt.Errorf("shuffled pattern requires an RNG")
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	accesses := make([]Access, 0, 3*n)
	for _, id := range order {
		accesses = append(accesses, Access{Chunk: id, Device: compute, Phase: PhaseForward})
	}
	if spec.Pattern != PatternSequential {
		for i := n - 1; i >= 0; i-- {
			accesses = append(accesses, Access{Chunk: order[i], Device: compute, Phase: PhaseBackward})
		}
	}
	if spec.OptimizerDevice != "" {
		opt, err := sim.ParseDevice(spec.OptimizerDevice)
		if err != nil {
			return nil, fmt.Errorf("optimizer device: %w", err)
		}
		for i := 0; i < n; i++ {
			accesses = append(accesses, Access{Chunk: sim.ChunkID(i), Device: opt, Phase: PhaseOptimizer})
		}
	}
	return accesses, nil
}
