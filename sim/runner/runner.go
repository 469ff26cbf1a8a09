// Package runner drives a training-step loop over a workload, feeding every chunk
// access to the eviction engine and the chunk manager in moment order.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/chunksim/sim"
	"github.com/inference-sim/chunksim/sim/chunk"
	"github.com/inference-sim/chunksim/sim/tracestore"
	"github.com/inference-sim/chunksim/sim/workload"
)

// TraceStore persists warm-up traces between runs. *tracestore.Store satisfies it.
type TraceStore interface {
	Save(ctx context.Context, workload string, snap sim.Snapshot) error
	Load(ctx context.Context, workload string) (sim.Snapshot, bool, error)
}

var _ TraceStore = (*tracestore.Store)(nil)

// Runner owns one training run: its engine, chunk manager and step access sequence.
type Runner struct {
	spec     *workload.WorkloadSpec
	engine   *sim.Engine
	manager  *chunk.Manager
	accesses []workload.Access
	release  []workload.Phase // per chunk; "" = never released
	compute  sim.Device
	store    TraceStore
	metrics  *Metrics

	afterAccess func(workload.Access) // test hook, called once per access
}

// New validates spec and builds the manager and step sequence around engine.
// store may be nil.
func New(spec *workload.WorkloadSpec, engine *sim.Engine, store TraceStore) (*Runner, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload %q: %w", spec.Name, err)
	}

	var (
		devices []chunk.DeviceConfig
		host    sim.Device
	)
	for _, d := range spec.Devices {
		dev, _ := sim.ParseDevice(d.Name) // checked by Validate
		devices = append(devices, chunk.DeviceConfig{Device: dev, CapacityBytes: d.CapacityBytes})
		if d.Host {
			host = dev
		}
	}
	manager := chunk.NewManager(devices, host, engine)
	release := make([]workload.Phase, 0, spec.TotalChunks())
	for _, g := range spec.Chunks {
		for i := 0; i < g.Count; i++ {
			manager.AddChunk(g.Bytes, g.Pinned)
			release = append(release, g.ReleaseAfter)
		}
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed)).ForSubsystem(sim.SubsystemWorkload)
	accesses, err := workload.GenerateStep(spec, rng)
	if err != nil {
		return nil, err
	}
	compute, _ := sim.ParseDevice(spec.ComputeDeviceOrDefault())

	return &Runner{
		spec:     spec,
		engine:   engine,
		manager:  manager,
		accesses: accesses,
		release:  release,
		compute:  compute,
		store:    store,
		metrics: &Metrics{
			Workload:   spec.Name,
			Policy:     engine.PolicyName(),
			StepLength: len(accesses),
		},
	}, nil
}

// Manager exposes the chunk manager, mainly for inspection after a run.
func (r *Runner) Manager() *chunk.Manager { return r.manager }

// Run executes every step of the workload. The first step is the warm-up unless a
// stored trace for the workload was restored. Allocation failures are counted, not fatal.
func (r *Runner) Run(ctx context.Context) (*Metrics, error) {
	if r.store != nil {
		restored, err := r.restore(ctx)
		if err != nil {
			return nil, err
		}
		r.metrics.RestoredTrace = restored
	}

	for step := 0; step < r.spec.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return r.metrics, err
		}
		warmup := r.engine.IsWarmup()
		phase := &r.metrics.Steady
		if warmup {
			phase = &r.metrics.Warmup
		}

		before := r.manager.Stats()
		released, err := r.runStep(step)
		if err != nil {
			return r.metrics, err
		}
		phase.add(before, r.manager.Stats())
		phase.Releases += released
		phase.Steps++
		phase.Accesses += int64(len(r.accesses))

		if warmup {
			r.engine.EndWarmup()
			if err := r.save(ctx); err != nil {
				return r.metrics, err
			}
		}
	}
	logrus.Infof("run %q complete: %d steps, policy %s", r.spec.Name, r.spec.Steps, r.engine.PolicyName())
	return r.metrics, nil
}

// runStep replays one step's access sequence, one moment per access.
// Only an ErrInsufficientMemory failure is tolerated. Returns the number of releases.
func (r *Runner) runStep(step int) (int64, error) {
	var released int64
	for _, a := range r.accesses {
		r.engine.TraceAccess(a.Chunk, a.Device)
		if err := r.manager.Access(a.Chunk, a.Device); err != nil {
			if !errors.Is(err, chunk.ErrInsufficientMemory) {
				return released, fmt.Errorf("step %d: %w", step, err)
			}
			logrus.Warnf("[moment %07d] step %d: %v", r.engine.Moment(), step, err)
		} else {
			r.manager.Done(a.Chunk, a.Phase.HoldState())
			if r.release[a.Chunk] == a.Phase {
				r.manager.Release(a.Chunk)
				released++
			}
		}
		if used := r.manager.Used(r.compute); used > r.metrics.PeakDeviceUsed {
			r.metrics.PeakDeviceUsed = used
		}
		if r.afterAccess != nil {
			r.afterAccess(a)
		}
		r.engine.AdvanceMoment()
	}
	return released, nil
}

// restore loads a stored trace whose period matches this workload's step length.
func (r *Runner) restore(ctx context.Context) (bool, error) {
	snap, ok, err := r.store.Load(ctx, r.spec.Name)
	if err != nil {
		return false, fmt.Errorf("loading stored trace: %w", err)
	}
	if !ok {
		return false, nil
	}
	if int(snap.TotalMoment) != len(r.accesses) {
		logrus.Warnf("stored trace for %q has period %d but the workload step has %d accesses; recording a new one",
			r.spec.Name, snap.TotalMoment, len(r.accesses))
		return false, nil
	}
	r.engine.Restore(snap)
	return true, nil
}

func (r *Runner) save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snap, ok := r.engine.Snapshot()
	if !ok {
		return nil
	}
	if err := r.store.Save(ctx, r.spec.Name, snap); err != nil {
		return fmt.Errorf("saving warm-up trace: %w", err)
	}
	return nil
}
