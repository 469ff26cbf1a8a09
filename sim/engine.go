package sim

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/chunksim/sim/trace"
)

// EngineConfig groups the parameters for NewEngine.
type EngineConfig struct {
	Policy     string           // eviction policy name (see ValidEvictionPolicies)
	Seed       int64            // master seed; only the random policy consumes it
	TraceLevel trace.TraceLevel // decision trace verbosity ("" = none)
	Metrics    *Metrics         // optional prometheus counters
}

// Snapshot is a persisted warm-up result: the period length and the access trace.
type Snapshot struct {
	TotalMoment Moment
	Entries     []TraceEntry
}

// Engine owns one training run's Metronome and eviction policy, and serializes
// every operation on them with a single mutex. Eviction correctness depends on a
// strict moment ordering between tracing, advancing and deriving.
type Engine struct {
	mu        sync.Mutex
	metronome *Metronome
	policy    EvictionPolicy
	traced    bool
	metrics   *Metrics
	decisions *trace.SimulationTrace // nil when tracing is disabled
}

// NewEngine creates an Engine in the warm-up phase.
// Panics on an unknown policy name or trace level.
func NewEngine(cfg EngineConfig) *Engine {
	if !trace.IsValidTraceLevel(string(cfg.TraceLevel)) {
		panic(fmt.Sprintf("Engine: unknown trace level %q", cfg.TraceLevel))
	}
	metronome := NewMetronome()
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed)).ForSubsystem(SubsystemEviction)
	e := &Engine{
		metronome: metronome,
		policy:    NewEvictionPolicy(cfg.Policy, metronome, rng),
		metrics:   cfg.Metrics,
	}
	if cfg.TraceLevel == trace.TraceLevelDecisions {
		e.decisions = trace.NewSimulationTrace(trace.TraceConfig{Level: cfg.TraceLevel})
	}
	return e
}

// TraceAccess reports a chunk touch on dev at the current moment.
func (e *Engine) TraceAccess(id ChunkID, dev Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traced = true
	e.policy.TraceAccess(id, dev)
}

// AdvanceMoment moves the metronome to the next access point.
func (e *Engine) AdvanceMoment() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metronome.Advance()
}

// EndWarmup fixes the period length and switches the engine to replay.
// Panics if called twice, or if accesses were traced without the moment ever advancing.
func (e *Engine) EndWarmup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.traced && e.metronome.Moment() == 0 {
		panic("Engine: accesses were traced but the moment never advanced")
	}
	e.metronome.EndWarmup()
	logrus.Infof("[moment %07d] warm-up ended, period = %d moments", e.metronome.Moment(), e.metronome.TotalMoment())
}

// DeriveEvictionList asks the policy for a plan freeing requiredBytes on target.
// The plan may under-fill; see EvictionPlan.Satisfied.
func (e *Engine) DeriveEvictionList(chunks []ChunkView, requiredBytes int64, target Device) EvictionPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan := e.policy.DeriveEvictionList(chunks, requiredBytes, target)
	if e.metrics != nil {
		e.metrics.Observe(e.policy.Name(), target, plan)
	}
	if e.decisions != nil {
		chosen := make([]int, len(plan.ChunkIDs))
		for i, id := range plan.ChunkIDs {
			chosen[i] = int(id)
		}
		e.decisions.RecordEviction(trace.EvictionRecord{
			Moment:        int64(e.metronome.Moment()),
			Device:        target.String(),
			Warmup:        e.metronome.IsWarmup(),
			RequiredBytes: plan.RequiredBytes,
			FreedBytes:    plan.FreedBytes,
			Chosen:        chosen,
			Candidates:    plan.Candidates,
		})
	}
	return plan
}

// Restore ends warm-up from a persisted snapshot. Only the predictive policy
// consumes a trace; other policies only take the period length.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.policy.(*PredictiveEviction); ok {
		p.Trace().Restore(s.Entries)
	}
	e.metronome.Restore(s.TotalMoment)
	logrus.Infof("restored warm-up trace: %d streams, period = %d moments", len(s.Entries), s.TotalMoment)
}

// Snapshot returns the warm-up result for persistence. ok is false while still warming up
// or when the policy records no trace.
func (e *Engine) Snapshot() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, isPredictive := e.policy.(*PredictiveEviction)
	if e.metronome.IsWarmup() || !isPredictive {
		return Snapshot{}, false
	}
	return Snapshot{TotalMoment: e.metronome.TotalMoment(), Entries: p.Trace().Entries()}, true
}

// Moment returns the current metronome moment.
func (e *Engine) Moment() Moment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metronome.Moment()
}

// IsWarmup reports whether the engine is still recording its warm-up trace.
func (e *Engine) IsWarmup() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metronome.IsWarmup()
}

// PolicyName returns the active eviction policy's name.
func (e *Engine) PolicyName() string {
	return e.policy.Name()
}

// Decisions returns the recorded decision trace, or nil when tracing is disabled.
func (e *Engine) Decisions() *trace.SimulationTrace {
	return e.decisions
}
