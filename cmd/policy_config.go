package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/chunksim/sim"
	"github.com/inference-sim/chunksim/sim/trace"
	"github.com/inference-sim/chunksim/sim/workload"
)

// resolveEngineConfig layers engine settings: workload seed, then the policy bundle,
// then explicitly set flags.
func resolveEngineConfig(opts runOptions, spec *workload.WorkloadSpec) (sim.EngineConfig, error) {
	cfg := sim.EngineConfig{Seed: spec.Seed}

	if opts.PolicyConfigPath != "" {
		bundle, err := sim.LoadPolicyBundle(opts.PolicyConfigPath)
		if err != nil {
			return sim.EngineConfig{}, err
		}
		if err := bundle.Validate(); err != nil {
			return sim.EngineConfig{}, fmt.Errorf("invalid policy config: %w", err)
		}
		logrus.Infof("Using policy config %s", opts.PolicyConfigPath)
		cfg.Policy = bundle.Eviction.Policy
		if bundle.Eviction.Seed != nil {
			cfg.Seed = *bundle.Eviction.Seed
		}
		cfg.TraceLevel = trace.TraceLevel(bundle.Trace.Level)
	}

	if opts.Policy != nil {
		cfg.Policy = *opts.Policy
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
		spec.Seed = *opts.Seed
	}
	if opts.TraceLevel != nil {
		cfg.TraceLevel = trace.TraceLevel(*opts.TraceLevel)
	}

	if !sim.IsValidEvictionPolicy(cfg.Policy) {
		return sim.EngineConfig{}, fmt.Errorf("unknown eviction policy %q", cfg.Policy)
	}
	if !trace.IsValidTraceLevel(string(cfg.TraceLevel)) {
		return sim.EngineConfig{}, fmt.Errorf("unknown trace level %q", cfg.TraceLevel)
	}
	return cfg, nil
}
