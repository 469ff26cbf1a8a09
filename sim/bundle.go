package sim

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/chunksim/sim/trace"
)

// PolicyBundle holds engine configuration, loadable from a YAML file.
// Nil pointer fields mean "not set in YAML" and do not override CLI defaults.
// String fields use empty string for "not set".
type PolicyBundle struct {
	Eviction EvictionConfig `yaml:"eviction"`
	Trace    TraceConfig    `yaml:"trace"`
}

// EvictionConfig selects the eviction policy.
type EvictionConfig struct {
	Policy string `yaml:"policy"`
	Seed   *int64 `yaml:"seed"`
}

// TraceConfig selects decision-trace verbosity.
type TraceConfig struct {
	Level string `yaml:"level"`
}

// LoadPolicyBundle reads and parses a YAML policy configuration file.
func LoadPolicyBundle(path string) (*PolicyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy config: %w", err)
	}
	var bundle PolicyBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parsing policy config: %w", err)
	}
	return &bundle, nil
}

// ValidEvictionPolicies is the set of recognized eviction policy names.
// Shared by Validate() and NewEvictionPolicy() to avoid duplication.
var ValidEvictionPolicies = map[string]bool{"": true, "predictive": true, "recency": true, "random": true}

// IsValidEvictionPolicy returns true if name is a recognized eviction policy.
func IsValidEvictionPolicy(name string) bool {
	return ValidEvictionPolicies[name]
}

// Validate checks that every name in the bundle is recognized.
// All problems are reported together.
func (b *PolicyBundle) Validate() error {
	var result *multierror.Error
	if !IsValidEvictionPolicy(b.Eviction.Policy) {
		result = multierror.Append(result, fmt.Errorf("unknown eviction policy %q", b.Eviction.Policy))
	}
	if !trace.IsValidTraceLevel(b.Trace.Level) {
		result = multierror.Append(result, fmt.Errorf("unknown trace level %q", b.Trace.Level))
	}
	return result.ErrorOrNil()
}
