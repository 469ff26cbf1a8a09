package workload

import (
	"bytes"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/chunksim/sim"
)

// WorkloadSpec describes one iterative training job: the devices chunks live on, the
// chunk population, and the access pattern repeated every step.
// Loaded from YAML via LoadWorkloadSpec(path).
type WorkloadSpec struct {
	Version         string           `yaml:"version"`
	Name            string           `yaml:"name"`
	Seed            int64            `yaml:"seed"`
	Steps           int              `yaml:"steps"`
	Pattern         string           `yaml:"pattern"`                    // "" = forward-backward
	ComputeDevice   string           `yaml:"compute_device"`             // "" = cuda:0
	OptimizerDevice string           `yaml:"optimizer_device,omitempty"` // optional optimizer pass
	Devices         []DeviceSpec     `yaml:"devices"`
	Chunks          []ChunkGroupSpec `yaml:"chunks"`
}

// DeviceSpec defines one placement domain. CapacityBytes 0 means unbounded.
type DeviceSpec struct {
	Name          string `yaml:"name"`
	CapacityBytes int64  `yaml:"capacity_bytes"`
	Host          bool   `yaml:"host"`
}

// ChunkGroupSpec defines Count identical chunks. Groups are numbered in declaration order.
// ReleaseAfter frees each chunk's payload once its access in that phase completes;
// the chunk is re-allocated on its next access.
type ChunkGroupSpec struct {
	Group        string `yaml:"group"`
	Count        int    `yaml:"count"`
	Bytes        int64  `yaml:"bytes"`
	Pinned       bool   `yaml:"pinned"`
	ReleaseAfter Phase  `yaml:"release_after,omitempty"` // "" = never released
}

const (
	PatternForwardBackward = "forward-backward"
	PatternSequential      = "sequential"
	PatternShuffled        = "shuffled"
)

var validPatterns = map[string]bool{
	"": true, PatternForwardBackward: true, PatternSequential: true, PatternShuffled: true,
}

// IsValidPattern reports whether name is a recognized access pattern.
func IsValidPattern(name string) bool {
	return validPatterns[name]
}

// LoadWorkloadSpec reads and parses a YAML workload specification file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadWorkloadSpec(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	var spec WorkloadSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	return &spec, nil
}

// ComputeDeviceOrDefault returns the device forward/backward passes run on.
func (s *WorkloadSpec) ComputeDeviceOrDefault() string {
	if s.ComputeDevice == "" {
		return sim.CUDA(0).String()
	}
	return s.ComputeDevice
}

// TotalChunks returns the number of chunks across all groups.
func (s *WorkloadSpec) TotalChunks() int {
	n := 0
	for _, g := range s.Chunks {
		n += g.Count
	}
	return n
}

// Validate checks every field and reports all problems together.
func (s *WorkloadSpec) Validate() error {
	var result *multierror.Error
	if s.Name == "" {
		result = multierror.Append(result, fmt.Errorf("name must not be empty"))
	}
	if s.Steps <= 0 {
		result = multierror.Append(result, fmt.Errorf("steps must be positive, got %d", s.Steps))
	}
	if !IsValidPattern(s.Pattern) {
		result = multierror.Append(result, fmt.Errorf("unknown pattern %q; valid: forward-backward, sequential, shuffled", s.Pattern))
	}

	configured := make(map[sim.Device]bool)
	hosts := 0
	for i, d := range s.Devices {
		dev, err := sim.ParseDevice(d.Name)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("devices[%d]: %w", i, err))
			continue
		}
		if configured[dev] {
			result = multierror.Append(result, fmt.Errorf("devices[%d]: duplicate device %s", i, dev))
		}
		configured[dev] = true
		if d.CapacityBytes < 0 {
			result = multierror.Append(result, fmt.Errorf("devices[%d]: capacity_bytes must be non-negative, got %d", i, d.CapacityBytes))
		}
		if d.Host {
			hosts++
		}
	}
	if hosts != 1 {
		result = multierror.Append(result, fmt.Errorf("exactly one host device required, got %d", hosts))
	}
	for _, field := range []struct{ name, value string }{
		{"compute_device", s.ComputeDeviceOrDefault()},
		{"optimizer_device", s.OptimizerDevice},
	} {
		if field.value == "" {
			continue
		}
		dev, err := sim.ParseDevice(field.value)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", field.name, err))
			continue
		}
		if !configured[dev] {
			result = multierror.Append(result, fmt.Errorf("%s: device %s is not configured", field.name, dev))
		}
	}

	if len(s.Chunks) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one chunk group required"))
	}
	for i, g := range s.Chunks {
		if g.Count <= 0 {
			result = multierror.Append(result, fmt.Errorf("chunks[%d]: count must be positive, got %d", i, g.Count))
		}
		if g.Bytes <= 0 {
			result = multierror.Append(result, fmt.Errorf("chunks[%d]: bytes must be positive, got %d", i, g.Bytes))
		}
		if g.ReleaseAfter != "" && !IsValidPhase(string(g.ReleaseAfter)) {
			result = multierror.Append(result, fmt.Errorf("chunks[%d]: unknown release_after phase %q; valid: forward, backward, optimizer", i, g.ReleaseAfter))
		}
		if g.ReleaseAfter != "" && g.Pinned {
			result = multierror.Append(result, fmt.Errorf("chunks[%d]: pinned chunks cannot be released", i))
		}
	}
	return result.ErrorOrNil()
}
