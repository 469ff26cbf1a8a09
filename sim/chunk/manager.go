package chunk

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/chunksim/sim"
)

// ErrInsufficientMemory is returned when a device cannot make room for a chunk
// even after evicting every admissible candidate.
var ErrInsufficientMemory = errors.New("insufficient device memory")

// Evictor derives eviction plans. *sim.Engine satisfies it.
type Evictor interface {
	DeriveEvictionList(chunks []sim.ChunkView, requiredBytes int64, target sim.Device) sim.EvictionPlan
}

// DeviceConfig describes one placement domain. Capacity 0 means unbounded.
type DeviceConfig struct {
	Device        sim.Device
	CapacityBytes int64
}

// Stats counts manager activity.
type Stats struct {
	Hits          int64 // accesses that found the chunk already on the device
	Misses        int64 // accesses that had to place or move the chunk
	Evictions     int64 // chunks moved to the host to make room
	EvictedBytes  int64
	MovedBytes    int64 // bytes brought onto a device by misses
	FailedAccess  int64
	EvictionCalls int64
}

// Manager owns the chunk registry and per-device byte accounting.
// Chunks evicted from any device land on the host device.
//
// Thread-safety: NOT thread-safe. Must be called from the step loop.
type Manager struct {
	chunks   []*Chunk
	views    []sim.ChunkView
	capacity map[sim.Device]int64
	used     map[sim.Device]int64
	host     sim.Device
	evictor  Evictor
	stats    Stats
}

// NewManager creates a manager over the given devices. host must be one of them.
// Panics on duplicate devices, negative capacities or an unknown host.
func NewManager(devices []DeviceConfig, host sim.Device, evictor Evictor) *Manager {
	if evictor == nil {
		panic("chunk.Manager: evictor must not be nil")
	}
	m := &Manager{
		capacity: make(map[sim.Device]int64, len(devices)),
		used:     make(map[sim.Device]int64, len(devices)),
		host:     host,
		evictor:  evictor,
	}
	for _, d := range devices {
		if _, dup := m.capacity[d.Device]; dup {
			panic(fmt.Sprintf("chunk.Manager: duplicate device %s", d.Device))
		}
		if d.CapacityBytes < 0 {
			panic(fmt.Sprintf("chunk.Manager: capacity of %s must be >= 0, got %d", d.Device, d.CapacityBytes))
		}
		m.capacity[d.Device] = d.CapacityBytes
	}
	if _, ok := m.capacity[host]; !ok {
		panic(fmt.Sprintf("chunk.Manager: host device %s is not configured", host))
	}
	return m
}

// AddChunk registers an unplaced chunk of the given size and returns its ID.
func (m *Manager) AddChunk(bytes int64, pinned bool) sim.ChunkID {
	if bytes <= 0 {
		panic(fmt.Sprintf("chunk.Manager: chunk size must be > 0, got %d", bytes))
	}
	c := &Chunk{ID: sim.ChunkID(len(m.chunks)), Bytes: bytes, state: sim.ChunkFree, pinned: pinned}
	m.chunks = append(m.chunks, c)
	m.views = append(m.views, c)
	return c.ID
}

// Chunk returns the chunk with the given ID.
func (m *Manager) Chunk(id sim.ChunkID) *Chunk {
	return m.chunks[id]
}

// Len returns the number of registered chunks.
func (m *Manager) Len() int { return len(m.chunks) }

// Views returns the registry as engine-facing views, indexed by ChunkID.
func (m *Manager) Views() []sim.ChunkView { return m.views }

// Used returns the payload bytes resident on dev.
func (m *Manager) Used(dev sim.Device) int64 { return m.used[dev] }

// Free returns the unreserved bytes on dev; -1 if dev is unbounded.
func (m *Manager) Free(dev sim.Device) int64 {
	capacity, ok := m.capacity[dev]
	if !ok {
		return 0
	}
	if capacity == 0 {
		return -1
	}
	return capacity - m.used[dev]
}

// Stats returns a copy of the activity counters.
func (m *Manager) Stats() Stats { return m.stats }

// Access makes chunk id resident on dev and marks it COMPUTE. A released chunk is
// re-allocated, which always counts as a miss.
// When dev lacks room the Evictor is asked for a plan and every planned chunk is moved
// to the host. Returns ErrInsufficientMemory (wrapped) if dev still lacks room afterwards.
func (m *Manager) Access(id sim.ChunkID, dev sim.Device) error {
	c := m.chunks[id]
	if cur, ok := c.Device(); ok && cur == dev {
		m.stats.Hits++
		c.state = sim.ChunkCompute
		return nil
	}
	m.stats.Misses++
	if err := m.makeRoom(dev, c.Bytes); err != nil {
		m.stats.FailedAccess++
		return fmt.Errorf("placing chunk %d on %s: %w", id, dev, err)
	}
	m.move(c, dev)
	m.stats.MovedBytes += c.Bytes
	c.state = sim.ChunkCompute
	return nil
}

// Done ends a compute phase, leaving the chunk in the given hold state.
func (m *Manager) Done(id sim.ChunkID, state sim.ChunkState) {
	if state == sim.ChunkCompute || state == sim.ChunkReleased {
		panic(fmt.Sprintf("chunk.Manager: Done with non-hold state %s", state))
	}
	m.chunks[id].state = state
}

// Release frees a chunk's payload; it leaves its device until it is accessed again.
func (m *Manager) Release(id sim.ChunkID) {
	c := m.chunks[id]
	if dev, ok := c.Device(); ok {
		m.used[dev] -= c.Bytes
	}
	c.device = nil
	c.state = sim.ChunkReleased
}

// makeRoom ensures dev has at least need free bytes, evicting to the host if necessary.
func (m *Manager) makeRoom(dev sim.Device, need int64) error {
	capacity, ok := m.capacity[dev]
	if !ok {
		return fmt.Errorf("unknown device %s", dev)
	}
	if capacity == 0 {
		return nil
	}
	if need > capacity {
		return fmt.Errorf("%w: chunk of %s exceeds %s capacity %s", ErrInsufficientMemory,
			humanize.IBytes(uint64(need)), dev, humanize.IBytes(uint64(capacity)))
	}
	free := capacity - m.used[dev]
	if free >= need {
		return nil
	}
	if dev == m.host {
		return fmt.Errorf("%w: host %s is full", ErrInsufficientMemory, dev)
	}

	m.stats.EvictionCalls++
	plan := m.evictor.DeriveEvictionList(m.viewsOn(dev), need-free, dev)
	for _, victim := range plan.ChunkIDs {
		c := m.chunks[victim]
		if cur, ok := c.Device(); !ok || cur != dev {
			continue
		}
		if err := m.makeRoom(m.host, c.Bytes); err != nil {
			return err
		}
		m.move(c, m.host)
		c.state = sim.ChunkHold
		m.stats.Evictions++
		m.stats.EvictedBytes += c.Bytes
	}
	if free = capacity - m.used[dev]; free < need {
		logrus.Debugf("eviction on %s freed %s of %s", dev,
			humanize.IBytes(uint64(plan.FreedBytes)), humanize.IBytes(uint64(plan.RequiredBytes)))
		return fmt.Errorf("%w: %s short on %s", ErrInsufficientMemory, humanize.IBytes(uint64(need-free)), dev)
	}
	return nil
}

// elsewhere hides a chunk resident on a sibling device of the same type.
type elsewhere struct{ *Chunk }

func (elsewhere) Device() (sim.Device, bool) { return sim.Device{}, false }

// viewsOn returns the registry as seen by a plan for dev: chunks on other devices of
// dev's type read as unplaced, so every planned byte is freed on dev itself.
func (m *Manager) viewsOn(dev sim.Device) []sim.ChunkView {
	siblings := false
	for d := range m.capacity {
		if d != dev && d.SameType(dev) {
			siblings = true
			break
		}
	}
	if !siblings {
		return m.views
	}
	views := make([]sim.ChunkView, len(m.chunks))
	for i, c := range m.chunks {
		if cur, ok := c.Device(); ok && cur != dev && cur.SameType(dev) {
			views[i] = elsewhere{c}
		} else {
			views[i] = c
		}
	}
	return views
}

// move relocates c to dev, updating byte accounting on both sides.
func (m *Manager) move(c *Chunk, dev sim.Device) {
	if cur, ok := c.Device(); ok {
		m.used[cur] -= c.Bytes
	}
	c.place(dev)
	m.used[dev] += c.Bytes
}
