// Package chunk models the memory manager that owns chunk payloads and moves them
// between devices. It consumes eviction plans but never ranks chunks itself.
package chunk

import (
	"github.com/inference-sim/chunksim/sim"
)

// Chunk is one fixed-size block of tensor payload. It implements sim.ChunkView.
type Chunk struct {
	ID     sim.ChunkID
	Bytes  int64
	device *sim.Device
	state  sim.ChunkState
	pinned bool
}

func (c *Chunk) Device() (sim.Device, bool) {
	if c.device == nil {
		return sim.Device{}, false
	}
	return *c.device, true
}

func (c *Chunk) State() sim.ChunkState { return c.state }
func (c *Chunk) IsPinned() bool        { return c.pinned }

// PayloadBytes is the room freed when the chunk leaves its device.
// Released chunks hold no payload.
func (c *Chunk) PayloadBytes() int64 {
	if c.state == sim.ChunkReleased {
		return 0
	}
	return c.Bytes
}

func (c *Chunk) place(dev sim.Device) {
	d := dev
	c.device = &d
}
