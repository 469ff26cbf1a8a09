package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// Moment is a logical timestamp counting discrete access points within a training step.
type Moment int64

// ChunkID identifies a chunk by its index in the chunk registry.
type ChunkID int

// DeviceType names a placement domain family (e.g. "cuda", "cpu").
type DeviceType string

const (
	DeviceCUDA DeviceType = "cuda"
	DeviceCPU  DeviceType = "cpu"
)

// Device is a placement domain for chunk payloads.
// Index < 0 means the device has no ordinal (e.g. host memory).
type Device struct {
	Type  DeviceType
	Index int
}

// CUDA returns the accelerator device with the given ordinal.
func CUDA(index int) Device {
	return Device{Type: DeviceCUDA, Index: index}
}

// CPU returns the host device.
func CPU() Device {
	return Device{Type: DeviceCPU, Index: -1}
}

func (d Device) String() string {
	if d.Index < 0 {
		return string(d.Type)
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

// SameType reports whether two devices belong to the same placement family.
// Eviction candidates are matched by type, not by ordinal.
func (d Device) SameType(other Device) bool {
	return d.Type == other.Type
}

// ParseDevice parses "cuda:0", "cuda" or "cpu". A bare "cuda" means ordinal 0.
func ParseDevice(s string) (Device, error) {
	typ, ord, hasOrd := strings.Cut(s, ":")
	if typ == "" {
		return Device{}, fmt.Errorf("invalid device %q", s)
	}
	if !hasOrd {
		if DeviceType(typ) == DeviceCUDA {
			return CUDA(0), nil
		}
		return Device{Type: DeviceType(typ), Index: -1}, nil
	}
	idx, err := strconv.Atoi(ord)
	if err != nil || idx < 0 {
		return Device{}, fmt.Errorf("invalid device ordinal in %q", s)
	}
	return Device{Type: DeviceType(typ), Index: idx}, nil
}

// ChunkState is the lifecycle state of a chunk as reported by the memory manager.
type ChunkState int

const (
	ChunkFree ChunkState = iota
	ChunkCompute
	ChunkHold
	ChunkHoldAfterFwd
	ChunkHoldAfterBwd
	ChunkReleased
)

var chunkStateNames = map[ChunkState]string{
	ChunkFree:         "FREE",
	ChunkCompute:      "COMPUTE",
	ChunkHold:         "HOLD",
	ChunkHoldAfterFwd: "HOLD_AFTER_FWD",
	ChunkHoldAfterBwd: "HOLD_AFTER_BWD",
	ChunkReleased:     "RELEASED",
}

func (s ChunkState) String() string {
	if name, ok := chunkStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ChunkState(%d)", int(s))
}

// Movable reports whether a chunk in this state may be relocated.
// COMPUTE chunks are in active use and RELEASED chunks hold no payload.
func (s ChunkState) Movable() bool {
	return s != ChunkCompute && s != ChunkReleased
}

// ChunkView is the read-only view of chunk metadata supplied by the memory manager.
// The engine never retains a ChunkView across calls.
type ChunkView interface {
	// Device returns the chunk's current placement; false means unplaced.
	Device() (Device, bool)
	State() ChunkState
	IsPinned() bool
	PayloadBytes() int64
}

// Evictable reports whether chunk may be evicted from a device of target's type.
func Evictable(chunk ChunkView, target Device) bool {
	dev, placed := chunk.Device()
	return placed && dev.SameType(target) && chunk.State().Movable() && !chunk.IsPinned()
}
