package sim

import (
	"fmt"
	"sort"
)

// accessKey identifies one (chunk, device) access stream.
type accessKey struct {
	chunk  ChunkID
	device Device
}

// TraceEntry is one (chunk, device) access stream, used to persist and restore traces.
type TraceEntry struct {
	Chunk   ChunkID
	Device  Device
	Moments []Moment
}

// AccessTrace records, per (chunk, device), the moments at which the chunk was used
// on that device during warm-up. Sequences are non-decreasing. Once warm-up ends the
// trace is read-only and treated as one period of a repeating pattern.
type AccessTrace struct {
	metronome *Metronome
	accesses  map[accessKey][]Moment
}

// NewAccessTrace creates an empty trace stamped by the given metronome.
func NewAccessTrace(metronome *Metronome) *AccessTrace {
	if metronome == nil {
		panic("AccessTrace: metronome must not be nil")
	}
	return &AccessTrace{
		metronome: metronome,
		accesses:  make(map[accessKey][]Moment),
	}
}

// Record appends the current moment to the (chunk, device) stream.
// Calls after warm-up are accepted and ignored.
func (t *AccessTrace) Record(id ChunkID, dev Device) {
	if !t.metronome.IsWarmup() {
		return
	}
	key := accessKey{chunk: id, device: dev}
	cur := t.metronome.Moment()
	moments := t.accesses[key]
	if n := len(moments); n > 0 && moments[n-1] > cur {
		panic(fmt.Sprintf("AccessTrace: moment %d recorded after %d for chunk %d on %s",
			cur, moments[n-1], id, dev))
	}
	t.accesses[key] = append(moments, cur)
}

// Moments returns the recorded stream for (chunk, device). The slice must not be modified.
func (t *AccessTrace) Moments(id ChunkID, dev Device) ([]Moment, bool) {
	moments, ok := t.accesses[accessKey{chunk: id, device: dev}]
	return moments, ok
}

// Len returns the number of recorded (chunk, device) streams.
func (t *AccessTrace) Len() int {
	return len(t.accesses)
}

// Entries returns a copy of all streams ordered by chunk, then device string.
func (t *AccessTrace) Entries() []TraceEntry {
	entries := make([]TraceEntry, 0, len(t.accesses))
	for key, moments := range t.accesses {
		entries = append(entries, TraceEntry{
			Chunk:   key.chunk,
			Device:  key.device,
			Moments: append([]Moment(nil), moments...),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Chunk != entries[j].Chunk {
			return entries[i].Chunk < entries[j].Chunk
		}
		return entries[i].Device.String() < entries[j].Device.String()
	})
	return entries
}

// Restore replaces the trace contents with the given streams.
// Each stream must be non-empty and non-decreasing.
func (t *AccessTrace) Restore(entries []TraceEntry) {
	accesses := make(map[accessKey][]Moment, len(entries))
	for _, e := range entries {
		if len(e.Moments) == 0 {
			panic(fmt.Sprintf("AccessTrace: empty stream for chunk %d on %s", e.Chunk, e.Device))
		}
		for i := 1; i < len(e.Moments); i++ {
			if e.Moments[i] < e.Moments[i-1] {
				panic(fmt.Sprintf("AccessTrace: stream for chunk %d on %s is not ordered", e.Chunk, e.Device))
			}
		}
		accesses[accessKey{chunk: e.Chunk, device: e.Device}] = append([]Moment(nil), e.Moments...)
	}
	t.accesses = accesses
}
