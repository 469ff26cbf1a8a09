package sim

// testChunk is a ChunkView backed by plain fields.
type testChunk struct {
	device *Device
	state  ChunkState
	pinned bool
	bytes  int64
}

func (c *testChunk) Device() (Device, bool) {
	if c.device == nil {
		return Device{}, false
	}
	return *c.device, true
}

func (c *testChunk) State() ChunkState   { return c.state }
func (c *testChunk) IsPinned() bool      { return c.pinned }
func (c *testChunk) PayloadBytes() int64 { return c.bytes }

// onDevice returns a HOLD chunk of the given size placed on dev.
func onDevice(dev Device, bytes int64) *testChunk {
	d := dev
	return &testChunk{device: &d, state: ChunkHold, bytes: bytes}
}

func views(chunks ...*testChunk) []ChunkView {
	out := make([]ChunkView, len(chunks))
	for i, c := range chunks {
		out[i] = c
	}
	return out
}

// advance moves the metronome forward n moments.
func advance(m *Metronome, n int) {
	for i := 0; i < n; i++ {
		m.Advance()
	}
}

// recordAt records an access for id on dev at each of the given moments.
// Moments must be ascending and not below the metronome's current moment.
func recordAt(m *Metronome, p EvictionPolicy, id ChunkID, dev Device, moments ...Moment) {
	for _, mom := range moments {
		advance(m, int(mom-m.Moment()))
		p.TraceAccess(id, dev)
	}
}
