package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTrace_Record_AppendsCurrentMoment(t *testing.T) {
	// GIVEN a trace during warm-up
	m := NewMetronome()
	tr := NewAccessTrace(m)

	// WHEN chunk 3 is used on cuda:0 at moments 2 and 7
	advance(m, 2)
	tr.Record(3, CUDA(0))
	advance(m, 5)
	tr.Record(3, CUDA(0))

	// THEN the stream holds both moments in order
	moments, ok := tr.Moments(3, CUDA(0))
	require.True(t, ok)
	assert.Equal(t, []Moment{2, 7}, moments)
	assert.Equal(t, 1, tr.Len())
}

func TestAccessTrace_Record_KeyedByDevice(t *testing.T) {
	m := NewMetronome()
	tr := NewAccessTrace(m)
	tr.Record(0, CUDA(0))
	m.Advance()
	tr.Record(0, CPU())

	gpu, _ := tr.Moments(0, CUDA(0))
	cpu, _ := tr.Moments(0, CPU())
	assert.Equal(t, []Moment{0}, gpu)
	assert.Equal(t, []Moment{1}, cpu)
	_, ok := tr.Moments(0, CUDA(1))
	assert.False(t, ok, "cuda:1 stream must not exist")
}

func TestAccessTrace_Record_IgnoredAfterWarmup(t *testing.T) {
	// GIVEN a trace whose warm-up has ended
	m := NewMetronome()
	tr := NewAccessTrace(m)
	tr.Record(1, CUDA(0))
	advance(m, 4)
	m.EndWarmup()

	// WHEN the chunk is used again
	tr.Record(1, CUDA(0))
	tr.Record(2, CUDA(0))

	// THEN the trace is unchanged
	moments, _ := tr.Moments(1, CUDA(0))
	assert.Equal(t, []Moment{0}, moments)
	assert.Equal(t, 1, tr.Len())
}

func TestAccessTrace_EntriesAndRestore_RoundTrip(t *testing.T) {
	m := NewMetronome()
	tr := NewAccessTrace(m)
	tr.Record(2, CUDA(0))
	m.Advance()
	tr.Record(0, CUDA(0))
	tr.Record(0, CPU())

	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, ChunkID(0), entries[0].Chunk)
	assert.Equal(t, CPU(), entries[0].Device, "cpu sorts before cuda:0")
	assert.Equal(t, ChunkID(2), entries[2].Chunk)

	restored := NewAccessTrace(NewMetronome())
	restored.Restore(entries)
	assert.Equal(t, entries, restored.Entries())
}

func TestAccessTrace_Restore_UnorderedStream_Panics(t *testing.T) {
	tr := NewAccessTrace(NewMetronome())
	assert.Panics(t, func() {
		tr.Restore([]TraceEntry{{Chunk: 0, Device: CUDA(0), Moments: []Moment{5, 3}}})
	})
}

func TestNewAccessTrace_NilMetronome_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "AccessTrace: metronome must not be nil", func() {
		NewAccessTrace(nil)
	})
}
