package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetronome_New_StartsInWarmup(t *testing.T) {
	m := NewMetronome()
	assert.True(t, m.IsWarmup())
	assert.Equal(t, Moment(0), m.Moment())
	assert.Equal(t, Moment(0), m.TotalMoment())
}

func TestMetronome_EndWarmup_FixesPeriod(t *testing.T) {
	// GIVEN a warm-up step of 10 moments
	m := NewMetronome()
	advance(m, 10)

	// WHEN warm-up ends
	m.EndWarmup()

	// THEN the period is the number of observed moments and the clock keeps counting
	assert.False(t, m.IsWarmup())
	assert.Equal(t, Moment(10), m.TotalMoment())
	m.Advance()
	assert.Equal(t, Moment(11), m.Moment())
}

func TestMetronome_EndWarmupTwice_Panics(t *testing.T) {
	m := NewMetronome()
	advance(m, 4)
	m.EndWarmup()
	assert.PanicsWithValue(t, "Metronome: warm-up already ended at total moment 4", func() {
		m.EndWarmup()
	})
}

func TestMetronome_Position_WrapsAfterWarmup(t *testing.T) {
	tests := []struct {
		name   string
		warmup int
		extra  int
		want   Moment
	}{
		{"start of second period", 10, 0, 0},
		{"inside second period", 10, 3, 3},
		{"inside third period", 10, 17, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetronome()
			advance(m, tt.warmup)
			m.EndWarmup()
			advance(m, tt.extra)
			assert.Equal(t, tt.want, m.Position())
		})
	}
}

func TestMetronome_Position_RawDuringWarmup(t *testing.T) {
	m := NewMetronome()
	advance(m, 25)
	assert.Equal(t, Moment(25), m.Position())
}

func TestMetronome_Restore_EndsWarmup(t *testing.T) {
	m := NewMetronome()
	m.Restore(10)
	assert.False(t, m.IsWarmup())
	assert.Equal(t, Moment(10), m.TotalMoment())
	assert.Equal(t, Moment(0), m.Moment())
}

func TestMetronome_Restore_InvalidPeriod_Panics(t *testing.T) {
	assert.Panics(t, func() { NewMetronome().Restore(0) })
}
