package sim

import "fmt"

// Metronome is the cyclic logical clock shared by trace recording and eviction.
// It counts access moments and carries the one-way warm-up -> replay phase flag.
//
// The moment counter never wraps. Replay-side code interprets it modulo
// TotalMoment (see Position).
//
// Thread-safety: NOT thread-safe. Engine serializes access.
type Metronome struct {
	moment      Moment
	totalMoment Moment
	isWarmup    bool
}

// NewMetronome returns a Metronome at moment 0 in the warm-up phase.
func NewMetronome() *Metronome {
	return &Metronome{isWarmup: true}
}

// Advance moves the clock forward by one access point.
func (m *Metronome) Advance() {
	m.moment++
}

// EndWarmup fixes the period length to the number of moments observed so far
// and switches to replay. Panics if warm-up already ended.
func (m *Metronome) EndWarmup() {
	if !m.isWarmup {
		panic(fmt.Sprintf("Metronome: warm-up already ended at total moment %d", m.totalMoment))
	}
	m.totalMoment = m.moment
	m.isWarmup = false
}

// Restore ends warm-up with a period taken from a previously recorded run.
// The moment counter is left untouched.
func (m *Metronome) Restore(totalMoment Moment) {
	if !m.isWarmup {
		panic("Metronome: cannot restore after warm-up ended")
	}
	if totalMoment <= 0 {
		panic(fmt.Sprintf("Metronome: restored total moment must be > 0, got %d", totalMoment))
	}
	m.totalMoment = totalMoment
	m.isWarmup = false
}

func (m *Metronome) Moment() Moment      { return m.moment }
func (m *Metronome) TotalMoment() Moment { return m.totalMoment }
func (m *Metronome) IsWarmup() bool      { return m.isWarmup }

// Position returns the current moment folded into one period.
// During warm-up, or while the period is unknown, it is the raw moment.
func (m *Metronome) Position() Moment {
	if m.isWarmup || m.totalMoment == 0 {
		return m.moment
	}
	return m.moment % m.totalMoment
}
