package mocks

import (
	"time"

	"github.com/mcoot/triviasync/internal/dependencies/random"
)

// MockRandom returns queued values in order. An empty queue yields zero, so
// an unprimed mock always picks the first option and never waits.
type MockRandom struct {
	ints      []int
	durations []time.Duration

	// MaxDuration is the bound passed to the last Duration call
	MaxDuration time.Duration
}

var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued int. The bound is not applied.
func (r *MockRandom) Intn(int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v
}

// Duration returns the next queued duration
func (r *MockRandom) Duration(bound time.Duration) time.Duration {
	r.MaxDuration = bound
	if len(r.durations) == 0 {
		return 0
	}
	v := r.durations[0]
	r.durations = r.durations[1:]
	return v
}

// QueueIntn adds values to the Intn queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.ints = append(r.ints, values...)
}

// QueueDuration adds values to the Duration queue
func (r *MockRandom) QueueDuration(values ...time.Duration) {
	r.durations = append(r.durations, values...)
}
