package random

import (
	"math/rand/v2"
	"time"
)

// Random is the source of every random choice in the game: question draws,
// bot answers and bot think time. Tests swap in a queued mock.
type Random interface {
	// Intn returns a random int in [0, n), or 0 when n <= 0
	Intn(n int) int

	// Duration returns a random duration in [0, bound), or 0 when bound <= 0
	Duration(bound time.Duration) time.Duration
}

// Source implements Random on the runtime's shared generator
type Source struct{}

// New creates a new Source
func New() *Source {
	return &Source{}
}

func (Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}

func (Source) Duration(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return rand.N(bound)
}
