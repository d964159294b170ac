package mocks

import (
	"sort"
	"sync"
	"time"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
)

// MockClock is a mock implementation of Clock for testing.
// Timers only fire from Advance or Set, synchronously and in deadline order.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	timers      []*mockTimer
	seq         int
}

// Ensure MockClock implements Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock set to the given time
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{CurrentTime: t}
}

// Now returns the mocked current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

// AfterFunc registers f to run once the mocked time reaches now+d
func (c *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &mockTimer{
		clock:    c,
		deadline: c.CurrentTime.Add(d),
		seq:      c.seq,
		fn:       f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by the given duration, firing due timers
func (c *MockClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set sets the clock to the given time, firing due timers. Each timer sees
// the clock at its own deadline while it runs.
func (c *MockClock) Set(t time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(t)
		if next == nil {
			if t.After(c.CurrentTime) {
				c.CurrentTime = t
			}
			c.mu.Unlock()
			return
		}
		c.removeLocked(next)
		if next.deadline.After(c.CurrentTime) {
			c.CurrentTime = next.deadline
		}
		c.mu.Unlock()
		next.fn()
	}
}

// PendingTimers returns the number of timers that have not fired or been stopped
func (c *MockClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *MockClock) nextDueLocked(limit time.Time) *mockTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})
	if c.timers[0].deadline.After(limit) {
		return nil
	}
	return c.timers[0]
}

func (c *MockClock) removeLocked(t *mockTimer) bool {
	for i, candidate := range c.timers {
		if candidate == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	seq      int
	fn       func()
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeLocked(t)
}
