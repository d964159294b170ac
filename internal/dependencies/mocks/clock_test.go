package mocks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClockFiresTimersInDeadlineOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	var order []string
	var seenAt []time.Time
	c.AfterFunc(3*time.Second, func() {
		order = append(order, "c")
		seenAt = append(seenAt, c.Now())
	})
	c.AfterFunc(time.Second, func() {
		order = append(order, "a")
		seenAt = append(seenAt, c.Now())
	})
	c.AfterFunc(2*time.Second, func() {
		order = append(order, "b")
		seenAt = append(seenAt, c.Now())
	})

	c.Advance(10 * time.Second)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []time.Time{
		start.Add(time.Second),
		start.Add(2 * time.Second),
		start.Add(3 * time.Second),
	}, seenAt)
	assert.Equal(t, start.Add(10*time.Second), c.Now())
	assert.Equal(t, 0, c.PendingTimers())
}

func TestMockClockTimerScheduledWhileFiringRunsIfDue(t *testing.T) {
	c := NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	fired := 0
	c.AfterFunc(time.Second, func() {
		fired++
		c.AfterFunc(time.Second, func() { fired++ })
	})

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, fired)

	c.Advance(time.Second)
	assert.Equal(t, 2, fired)
}

func TestMockClockStop(t *testing.T) {
	c := NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, fired)
}
