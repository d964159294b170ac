package progress

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/dependencies/mocks"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
	"github.com/mcoot/triviasync/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type result struct {
	resp *response.ProgressResponse
	err  error
}

func progressOf(generated, total int) result {
	return result{resp: &response.ProgressResponse{
		Envelope:         response.OK(),
		ProgressSnapshot: model.NewProgressSnapshot(generated, total),
	}}
}

func failure(err error) result {
	return result{err: err}
}

type fakeSource struct {
	mu      sync.Mutex
	results []result
	last    result
	calls   int
	block   chan struct{}
}

func (f *fakeSource) queue(results ...result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

func (f *fakeSource) GetProgress(ctx context.Context, _ model.RoomID) (*response.ProgressResponse, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	next := f.last
	if len(f.results) > 0 {
		next = f.results[0]
		f.results = f.results[1:]
		f.last = next
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return next.resp, next.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingListener struct {
	progress []model.ProgressSnapshot
	messages []string
	ready    []model.ProgressSnapshot
	fatal    []*model.Failure
}

func (l *recordingListener) OnProgress(s model.ProgressSnapshot, message string) {
	l.progress = append(l.progress, s)
	l.messages = append(l.messages, message)
}

func (l *recordingListener) OnReady(s model.ProgressSnapshot) {
	l.ready = append(l.ready, s)
}

func (l *recordingListener) OnFatal(f *model.Failure) {
	l.fatal = append(l.fatal, f)
}

type PollerSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	loop     *loop.Loop
	source   *fakeSource
	store    *state.GameSessionState
	listener *recordingListener
	poller   *Poller
}

func TestPollerSuite(t *testing.T) {
	suite.Run(t, new(PollerSuite))
}

func (s *PollerSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.loop = loop.New(s.clock, testutil.NopLogger())
	s.source = &fakeSource{}
	s.store = state.New()
	s.listener = &recordingListener{}
	s.poller = s.newPoller(DefaultConfig())
}

func (s *PollerSuite) newPoller(cfg Config) *Poller {
	return NewPoller(s.loop, s.source, s.store, s.listener, cfg, testutil.NopLogger())
}

// step advances the clock one second at a time, settling the loop after each
func (s *PollerSuite) step(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
		s.clock.Advance(time.Second)
		s.loop.Settle()
	}
}

// Scheduling tests

func (s *PollerSuite) TestFirstPollAfterInitialDelay() {
	s.source.queue(progressOf(0, 5))
	s.poller.Start("room-1", 5)

	s.step(time.Second)
	s.Equal(0, s.source.callCount())

	s.step(time.Second)
	s.Equal(1, s.source.callCount())

	s.step(10 * time.Second)
	s.Equal(2, s.source.callCount())
}

func (s *PollerSuite) TestReadyStopsPoller() {
	s.source.queue(progressOf(2, 5), progressOf(5, 5))
	s.poller.Start("room-1", 5)

	s.step(12 * time.Second)

	s.Require().Len(s.listener.ready, 1)
	s.Equal(5, s.listener.ready[0].Generated)
	s.True(s.listener.ready[0].IsReady)
	s.False(s.poller.Running())

	s.step(time.Minute)
	s.Equal(2, s.source.callCount())
	s.Len(s.listener.ready, 1)
	s.Empty(s.listener.fatal)
}

func (s *PollerSuite) TestProgressIsMonotonic() {
	s.source.queue(progressOf(3, 5), progressOf(1, 5), progressOf(4, 5))
	s.poller.Start("room-1", 5)

	s.step(22 * time.Second)

	s.Require().Len(s.listener.progress, 3)
	var generated []int
	for _, p := range s.listener.progress {
		generated = append(generated, p.Generated)
	}
	s.Equal([]int{3, 3, 4}, generated)
	s.Equal(4, s.store.Progress().Generated)
}

func (s *PollerSuite) TestAtMostOneRequestInFlight() {
	s.source.block = make(chan struct{})
	s.source.queue(progressOf(1, 5))
	s.poller.Start("room-1", 5)

	for i := 0; i < 22; i++ {
		s.clock.Advance(time.Second)
		s.loop.Flush()
	}
	s.Equal(1, s.source.callCount())

	s.source.mu.Lock()
	close(s.source.block)
	s.source.block = nil
	s.source.mu.Unlock()
	s.loop.Settle()

	s.Require().Len(s.listener.progress, 1)
	s.Equal(1, s.listener.progress[0].Generated)

	s.step(10 * time.Second)
	s.Equal(2, s.source.callCount())
}

// Classification tests

func (s *PollerSuite) TestErrorBudgetExhaustion() {
	for i := 0; i < 5; i++ {
		s.source.queue(failure(&client.StatusError{Status: http.StatusInternalServerError, Message: "boom"}))
	}
	s.poller.Start("room-1", 5)

	s.step(32 * time.Second)
	s.Empty(s.listener.fatal)
	s.Equal(4, s.source.callCount())

	s.step(10 * time.Second)
	s.Require().Len(s.listener.fatal, 1)
	s.Equal(model.FailureApplication, s.listener.fatal[0].Kind)
	s.Equal("boom", s.listener.fatal[0].Message)
	s.False(s.poller.Running())

	s.step(time.Minute)
	s.Equal(5, s.source.callCount())
	s.Len(s.listener.fatal, 1)
}

func (s *PollerSuite) TestSuccessResetsErrorCounter() {
	serverErr := failure(&client.StatusError{Status: http.StatusInternalServerError})
	s.source.queue(serverErr, serverErr, serverErr, serverErr, progressOf(1, 5))
	s.source.queue(serverErr, serverErr, serverErr, serverErr, progressOf(2, 5))
	s.poller.Start("room-1", 5)

	s.step(100 * time.Second)

	s.Empty(s.listener.fatal)
	s.Equal(2, s.store.Progress().Generated)
}

func (s *PollerSuite) TestMalformedResponsesOnlySkipCycles() {
	s.poller = s.newPoller(Config{
		InitialDelay: 2 * time.Second,
		Interval:     10 * time.Second,
		MaxErrors:    2,
		StallTimeout: 45 * time.Second,
	})
	malformed := failure(client.ErrMalformedResponse)
	s.source.queue(malformed, malformed, malformed, progressOf(1, 5))
	s.poller.Start("room-1", 5)

	s.step(32 * time.Second)

	s.Empty(s.listener.fatal)
	s.Require().Len(s.listener.progress, 1)
	s.Equal(1, s.listener.progress[0].Generated)
	s.True(s.poller.Running())
}

func (s *PollerSuite) TestFirstTransientErrorIsNotCounted() {
	s.poller = s.newPoller(Config{
		InitialDelay: 2 * time.Second,
		Interval:     10 * time.Second,
		MaxErrors:    2,
		StallTimeout: time.Hour,
	})
	gateway := failure(&client.StatusError{Status: http.StatusGatewayTimeout})
	s.source.queue(gateway, gateway, gateway)
	s.poller.Start("room-1", 5)

	s.step(12 * time.Second)
	s.Empty(s.listener.fatal)
	s.Equal(msgRecovering, s.listener.messages[0])

	s.step(10 * time.Second)
	s.Require().Len(s.listener.fatal, 1)
	s.Equal(3, s.source.callCount())
}

func (s *PollerSuite) TestTimeoutIsTransient() {
	s.poller = s.newPoller(Config{
		InitialDelay: 2 * time.Second,
		Interval:     10 * time.Second,
		MaxErrors:    1,
		StallTimeout: time.Hour,
	})
	s.source.queue(failure(client.ErrTimeout), progressOf(1, 5))
	s.poller.Start("room-1", 5)

	s.step(12 * time.Second)

	s.Empty(s.listener.fatal)
	s.Equal(1, s.store.Progress().Generated)
}

func (s *PollerSuite) TestOverloadRejectionStaysInformative() {
	s.source.queue(failure(&client.RejectedError{Message: "Model is overloaded, try again later"}))
	s.source.queue(progressOf(1, 5))
	s.poller.Start("room-1", 5)

	s.step(2 * time.Second)

	s.Require().Len(s.listener.messages, 1)
	s.Equal(msgBusy, s.listener.messages[0])
	s.Empty(s.listener.fatal)
}

func (s *PollerSuite) TestRejectionsCountTowardBudget() {
	s.poller = s.newPoller(Config{
		InitialDelay: 2 * time.Second,
		Interval:     10 * time.Second,
		MaxErrors:    2,
		StallTimeout: time.Hour,
	})
	s.source.queue(failure(&client.RejectedError{Message: "generation failed"}))
	s.poller.Start("room-1", 5)

	s.step(12 * time.Second)

	s.Require().Len(s.listener.fatal, 1)
	s.Equal("generation failed", s.listener.fatal[0].Message)
}

// Stall tests

func (s *PollerSuite) TestStalledGenerationFiresOnce() {
	s.source.queue(progressOf(0, 5))
	s.poller.Start("room-1", 5)

	s.step(44 * time.Second)
	s.Empty(s.listener.fatal)

	s.step(2 * time.Second)
	s.Require().Len(s.listener.fatal, 1)
	s.Equal(model.FailureStall, s.listener.fatal[0].Kind)
	s.Equal("generation stalled", s.listener.fatal[0].Title)

	calls := s.source.callCount()
	s.step(time.Minute)
	s.Len(s.listener.fatal, 1)
	s.Equal(calls, s.source.callCount())
}

func (s *PollerSuite) TestProgressDisarmsStall() {
	s.source.queue(progressOf(0, 5), progressOf(1, 5))
	s.poller.Start("room-1", 5)

	s.step(2 * time.Minute)

	s.Empty(s.listener.fatal)
	s.True(s.poller.Running())
}

// Stop tests

func (s *PollerSuite) TestStopDropsInFlightResponse() {
	s.source.block = make(chan struct{})
	s.source.queue(progressOf(1, 5))
	s.poller.Start("room-1", 5)

	s.clock.Advance(2 * time.Second)
	s.loop.Flush()
	s.Equal(1, s.source.callCount())

	s.poller.Stop()
	s.poller.Stop()
	s.loop.Settle()

	s.Empty(s.listener.progress)
	s.Equal(0, s.store.Progress().Generated)

	s.step(time.Minute)
	s.Equal(1, s.source.callCount())
	s.Empty(s.listener.fatal)
}

func TestIsOverloaded(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"Model is overloaded", true},
		{"Rate limit exceeded", true},
		{"429 Too Many Requests", true},
		{"at capacity", true},
		{"invalid room", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := IsOverloaded(tt.message); got != tt.want {
				t.Errorf("IsOverloaded(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}
