package barrier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/dependencies/mocks"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
	"github.com/mcoot/triviasync/internal/testutil"
	"github.com/stretchr/testify/suite"
)

var errUnavailable = errors.New("server unavailable")

type fakeServer struct {
	mu sync.Mutex

	participants int
	roomErr      error

	markFailures     int // -1 fails forever
	registerFailures int
	forceHangs       bool
	finished         [][]model.GuestID

	markCalls     int
	registerCalls int
	finishedCalls int
	forceCalls    int
}

func (f *fakeServer) GetRoom(context.Context, model.RoomID) (*response.RoomDetailResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	resp := &response.RoomDetailResponse{
		Envelope: response.OK(),
		Room:     model.Room{ID: "room-1", MaxPlayers: 4, CurrentPlayers: f.participants},
	}
	for i := 0; i < f.participants; i++ {
		resp.Participants = append(resp.Participants, model.Participant{GuestID: model.GuestID(i)})
	}
	return resp, nil
}

func (f *fakeServer) MarkFinished(context.Context, model.RoomID, model.GuestID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markFailures < 0 || f.markCalls <= f.markFailures {
		return errUnavailable
	}
	return nil
}

func (f *fakeServer) RegisterFinished(context.Context, model.RoomID, model.GuestID, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerFailures < 0 || f.registerCalls <= f.registerFailures {
		return errUnavailable
	}
	return nil
}

func (f *fakeServer) GetFinishedPlayers(context.Context, model.RoomID) (*response.FinishedPlayersResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishedCalls++
	var guests []model.GuestID
	if len(f.finished) > 0 {
		guests = f.finished[0]
		if len(f.finished) > 1 {
			f.finished = f.finished[1:]
		}
	}
	return &response.FinishedPlayersResponse{
		Envelope:        response.OK(),
		FinishedPlayers: guests,
		Total:           f.participants,
	}, nil
}

func (f *fakeServer) ForceComplete(ctx context.Context, _ model.RoomID, _ model.GuestID) error {
	f.mu.Lock()
	f.forceCalls++
	hangs := f.forceHangs
	f.mu.Unlock()

	if hangs {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeServer) counts() (mark, register, finished, force int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markCalls, f.registerCalls, f.finishedCalls, f.forceCalls
}

type recordingListener struct {
	progress [][2]int
	outcomes []Outcome
	stalled  int
	fatal    []*model.Failure
}

func (l *recordingListener) OnQuorumProgress(finished, total int) {
	l.progress = append(l.progress, [2]int{finished, total})
}

func (l *recordingListener) OnAllFinished(o Outcome) {
	l.outcomes = append(l.outcomes, o)
}

func (l *recordingListener) OnStalled() {
	l.stalled++
}

func (l *recordingListener) OnFatal(f *model.Failure) {
	l.fatal = append(l.fatal, f)
}

type BarrierSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	loop     *loop.Loop
	server   *fakeServer
	store    *state.GameSessionState
	listener *recordingListener
	barrier  *Barrier
}

func TestBarrierSuite(t *testing.T) {
	suite.Run(t, new(BarrierSuite))
}

func (s *BarrierSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.loop = loop.New(s.clock, testutil.NopLogger())
	s.server = &fakeServer{participants: 2}
	s.store = state.New()
	s.listener = &recordingListener{}
	s.barrier = New(s.loop, s.server, s.store, s.listener, DefaultConfig(), testutil.NopLogger())
}

// step advances the clock in half-second increments, settling after each
func (s *BarrierSuite) step(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 500 * time.Millisecond {
		s.clock.Advance(500 * time.Millisecond)
		s.loop.Settle()
	}
}

func (s *BarrierSuite) begin() {
	s.barrier.Begin("room-1", 1, "bob", 4)
	s.loop.Settle()
}

// Quorum tests

func (s *BarrierSuite) TestQuorumNeedsTwoStableReads() {
	s.server.finished = [][]model.GuestID{{0, 1}}
	s.begin()
	s.Equal(PhasePolling, s.barrier.Phase())

	// First poll at 3s, second at 4.5s, then a 1.5s grace
	s.step(3 * time.Second)
	s.Equal(PhasePolling, s.barrier.Phase())

	s.step(1500 * time.Millisecond)
	s.Equal(PhaseSatisfied, s.barrier.Phase())
	s.Empty(s.listener.outcomes)

	s.step(time.Second)
	s.Empty(s.listener.outcomes)

	s.step(500 * time.Millisecond)
	s.Require().Len(s.listener.outcomes, 1)
	s.False(s.listener.outcomes[0].Forced)
	s.Equal([]model.GuestID{0, 1}, s.listener.outcomes[0].Finished)

	_, _, finished, force := s.server.counts()
	s.Equal(2, finished)
	s.Equal(0, force)

	s.step(30 * time.Second)
	s.Len(s.listener.outcomes, 1)
	s.Equal(0, s.listener.stalled)
}

func (s *BarrierSuite) TestUnstableReadResetsQuorum() {
	s.server.finished = [][]model.GuestID{{0, 1}, {0}, {0, 1}, {0, 1}}
	s.begin()

	// Polls at 3s, 4.5s, 6s, 7.5s
	s.step(6 * time.Second)
	s.Equal(PhasePolling, s.barrier.Phase())

	s.step(1500 * time.Millisecond)
	s.Equal(PhaseSatisfied, s.barrier.Phase())

	s.step(1500 * time.Millisecond)
	s.Require().Len(s.listener.outcomes, 1)
	s.False(s.listener.outcomes[0].Forced)
}

func (s *BarrierSuite) TestReportsQuorumProgress() {
	s.server.finished = [][]model.GuestID{{1}, {0, 1}}
	s.begin()

	s.step(4500 * time.Millisecond)

	s.Equal([][2]int{{1, 2}, {2, 2}}, s.listener.progress)
}

func (s *BarrierSuite) TestStragglerForcesCompletionAtCeiling() {
	s.server.participants = 4
	s.server.finished = [][]model.GuestID{{0, 1, 2}}
	s.begin()
	s.Equal(4, s.barrier.Total())

	s.step(19500 * time.Millisecond)
	s.Empty(s.listener.outcomes)
	s.Equal(0, s.listener.stalled)

	s.step(500 * time.Millisecond)
	s.Equal(1, s.listener.stalled)
	s.Require().Len(s.listener.outcomes, 1)
	s.True(s.listener.outcomes[0].Forced)
	s.Equal([]model.GuestID{0, 1, 2}, s.listener.outcomes[0].Finished)
	s.Equal(PhaseTimedOut, s.barrier.Phase())

	_, _, finished, force := s.server.counts()
	s.Equal(1, force)

	s.step(30 * time.Second)
	s.Len(s.listener.outcomes, 1)
	_, _, after, force := s.server.counts()
	s.Equal(finished, after)
	s.Equal(1, force)
}

func (s *BarrierSuite) TestHungForceCompleteStillDeliversOutcome() {
	cfg := DefaultConfig()
	cfg.ForceTimeout = 20 * time.Millisecond
	s.barrier = New(s.loop, s.server, s.store, s.listener, cfg, testutil.NopLogger())
	s.server.participants = 3
	s.server.finished = [][]model.GuestID{{0, 1}}
	s.server.forceHangs = true
	s.begin()

	started := time.Now()
	s.step(20 * time.Second)

	s.Equal(1, s.listener.stalled)
	s.Require().Len(s.listener.outcomes, 1)
	s.True(s.listener.outcomes[0].Forced)
	s.Less(time.Since(started), 5*time.Second)

	_, _, _, force := s.server.counts()
	s.Equal(1, force)
}

func (s *BarrierSuite) TestTotalIsActualParticipantsNotCapacity() {
	s.server.participants = 2
	s.server.finished = [][]model.GuestID{{0, 1}}
	s.begin()

	s.Equal(2, s.barrier.Total())

	s.step(6 * time.Second)
	s.Require().Len(s.listener.outcomes, 1)
	s.False(s.listener.outcomes[0].Forced)
}

func (s *BarrierSuite) TestFallbackTotalWhenRoomUnavailable() {
	s.server.roomErr = errUnavailable
	s.begin()

	s.Equal(4, s.barrier.Total())
	s.Equal(PhasePolling, s.barrier.Phase())
}

// Registration tests

func (s *BarrierSuite) TestMarkFinishedIsRetried() {
	s.server.markFailures = 2
	s.begin()

	mark, register, _, _ := s.server.counts()
	s.Equal(1, mark)
	s.Equal(0, register)

	s.step(2 * time.Second)
	mark, register, _, _ = s.server.counts()
	s.Equal(3, mark)
	s.Equal(1, register)
	s.Equal(PhasePolling, s.barrier.Phase())
}

func (s *BarrierSuite) TestMarkFinishedExhaustionIsNotFatal() {
	s.server.markFailures = -1
	s.begin()

	s.step(5 * time.Second)

	mark, register, _, _ := s.server.counts()
	s.Equal(3, mark)
	s.Equal(1, register)
	s.Empty(s.listener.fatal)
	s.Equal(PhasePolling, s.barrier.Phase())
}

func (s *BarrierSuite) TestRegisterExhaustionIsFatal() {
	s.server.registerFailures = -1
	s.begin()

	s.step(30 * time.Second)

	_, register, finished, force := s.server.counts()
	s.Equal(3, register)
	s.Equal(0, finished)
	s.Equal(0, force)
	s.Require().Len(s.listener.fatal, 1)
	s.Equal(model.FailureRegistration, s.listener.fatal[0].Kind)
	s.Equal(PhaseFailed, s.barrier.Phase())
	s.Empty(s.listener.outcomes)
}

func (s *BarrierSuite) TestRegisterRecoversWithinAttempts() {
	s.server.registerFailures = 2
	s.server.finished = [][]model.GuestID{{0, 1}}
	s.begin()

	s.step(10 * time.Second)

	s.Empty(s.listener.fatal)
	s.Require().Len(s.listener.outcomes, 1)
}

// Stop tests

func (s *BarrierSuite) TestStopAbandonsBarrier() {
	s.server.finished = [][]model.GuestID{{0, 1}}
	s.begin()

	s.barrier.Stop()
	s.barrier.Stop()
	s.step(30 * time.Second)

	_, _, finished, force := s.server.counts()
	s.Equal(0, finished)
	s.Equal(0, force)
	s.Empty(s.listener.outcomes)
	s.Equal(PhaseIdle, s.barrier.Phase())
}
