package state

import (
	"testing"
	"time"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/stretchr/testify/suite"
)

type StateSuite struct {
	suite.Suite
	state *GameSessionState
}

func TestStateSuite(t *testing.T) {
	suite.Run(t, new(StateSuite))
}

func (s *StateSuite) SetupTest() {
	s.state = New()
}

// Progress tests

func (s *StateSuite) TestProgressNeverDecreases() {
	s.state.SetProgress(model.NewProgressSnapshot(3, 5))
	held := s.state.SetProgress(model.NewProgressSnapshot(1, 5))

	s.Equal(3, held.Generated)
	s.Equal(3, s.state.Progress().Generated)

	held = s.state.SetProgress(model.NewProgressSnapshot(5, 5))
	s.Equal(5, held.Generated)
	s.True(held.IsReady)
}

func (s *StateSuite) TestProgressKeepsTotalWhenMissing() {
	s.state.SetProgress(model.NewProgressSnapshot(0, 5))
	held := s.state.SetProgress(model.ProgressSnapshot{Generated: 2})

	s.Equal(5, held.Total)
	s.False(held.IsReady)
}

func (s *StateSuite) TestReadyIsSticky() {
	s.state.SetProgress(model.NewProgressSnapshot(5, 5))
	held := s.state.SetProgress(model.ProgressSnapshot{Generated: 4, Total: 5})

	s.True(held.IsReady)
}

// Question tests

func (s *StateSuite) TestQuestionsAreSortedAndIterated() {
	s.state.SetQuestions([]model.Question{
		{ID: "b", QuestionNumber: 2},
		{ID: "a", QuestionNumber: 1},
	})

	snap := s.state.Snapshot()
	s.Require().NotNil(snap.CurrentQuestion())
	s.Equal(model.QuestionID("a"), snap.CurrentQuestion().ID)

	s.True(s.state.AdvanceQuestion())
	s.False(s.state.AdvanceQuestion())
	s.False(s.state.AdvanceQuestion())

	snap = s.state.Snapshot()
	s.Nil(snap.CurrentQuestion())
}

func (s *StateSuite) TestRecordAnswerAccumulatesScore() {
	s.state.RecordAnswer(model.Answer{QuestionID: "a", IsCorrect: true, PointsAwarded: 150})
	s.state.RecordAnswer(model.Answer{QuestionID: "b", IsCorrect: false})

	score, correct := s.state.Score()
	s.Equal(150, score)
	s.Equal(1, correct)
	s.Equal(2, s.state.AnsweredCount())
}

// Snapshot tests

func (s *StateSuite) TestSnapshotIsIsolated() {
	s.state.SetRoom(model.Room{ID: "r1", Status: model.RoomStatusWaiting}, []model.Participant{
		model.NewCreator("alice", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
	})

	snap := s.state.Snapshot()
	snap.Room.Status = model.RoomStatusCancelled
	snap.Participants[0].PlayerName = "mallory"

	s.Equal(model.RoomStatusWaiting, s.state.Room().Status)
	s.Equal("alice", s.state.Participants()[0].PlayerName)
}

func (s *StateSuite) TestFinishedGrowsMonotonically() {
	s.Equal(1, s.state.AddFinished(2))
	s.Equal(2, s.state.AddFinished(0, 2))
	s.Equal([]model.GuestID{0, 2}, s.state.Finished())
}

func (s *StateSuite) TestResetGameKeepsResults() {
	s.state.SetSelf(Self{GuestID: 1, PlayerName: "bob"})
	s.state.SetRoom(model.Room{ID: "r1"}, nil)
	s.state.RecordAnswer(model.Answer{PointsAwarded: 10})
	s.state.SetResults(model.Results{RoomID: "r1", Partial: true})

	s.state.ResetGame()

	s.Nil(s.state.Room())
	s.Equal(0, s.state.AnsweredCount())
	s.NotNil(s.state.Results())
	s.NotNil(s.state.Self())

	s.state.Reset()
	s.Nil(s.state.Results())
	s.Nil(s.state.Self())
}
