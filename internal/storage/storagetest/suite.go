// Package storagetest holds the behavior every storage backend must share
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/storage"
)

// Suite runs the storage contract against the backend returned by Storage.
// Backends embed it and set Storage in their SetupTest.
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newRoom(id model.RoomID, status model.RoomStatus, createdAt time.Time) *model.Room {
	return &model.Room{
		ID:               id,
		Name:             "Room " + string(id),
		Difficulty:       model.DifficultyMedium,
		MaxPlayers:       4,
		QuestionsPerGame: 3,
		TimePerQuestion:  20,
		Status:           status,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

// Room tests

func (s *Suite) TestSaveAndGetRoom() {
	room := newRoom("room-1", model.RoomStatusWaiting, epoch)

	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, room))

	got, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Equal(room.Name, got.Name)
	s.Equal(model.RoomStatusWaiting, got.Status)
	s.True(room.CreatedAt.Equal(got.CreatedAt))
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestSavedRoomIsNotAliased() {
	room := newRoom("room-1", model.RoomStatusWaiting, epoch)
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, room))

	room.Status = model.RoomStatusCancelled
	got, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusWaiting, got.Status)
}

func (s *Suite) TestListRoomsFiltersByStatusOldestFirst() {
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, newRoom("b", model.RoomStatusWaiting, epoch.Add(time.Minute))))
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, newRoom("a", model.RoomStatusWaiting, epoch.Add(2*time.Minute))))
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, newRoom("c", model.RoomStatusPlaying, epoch)))

	waiting, err := s.Storage.ListRooms(s.Ctx, model.RoomStatusWaiting)
	s.Require().NoError(err)
	s.Require().Len(waiting, 2)
	s.Equal(model.RoomID("b"), waiting[0].ID)
	s.Equal(model.RoomID("a"), waiting[1].ID)

	all, err := s.Storage.ListRooms(s.Ctx, "")
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *Suite) TestDeleteRoomRemovesScopedData() {
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, newRoom("room-1", model.RoomStatusWaiting, epoch)))
	s.Require().NoError(s.Storage.SaveParticipant(s.Ctx, "room-1", &model.Participant{GuestID: 0, IsCreator: true}))
	s.Require().NoError(s.Storage.AddFinished(s.Ctx, "room-1", 0))

	s.Require().NoError(s.Storage.DeleteRoom(s.Ctx, "room-1"))

	_, err := s.Storage.GetRoom(s.Ctx, "room-1")
	s.ErrorIs(err, model.ErrRoomNotFound)
	participants, err := s.Storage.GetParticipants(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Empty(participants)
	finished, err := s.Storage.GetFinished(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Empty(finished)
	rooms, err := s.Storage.ListRooms(s.Ctx, "")
	s.Require().NoError(err)
	s.Empty(rooms)
}

// Participant tests

func (s *Suite) TestParticipantsAreOrderedByGuest() {
	for _, g := range []model.GuestID{2, 0, 1} {
		p := &model.Participant{GuestID: g, PlayerName: "p", IsCreator: g == 0}
		s.Require().NoError(s.Storage.SaveParticipant(s.Ctx, "room-1", p))
	}

	got, err := s.Storage.GetParticipants(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal([]model.GuestID{0, 1, 2}, []model.GuestID{got[0].GuestID, got[1].GuestID, got[2].GuestID})
}

func (s *Suite) TestSaveParticipantOverwrites() {
	p := &model.Participant{GuestID: 1, PlayerName: "bob"}
	s.Require().NoError(s.Storage.SaveParticipant(s.Ctx, "room-1", p))
	p.Score = 150
	s.Require().NoError(s.Storage.SaveParticipant(s.Ctx, "room-1", p))

	got, err := s.Storage.GetParticipants(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(150, got[0].Score)
}

func (s *Suite) TestRemoveParticipant() {
	s.Require().NoError(s.Storage.SaveParticipant(s.Ctx, "room-1", &model.Participant{GuestID: 1}))

	s.Require().NoError(s.Storage.RemoveParticipant(s.Ctx, "room-1", 1))
	s.Require().NoError(s.Storage.RemoveParticipant(s.Ctx, "room-1", 7))

	got, err := s.Storage.GetParticipants(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Empty(got)
}

// Question tests

func (s *Suite) TestAppendQuestionsAccumulatesInOrder() {
	q := func(n int) model.Question {
		return model.Question{
			ID:             model.QuestionID("q" + string(rune('0'+n))),
			QuestionNumber: n,
			Options:        []string{"a", "b"},
			CorrectAnswer:  "a",
		}
	}
	s.Require().NoError(s.Storage.AppendQuestions(s.Ctx, "room-1", []model.Question{q(2), q(1)}))
	s.Require().NoError(s.Storage.AppendQuestions(s.Ctx, "room-1", []model.Question{q(3)}))
	s.Require().NoError(s.Storage.AppendQuestions(s.Ctx, "room-1", nil))

	got, err := s.Storage.GetQuestions(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	for i, question := range got {
		s.Equal(i+1, question.QuestionNumber)
	}
}

func (s *Suite) TestGetQuestionsForUnknownRoomIsEmpty() {
	got, err := s.Storage.GetQuestions(s.Ctx, "missing")
	s.Require().NoError(err)
	s.Empty(got)
}

// Answer tests

func (s *Suite) TestSaveAnswerOncePerQuestion() {
	answer := &model.Answer{RoomID: "room-1", QuestionID: "q1", GuestID: 1, SelectedAnswer: "a", PointsAwarded: 100}

	s.Require().NoError(s.Storage.SaveAnswer(s.Ctx, answer))
	err := s.Storage.SaveAnswer(s.Ctx, &model.Answer{RoomID: "room-1", QuestionID: "q1", GuestID: 1, SelectedAnswer: "b"})
	s.ErrorIs(err, model.ErrAlreadyAnswered)

	s.Require().NoError(s.Storage.SaveAnswer(s.Ctx, &model.Answer{RoomID: "room-1", QuestionID: "q1", GuestID: 2}))

	got, err := s.Storage.GetAnswers(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("a", got[0].SelectedAnswer)
	s.Equal(model.GuestID(2), got[1].GuestID)
}

// Finished tests

func (s *Suite) TestFinishedSetIsIdempotent() {
	s.Require().NoError(s.Storage.AddFinished(s.Ctx, "room-1", 2))
	s.Require().NoError(s.Storage.AddFinished(s.Ctx, "room-1", 0))
	s.Require().NoError(s.Storage.AddFinished(s.Ctx, "room-1", 2))

	got, err := s.Storage.GetFinished(s.Ctx, "room-1")
	s.Require().NoError(err)
	s.Equal([]model.GuestID{0, 2}, got)
}

// Chat tests

func (s *Suite) TestMessages() {
	msg := &model.ChatMessage{ID: "m1", RoomID: "room-1", GuestID: 1, Text: "hi", CreatedAt: epoch}
	s.Require().NoError(s.Storage.SaveMessage(s.Ctx, msg))

	got, err := s.Storage.GetMessage(s.Ctx, "room-1", "m1")
	s.Require().NoError(err)
	s.Equal("hi", got.Text)

	s.Require().NoError(s.Storage.DeleteMessage(s.Ctx, "room-1", "m1"))
	s.Require().NoError(s.Storage.DeleteMessage(s.Ctx, "room-1", "m1"))

	_, err = s.Storage.GetMessage(s.Ctx, "room-1", "m1")
	s.ErrorIs(err, model.ErrMessageNotFound)
}

// Question bank tests

func (s *Suite) TestQuestionBank() {
	_, err := s.Storage.GetBankQuestions(s.Ctx)
	s.ErrorIs(err, model.ErrQuestionBankEmpty)

	bank := []model.BankQuestion{
		{Text: "one", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: model.DifficultyEasy},
		{Text: "two", Options: []string{"c", "d"}, CorrectAnswer: "d", Difficulty: model.DifficultyHard},
	}
	s.Require().NoError(s.Storage.SaveBankQuestions(s.Ctx, bank))
	s.Require().NoError(s.Storage.SaveBankQuestions(s.Ctx, bank[:1]))

	got, err := s.Storage.GetBankQuestions(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("one", got[0].Text)
}

func (s *Suite) TestPing() {
	s.NoError(s.Storage.Ping(s.Ctx))
}
