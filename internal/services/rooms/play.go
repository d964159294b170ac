package rooms

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/triviasync/internal/model"
)

// SubmitAnswer scores and records one answer. The participant's running
// totals are updated in the same step.
func (s *Service) SubmitAnswer(ctx context.Context, roomID model.RoomID, guestID model.GuestID, questionID model.QuestionID, selected string, taken time.Duration) (*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.playingRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participant := model.FindParticipant(participants, guestID)
	if participant == nil {
		return nil, model.ErrParticipantNotFound
	}
	question, err := s.findQuestion(ctx, roomID, questionID)
	if err != nil {
		return nil, err
	}

	answer := s.scoring.Score(roomID, guestID, question, selected, taken, room.QuestionTimeout())
	if err := s.storage.SaveAnswer(ctx, &answer); err != nil {
		return nil, err
	}

	participant.Score += answer.PointsAwarded
	if answer.IsCorrect {
		participant.CorrectAnswers++
	}
	participant.FinishedQuestionCount++
	if err := s.storage.SaveParticipant(ctx, roomID, participant); err != nil {
		return nil, err
	}

	s.logger.Debug("answer recorded",
		slog.String("room_id", string(roomID)),
		slog.Int("guest_id", int(guestID)),
		slog.Int("question", question.QuestionNumber),
		slog.Bool("correct", answer.IsCorrect),
		slog.Int("points", answer.PointsAwarded),
	)

	if room.IsSolo() && participant.FinishedQuestionCount >= room.QuestionsPerGame {
		if err := s.storage.AddFinished(ctx, roomID, guestID); err != nil {
			return nil, err
		}
		if err := s.setStatus(ctx, room, model.RoomStatusCompleted); err != nil {
			return nil, err
		}
	}
	return &answer, nil
}

// MarkFinished records that a participant has answered every question
func (s *Service) MarkFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	return s.finish(ctx, roomID, guestID, "")
}

// RegisterFinished adds a participant to the room's finished set
func (s *Service) RegisterFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID, playerName string) error {
	return s.finish(ctx, roomID, guestID, strings.TrimSpace(playerName))
}

func (s *Service) finish(ctx context.Context, roomID model.RoomID, guestID model.GuestID, playerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == model.RoomStatusCompleted {
		return nil
	}
	if room.Status != model.RoomStatusPlaying {
		return model.ErrRoomNotPlaying
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	participant := model.FindParticipant(participants, guestID)
	if participant == nil {
		return model.ErrParticipantNotFound
	}
	if playerName != "" && playerName != participant.PlayerName {
		s.logger.Warn("finished registration name mismatch",
			slog.String("room_id", string(roomID)),
			slog.Int("guest_id", int(guestID)),
			slog.String("registered", participant.PlayerName),
			slog.String("claimed", playerName),
		)
	}

	if err := s.storage.AddFinished(ctx, roomID, guestID); err != nil {
		return err
	}
	return s.completeIfAllFinished(ctx, room)
}

// FinishedPlayers returns the finished set and the current roster size
func (s *Service) FinishedPlayers(ctx context.Context, roomID model.RoomID) ([]model.GuestID, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return nil, 0, err
	}
	finished, err := s.storage.GetFinished(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	return finished, len(participants), nil
}

// ForceComplete ends a playing room whether or not everyone has finished
func (s *Service) ForceComplete(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == model.RoomStatusCompleted {
		return nil
	}
	if room.Status != model.RoomStatusPlaying {
		return model.ErrRoomNotPlaying
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	if model.FindParticipant(participants, guestID) == nil {
		return model.ErrParticipantNotFound
	}

	s.logger.Warn("room force-completed",
		slog.String("room_id", string(roomID)),
		slog.Int("by_guest", int(guestID)),
	)
	return s.setStatus(ctx, room, model.RoomStatusCompleted)
}

// Results returns the room's leaderboard. Available from the moment play
// starts so stragglers can see standings.
func (s *Service) Results(ctx context.Context, roomID model.RoomID) (*model.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status.IsPreGame() {
		return nil, model.ErrRoomNotPlaying
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	finished, err := s.storage.GetFinished(ctx, roomID)
	if err != nil {
		return nil, err
	}

	results := s.scoring.Results(roomID, participants, model.NewFinishRegistration(finished...))
	return &results, nil
}

// completeIfAllFinished completes the room when every remaining participant
// is in the finished set. Caller holds s.mu.
func (s *Service) completeIfAllFinished(ctx context.Context, room *model.Room) error {
	participants, err := s.storage.GetParticipants(ctx, room.ID)
	if err != nil {
		return err
	}
	finished, err := s.storage.GetFinished(ctx, room.ID)
	if err != nil {
		return err
	}
	reg := model.NewFinishRegistration(finished...)
	for _, p := range participants {
		if !reg.Has(p.GuestID) {
			return nil
		}
	}
	return s.setStatus(ctx, room, model.RoomStatusCompleted)
}

// playingRoom loads a room that must be accepting answers. Caller holds s.mu.
func (s *Service) playingRoom(ctx context.Context, roomID model.RoomID) (*model.Room, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status == model.RoomStatusStarting {
		if err := s.promote(ctx, room); err != nil {
			return nil, err
		}
	}
	switch {
	case room.Status == model.RoomStatusPlaying:
		return room, nil
	case room.Status.IsTerminal():
		return nil, model.ErrRoomClosed
	default:
		return nil, model.ErrRoomNotPlaying
	}
}

func (s *Service) findQuestion(ctx context.Context, roomID model.RoomID, questionID model.QuestionID) (*model.Question, error) {
	questions, err := s.storage.GetQuestions(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].ID == questionID {
			return &questions[i], nil
		}
	}
	return nil, model.ErrQuestionNotFound
}
