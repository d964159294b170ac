// Package rooms is the server-side room state machine
package rooms

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/generator"
	"github.com/mcoot/triviasync/internal/services/scoring"
	"github.com/mcoot/triviasync/internal/storage"
)

// Notifier delivers push messages to a room's subscribers
type Notifier interface {
	Publish(msg model.PushMessage)
}

// NotifierFunc adapts a function to a Notifier
type NotifierFunc func(msg model.PushMessage)

// Publish calls f
func (f NotifierFunc) Publish(msg model.PushMessage) {
	f(msg)
}

// Service manages rooms and their participants. Every mutation runs under
// one lock so read-modify-write cycles against storage don't interleave.
type Service struct {
	storage   storage.Storage
	generator *generator.Generator
	scoring   *scoring.Service
	clock     clock.Clock
	logger    *slog.Logger
	notifier  Notifier

	mu sync.Mutex
}

// New creates a new room Service and registers it for generation events
func New(
	store storage.Storage,
	gen *generator.Generator,
	scorer *scoring.Service,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	s := &Service{
		storage:   store,
		generator: gen,
		scoring:   scorer,
		clock:     clk,
		logger:    logger.With(slog.String("component", "rooms")),
		notifier:  NotifierFunc(func(model.PushMessage) {}),
	}
	gen.SetListener(s)
	return s
}

// SetNotifier registers where push messages go
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Detail is a room with its roster and, once playing, its questions
type Detail struct {
	Room         *model.Room
	Participants []model.Participant
	Questions    []model.Question
}

// CreateRoom creates a waiting room with the creator in seat 0
func (s *Service) CreateRoom(ctx context.Context, settings model.RoomSettings, creatorName string) (*model.Room, error) {
	creatorName = strings.TrimSpace(creatorName)
	if creatorName == "" {
		return nil, model.ErrNameRequired
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	room := &model.Room{
		ID:               model.RoomID(uuid.NewString()),
		Name:             settings.Name,
		Difficulty:       settings.Difficulty,
		MaxPlayers:       settings.MaxPlayers,
		CurrentPlayers:   1,
		QuestionsPerGame: settings.QuestionsPerGame,
		TimePerQuestion:  settings.TimePerQuestion,
		Status:           model.RoomStatusWaiting,
		CreatedByName:    creatorName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	creator := model.NewCreator(creatorName, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.SaveRoom(ctx, room); err != nil {
		s.logger.Error("failed to save room", slog.Any("error", err))
		return nil, err
	}
	if err := s.storage.SaveParticipant(ctx, room.ID, &creator); err != nil {
		return nil, err
	}

	s.logger.Info("room created",
		slog.String("room_id", string(room.ID)),
		slog.String("creator", creatorName),
		slog.Int("max_players", room.MaxPlayers),
		slog.String("difficulty", string(room.Difficulty)),
	)
	return room, nil
}

// JoinRoom seats a new participant in a waiting room
func (s *Service) JoinRoom(ctx context.Context, roomID model.RoomID, playerName string) (*model.Room, *model.Participant, []model.Participant, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return nil, nil, nil, model.ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, nil, err
	}
	if room.Status != model.RoomStatusWaiting {
		return nil, nil, nil, model.ErrRoomNotJoinable
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(participants) >= room.MaxPlayers {
		return nil, nil, nil, model.ErrRoomFull
	}
	for _, p := range participants {
		if strings.EqualFold(p.PlayerName, playerName) {
			return nil, nil, nil, model.ErrNameTaken
		}
	}

	participant := model.Participant{
		GuestID:    model.NextGuestID(participants),
		PlayerName: playerName,
		JoinedAt:   s.clock.Now(),
	}
	if err := s.storage.SaveParticipant(ctx, roomID, &participant); err != nil {
		return nil, nil, nil, err
	}
	participants = append(participants, participant)

	room.CurrentPlayers = len(participants)
	room.UpdatedAt = s.clock.Now()
	if err := s.storage.SaveRoom(ctx, room); err != nil {
		return nil, nil, nil, err
	}

	s.logger.Info("participant joined",
		slog.String("room_id", string(roomID)),
		slog.Int("guest_id", int(participant.GuestID)),
		slog.Int("players", room.CurrentPlayers),
	)
	s.publish(roomID, model.MessageUserJoined, model.UserPayload{GuestID: participant.GuestID, PlayerName: playerName})
	return room, &participant, participants, nil
}

// StartRoom moves a waiting room into generation. Only the creator can start.
func (s *Service) StartRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if guestID != model.CreatorGuestID {
		return model.ErrNotCreator
	}
	if room.Status != model.RoomStatusWaiting {
		return model.ErrRoomNotStartable
	}

	if err := s.generator.Start(ctx, room); err != nil {
		s.logger.Error("failed to start generation",
			slog.String("room_id", string(roomID)),
			slog.Any("error", err),
		)
		return err
	}

	if err := s.setStatus(ctx, room, model.RoomStatusStarting); err != nil {
		s.generator.Cancel(roomID)
		return err
	}
	s.logger.Info("room started", slog.String("room_id", string(roomID)))
	return nil
}

// GetRoom returns the room with its roster. Questions are included once the
// room is playing.
func (s *Service) GetRoom(ctx context.Context, roomID model.RoomID) (*Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Room: room, Participants: participants}
	if room.Status.IsPreGame() {
		if err := s.promote(ctx, room); err != nil {
			return nil, err
		}
	}
	if !room.Status.IsPreGame() {
		questions, err := s.storage.GetQuestions(ctx, roomID)
		if err != nil {
			return nil, err
		}
		detail.Questions = questions
	}
	return detail, nil
}

// GetProgress reports question generation progress
func (s *Service) GetProgress(ctx context.Context, roomID model.RoomID) (model.ProgressSnapshot, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return model.ProgressSnapshot{}, "", err
	}
	snap, message, err := s.generator.Progress(ctx, room)
	if err != nil {
		return model.ProgressSnapshot{}, "", err
	}
	if snap.IsReady {
		if err := s.promote(ctx, room); err != nil {
			return model.ProgressSnapshot{}, "", err
		}
	}
	return snap, message, nil
}

// ListRooms lists rooms with the given status. An empty status lists all.
func (s *Service) ListRooms(ctx context.Context, status model.RoomStatus) ([]*model.Room, error) {
	return s.storage.ListRooms(ctx, status)
}

// LeaveRoom gives up a participant's seat. Before the game starts a reload or
// unload, or the creator leaving, cancels the room for everyone; once it has
// started only the leaver is removed.
func (s *Service) LeaveRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID, reason model.LeaveReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status.IsTerminal() {
		return nil
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	leaver := model.FindParticipant(participants, guestID)
	if leaver == nil {
		return model.ErrParticipantNotFound
	}

	logger := s.logger.With(
		slog.String("room_id", string(roomID)),
		slog.Int("guest_id", int(guestID)),
		slog.String("reason", string(reason)),
	)

	if room.Status.IsPreGame() && (leaver.IsCreator || reason != model.LeaveExplicit) {
		logger.Info("participant left before start, cancelling room")
		return s.cancel(ctx, room)
	}

	if err := s.storage.RemoveParticipant(ctx, roomID, guestID); err != nil {
		return err
	}
	remaining := len(participants) - 1
	room.CurrentPlayers = remaining
	room.UpdatedAt = s.clock.Now()
	if err := s.storage.SaveRoom(ctx, room); err != nil {
		return err
	}
	logger.Info("participant left", slog.Int("players", remaining))
	s.publish(roomID, model.MessageUserLeft, model.UserPayload{
		GuestID:    guestID,
		PlayerName: leaver.PlayerName,
		Reason:     string(reason),
	})

	if remaining == 0 {
		return s.cancel(ctx, room)
	}
	if room.Status == model.RoomStatusPlaying {
		return s.completeIfAllFinished(ctx, room)
	}
	return nil
}

// OnGenerated promotes the room to playing once its questions are stored
func (s *Service) OnGenerated(roomID model.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		s.logger.Warn("generated questions for unknown room", slog.String("room_id", string(roomID)))
		return
	}
	if err := s.promote(ctx, room); err != nil {
		s.logger.Error("failed to promote room", slog.String("room_id", string(roomID)), slog.Any("error", err))
	}
}

// OnGenerationFailed leaves the room starting. Clients see the failure in
// their progress polls and give up on their own.
func (s *Service) OnGenerationFailed(roomID model.RoomID, err error) {
	s.logger.Error("question generation failed",
		slog.String("room_id", string(roomID)),
		slog.Any("error", err),
	)
}

// promote moves a starting room with a full question set to playing.
// Caller holds s.mu.
func (s *Service) promote(ctx context.Context, room *model.Room) error {
	if room.Status != model.RoomStatusStarting {
		return nil
	}
	questions, err := s.storage.GetQuestions(ctx, room.ID)
	if err != nil {
		return err
	}
	if len(questions) < room.QuestionsPerGame {
		return nil
	}
	return s.setStatus(ctx, room, model.RoomStatusPlaying)
}

// cancel ends the room for everyone. Caller holds s.mu.
func (s *Service) cancel(ctx context.Context, room *model.Room) error {
	return s.setStatus(ctx, room, model.RoomStatusCancelled)
}

// setStatus persists a status change and announces it. Caller holds s.mu.
func (s *Service) setStatus(ctx context.Context, room *model.Room, status model.RoomStatus) error {
	room.Status = status
	room.UpdatedAt = s.clock.Now()
	if err := s.storage.SaveRoom(ctx, room); err != nil {
		return err
	}
	if status.IsTerminal() {
		s.generator.Cancel(room.ID)
	}
	s.logger.Info("room status changed",
		slog.String("room_id", string(room.ID)),
		slog.String("status", string(status)),
	)
	s.publish(room.ID, model.MessageUpdate, model.UpdatePayload{Status: status, CurrentPlayers: room.CurrentPlayers})
	return nil
}

func (s *Service) publish(roomID model.RoomID, t model.MessageType, payload any) {
	msg, err := model.NewPushMessage(t, roomID, payload, s.clock.Now())
	if err != nil {
		s.logger.Error("failed to build push message", slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	s.notifier.Publish(msg)
}
