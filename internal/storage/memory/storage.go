package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/storage"
)

// Storage is an in-memory implementation of the storage interface. Values are
// copied on the way in and out so callers never share state with the store.
type Storage struct {
	mu sync.RWMutex

	rooms         map[model.RoomID]*model.Room
	participants  map[model.RoomID]map[model.GuestID]model.Participant
	questions     map[model.RoomID][]model.Question
	answers       map[model.RoomID]map[answerKey]model.Answer
	finished      map[model.RoomID]map[model.GuestID]struct{}
	messages      map[model.RoomID]map[string]model.ChatMessage
	bankQuestions []model.BankQuestion
}

type answerKey struct {
	questionID model.QuestionID
	guestID    model.GuestID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		rooms:        make(map[model.RoomID]*model.Room),
		participants: make(map[model.RoomID]map[model.GuestID]model.Participant),
		questions:    make(map[model.RoomID][]model.Question),
		answers:      make(map[model.RoomID]map[answerKey]model.Answer),
		finished:     make(map[model.RoomID]map[model.GuestID]struct{}),
		messages:     make(map[model.RoomID]map[string]model.ChatMessage),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Room operations

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *room
	s.rooms[room.ID] = &stored
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	out := *room
	return &out, nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	delete(s.participants, id)
	delete(s.questions, id)
	delete(s.answers, id)
	delete(s.finished, id)
	delete(s.messages, id)
	return nil
}

func (s *Storage) ListRooms(ctx context.Context, status model.RoomStatus) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rooms []*model.Room
	for _, room := range s.rooms {
		if status != "" && room.Status != status {
			continue
		}
		out := *room
		rooms = append(rooms, &out)
	}
	storage.SortRooms(rooms)
	return rooms, nil
}

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, roomID model.RoomID, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[roomID]; !ok {
		s.participants[roomID] = make(map[model.GuestID]model.Participant)
	}
	s.participants[roomID][p.GuestID] = *p
	return nil
}

func (s *Storage) GetParticipants(ctx context.Context, roomID model.RoomID) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Participant, 0, len(s.participants[roomID]))
	for _, p := range s.participants[roomID] {
		out = append(out, p)
	}
	storage.SortParticipants(out)
	return out, nil
}

func (s *Storage) RemoveParticipant(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants[roomID], guestID)
	return nil
}

// Question operations

func (s *Storage) AppendQuestions(ctx context.Context, roomID model.RoomID, questions []model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		q.Options = slices.Clone(q.Options)
		s.questions[roomID] = append(s.questions[roomID], q)
	}
	return nil
}

func (s *Storage) GetQuestions(ctx context.Context, roomID model.RoomID) ([]model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Question, len(s.questions[roomID]))
	for i, q := range s.questions[roomID] {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	model.SortQuestions(out)
	return out, nil
}

// Answer operations

func (s *Storage) SaveAnswer(ctx context.Context, answer *model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{questionID: answer.QuestionID, guestID: answer.GuestID}
	if _, ok := s.answers[answer.RoomID]; !ok {
		s.answers[answer.RoomID] = make(map[answerKey]model.Answer)
	}
	if _, exists := s.answers[answer.RoomID][key]; exists {
		return model.ErrAlreadyAnswered
	}
	s.answers[answer.RoomID][key] = *answer
	return nil
}

func (s *Storage) GetAnswers(ctx context.Context, roomID model.RoomID) ([]model.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Answer, 0, len(s.answers[roomID]))
	for _, a := range s.answers[roomID] {
		out = append(out, a)
	}
	storage.SortAnswers(out)
	return out, nil
}

// Finished operations

func (s *Storage) AddFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finished[roomID]; !ok {
		s.finished[roomID] = make(map[model.GuestID]struct{})
	}
	s.finished[roomID][guestID] = struct{}{}
	return nil
}

func (s *Storage) GetFinished(ctx context.Context, roomID model.RoomID) ([]model.GuestID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.GuestID, 0, len(s.finished[roomID]))
	for g := range s.finished[roomID] {
		out = append(out, g)
	}
	slices.Sort(out)
	return out, nil
}

// Chat operations

func (s *Storage) SaveMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.RoomID]; !ok {
		s.messages[msg.RoomID] = make(map[string]model.ChatMessage)
	}
	s.messages[msg.RoomID][msg.ID] = *msg
	return nil
}

func (s *Storage) GetMessage(ctx context.Context, roomID model.RoomID, messageID string) (*model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[roomID][messageID]
	if !ok {
		return nil, model.ErrMessageNotFound
	}
	return &msg, nil
}

func (s *Storage) DeleteMessage(ctx context.Context, roomID model.RoomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages[roomID], messageID)
	return nil
}

// Question bank operations

func (s *Storage) GetBankQuestions(ctx context.Context) ([]model.BankQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bankQuestions) == 0 {
		return nil, model.ErrQuestionBankEmpty
	}
	return slices.Clone(s.bankQuestions), nil
}

func (s *Storage) SaveBankQuestions(ctx context.Context, questions []model.BankQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankQuestions = slices.Clone(questions)
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}
