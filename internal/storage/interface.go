package storage

import (
	"context"

	"github.com/mcoot/triviasync/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Room operations
	SaveRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	DeleteRoom(ctx context.Context, id model.RoomID) error
	// ListRooms returns rooms with the given status, oldest first. An empty
	// status lists every room.
	ListRooms(ctx context.Context, status model.RoomStatus) ([]*model.Room, error)

	// Participant operations
	SaveParticipant(ctx context.Context, roomID model.RoomID, p *model.Participant) error
	GetParticipants(ctx context.Context, roomID model.RoomID) ([]model.Participant, error)
	RemoveParticipant(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error

	// Question operations
	AppendQuestions(ctx context.Context, roomID model.RoomID, questions []model.Question) error
	GetQuestions(ctx context.Context, roomID model.RoomID) ([]model.Question, error)

	// Answer operations. SaveAnswer returns model.ErrAlreadyAnswered when the
	// guest has already answered the question.
	SaveAnswer(ctx context.Context, answer *model.Answer) error
	GetAnswers(ctx context.Context, roomID model.RoomID) ([]model.Answer, error)

	// Finished operations
	AddFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error
	GetFinished(ctx context.Context, roomID model.RoomID) ([]model.GuestID, error)

	// Chat operations. Deleting a missing message is not an error.
	SaveMessage(ctx context.Context, msg *model.ChatMessage) error
	GetMessage(ctx context.Context, roomID model.RoomID, messageID string) (*model.ChatMessage, error)
	DeleteMessage(ctx context.Context, roomID model.RoomID, messageID string) error

	// Question bank operations
	GetBankQuestions(ctx context.Context) ([]model.BankQuestion, error)
	SaveBankQuestions(ctx context.Context, questions []model.BankQuestion) error

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error
}
