package redis

import (
	"fmt"

	"github.com/mcoot/triviasync/internal/model"
)

// Key prefix for all trivia data
const keyPrefix = "trivia"

// roomKey returns the Redis key for a Room
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// roomsIndexKey returns the Redis key for the SET of all room ids
func roomsIndexKey() string {
	return fmt.Sprintf("%s:idx:rooms", keyPrefix)
}

// participantsKey returns the Redis key for the HASH of guest id -> Participant
func participantsKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:participants", keyPrefix, id)
}

// questionsKey returns the Redis key for the LIST of a room's questions
func questionsKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:questions", keyPrefix, id)
}

// answersKey returns the Redis key for the HASH of question:guest -> Answer
func answersKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:answers", keyPrefix, id)
}

// answerField returns the hash field of one answer
func answerField(questionID model.QuestionID, guestID model.GuestID) string {
	return fmt.Sprintf("%s:%d", questionID, guestID)
}

// finishedKey returns the Redis key for the SET of finished guest ids
func finishedKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:finished", keyPrefix, id)
}

// messagesKey returns the Redis key for the HASH of message id -> ChatMessage
func messagesKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:messages", keyPrefix, id)
}

// roomScopedKeys returns every key owned by a room
func roomScopedKeys(id model.RoomID) []string {
	return []string{
		roomKey(id),
		participantsKey(id),
		questionsKey(id),
		answersKey(id),
		finishedKey(id),
		messagesKey(id),
	}
}

// bankKey returns the Redis key for the LIST of question bank entries
func bankKey() string {
	return fmt.Sprintf("%s:bank", keyPrefix)
}
