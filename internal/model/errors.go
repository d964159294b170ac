package model

import "errors"

// Common errors used across the application
var (
	// Room errors
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomNotJoinable   = errors.New("room is no longer accepting players")
	ErrRoomNotStartable  = errors.New("room cannot be started in its current state")
	ErrRoomNotPlaying    = errors.New("room is not in play")
	ErrRoomClosed        = errors.New("room is completed or cancelled")
	ErrNotCreator        = errors.New("only the room creator can do this")
	ErrInvalidSettings   = errors.New("invalid room settings")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidRoster     = errors.New("invalid participant roster")

	// Participant errors
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNameRequired        = errors.New("player name is required")
	ErrNameTaken           = errors.New("player name already taken in this room")

	// Question errors
	ErrQuestionNotFound     = errors.New("question not found")
	ErrInvalidQuestion      = errors.New("invalid question")
	ErrQuestionsIncomplete  = errors.New("question set is incomplete")
	ErrQuestionBankEmpty    = errors.New("question bank is empty")
	ErrGenerationInProgress = errors.New("question generation already in progress")
	ErrGenerationFailed     = errors.New("question generation failed")
	ErrAlreadyAnswered      = errors.New("question already answered")

	// Chat errors
	ErrMessageRequired = errors.New("message text is required")
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageTooLong  = errors.New("message text is too long")
	ErrNotMessageOwner = errors.New("only the sender can delete a message")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Session errors
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrNoActiveRoom      = errors.New("no active room")
	ErrNoQuestion        = errors.New("no question is being asked")
	ErrNothingToRetry    = errors.New("session is not in an error state")
)
