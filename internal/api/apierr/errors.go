package apierr

import (
	"errors"
	"net/http"

	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/model"
)

// Common error codes
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInvalidSettings     = "INVALID_SETTINGS"
	CodeNameRequired        = "NAME_REQUIRED"
	CodeNameTaken           = "NAME_TAKEN"
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeRoomFull            = "ROOM_FULL"
	CodeRoomNotJoinable     = "ROOM_NOT_JOINABLE"
	CodeRoomNotStartable    = "ROOM_NOT_STARTABLE"
	CodeRoomNotPlaying      = "ROOM_NOT_PLAYING"
	CodeRoomClosed          = "ROOM_CLOSED"
	CodeNotCreator          = "NOT_CREATOR"
	CodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	CodeQuestionNotFound    = "QUESTION_NOT_FOUND"
	CodeAlreadyAnswered     = "ALREADY_ANSWERED"
	CodeGenerationBusy      = "GENERATION_IN_PROGRESS"
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeNotMessageOwner     = "NOT_MESSAGE_OWNER"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an error envelope
type httpError struct {
	status   int
	envelope response.Envelope
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.envelope.Error
}

// WriteError writes an error envelope to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	response.JSON(w, he.status, he.envelope)
}

func newError(status int, code, message string) *httpError {
	return &httpError{status, response.Failed(code, message)}
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	// Check for specific error types
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// Map model errors
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return newError(http.StatusNotFound, CodeRoomNotFound, "Room not found")
	case errors.Is(err, model.ErrRoomFull):
		return newError(http.StatusConflict, CodeRoomFull, "Room is full")
	case errors.Is(err, model.ErrRoomNotJoinable):
		return newError(http.StatusConflict, CodeRoomNotJoinable, "Room is no longer accepting players")
	case errors.Is(err, model.ErrRoomNotStartable):
		return newError(http.StatusConflict, CodeRoomNotStartable, "Room cannot be started")
	case errors.Is(err, model.ErrRoomNotPlaying):
		return newError(http.StatusConflict, CodeRoomNotPlaying, "Room is not in play")
	case errors.Is(err, model.ErrRoomClosed):
		return newError(http.StatusGone, CodeRoomClosed, "Room is closed")
	case errors.Is(err, model.ErrNotCreator):
		return newError(http.StatusForbidden, CodeNotCreator, "Only the room creator can do this")
	case errors.Is(err, model.ErrInvalidSettings), errors.Is(err, model.ErrInvalidDifficulty):
		return newError(http.StatusBadRequest, CodeInvalidSettings, err.Error())
	case errors.Is(err, model.ErrNameRequired):
		return newError(http.StatusBadRequest, CodeNameRequired, "Player name is required")
	case errors.Is(err, model.ErrNameTaken):
		return newError(http.StatusConflict, CodeNameTaken, "That name is already taken in this room")
	case errors.Is(err, model.ErrParticipantNotFound):
		return newError(http.StatusNotFound, CodeParticipantNotFound, "Participant not found")
	case errors.Is(err, model.ErrQuestionNotFound):
		return newError(http.StatusNotFound, CodeQuestionNotFound, "Question not found")
	case errors.Is(err, model.ErrAlreadyAnswered):
		return newError(http.StatusConflict, CodeAlreadyAnswered, "Question already answered")
	case errors.Is(err, model.ErrGenerationInProgress):
		return newError(http.StatusConflict, CodeGenerationBusy, "Questions are already being generated")
	case errors.Is(err, model.ErrGenerationFailed):
		// Structured failure, not a transport error
		return newError(http.StatusOK, CodeGenerationFailed, err.Error())
	case errors.Is(err, model.ErrMessageRequired), errors.Is(err, model.ErrMessageTooLong):
		return newError(http.StatusBadRequest, CodeInvalidMessage, err.Error())
	case errors.Is(err, model.ErrNotMessageOwner):
		return newError(http.StatusForbidden, CodeNotMessageOwner, "Only the sender can delete a message")

	default:
		return newError(http.StatusInternalServerError, CodeInternalError, "Internal server error")
	}
}

// Status returns the HTTP status an error is reported with
func Status(err error) int {
	return toHTTPError(err).status
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return newError(http.StatusBadRequest, CodeInvalidRequest, message)
}
