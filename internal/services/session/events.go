package session

import (
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/state"
)

// State is the controller's position in the session lifecycle
type State string

const (
	StateIdle               State = "idle"
	StateCreating           State = "creating"
	StateWaiting            State = "waiting"
	StateStarting           State = "starting"
	StatePlaying            State = "playing"
	StateAwaitingCompletion State = "awaiting-completion"
	StateCompleted          State = "completed"
	StateCancelled          State = "cancelled"
	StateError              State = "error"
)

// IsTerminal reports whether the session is over
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// InRoom reports whether the session holds a room
func (s State) InRoom() bool {
	switch s {
	case StateWaiting, StateStarting, StatePlaying, StateAwaitingCompletion:
		return true
	}
	return false
}

// EventKind tags an Event
type EventKind string

const (
	EventStateChanged EventKind = "state"
	EventRoomUpdated  EventKind = "room"
	EventProgress     EventKind = "progress"
	EventQuestion     EventKind = "question"
	EventAnswered     EventKind = "answered"
	EventQuorum       EventKind = "quorum"
	EventConnection   EventKind = "connection"
	EventPush         EventKind = "push"
	EventResults      EventKind = "results"
	EventFailure      EventKind = "failure"
	EventRejected     EventKind = "rejected"
)

// Event is one notification from the controller. Only the fields relevant to
// the kind are set; State is always the state after the event.
type Event struct {
	Kind    EventKind
	State   State
	Message string

	Room         *model.Room
	Participants []model.Participant
	Progress     model.ProgressSnapshot
	Question     *model.Question
	Answer       *model.Answer
	Finished     int
	Total        int
	Connection   model.ConnectionState
	Push         *model.PushMessage
	Results      *model.Results
	Failure      *model.Failure

	// Err is set on rejected events
	Err error
}

// Observer receives controller events on the session loop. Implementations
// must not block.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to an Observer
type ObserverFunc func(ev Event)

// OnEvent calls f
func (f ObserverFunc) OnEvent(ev Event) {
	f(ev)
}

// Snapshot is a point-in-time view of a session
type Snapshot struct {
	State   State          `json:"state"`
	Failure *model.Failure `json:"-"`
	Session state.Snapshot `json:"session"`
}
