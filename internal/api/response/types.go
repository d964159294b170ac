package response

import "github.com/mcoot/triviasync/internal/model"

// Envelope is carried by every JSON response. A 200 with Success false is a
// structured application failure.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OK returns a successful envelope
func OK() Envelope {
	return Envelope{Success: true}
}

// Failed returns a structured failure envelope
func Failed(code, message string) Envelope {
	return Envelope{Success: false, Code: code, Error: message}
}

// Result exposes the envelope of any response type
func (e Envelope) Result() Envelope {
	return e
}

// Enveloped is implemented by every response type
type Enveloped interface {
	Result() Envelope
}

// RoomResponse is returned by createRoom
type RoomResponse struct {
	Envelope
	Room model.Room `json:"room"`
}

// JoinRoomResponse is returned by joinRoom
type JoinRoomResponse struct {
	Envelope
	Room         model.Room          `json:"room"`
	Participant  model.Participant   `json:"participant"`
	Participants []model.Participant `json:"participants"`
}

// RoomDetailResponse is returned by getRoom. Questions are only included once
// the room is playing.
type RoomDetailResponse struct {
	Envelope
	Room         model.Room          `json:"room"`
	Participants []model.Participant `json:"participants"`
	Questions    []model.Question    `json:"questions,omitempty"`
}

// ProgressResponse is returned by getProgress
type ProgressResponse struct {
	Envelope
	model.ProgressSnapshot
	Message string `json:"message,omitempty"`
}

// AnswerResponse is returned by submitAnswer
type AnswerResponse struct {
	Envelope
	Answer model.Answer `json:"answer"`
}

// FinishedPlayersResponse is returned by getFinishedPlayers
type FinishedPlayersResponse struct {
	Envelope
	FinishedPlayers []model.GuestID `json:"finishedPlayers"`
	Total           int             `json:"total"`
}

// ResultsResponse is returned by getResults
type ResultsResponse struct {
	Envelope
	model.Results
}

// RoomsResponse is returned by listWaitingRooms
type RoomsResponse struct {
	Envelope
	Rooms []model.Room `json:"rooms"`
}

// HealthResponse is returned by the health check
type HealthResponse struct {
	Envelope
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
