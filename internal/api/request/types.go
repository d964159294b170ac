package request

import "github.com/mcoot/triviasync/internal/model"

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	Name             string           `json:"name"`
	Difficulty       model.Difficulty `json:"difficulty"`
	MaxPlayers       int              `json:"maxPlayers"`
	QuestionsPerGame int              `json:"questionsPerGame"`
	TimePerQuestion  int              `json:"timePerQuestion"`
	CreatorName      string           `json:"creatorName"`
}

// Settings returns the room settings carried by the request
func (r CreateRoomRequest) Settings() model.RoomSettings {
	return model.RoomSettings{
		Name:             r.Name,
		Difficulty:       r.Difficulty,
		MaxPlayers:       r.MaxPlayers,
		QuestionsPerGame: r.QuestionsPerGame,
		TimePerQuestion:  r.TimePerQuestion,
	}
}

// JoinRoomRequest is the request body for joining a room
type JoinRoomRequest struct {
	PlayerName string `json:"playerName"`
}

// GuestRequest is the request body for endpoints that only identify the caller
// (start, finish, force-complete)
type GuestRequest struct {
	GuestID model.GuestID `json:"guestId"`
}

// SubmitAnswerRequest is the request body for answering a question
type SubmitAnswerRequest struct {
	QuestionID       model.QuestionID `json:"questionId"`
	GuestID          model.GuestID    `json:"guestId"`
	SelectedAnswer   string           `json:"selectedAnswer"`
	TimeTakenSeconds float64          `json:"timeTakenSeconds"`
}

// RegisterFinishedRequest is the request body for joining the finished set
type RegisterFinishedRequest struct {
	GuestID    model.GuestID `json:"guestId"`
	PlayerName string        `json:"playerName"`
}

// LeaveRoomRequest is the request body for leaving a room
type LeaveRoomRequest struct {
	GuestID model.GuestID     `json:"guestId"`
	Reason  model.LeaveReason `json:"reason"`
}
