package model

import "time"

// RoomID identifies a trivia room
type RoomID string

// RoomStatus is the server-side lifecycle state of a room
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"   // Accepting joiners
	RoomStatusStarting  RoomStatus = "starting"  // Questions being generated
	RoomStatusPlaying   RoomStatus = "playing"   // Questions ready, game underway
	RoomStatusCompleted RoomStatus = "completed" // All participants finished (or forced)
	RoomStatusCancelled RoomStatus = "cancelled" // Abandoned before completion
)

// IsTerminal reports whether no further transitions can happen
func (s RoomStatus) IsTerminal() bool {
	return s == RoomStatusCompleted || s == RoomStatusCancelled
}

// IsPreGame reports whether the room is still gathering players or generating
func (s RoomStatus) IsPreGame() bool {
	return s == RoomStatusWaiting || s == RoomStatusStarting
}

// Difficulty is the question difficulty selected for a room
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// Valid reports whether d is one of the known difficulties
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// RoomSettings are the creator-chosen parameters of a room
type RoomSettings struct {
	Name             string     `json:"name"`
	Difficulty       Difficulty `json:"difficulty"`
	MaxPlayers       int        `json:"maxPlayers"`
	QuestionsPerGame int        `json:"questionsPerGame"`
	TimePerQuestion  int        `json:"timePerQuestion"` // seconds
}

// DefaultRoomSettings returns the settings used when the creator picks none
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		Name:             "Trivia",
		Difficulty:       DifficultyMedium,
		MaxPlayers:       4,
		QuestionsPerGame: 10,
		TimePerQuestion:  20,
	}
}

// Validate checks the settings are playable
func (s RoomSettings) Validate() error {
	switch {
	case s.Name == "":
		return ErrInvalidSettings
	case !s.Difficulty.Valid():
		return ErrInvalidDifficulty
	case s.MaxPlayers < 1 || s.MaxPlayers > MaxPlayersLimit:
		return ErrInvalidSettings
	case s.QuestionsPerGame < 1 || s.QuestionsPerGame > MaxQuestionsLimit:
		return ErrInvalidSettings
	case s.TimePerQuestion < 1:
		return ErrInvalidSettings
	}
	return nil
}

const (
	// MaxPlayersLimit caps the seats in a single room
	MaxPlayersLimit = 16
	// MaxQuestionsLimit caps the generated batch size
	MaxQuestionsLimit = 50
)

// Room is one trivia session. The client copy is advisory and may be stale.
type Room struct {
	ID               RoomID     `json:"id"`
	Name             string     `json:"name"`
	Difficulty       Difficulty `json:"difficulty"`
	MaxPlayers       int        `json:"maxPlayers"`
	CurrentPlayers   int        `json:"currentPlayers"`
	QuestionsPerGame int        `json:"questionsPerGame"`
	TimePerQuestion  int        `json:"timePerQuestion"`
	Status           RoomStatus `json:"status"`
	CreatedByName    string     `json:"createdByName"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsSolo reports whether the room only ever has one seat
func (r *Room) IsSolo() bool {
	return r.MaxPlayers == 1
}

// IsFull reports whether every seat is taken
func (r *Room) IsFull() bool {
	return r.CurrentPlayers >= r.MaxPlayers
}

// QuestionTimeout returns the per-question countdown
func (r *Room) QuestionTimeout() time.Duration {
	return time.Duration(r.TimePerQuestion) * time.Second
}

// Settings returns the creator-chosen parameters of the room
func (r *Room) Settings() RoomSettings {
	return RoomSettings{
		Name:             r.Name,
		Difficulty:       r.Difficulty,
		MaxPlayers:       r.MaxPlayers,
		QuestionsPerGame: r.QuestionsPerGame,
		TimePerQuestion:  r.TimePerQuestion,
	}
}
