// Package state holds the locally known view of one trivia session
package state

import (
	"slices"
	"sync"

	"github.com/mcoot/triviasync/internal/model"
)

// Self identifies the local participant
type Self struct {
	GuestID    model.GuestID `json:"guestId"`
	PlayerName string        `json:"playerName"`
	IsCreator  bool          `json:"isCreator"`
}

// GameSessionState is the session's record of the room. Writes happen on the
// session loop: the room tracker owns the room/participant slice, the progress
// poller owns progress, the barrier owns the finished set, the connection
// manager owns the connection state, and only the controller clears or
// rewrites across slices. Snapshot may be called from any goroutine.
type GameSessionState struct {
	mu sync.RWMutex

	self         *Self
	room         *model.Room
	participants []model.Participant
	questions    []model.Question
	progress     model.ProgressSnapshot
	finished     model.FinishRegistration
	connection   model.ConnectionState

	currentIndex   int
	answers        []model.Answer
	score          int
	correctAnswers int
	results        *model.Results
}

// New creates an empty session state
func New() *GameSessionState {
	return &GameSessionState{}
}

// Snapshot is a copy of the session state safe to hold onto
type Snapshot struct {
	Self           *Self                  `json:"self,omitempty"`
	Room           *model.Room            `json:"room,omitempty"`
	Participants   []model.Participant    `json:"participants"`
	Questions      []model.Question       `json:"questions"`
	Progress       model.ProgressSnapshot `json:"progress"`
	Finished       []model.GuestID        `json:"finished"`
	Connection     model.ConnectionState  `json:"connection"`
	CurrentIndex   int                    `json:"currentIndex"`
	Answers        []model.Answer         `json:"answers"`
	Score          int                    `json:"score"`
	CorrectAnswers int                    `json:"correctAnswers"`
	Results        *model.Results         `json:"results,omitempty"`
}

// CurrentQuestion returns the question being asked, or nil
func (s *Snapshot) CurrentQuestion() *model.Question {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentIndex]
}

// Snapshot returns a deep copy of the state
func (s *GameSessionState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Participants:   slices.Clone(s.participants),
		Questions:      slices.Clone(s.questions),
		Progress:       s.progress,
		Finished:       s.finished.Guests(),
		Connection:     s.connection,
		CurrentIndex:   s.currentIndex,
		Answers:        slices.Clone(s.answers),
		Score:          s.score,
		CorrectAnswers: s.correctAnswers,
	}
	if s.self != nil {
		self := *s.self
		snap.Self = &self
	}
	if s.room != nil {
		room := *s.room
		snap.Room = &room
	}
	if s.results != nil {
		results := *s.results
		results.Leaderboard = slices.Clone(s.results.Leaderboard)
		snap.Results = &results
	}
	return snap
}

// Self returns the local participant, or nil before joining
func (s *GameSessionState) Self() *Self {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.self == nil {
		return nil
	}
	self := *s.self
	return &self
}

// SetSelf records the local participant
func (s *GameSessionState) SetSelf(self Self) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = &self
}

// Room returns a copy of the known room, or nil
func (s *GameSessionState) Room() *model.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	return &room
}

// Participants returns a copy of the known roster
func (s *GameSessionState) Participants() []model.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.participants)
}

// SetRoom replaces the room/participant slice
func (s *GameSessionState) SetRoom(room model.Room, participants []model.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = &room
	s.participants = slices.Clone(participants)
}

// SetRoomStatus updates only the status of the known room
func (s *GameSessionState) SetRoomStatus(status model.RoomStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != nil {
		s.room.Status = status
	}
}

// ClearRoom drops the room/participant slice
func (s *GameSessionState) ClearRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = nil
	s.participants = nil
}

// Progress returns the latest progress snapshot
func (s *GameSessionState) Progress() model.ProgressSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// SetProgress stores a snapshot unless it would move generation backwards.
// Returns the snapshot now held.
func (s *GameSessionState) SetProgress(p model.ProgressSnapshot) model.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Generated < s.progress.Generated {
		p.Generated = s.progress.Generated
	}
	if p.Total == 0 {
		p.Total = s.progress.Total
	}
	p.IsReady = p.IsReady || s.progress.IsReady || (p.Total > 0 && p.Generated >= p.Total)
	s.progress = p
	return p
}

// Questions returns a copy of the question set
func (s *GameSessionState) Questions() []model.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.questions)
}

// SetQuestions stores the finalized question set, ordered by number
func (s *GameSessionState) SetQuestions(questions []model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = slices.Clone(questions)
	model.SortQuestions(s.questions)
	s.currentIndex = 0
}

// CurrentIndex returns the index of the question being asked
func (s *GameSessionState) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentIndex
}

// AdvanceQuestion moves to the next question and reports whether one remains
func (s *GameSessionState) AdvanceQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex < len(s.questions) {
		s.currentIndex++
	}
	return s.currentIndex < len(s.questions)
}

// RecordAnswer appends an answer and adds its points to the local score
func (s *GameSessionState) RecordAnswer(a model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, a)
	s.score += a.PointsAwarded
	if a.IsCorrect {
		s.correctAnswers++
	}
}

// Score returns the local participant's accumulated score and correct count
func (s *GameSessionState) Score() (score, correct int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.score, s.correctAnswers
}

// AnsweredCount returns how many answers were recorded
func (s *GameSessionState) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// AddFinished grows the finished set
func (s *GameSessionState) AddFinished(guests ...model.GuestID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished.Add(guests...)
	return s.finished.Len()
}

// Finished returns the finished set's guests
func (s *GameSessionState) Finished() []model.GuestID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished.Guests()
}

// SetConnection stores the push channel state
func (s *GameSessionState) SetConnection(c model.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection = c
}

// Results returns the final results, or nil
func (s *GameSessionState) Results() *model.Results {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.results == nil {
		return nil
	}
	results := *s.results
	results.Leaderboard = slices.Clone(s.results.Leaderboard)
	return &results
}

// SetResults stores the final results
func (s *GameSessionState) SetResults(r model.Results) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Leaderboard = slices.Clone(r.Leaderboard)
	s.results = &r
}

// ResetGame drops everything scoped to the current room except the local
// results and the connection state
func (s *GameSessionState) ResetGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = nil
	s.participants = nil
	s.questions = nil
	s.progress = model.ProgressSnapshot{}
	s.finished = model.FinishRegistration{}
	s.currentIndex = 0
	s.answers = nil
	s.score = 0
	s.correctAnswers = 0
}

// Reset drops everything, including the local participant and results
func (s *GameSessionState) Reset() {
	s.ResetGame()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = nil
	s.results = nil
}
