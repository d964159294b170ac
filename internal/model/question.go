package model

import (
	"fmt"
	"slices"
	"sort"
)

// QuestionID identifies a generated question
type QuestionID string

// Question is one generated trivia question. Immutable once generated.
type Question struct {
	ID             QuestionID `json:"id"`
	QuestionNumber int        `json:"questionNumber"` // 1-based, server-assigned
	Text           string     `json:"text"`
	Options        []string   `json:"options"`
	CorrectAnswer  string     `json:"correctAnswer"`
	Reference      string     `json:"reference,omitempty"`
	Difficulty     Difficulty `json:"difficulty"`
	Points         int        `json:"points"`
}

// Validate checks the option invariants of a question
func (q *Question) Validate() error {
	if q.QuestionNumber < 1 {
		return fmt.Errorf("%w: question number %d", ErrInvalidQuestion, q.QuestionNumber)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %d has %d options", ErrInvalidQuestion, q.QuestionNumber, len(q.Options))
	}
	if !slices.Contains(q.Options, q.CorrectAnswer) {
		return fmt.Errorf("%w: question %d answer is not an option", ErrInvalidQuestion, q.QuestionNumber)
	}
	return nil
}

// IsCorrect reports whether the selected option is the correct answer
func (q *Question) IsCorrect(selected string) bool {
	return selected != "" && selected == q.CorrectAnswer
}

// SortQuestions orders questions by question number
func SortQuestions(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].QuestionNumber < questions[j].QuestionNumber
	})
}

// Answer is one participant's submission for one question
type Answer struct {
	RoomID           RoomID     `json:"roomId"`
	QuestionID       QuestionID `json:"questionId"`
	GuestID          GuestID    `json:"guestId"`
	SelectedAnswer   string     `json:"selectedAnswer"`
	TimeTakenSeconds float64    `json:"timeTakenSeconds"`
	IsCorrect        bool       `json:"isCorrect"`
	PointsAwarded    int        `json:"pointsAwarded"`
}

// BankQuestion is an unnumbered question in the question bank. Generation
// copies bank questions into a room, assigning ids and numbers.
type BankQuestion struct {
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correctAnswer"`
	Reference     string     `json:"reference,omitempty"`
	Category      string     `json:"category,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
}

// Question turns the bank entry into the numbered question of a room
func (b BankQuestion) Question(id QuestionID, number, points int) Question {
	return Question{
		ID:             id,
		QuestionNumber: number,
		Text:           b.Text,
		Options:        slices.Clone(b.Options),
		CorrectAnswer:  b.CorrectAnswer,
		Reference:      b.Reference,
		Difficulty:     b.Difficulty,
		Points:         points,
	}
}
