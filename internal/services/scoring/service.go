package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/mcoot/triviasync/internal/model"
)

// DefaultPoints is awarded for a correct answer to a question with no points set
const DefaultPoints = 100

// Service scores answers and ranks participants
type Service struct {
	// TimeBonus is the share of a question's points that can be earned on
	// top by answering quickly, falling linearly to zero at the time limit
	TimeBonus float64
}

// New creates a new ScoringService
func New() *Service {
	return &Service{
		TimeBonus: 0.5,
	}
}

// ScoreAnswer returns whether the answer is correct and the points it earns
func (s *Service) ScoreAnswer(q *model.Question, selected string, timeTaken, limit time.Duration) (bool, int) {
	if !q.IsCorrect(selected) {
		return false, 0
	}

	base := q.Points
	if base <= 0 {
		base = DefaultPoints
	}

	if limit <= 0 || timeTaken >= limit {
		return true, base
	}
	if timeTaken < 0 {
		timeTaken = 0
	}
	remaining := float64(limit-timeTaken) / float64(limit)
	bonus := int(math.Round(float64(base) * s.TimeBonus * remaining))
	return true, base + bonus
}

// Score builds a scored answer record
func (s *Service) Score(roomID model.RoomID, guestID model.GuestID, q *model.Question, selected string, timeTaken, limit time.Duration) model.Answer {
	correct, points := s.ScoreAnswer(q, selected, timeTaken, limit)
	return model.Answer{
		RoomID:           roomID,
		QuestionID:       q.ID,
		GuestID:          guestID,
		SelectedAnswer:   selected,
		TimeTakenSeconds: timeTaken.Seconds(),
		IsCorrect:        correct,
		PointsAwarded:    points,
	}
}

// Rank orders participants by score, then correct answers, then seat.
// Participants with equal score and correct answers share a rank.
func (s *Service) Rank(participants []model.Participant, finished model.FinishRegistration) []model.RankedParticipant {
	sorted := make([]model.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if sorted[i].CorrectAnswers != sorted[j].CorrectAnswers {
			return sorted[i].CorrectAnswers > sorted[j].CorrectAnswers
		}
		return sorted[i].GuestID < sorted[j].GuestID
	})

	ranked := make([]model.RankedParticipant, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.Score == sorted[i-1].Score && p.CorrectAnswers == sorted[i-1].CorrectAnswers {
			rank = ranked[i-1].Rank
		}
		ranked[i] = model.RankedParticipant{
			Rank:           rank,
			GuestID:        p.GuestID,
			PlayerName:     p.PlayerName,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			Finished:       finished.Has(p.GuestID),
		}
	}
	return ranked
}

// Results ranks participants into a room's results
func (s *Service) Results(roomID model.RoomID, participants []model.Participant, finished model.FinishRegistration) model.Results {
	return model.Results{
		RoomID:      roomID,
		Leaderboard: s.Rank(participants, finished),
	}
}
