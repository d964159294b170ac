package bot

import (
	"time"

	"github.com/mcoot/triviasync/internal/dependencies/random"
	"github.com/mcoot/triviasync/internal/model"
)

// RandomStrategy picks a random option after a random delay of up to MaxThink
type RandomStrategy struct {
	random   random.Random
	MaxThink time.Duration
}

// NewRandomStrategy creates a new RandomStrategy
func NewRandomStrategy(rnd random.Random, maxThink time.Duration) *RandomStrategy {
	return &RandomStrategy{random: rnd, MaxThink: maxThink}
}

// ChooseAnswer returns a uniformly random option
func (s *RandomStrategy) ChooseAnswer(q *model.Question) string {
	if len(q.Options) == 0 {
		return ""
	}
	return q.Options[s.random.Intn(len(q.Options))]
}

// ThinkTime returns a random delay below both MaxThink and limit
func (s *RandomStrategy) ThinkTime(_ *model.Question, limit time.Duration) time.Duration {
	return thinkTime(s.random, s.MaxThink, limit)
}

// AccurateStrategy answers correctly Accuracy percent of the time and
// otherwise picks a wrong option
type AccurateStrategy struct {
	random   random.Random
	Accuracy int
	MaxThink time.Duration
}

// NewAccurateStrategy creates a new AccurateStrategy
func NewAccurateStrategy(rnd random.Random, accuracy int, maxThink time.Duration) *AccurateStrategy {
	return &AccurateStrategy{random: rnd, Accuracy: accuracy, MaxThink: maxThink}
}

// ChooseAnswer returns the correct answer or a random wrong one
func (s *AccurateStrategy) ChooseAnswer(q *model.Question) string {
	if s.random.Intn(100) < s.Accuracy {
		return q.CorrectAnswer
	}
	var wrong []string
	for _, opt := range q.Options {
		if !q.IsCorrect(opt) {
			wrong = append(wrong, opt)
		}
	}
	if len(wrong) == 0 {
		return q.CorrectAnswer
	}
	return wrong[s.random.Intn(len(wrong))]
}

// ThinkTime returns a random delay below both MaxThink and limit
func (s *AccurateStrategy) ThinkTime(_ *model.Question, limit time.Duration) time.Duration {
	return thinkTime(s.random, s.MaxThink, limit)
}

func thinkTime(rnd random.Random, maxThink, limit time.Duration) time.Duration {
	ceiling := maxThink
	if limit > 0 && (ceiling <= 0 || ceiling >= limit) {
		ceiling = limit / 2
	}
	return rnd.Duration(ceiling)
}

// DefaultStrategies returns the built-in strategies by name
func DefaultStrategies(rnd random.Random, maxThink time.Duration) map[string]Strategy {
	return map[string]Strategy{
		StrategyRandom: NewRandomStrategy(rnd, maxThink),
		StrategyExpert: NewAccurateStrategy(rnd, 90, maxThink),
	}
}
