package bot

import (
	"time"

	"github.com/mcoot/triviasync/internal/model"
)

// Strategy defines how a bot answers questions
type Strategy interface {
	// ChooseAnswer selects one of the question's options
	ChooseAnswer(q *model.Question) string
	// ThinkTime is how long to wait before answering. Values at or past
	// limit are clamped so the bot answers before the question times out.
	ThinkTime(q *model.Question, limit time.Duration) time.Duration
}

// Strategy names
const (
	StrategyRandom = "random"
	StrategyExpert = "expert"
)
