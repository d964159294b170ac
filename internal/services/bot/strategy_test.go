package bot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/triviasync/internal/dependencies/mocks"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/bot"
)

type StrategySuite struct {
	suite.Suite
	mockRandom *mocks.MockRandom
	question   *model.Question
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategySuite))
}

func (s *StrategySuite) SetupTest() {
	s.mockRandom = mocks.NewMockRandom()
	s.question = &model.Question{
		ID:             "q1",
		QuestionNumber: 1,
		Text:           "Which planet is largest?",
		Options:        []string{"Mars", "Jupiter", "Venus", "Earth"},
		CorrectAnswer:  "Jupiter",
	}
}

func (s *StrategySuite) TestRandomPicksQueuedOption() {
	strategy := bot.NewRandomStrategy(s.mockRandom, time.Second)

	s.mockRandom.QueueIntn(2)
	s.Equal("Venus", strategy.ChooseAnswer(s.question))

	s.mockRandom.QueueIntn(0)
	s.Equal("Mars", strategy.ChooseAnswer(s.question))
}

func (s *StrategySuite) TestRandomWithNoOptions() {
	strategy := bot.NewRandomStrategy(s.mockRandom, time.Second)
	s.Empty(strategy.ChooseAnswer(&model.Question{}))
}

func (s *StrategySuite) TestAccurateAnswersCorrectlyWithinAccuracy() {
	strategy := bot.NewAccurateStrategy(s.mockRandom, 90, time.Second)

	s.mockRandom.QueueIntn(89)
	s.Equal("Jupiter", strategy.ChooseAnswer(s.question))
}

func (s *StrategySuite) TestAccurateMissesOutsideAccuracy() {
	strategy := bot.NewAccurateStrategy(s.mockRandom, 90, time.Second)

	// 95 is a miss; 1 picks the second wrong option
	s.mockRandom.QueueIntn(95, 1)
	s.Equal("Venus", strategy.ChooseAnswer(s.question))
}

func (s *StrategySuite) TestThinkTimeBelowMaxThink() {
	strategy := bot.NewRandomStrategy(s.mockRandom, 2*time.Second)

	s.mockRandom.QueueDuration(1500 * time.Millisecond)
	s.Equal(1500*time.Millisecond, strategy.ThinkTime(s.question, 20*time.Second))
	s.Equal(2*time.Second, s.mockRandom.MaxDuration)
}

func (s *StrategySuite) TestThinkTimeCappedByLimit() {
	strategy := bot.NewRandomStrategy(s.mockRandom, 30*time.Second)

	// Ceiling falls back to half the limit
	s.mockRandom.QueueDuration(4 * time.Second)
	s.Equal(4*time.Second, strategy.ThinkTime(s.question, 10*time.Second))
	s.Equal(5*time.Second, s.mockRandom.MaxDuration)
}

func (s *StrategySuite) TestZeroThinkTime() {
	strategy := bot.NewRandomStrategy(s.mockRandom, 0)
	s.Equal(time.Duration(0), strategy.ThinkTime(s.question, 0))
}

func (s *StrategySuite) TestDefaultStrategies() {
	strategies := bot.DefaultStrategies(s.mockRandom, time.Second)
	s.Contains(strategies, bot.StrategyRandom)
	s.Contains(strategies, bot.StrategyExpert)
}
