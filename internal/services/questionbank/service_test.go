package questionbank

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/triviasync/internal/dependencies/mocks"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/storage/memory"
	"github.com/mcoot/triviasync/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.random = mocks.NewMockRandom()
	s.service = New(s.storage, s.random, testutil.NopLogger())
	s.ctx = context.Background()
}

func bankQuestion(text string, d model.Difficulty) model.BankQuestion {
	return model.BankQuestion{Text: text, Options: []string{"yes", "no"}, CorrectAnswer: "yes", Difficulty: d}
}

func (s *ServiceSuite) TestIsNotLoadedByDefault() {
	s.False(s.service.IsLoaded())
	s.Equal(0, s.service.Count())

	_, err := s.service.Draw(model.DifficultyEasy, 1)
	s.ErrorIs(err, model.ErrQuestionBankEmpty)
}

func (s *ServiceSuite) TestLoadEmbedded() {
	s.Require().NoError(s.service.LoadEmbedded(s.ctx))

	s.True(s.service.IsLoaded())
	s.Equal(40, s.service.Count())

	saved, err := s.storage.GetBankQuestions(s.ctx)
	s.Require().NoError(err)
	s.Len(saved, 40)
}

func (s *ServiceSuite) TestLoadFromStorage() {
	s.Require().NoError(s.storage.SaveBankQuestions(s.ctx, []model.BankQuestion{bankQuestion("q", model.DifficultyEasy)}))

	s.Require().NoError(s.service.LoadFromStorage(s.ctx))
	s.Equal(1, s.service.Count())
}

func (s *ServiceSuite) TestLoadFromFile() {
	path := filepath.Join(s.T().TempDir(), "bank.json")
	data := `[{"text":"q","options":["a","b"],"correctAnswer":"b","difficulty":"hard"}]`
	s.Require().NoError(os.WriteFile(path, []byte(data), 0o600))

	s.Require().NoError(s.service.LoadFromFile(s.ctx, path))
	s.Equal(1, s.service.Count())
}

func (s *ServiceSuite) TestLoadRejectsInvalidQuestions() {
	bad := model.BankQuestion{Text: "q", Options: []string{"a", "b"}, CorrectAnswer: "c", Difficulty: model.DifficultyEasy}
	s.ErrorIs(s.service.Load([]model.BankQuestion{bad}), model.ErrInvalidQuestion)

	noDifficulty := bankQuestion("q", "")
	s.ErrorIs(s.service.Load([]model.BankQuestion{noDifficulty}), model.ErrInvalidDifficulty)

	s.ErrorIs(s.service.Load(nil), model.ErrQuestionBankEmpty)
	s.False(s.service.IsLoaded())
}

func (s *ServiceSuite) TestDrawPrefersDifficulty() {
	s.Require().NoError(s.service.Load([]model.BankQuestion{
		bankQuestion("easy-1", model.DifficultyEasy),
		bankQuestion("hard-1", model.DifficultyHard),
		bankQuestion("hard-2", model.DifficultyHard),
	}))
	s.random.QueueIntn(1, 0)

	got, err := s.service.Draw(model.DifficultyHard, 2)

	s.Require().NoError(err)
	s.Equal("hard-2", got[0].Text)
	s.Equal("hard-1", got[1].Text)
}

func (s *ServiceSuite) TestDrawTopsUpFromOtherDifficulties() {
	s.Require().NoError(s.service.Load([]model.BankQuestion{
		bankQuestion("easy-1", model.DifficultyEasy),
		bankQuestion("hard-1", model.DifficultyHard),
	}))

	got, err := s.service.Draw(model.DifficultyHard, 2)

	s.Require().NoError(err)
	s.Equal("hard-1", got[0].Text)
	s.Equal("easy-1", got[1].Text)
}

func (s *ServiceSuite) TestDrawWrapsAroundSmallBank() {
	s.Require().NoError(s.service.Load([]model.BankQuestion{bankQuestion("only", model.DifficultyEasy)}))

	got, err := s.service.Draw(model.DifficultyEasy, 3)

	s.Require().NoError(err)
	s.Len(got, 3)
}
