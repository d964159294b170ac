// Package questionbank is the source the generator draws room questions from
package questionbank

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mcoot/triviasync/internal/dependencies/random"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/storage"
)

//go:embed questions.json
var embedded []byte

// Service holds the loaded question bank
type Service struct {
	storage storage.Storage
	random  random.Random
	logger  *slog.Logger

	mu           sync.RWMutex
	byDifficulty map[model.Difficulty][]model.BankQuestion
	count        int
}

// New creates a new question bank service
func New(storage storage.Storage, random random.Random, logger *slog.Logger) *Service {
	return &Service{
		storage:      storage,
		random:       random,
		logger:       logger.With(slog.String("component", "questionbank")),
		byDifficulty: make(map[model.Difficulty][]model.BankQuestion),
	}
}

// LoadFromStorage loads the bank previously saved to storage
func (s *Service) LoadFromStorage(ctx context.Context) error {
	questions, err := s.storage.GetBankQuestions(ctx)
	if err != nil {
		return err
	}
	return s.load(questions)
}

// LoadFromFile loads a JSON array of questions from path and saves it to
// storage for future use
func (s *Service) LoadFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.loadJSON(ctx, data, path)
}

// LoadEmbedded loads the bank shipped with the binary
func (s *Service) LoadEmbedded(ctx context.Context) error {
	return s.loadJSON(ctx, embedded, "embedded")
}

// Load directly loads questions (useful for testing)
func (s *Service) Load(questions []model.BankQuestion) error {
	return s.load(questions)
}

func (s *Service) loadJSON(ctx context.Context, data []byte, source string) error {
	var questions []model.BankQuestion
	if err := json.Unmarshal(data, &questions); err != nil {
		return fmt.Errorf("parse question bank %s: %w", source, err)
	}
	if err := s.load(questions); err != nil {
		return err
	}
	return s.storage.SaveBankQuestions(ctx, questions)
}

func (s *Service) load(questions []model.BankQuestion) error {
	byDifficulty := make(map[model.Difficulty][]model.BankQuestion)
	count := 0
	for i, q := range questions {
		check := q.Question("", 1, 0)
		if err := check.Validate(); err != nil {
			return fmt.Errorf("bank question %d: %w", i, err)
		}
		if !q.Difficulty.Valid() {
			return fmt.Errorf("bank question %d: %w", i, model.ErrInvalidDifficulty)
		}
		byDifficulty[q.Difficulty] = append(byDifficulty[q.Difficulty], q)
		count++
	}
	if count == 0 {
		return model.ErrQuestionBankEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDifficulty = byDifficulty
	s.count = count
	s.logger.Info("question bank loaded", slog.Int("questions", count))
	return nil
}

// IsLoaded returns whether the bank has been loaded
func (s *Service) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count > 0
}

// Count returns the number of questions in the bank
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Draw picks n questions, preferring the requested difficulty. When it runs
// short it tops up from the other difficulties, and once the whole bank is
// used it starts over.
func (s *Service) Draw(difficulty model.Difficulty, n int) ([]model.BankQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil, model.ErrQuestionBankEmpty
	}

	out := make([]model.BankQuestion, 0, n)
	for len(out) < n {
		out = append(out, s.drawFrom(s.byDifficulty[difficulty], n-len(out))...)
		for _, d := range []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard, model.DifficultyExpert} {
			if d == difficulty || len(out) >= n {
				continue
			}
			out = append(out, s.drawFrom(s.byDifficulty[d], n-len(out))...)
		}
	}
	return out, nil
}

// drawFrom picks up to n distinct questions from pool
func (s *Service) drawFrom(pool []model.BankQuestion, n int) []model.BankQuestion {
	remaining := make([]model.BankQuestion, len(pool))
	copy(remaining, pool)

	var out []model.BankQuestion
	for len(out) < n && len(remaining) > 0 {
		i := s.random.Intn(len(remaining))
		out = append(out, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return out
}
