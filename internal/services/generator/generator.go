// Package generator produces a room's questions in timed batches, the way a
// slow upstream model would, so clients have real progress to poll.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/questionbank"
	"github.com/mcoot/triviasync/internal/storage"
)

// Config controls generation pacing
type Config struct {
	// BatchSize is how many questions each step produces
	BatchSize int
	// BatchDelay is the time each batch takes
	BatchDelay time.Duration
	// Points is the award for a correct answer at each difficulty
	Points map[model.Difficulty]int
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		BatchSize:  2,
		BatchDelay: time.Second,
		Points: map[model.Difficulty]int{
			model.DifficultyEasy:   50,
			model.DifficultyMedium: 100,
			model.DifficultyHard:   150,
			model.DifficultyExpert: 200,
		},
	}
}

// Listener is told when a room's generation ends
type Listener interface {
	OnGenerated(roomID model.RoomID)
	OnGenerationFailed(roomID model.RoomID, err error)
}

type job struct {
	room  model.Room
	total int
	timer clock.Timer
	done  bool
	err   error
}

// Generator runs one generation job per room
type Generator struct {
	storage  storage.Storage
	bank     *questionbank.Service
	clock    clock.Clock
	config   Config
	logger   *slog.Logger
	listener Listener

	mu   sync.Mutex
	jobs map[model.RoomID]*job
}

// New creates a new Generator
func New(storage storage.Storage, bank *questionbank.Service, clk clock.Clock, config Config, logger *slog.Logger) *Generator {
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	return &Generator{
		storage: storage,
		bank:    bank,
		clock:   clk,
		config:  config,
		logger:  logger.With(slog.String("component", "generator")),
		jobs:    make(map[model.RoomID]*job),
	}
}

// SetListener registers the receiver of completion events. Must be called
// before the first Start.
func (g *Generator) SetListener(l Listener) {
	g.listener = l
}

// Start begins generating the room's questions. The questions are drawn up
// front; the batches only pace how fast they become visible.
func (g *Generator) Start(ctx context.Context, room *model.Room) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.jobs[room.ID]; ok {
		return model.ErrGenerationInProgress
	}

	drawn, err := g.bank.Draw(room.Difficulty, room.QuestionsPerGame)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrGenerationFailed, err)
	}

	questions := make([]model.Question, len(drawn))
	for i, b := range drawn {
		questions[i] = b.Question(model.QuestionID(uuid.NewString()), i+1, g.config.Points[room.Difficulty])
	}

	j := &job{room: *room, total: room.QuestionsPerGame}
	g.jobs[room.ID] = j
	g.schedule(j, questions)

	g.logger.Info("generation started",
		slog.String("room_id", string(room.ID)),
		slog.Int("total", j.total),
		slog.String("difficulty", string(room.Difficulty)),
	)
	return nil
}

// schedule arms the timer for the next batch. Caller holds g.mu.
func (g *Generator) schedule(j *job, pending []model.Question) {
	j.timer = g.clock.AfterFunc(g.config.BatchDelay, func() {
		g.step(j, pending)
	})
}

func (g *Generator) step(j *job, pending []model.Question) {
	g.mu.Lock()
	if g.jobs[j.room.ID] != j {
		g.mu.Unlock()
		return
	}

	n := min(g.config.BatchSize, len(pending))
	batch, rest := pending[:n], pending[n:]
	err := g.storage.AppendQuestions(context.Background(), j.room.ID, batch)
	if err != nil {
		j.done = true
		j.err = err
		g.mu.Unlock()
		g.logger.Error("failed to store questions",
			slog.String("room_id", string(j.room.ID)),
			slog.Any("error", err),
		)
		if g.listener != nil {
			g.listener.OnGenerationFailed(j.room.ID, err)
		}
		return
	}

	if len(rest) > 0 {
		g.schedule(j, rest)
		g.mu.Unlock()
		return
	}

	j.done = true
	g.mu.Unlock()

	g.logger.Info("generation finished", slog.String("room_id", string(j.room.ID)))
	if g.listener != nil {
		g.listener.OnGenerated(j.room.ID)
	}
}

// Progress reports how far the room's generation has got. A room with no
// job reports zero of its configured total.
func (g *Generator) Progress(ctx context.Context, room *model.Room) (model.ProgressSnapshot, string, error) {
	g.mu.Lock()
	j := g.jobs[room.ID]
	var jobErr error
	if j != nil {
		jobErr = j.err
	}
	g.mu.Unlock()

	if jobErr != nil {
		return model.ProgressSnapshot{}, "", fmt.Errorf("%w: %w", model.ErrGenerationFailed, jobErr)
	}

	questions, err := g.storage.GetQuestions(ctx, room.ID)
	if err != nil {
		return model.ProgressSnapshot{}, "", err
	}

	snap := model.NewProgressSnapshot(len(questions), room.QuestionsPerGame)
	switch {
	case snap.IsReady:
		return snap, "Questions ready", nil
	case j == nil:
		return snap, "Waiting for the game to start", nil
	default:
		return snap, fmt.Sprintf("Generating questions (%d/%d)", snap.Generated, snap.Total), nil
	}
}

// Cancel stops the room's job and forgets it
func (g *Generator) Cancel(roomID model.RoomID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[roomID]
	if !ok {
		return
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	delete(g.jobs, roomID)
}

// Active returns the number of jobs still producing questions
func (g *Generator) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, j := range g.jobs {
		if !j.done {
			n++
		}
	}
	return n
}
