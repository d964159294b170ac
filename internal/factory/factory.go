package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/mcoot/triviasync/internal/api"
	"github.com/mcoot/triviasync/internal/api/push"
	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/dependencies/random"
	"github.com/mcoot/triviasync/internal/services/generator"
	"github.com/mcoot/triviasync/internal/services/questionbank"
	"github.com/mcoot/triviasync/internal/services/rooms"
	"github.com/mcoot/triviasync/internal/services/scoring"
	"github.com/mcoot/triviasync/internal/storage"
	"github.com/mcoot/triviasync/internal/storage/memory"
	redisstorage "github.com/mcoot/triviasync/internal/storage/redis"
	"github.com/mcoot/triviasync/internal/transport/natspush"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage     storage.Storage
	StorageType string

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	QuestionBank *questionbank.Service
	Generator    *generator.Generator
	Scoring      *scoring.Service
	Rooms        *rooms.Service
	Hub          *push.Hub

	// NATS is the push fan-out connection, nil when not configured
	NATS *nats.Conn

	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// QuestionBankPath is a JSON question file (optional)
	// If empty, the embedded question bank is used
	QuestionBankPath string
	// GeneratorConfig controls batch question generation (optional)
	// If zero value, defaults to generator.DefaultConfig()
	GeneratorConfig generator.Config
	// PushConfig controls the websocket hub (optional)
	// If zero value, defaults to push.DefaultConfig()
	PushConfig push.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// NATSURL mirrors push events onto NATS when set
	NATSURL string
}

// New creates a new application with all dependencies wired and the question
// bank loaded
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		conn, err := natspush.Connect(cfg.NATSURL, "trivia-server", logger)
		if err != nil {
			return nil, err
		}
		nc = conn
	}

	genCfg := cfg.GeneratorConfig
	if genCfg.BatchSize == 0 {
		genCfg = generator.DefaultConfig()
	}
	pushCfg := cfg.PushConfig
	if pushCfg.PingInterval == 0 {
		pushCfg = push.DefaultConfig()
	}

	app := newWithDependencies(store, clock.New(), random.New(), nc, genCfg, pushCfg, logger)
	app.StorageType = storageType

	if err := app.loadQuestionBank(ctx, cfg.QuestionBankPath); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	nc *nats.Conn,
	genCfg generator.Config,
	pushCfg push.Config,
	logger *slog.Logger,
) *App {
	bank := questionbank.New(store, rnd, logger)
	gen := generator.New(store, bank, clk, genCfg, logger)
	scorer := scoring.New()
	roomService := rooms.New(store, gen, scorer, clk, logger)

	var publisher *natspush.Publisher
	if nc != nil {
		publisher = natspush.NewPublisher(nc)
	}
	hub := push.NewHub(roomService, publisher, clk, pushCfg, logger)
	roomService.SetNotifier(hub)

	return &App{
		Storage:      store,
		StorageType:  StorageTypeMemory,
		Clock:        clk,
		Random:       rnd,
		QuestionBank: bank,
		Generator:    gen,
		Scoring:      scorer,
		Rooms:        roomService,
		Hub:          hub,
		NATS:         nc,
		logger:       logger,
	}
}

// loadQuestionBank prefers questions already in storage, then the given
// file, then the embedded bank
func (a *App) loadQuestionBank(ctx context.Context, path string) error {
	if path != "" {
		if err := a.QuestionBank.LoadFromFile(ctx, path); err != nil {
			return fmt.Errorf("failed to load question bank: %w", err)
		}
		return nil
	}
	if err := a.QuestionBank.LoadFromStorage(ctx); err == nil {
		return nil
	}
	if err := a.QuestionBank.LoadEmbedded(ctx); err != nil {
		return fmt.Errorf("failed to load question bank: %w", err)
	}
	return nil
}

// Handler builds the API router for this app
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.logger,
		Rooms:       a.Rooms,
		Hub:         a.Hub,
		Storage:     a.Storage,
		StorageType: a.StorageType,
	})
}

// Close releases external connections
func (a *App) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if closer, ok := a.Storage.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("failed to close storage", slog.Any("error", err))
		}
	}
}
