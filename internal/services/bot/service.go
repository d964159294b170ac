// Package bot runs automated participants. Every bot drives its own session
// controller against the server exactly like an interactive player would.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/connection"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/session"
)

// DefaultMaxRetries is how many failures a bot retries before abandoning
const DefaultMaxRetries = 2

// Service creates bots sharing one server connection
type Service struct {
	api        session.API
	dialer     connection.Dialer
	strategies map[string]Strategy
	clock      clock.Clock
	config     session.Config
	logger     *slog.Logger

	// MaxRetries applies to bots created after it is set
	MaxRetries int
}

// NewService creates a new bot Service. A nil dialer runs bots without a
// push channel.
func NewService(
	api session.API,
	dialer connection.Dialer,
	strategies map[string]Strategy,
	clk clock.Clock,
	config session.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		api:        api,
		dialer:     dialer,
		strategies: strategies,
		clock:      clk,
		config:     config,
		logger:     logger,
		MaxRetries: DefaultMaxRetries,
	}
}

// Strategies returns the registered strategy names in order
func (s *Service) Strategies() []string {
	names := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBot creates an idle bot with its own loop and session controller
func (s *Service) NewBot(name, strategy string) (*Bot, error) {
	strat, ok := s.strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("unknown bot strategy: %s", strategy)
	}
	if name == "" {
		return nil, model.ErrNameRequired
	}

	logger := s.logger.With(slog.String("bot", name))
	b := &Bot{
		name:       name,
		strategy:   strat,
		loop:       loop.New(s.clock, logger),
		maxRetries: s.MaxRetries,
		logger:     logger.With(slog.String("component", "bot")),
		waiting:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	b.controller = session.New(b.loop, s.api, s.dialer, b, s.config, logger)
	return b, nil
}

// Simulate plays one full game: the first bot creates a room sized for
// every player, the others join, and all of them play to the end
func (s *Service) Simulate(ctx context.Context, settings model.RoomSettings, names []string, strategy string) ([]Outcome, error) {
	if len(names) == 0 {
		return nil, model.ErrNameRequired
	}
	settings.MaxPlayers = len(names)

	bots := make([]*Bot, len(names))
	for i, name := range names {
		b, err := s.NewBot(name, strategy)
		if err != nil {
			return nil, err
		}
		bots[i] = b
	}

	outcomes := make([]Outcome, len(bots))
	g, gctx := errgroup.WithContext(ctx)

	creator := bots[0]
	creator.Create(settings)
	g.Go(func() error {
		o, err := creator.Run(gctx)
		outcomes[0] = o
		return err
	})

	roomID, err := creator.WaitRoom(gctx)
	if err != nil {
		_ = g.Wait()
		return outcomes, fmt.Errorf("creator could not open a room: %w", err)
	}
	s.logger.Info("simulation room open",
		slog.String("room_id", string(roomID)),
		slog.Int("players", len(bots)),
	)

	for i, b := range bots[1:] {
		b.Join(roomID)
		g.Go(func() error {
			o, err := b.Run(gctx)
			outcomes[i+1] = o
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
