package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/dependencies/random"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/bot"
	"github.com/mcoot/triviasync/internal/services/session"
)

func newSimulateCmd() *cobra.Command {
	var (
		players  int
		games    int
		strategy string
		maxThink time.Duration
		timeout  time.Duration
		settings = model.DefaultRoomSettings()
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run games between bots",
		Long: `Run one or more complete games between bots. Each bot drives its own
session exactly like an interactive player: the first bot creates the room
and starts it once everyone has joined.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if players < 1 || players > model.MaxPlayersLimit {
				return fmt.Errorf("players must be between 1 and %d", model.MaxPlayersLimit)
			}
			if games < 1 {
				return errors.New("games must be at least 1")
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			service := bot.NewService(
				env.API,
				env.Dialer,
				bot.DefaultStrategies(random.New(), maxThink),
				clock.New(),
				session.DefaultConfig(),
				env.Logger,
			)

			result := SimulationResult{Games: make([]GameResult, games)}
			var g errgroup.Group
			for i := range games {
				names := make([]string, players)
				for j := range names {
					names[j] = fmt.Sprintf("bot-%d-%d", i+1, j+1)
				}
				roomSettings := settings
				roomSettings.Name = fmt.Sprintf("Simulation %d", i+1)

				g.Go(func() error {
					outcomes, err := service.Simulate(ctx, roomSettings, names, strategy)
					result.Games[i] = gameResult(i+1, outcomes, err)
					return err
				})
			}
			err := g.Wait()

			out := NewOutput(cfg.Output)
			out.Print(result)
			return err
		},
	}

	cmd.Flags().IntVar(&players, "players", 2, "Bots per game")
	cmd.Flags().IntVar(&games, "games", 1, "Games to run concurrently")
	cmd.Flags().StringVar(&strategy, "strategy", bot.StrategyRandom, "Bot strategy: random, expert")
	cmd.Flags().DurationVar(&maxThink, "max-think", 2*time.Second, "Longest a bot waits before answering")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up after this long (0 for no limit)")
	cmd.Flags().StringVar((*string)(&settings.Difficulty), "difficulty", string(settings.Difficulty), "Difficulty: easy, medium, hard, expert")
	cmd.Flags().IntVar(&settings.QuestionsPerGame, "questions", 5, "Questions per game")
	cmd.Flags().IntVar(&settings.TimePerQuestion, "time", settings.TimePerQuestion, "Seconds per question")

	return cmd
}

func gameResult(game int, outcomes []bot.Outcome, err error) GameResult {
	result := GameResult{Game: game}
	if err != nil {
		result.Error = err.Error()
	}
	for _, o := range outcomes {
		if o.Name == "" {
			continue
		}
		p := PlayerResult{
			Name:     o.Name,
			State:    string(o.State),
			Score:    o.Score,
			Answered: o.Answered,
		}
		if o.Failure != nil {
			p.Failure = o.Failure.Title
		}
		if o.Results != nil {
			for _, entry := range o.Results.Leaderboard {
				if entry.PlayerName == o.Name {
					p.Rank = entry.Rank
					p.Score = entry.Score
				}
			}
		}
		result.Players = append(result.Players, p)
	}
	return result
}
