package e2e_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/dependencies/random"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/bot"
	"github.com/mcoot/triviasync/internal/services/connection"
	"github.com/mcoot/triviasync/internal/services/session"
	"github.com/mcoot/triviasync/internal/testutil"
	"github.com/mcoot/triviasync/internal/transport/ws"
)

// fastSessionConfig shortens every poll so a real-clock game takes seconds
func fastSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Progress.InitialDelay = 50 * time.Millisecond
	cfg.Progress.Interval = 100 * time.Millisecond
	cfg.Tracker.Interval = 100 * time.Millisecond
	cfg.Tracker.StartGrace = 200 * time.Millisecond
	cfg.Barrier.RetryDelay = 50 * time.Millisecond
	cfg.Barrier.SettleDelay = 100 * time.Millisecond
	cfg.Barrier.PollInterval = 100 * time.Millisecond
	cfg.Barrier.Grace = 100 * time.Millisecond
	cfg.Connection.BaseDelay = 50 * time.Millisecond
	return cfg
}

func simulate(t *testing.T, ts *testServer, dialer connection.Dialer, names ...string) []bot.Outcome {
	t.Helper()

	service := bot.NewService(
		apiClient(ts),
		dialer,
		bot.DefaultStrategies(random.New(), 20*time.Millisecond),
		clock.New(),
		fastSessionConfig(),
		testutil.NopLogger(),
	)

	settings := model.DefaultRoomSettings()
	settings.Name = "e2e"
	settings.QuestionsPerGame = 3
	settings.TimePerQuestion = 5

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	outcomes, err := service.Simulate(ctx, settings, names, bot.StrategyExpert)
	require.NoError(t, err)
	require.Len(t, outcomes, len(names))
	return outcomes
}

func assertCompleted(t *testing.T, outcomes []bot.Outcome) {
	t.Helper()

	for _, o := range outcomes {
		assert.Equal(t, session.StateCompleted, o.State, o.Name)
		assert.Nil(t, o.Failure, o.Name)
		assert.Equal(t, 3, o.Answered, o.Name)
		if assert.NotNil(t, o.Results, o.Name) {
			assert.Len(t, o.Results.Leaderboard, len(outcomes), o.Name)
		}
	}
}

func TestBots_WebsocketGame(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	dialer := ws.NewDialer(ts.addr, "/api/v1", testutil.NopLogger())
	outcomes := simulate(t, ts, dialer, "ada", "grace", "linus")

	assertCompleted(t, outcomes)

	// Every player agrees on the winner
	winner := outcomes[0].Results.Leaderboard[0].PlayerName
	for _, o := range outcomes[1:] {
		assert.Equal(t, winner, o.Results.Leaderboard[0].PlayerName, o.Name)
	}
}

func TestBots_PollingOnlyGame(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	outcomes := simulate(t, ts, connection.Unavailable, "ada", "grace")

	assertCompleted(t, outcomes)
}

func TestBots_SoloGame(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	dialer := ws.NewDialer(ts.addr, "/api/v1", testutil.NopLogger())
	outcomes := simulate(t, ts, dialer, "ada")

	assertCompleted(t, outcomes)
	assert.Equal(t, 1, outcomes[0].Results.Leaderboard[0].Rank)
}
