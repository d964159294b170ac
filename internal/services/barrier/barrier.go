// Package barrier holds a participant at the end of the game until every
// participant in the room has registered as finished
package barrier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
)

// Server is the subset of the API the barrier uses
type Server interface {
	GetRoom(ctx context.Context, roomID model.RoomID) (*response.RoomDetailResponse, error)
	MarkFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error
	RegisterFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID, playerName string) error
	GetFinishedPlayers(ctx context.Context, roomID model.RoomID) (*response.FinishedPlayersResponse, error)
	ForceComplete(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error
}

// Outcome describes how the barrier opened
type Outcome struct {
	// Forced is set when the ceiling elapsed before quorum
	Forced   bool
	Finished []model.GuestID
	Total    int
}

// Listener receives barrier events on the loop
type Listener interface {
	OnQuorumProgress(finished, total int)
	OnAllFinished(outcome Outcome)
	OnStalled()
	OnFatal(failure *model.Failure)
}

// Phase is the barrier's current step
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCounting    Phase = "counting-participants"
	PhaseSubmitting  Phase = "submitting-score"
	PhaseRegistering Phase = "registering-finished"
	PhasePolling     Phase = "polling-quorum"
	PhaseSatisfied   Phase = "satisfied"
	PhaseTimedOut    Phase = "timed-out"
	PhaseFailed      Phase = "failed"
)

// Config holds barrier settings
type Config struct {
	// Attempts is the total number of tries for each registration call
	Attempts   int
	RetryDelay time.Duration

	// SettleDelay is waited before the first quorum poll
	SettleDelay  time.Duration
	PollInterval time.Duration

	// StableReads is the number of consecutive polls that must show a full
	// finished set. The value 2 was chosen empirically to absorb
	// read-after-write lag on the server.
	StableReads int

	// Grace is waited after quorum for trailing score updates
	Grace time.Duration

	// Ceiling is measured from the start of quorum polling
	Ceiling time.Duration

	// ForceTimeout bounds the forceComplete call made at the ceiling, so the
	// forced outcome is not held back by a hung server
	ForceTimeout time.Duration
}

// DefaultConfig returns the default barrier settings
func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		RetryDelay:   time.Second,
		SettleDelay:  3 * time.Second,
		PollInterval: 1500 * time.Millisecond,
		StableReads:  2,
		Grace:        1500 * time.Millisecond,
		Ceiling:      20 * time.Second,
		ForceTimeout: 5 * time.Second,
	}
}

// Barrier runs one participant's end-of-game synchronization. All methods
// must be called on the loop.
type Barrier struct {
	loop     *loop.Loop
	server   Server
	store    *state.GameSessionState
	listener Listener
	config   Config
	logger   *slog.Logger

	phase      Phase
	roomID     model.RoomID
	guestID    model.GuestID
	playerName string
	total      int
	epoch      int
	stable     int
	inFlight   bool
	retry      backoff.BackOff

	ctx     context.Context
	cancel  context.CancelFunc
	timer   *loop.Timer
	tick    *loop.Timer
	ceiling *loop.Timer
}

// New creates a completion barrier
func New(
	l *loop.Loop,
	server Server,
	store *state.GameSessionState,
	listener Listener,
	config Config,
	logger *slog.Logger,
) *Barrier {
	attempts := config.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Barrier{
		loop:     l,
		server:   server,
		store:    store,
		listener: listener,
		config:   config,
		logger:   logger.With(slog.String("component", "barrier")),
		phase:    PhaseIdle,
		retry:    backoff.WithMaxRetries(backoff.NewConstantBackOff(config.RetryDelay), uint64(attempts-1)),
	}
}

// Phase returns the barrier's current step
func (b *Barrier) Phase() Phase {
	return b.phase
}

// Total returns the participant count the barrier waits for
func (b *Barrier) Total() int {
	return b.total
}

// Begin starts the barrier for the local participant. fallbackTotal is used
// when the participant count cannot be fetched.
func (b *Barrier) Begin(roomID model.RoomID, guestID model.GuestID, playerName string, fallbackTotal int) {
	b.Stop()

	b.roomID = roomID
	b.guestID = guestID
	b.playerName = playerName
	b.total = fallbackTotal
	b.stable = 0
	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.logger.Info("completion barrier started",
		slog.String("room_id", string(roomID)),
		slog.Int("guest_id", int(guestID)),
	)
	b.countParticipants()
}

// Stop abandons the barrier. Idempotent.
func (b *Barrier) Stop() {
	b.epoch++
	b.timer.Stop()
	b.timer = nil
	b.tick.Stop()
	b.tick = nil
	b.ceiling.Stop()
	b.ceiling = nil
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.inFlight = false
	if b.phase != PhaseIdle && b.phase != PhaseSatisfied && b.phase != PhaseTimedOut && b.phase != PhaseFailed {
		b.logger.Debug("completion barrier stopped", slog.String("phase", string(b.phase)))
		b.phase = PhaseIdle
	}
}

// countParticipants fetches the number of seats actually taken, which can
// be lower than the room's capacity
func (b *Barrier) countParticipants() {
	b.phase = PhaseCounting
	epoch := b.epoch
	roomID := b.roomID

	loop.Call(b.loop, b.ctx, func(ctx context.Context) (*response.RoomDetailResponse, error) {
		return b.server.GetRoom(ctx, roomID)
	}, func(resp *response.RoomDetailResponse, err error) {
		if epoch != b.epoch {
			return
		}
		if err != nil {
			b.logger.Warn("could not count participants, using fallback",
				slog.Int("fallback", b.total),
				slog.Any("error", err),
			)
		} else if n := len(resp.Participants); n > 0 {
			b.total = n
		}
		b.submitScore()
	})
}

func (b *Barrier) submitScore() {
	b.phase = PhaseSubmitting
	b.retry.Reset()
	roomID, guestID := b.roomID, b.guestID
	b.attempt(func(ctx context.Context) error {
		return b.server.MarkFinished(ctx, roomID, guestID)
	}, func(err error) {
		if err != nil {
			// The score already lives on the server; this only flags it final
			b.logger.Warn("could not mark finished, continuing", slog.Any("error", err))
		}
		b.register()
	})
}

func (b *Barrier) register() {
	b.phase = PhaseRegistering
	b.retry.Reset()
	roomID, guestID, name := b.roomID, b.guestID, b.playerName
	b.attempt(func(ctx context.Context) error {
		return b.server.RegisterFinished(ctx, roomID, guestID, name)
	}, func(err error) {
		if err != nil {
			b.phase = PhaseFailed
			b.logger.Error("could not register finished", slog.Any("error", err))
			b.listener.OnFatal(&model.Failure{
				Component: "barrier",
				Kind:      model.FailureRegistration,
				Title:     "could not register your finish",
				Message:   client.Message(err),
				Err:       err,
			})
			return
		}
		b.startPolling()
	})
}

// attempt runs call until it succeeds or the retry policy gives up, then
// passes the last error to done
func (b *Barrier) attempt(call func(ctx context.Context) error, done func(err error)) {
	epoch := b.epoch
	b.loop.Go(b.ctx, func(ctx context.Context) func() {
		err := call(ctx)
		return func() {
			if epoch != b.epoch {
				return
			}
			if err == nil {
				done(nil)
				return
			}
			delay := b.retry.NextBackOff()
			if delay == backoff.Stop {
				done(err)
				return
			}
			b.logger.Debug("retrying",
				slog.String("phase", string(b.phase)),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
			b.timer = b.loop.After(delay, func() {
				if epoch != b.epoch {
					return
				}
				b.attempt(call, done)
			})
		}
	})
}

func (b *Barrier) startPolling() {
	b.phase = PhasePolling
	epoch := b.epoch

	b.ceiling = b.loop.After(b.config.Ceiling, func() {
		if epoch != b.epoch {
			return
		}
		b.timedOut()
	})
	b.timer = b.loop.After(b.config.SettleDelay, func() { b.poll(epoch) })
}

func (b *Barrier) poll(epoch int) {
	if epoch != b.epoch || b.phase != PhasePolling {
		return
	}
	b.tick = b.loop.After(b.config.PollInterval, func() { b.poll(epoch) })

	if b.inFlight {
		return
	}
	b.inFlight = true

	roomID := b.roomID
	loop.Call(b.loop, b.ctx, func(ctx context.Context) (*response.FinishedPlayersResponse, error) {
		return b.server.GetFinishedPlayers(ctx, roomID)
	}, func(resp *response.FinishedPlayersResponse, err error) {
		if epoch != b.epoch || b.phase != PhasePolling {
			return
		}
		b.inFlight = false
		if err != nil {
			b.stable = 0
			b.logger.Warn("finished-set poll failed", slog.Any("error", err))
			return
		}
		b.counted(len(resp.FinishedPlayers), resp.FinishedPlayers)
	})
}

func (b *Barrier) counted(n int, guests []model.GuestID) {
	b.store.AddFinished(guests...)
	b.listener.OnQuorumProgress(n, b.total)

	if n >= b.total {
		b.stable++
	} else {
		b.stable = 0
	}
	if b.stable < b.config.StableReads {
		return
	}

	b.phase = PhaseSatisfied
	b.tick.Stop()
	b.tick = nil
	b.ceiling.Stop()
	b.ceiling = nil
	b.logger.Info("all participants finished", slog.Int("total", b.total))

	epoch := b.epoch
	b.timer = b.loop.After(b.config.Grace, func() {
		if epoch != b.epoch {
			return
		}
		b.listener.OnAllFinished(Outcome{
			Finished: b.store.Finished(),
			Total:    b.total,
		})
	})
}

func (b *Barrier) timedOut() {
	b.phase = PhaseTimedOut
	b.tick.Stop()
	b.tick = nil
	b.timer.Stop()
	b.timer = nil

	finished := b.store.Finished()
	b.logger.Warn("completion barrier hit its ceiling, forcing completion",
		slog.Int("finished", len(finished)),
		slog.Int("total", b.total),
	)
	b.listener.OnStalled()

	epoch := b.epoch
	roomID, guestID := b.roomID, b.guestID
	timeout := b.config.ForceTimeout
	b.loop.Go(b.ctx, func(ctx context.Context) func() {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := b.server.ForceComplete(ctx, roomID, guestID)
		return func() {
			if epoch != b.epoch {
				return
			}
			if err != nil {
				b.logger.Warn("force complete failed", slog.Any("error", err))
			}
			b.listener.OnAllFinished(Outcome{
				Forced:   true,
				Finished: b.store.Finished(),
				Total:    b.total,
			})
		}
	})
}

func (o Outcome) String() string {
	if o.Forced {
		return fmt.Sprintf("forced with %d/%d finished", len(o.Finished), o.Total)
	}
	return fmt.Sprintf("%d/%d finished", len(o.Finished), o.Total)
}
