// Package progress polls the server's question generation progress
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
)

// Source fetches generation progress
type Source interface {
	GetProgress(ctx context.Context, roomID model.RoomID) (*response.ProgressResponse, error)
}

// Listener receives poller events on the loop
type Listener interface {
	OnProgress(snapshot model.ProgressSnapshot, message string)
	OnReady(snapshot model.ProgressSnapshot)
	OnFatal(failure *model.Failure)
}

// Config holds progress poller settings
type Config struct {
	InitialDelay time.Duration
	Interval     time.Duration

	// MaxErrors is the number of consecutive counted errors that ends polling
	MaxErrors int

	// StallTimeout is how long generation may sit at zero before giving up
	StallTimeout time.Duration
}

// DefaultConfig returns the default poller settings
func DefaultConfig() Config {
	return Config{
		InitialDelay: 2 * time.Second,
		Interval:     10 * time.Second,
		MaxErrors:    5,
		StallTimeout: 45 * time.Second,
	}
}

const (
	msgRecovering = "Waiting for the server to recover..."
	msgBusy       = "The question generator is busy, still trying..."
)

var overloadSignatures = []string{
	"overloaded",
	"rate limit",
	"too many requests",
	"capacity",
	"try again later",
}

// IsOverloaded reports whether a server error message describes overload
func IsOverloaded(message string) bool {
	lower := strings.ToLower(message)
	for _, sig := range overloadSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// Poller polls one room's progress at a time. All methods must be called on
// the loop.
type Poller struct {
	loop     *loop.Loop
	source   Source
	store    *state.GameSessionState
	listener Listener
	config   Config
	logger   *slog.Logger

	running   bool
	roomID    model.RoomID
	total     int
	epoch     int
	inFlight  bool
	errors    int
	transient int

	ctx    context.Context
	cancel context.CancelFunc
	tick   *loop.Timer
	stall  *loop.Timer
}

// NewPoller creates a progress poller
func NewPoller(
	l *loop.Loop,
	source Source,
	store *state.GameSessionState,
	listener Listener,
	config Config,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		loop:     l,
		source:   source,
		store:    store,
		listener: listener,
		config:   config,
		logger:   logger.With(slog.String("component", "progress")),
	}
}

// Running reports whether the poller is active
func (p *Poller) Running() bool {
	return p.running
}

// Start begins polling a room. A running poller is restarted.
func (p *Poller) Start(roomID model.RoomID, total int) {
	p.Stop()

	p.running = true
	p.roomID = roomID
	p.total = total
	p.errors = 0
	p.transient = 0
	p.ctx, p.cancel = context.WithCancel(context.Background())

	epoch := p.epoch
	p.tick = p.loop.After(p.config.InitialDelay, func() { p.poll(epoch) })
	p.stall = p.loop.After(p.config.StallTimeout, func() { p.checkStall(epoch) })

	p.logger.Info("progress polling started",
		slog.String("room_id", string(roomID)),
		slog.Int("total", total),
	)
}

// Stop ends polling and drops any in-flight response. Idempotent.
func (p *Poller) Stop() {
	p.epoch++
	p.tick.Stop()
	p.tick = nil
	p.stall.Stop()
	p.stall = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.inFlight = false
	if p.running {
		p.running = false
		p.logger.Debug("progress polling stopped", slog.String("room_id", string(p.roomID)))
	}
}

func (p *Poller) poll(epoch int) {
	if epoch != p.epoch {
		return
	}
	p.tick = p.loop.After(p.config.Interval, func() { p.poll(epoch) })

	if p.inFlight {
		p.logger.Debug("previous progress poll still in flight, skipping cycle")
		return
	}
	p.inFlight = true

	roomID := p.roomID
	loop.Call(p.loop, p.ctx, func(ctx context.Context) (*response.ProgressResponse, error) {
		return p.source.GetProgress(ctx, roomID)
	}, func(resp *response.ProgressResponse, err error) {
		if epoch != p.epoch {
			return
		}
		p.inFlight = false
		p.handle(resp, err)
	})
}

// handle classifies one poll result. First match wins: transient, status,
// malformed, rejected, success.
func (p *Poller) handle(resp *response.ProgressResponse, err error) {
	switch client.Classify(err) {
	case client.KindNone:
		p.errors = 0
		p.transient = 0
		p.succeeded(resp)

	case client.KindTransient:
		p.transient++
		if p.transient > 1 {
			p.errors++
		}
		p.logger.Warn("transient progress error",
			slog.Int("streak", p.transient),
			slog.Int("errors", p.errors),
			slog.Any("error", err),
		)
		p.listener.OnProgress(p.store.Progress(), msgRecovering)
		p.checkBudget(err)

	case client.KindApplication:
		p.transient = 0
		p.errors++
		p.logger.Warn("progress request failed",
			slog.Int("errors", p.errors),
			slog.Any("error", err),
		)
		p.checkBudget(err)

	case client.KindMalformed:
		p.logger.Debug("skipping malformed progress response", slog.Any("error", err))

	case client.KindRejected:
		p.transient = 0
		p.errors++
		message := client.Message(err)
		if IsOverloaded(message) {
			p.listener.OnProgress(p.store.Progress(), msgBusy)
		} else {
			p.listener.OnProgress(p.store.Progress(), message)
		}
		p.logger.Warn("progress request rejected",
			slog.Int("errors", p.errors),
			slog.String("message", message),
		)
		p.checkBudget(err)

	case client.KindCancelled:
	}
}

func (p *Poller) succeeded(resp *response.ProgressResponse) {
	total := resp.Total
	if total <= 0 {
		total = p.total
	}
	snap := model.NewProgressSnapshot(resp.Generated, total)
	snap.IsReady = snap.IsReady || resp.IsReady
	held := p.store.SetProgress(snap)

	if held.Generated > 0 {
		p.stall.Stop()
	}

	message := resp.Message
	if message == "" {
		message = fmt.Sprintf("Generated %d of %d questions", held.Generated, held.Total)
	}
	p.listener.OnProgress(held, message)

	if held.Ready() {
		p.logger.Info("questions ready", slog.String("room_id", string(p.roomID)))
		p.Stop()
		p.listener.OnReady(held)
	}
}

func (p *Poller) checkBudget(err error) {
	if p.errors < p.config.MaxErrors {
		return
	}
	p.logger.Error("progress error budget exhausted", slog.Int("errors", p.errors))
	p.Stop()
	p.listener.OnFatal(&model.Failure{
		Component: "progress",
		Kind:      model.FailureApplication,
		Title:     "could not load questions",
		Message:   client.Message(err),
		Err:       err,
	})
}

func (p *Poller) checkStall(epoch int) {
	if epoch != p.epoch || p.store.Progress().Generated > 0 {
		return
	}
	p.logger.Error("question generation stalled",
		slog.String("room_id", string(p.roomID)),
		slog.Duration("after", p.config.StallTimeout),
	)
	p.Stop()
	p.listener.OnFatal(&model.Failure{
		Component: "progress",
		Kind:      model.FailureStall,
		Title:     "generation stalled",
		Message:   fmt.Sprintf("no questions were generated within %s", p.config.StallTimeout),
	})
}
