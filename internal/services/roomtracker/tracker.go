// Package roomtracker polls a room while it waits for players and for its
// questions, and reports membership changes and status transitions
package roomtracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
)

// Source fetches room state
type Source interface {
	GetRoom(ctx context.Context, roomID model.RoomID) (*response.RoomDetailResponse, error)
	GetProgress(ctx context.Context, roomID model.RoomID) (*response.ProgressResponse, error)
}

// Listener receives tracker events on the loop
type Listener interface {
	OnRoomUpdate(room model.Room, participants []model.Participant)
	OnStarting()
	OnCancelled()
	OnProgressHint(snapshot model.ProgressSnapshot)
	OnTimeout()
	OnFatal(failure *model.Failure)
}

// Config holds tracker settings
type Config struct {
	Interval time.Duration

	// ProgressEvery is how many cycles pass between redundant progress
	// checks while the room is starting
	ProgressEvery int

	// StartGrace is how long a guest that sees "starting" waits for the push
	// notification before starting on its own
	StartGrace time.Duration

	// Ceiling stops the tracker when no transition is seen for this long
	Ceiling time.Duration

	// MaxErrors is the number of consecutive failed polls that is fatal
	MaxErrors int
}

// DefaultConfig returns the default tracker settings
func DefaultConfig() Config {
	return Config{
		Interval:      2 * time.Second,
		ProgressEvery: 3,
		StartGrace:    3 * time.Second,
		Ceiling:       20 * time.Second,
		MaxErrors:     5,
	}
}

// Tracker polls one room at a time. All methods must be called on the loop.
type Tracker struct {
	loop     *loop.Loop
	source   Source
	store    *state.GameSessionState
	listener Listener
	config   Config
	logger   *slog.Logger

	running   bool
	roomID    model.RoomID
	isCreator bool
	epoch     int
	cycle     int
	errors    int

	inFlight         bool
	progressInFlight bool
	pushNotified     bool
	startEmitted     bool

	lastStatus  model.RoomStatus
	lastPlayers int

	ctx     context.Context
	cancel  context.CancelFunc
	tick    *loop.Timer
	grace   *loop.Timer
	ceiling *loop.Timer
}

// NewTracker creates a room lifecycle tracker
func NewTracker(
	l *loop.Loop,
	source Source,
	store *state.GameSessionState,
	listener Listener,
	config Config,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		loop:     l,
		source:   source,
		store:    store,
		listener: listener,
		config:   config,
		logger:   logger.With(slog.String("component", "roomtracker")),
	}
}

// Running reports whether the tracker is active
func (t *Tracker) Running() bool {
	return t.running
}

// Start begins tracking a room. The first poll happens immediately.
func (t *Tracker) Start(roomID model.RoomID, isCreator bool) {
	t.Stop()

	t.running = true
	t.roomID = roomID
	t.isCreator = isCreator
	t.cycle = 0
	t.errors = 0
	t.pushNotified = false
	t.startEmitted = false
	t.lastStatus = ""
	t.lastPlayers = -1
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.armCeiling()
	t.poll(t.epoch, true)

	t.logger.Info("room tracking started",
		slog.String("room_id", string(roomID)),
		slog.Bool("is_creator", isCreator),
	)
}

// Stop ends tracking and drops any in-flight response. Idempotent.
func (t *Tracker) Stop() {
	t.epoch++
	t.tick.Stop()
	t.tick = nil
	t.grace.Stop()
	t.grace = nil
	t.ceiling.Stop()
	t.ceiling = nil
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.inFlight = false
	t.progressInFlight = false
	if t.running {
		t.running = false
		t.logger.Debug("room tracking stopped", slog.String("room_id", string(t.roomID)))
	}
}

// PollNow polls immediately unless a poll is already in flight
func (t *Tracker) PollNow() {
	if !t.running {
		return
	}
	t.poll(t.epoch, false)
}

// NotifyStartPushed records that the push channel announced the start, so
// the guest grace fallback is not needed
func (t *Tracker) NotifyStartPushed() {
	t.pushNotified = true
	t.startEmitted = true
	t.grace.Stop()
	t.grace = nil
}

func (t *Tracker) armCeiling() {
	t.ceiling.Stop()
	epoch := t.epoch
	t.ceiling = t.loop.After(t.config.Ceiling, func() {
		if epoch != t.epoch {
			return
		}
		t.logger.Warn("room tracking hit its ceiling",
			slog.String("room_id", string(t.roomID)),
			slog.String("status", string(t.lastStatus)),
		)
		t.Stop()
		t.listener.OnTimeout()
	})
}

func (t *Tracker) poll(epoch int, scheduled bool) {
	if epoch != t.epoch {
		return
	}
	if scheduled {
		t.cycle++
		t.tick = t.loop.After(t.config.Interval, func() { t.poll(epoch, true) })

		if t.config.ProgressEvery > 0 && t.cycle%t.config.ProgressEvery == 0 &&
			t.lastStatus == model.RoomStatusStarting {
			t.pollProgress(epoch)
		}
	}

	if t.inFlight {
		return
	}
	t.inFlight = true

	roomID := t.roomID
	loop.Call(t.loop, t.ctx, func(ctx context.Context) (*response.RoomDetailResponse, error) {
		return t.source.GetRoom(ctx, roomID)
	}, func(resp *response.RoomDetailResponse, err error) {
		if epoch != t.epoch {
			return
		}
		t.inFlight = false
		t.handle(resp, err)
	})
}

func (t *Tracker) pollProgress(epoch int) {
	if t.progressInFlight {
		return
	}
	t.progressInFlight = true

	roomID := t.roomID
	loop.Call(t.loop, t.ctx, func(ctx context.Context) (*response.ProgressResponse, error) {
		return t.source.GetProgress(ctx, roomID)
	}, func(resp *response.ProgressResponse, err error) {
		if epoch != t.epoch {
			return
		}
		t.progressInFlight = false
		if err != nil {
			t.logger.Debug("redundant progress check failed", slog.Any("error", err))
			return
		}
		snap := model.NewProgressSnapshot(resp.Generated, resp.Total)
		snap.IsReady = snap.IsReady || resp.IsReady
		t.listener.OnProgressHint(snap)
	})
}

func (t *Tracker) handle(resp *response.RoomDetailResponse, err error) {
	if err != nil {
		if client.IsNotFound(err) {
			t.logger.Info("room no longer exists", slog.String("room_id", string(t.roomID)))
			t.cancelled()
			return
		}
		switch client.Classify(err) {
		case client.KindCancelled:
			return
		case client.KindMalformed:
			t.logger.Debug("skipping malformed room response", slog.Any("error", err))
			return
		}
		t.errors++
		t.logger.Warn("room poll failed", slog.Int("errors", t.errors), slog.Any("error", err))
		if t.errors >= t.config.MaxErrors {
			t.Stop()
			t.listener.OnFatal(&model.Failure{
				Component: "roomtracker",
				Kind:      model.FailureApplication,
				Title:     "lost track of the room",
				Message:   fmt.Sprintf("room could not be loaded: %s", client.Message(err)),
				Err:       err,
			})
		}
		return
	}
	t.errors = 0

	room := resp.Room
	if room.Status == model.RoomStatusCancelled || room.Status == model.RoomStatusCompleted {
		t.cancelled()
		return
	}

	changed := room.Status != t.lastStatus || len(resp.Participants) != t.lastPlayers
	if changed {
		if t.lastStatus != "" {
			t.logger.Debug("room changed",
				slog.String("status", string(room.Status)),
				slog.Int("players", len(resp.Participants)),
			)
		}
		t.lastStatus = room.Status
		t.lastPlayers = len(resp.Participants)
		t.store.SetRoom(room, resp.Participants)
		t.armCeiling()
		t.listener.OnRoomUpdate(room, resp.Participants)
	}

	switch room.Status {
	case model.RoomStatusStarting:
		t.sawStarting()
	case model.RoomStatusPlaying:
		// Missed the starting window entirely
		t.emitStarting()
	}
}

func (t *Tracker) sawStarting() {
	if t.isCreator || t.startEmitted || t.pushNotified || t.grace != nil {
		return
	}
	epoch := t.epoch
	t.grace = t.loop.After(t.config.StartGrace, func() {
		if epoch != t.epoch {
			return
		}
		t.grace = nil
		if t.pushNotified {
			return
		}
		t.logger.Info("no start notification received, starting from room status")
		t.emitStarting()
	})
}

func (t *Tracker) emitStarting() {
	if t.isCreator || t.startEmitted {
		return
	}
	t.startEmitted = true
	t.grace.Stop()
	t.grace = nil
	t.listener.OnStarting()
}

func (t *Tracker) cancelled() {
	t.store.ClearRoom()
	t.Stop()
	t.listener.OnCancelled()
}
