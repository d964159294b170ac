package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/session"
)

// Outcome is how a bot's session ended
type Outcome struct {
	Name string
	// State is completed, cancelled, or idle when the bot gave up
	State    session.State
	Results  *model.Results
	Failure  *model.Failure
	Score    int
	Answered int
}

// Bot is an automated participant. It observes its own session controller
// and answers every question using its strategy.
type Bot struct {
	name       string
	strategy   Strategy
	loop       *loop.Loop
	controller *session.Controller
	maxRetries int
	logger     *slog.Logger

	// Owned by the loop
	begun     bool
	autoStart bool
	started   bool
	room      *model.Room
	pending   *loop.Timer
	retries   int
	failure   *model.Failure
	results   *model.Results
	score     int
	answered  int

	waitingOnce sync.Once
	waiting     chan struct{}
	doneOnce    sync.Once
	done        chan struct{}

	mu      sync.Mutex
	roomID  model.RoomID
	outcome Outcome
}

// Name returns the bot's player name
func (b *Bot) Name() string {
	return b.name
}

// Loop returns the loop the bot's session runs on
func (b *Bot) Loop() *loop.Loop {
	return b.loop
}

// Controller returns the bot's session controller
func (b *Bot) Controller() *session.Controller {
	return b.controller
}

// Create has the bot create a room and start the game once every seat is
// taken
func (b *Bot) Create(settings model.RoomSettings) {
	b.loop.Post(func() { b.autoStart = true })
	b.controller.CreateRoom(settings, b.name)
}

// Join has the bot join an existing room
func (b *Bot) Join(roomID model.RoomID) {
	b.controller.JoinRoom(roomID, b.name)
}

// Run runs the bot's loop until the session ends or ctx is done
func (b *Bot) Run(ctx context.Context) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = b.loop.Run(runCtx) }()

	select {
	case <-b.done:
		return b.Outcome(), nil
	case <-ctx.Done():
		return b.Outcome(), ctx.Err()
	}
}

// WaitRoom blocks until the bot is in a room and returns its id
func (b *Bot) WaitRoom(ctx context.Context) (model.RoomID, error) {
	select {
	case <-b.waiting:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.roomID, nil
	case <-b.done:
		o := b.Outcome()
		if o.Failure != nil {
			return "", o.Failure
		}
		return "", model.ErrNoActiveRoom
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed once the bot's session has ended
func (b *Bot) Done() <-chan struct{} {
	return b.done
}

// Outcome returns how the session ended. It is the zero Outcome until Done
// is closed.
func (b *Bot) Outcome() Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outcome
}

// OnEvent reacts to the bot's own session events
func (b *Bot) OnEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventStateChanged:
		b.onState(ev.State)
	case session.EventRoomUpdated:
		if ev.Room != nil {
			room := *ev.Room
			b.room = &room
		}
		b.maybeStart(ev.State, len(ev.Participants))
	case session.EventQuestion:
		b.answer(ev.Question)
	case session.EventAnswered:
		b.answered++
		if ev.Answer != nil {
			b.score += ev.Answer.PointsAwarded
		}
	case session.EventResults:
		b.results = ev.Results
	case session.EventFailure:
		b.onFailure(ev.Failure)
	}
}

func (b *Bot) onState(s session.State) {
	switch s {
	case session.StateCreating:
		b.begun = true
	case session.StateWaiting:
		b.started = false
		snap := b.controller.Snapshot()
		if snap.Session.Room != nil {
			b.mu.Lock()
			b.roomID = snap.Session.Room.ID
			b.mu.Unlock()
		}
		b.waitingOnce.Do(func() { close(b.waiting) })
	case session.StateCompleted, session.StateCancelled:
		b.end(s)
	case session.StateIdle:
		if b.begun {
			b.end(s)
		}
	}
}

func (b *Bot) maybeStart(s session.State, participants int) {
	if !b.autoStart || b.started || s != session.StateWaiting || b.room == nil {
		return
	}
	if participants < b.room.MaxPlayers {
		return
	}
	b.started = true
	b.logger.Info("room full, starting", slog.Int("players", participants))
	b.controller.StartGame()
}

func (b *Bot) answer(q *model.Question) {
	if q == nil {
		return
	}
	b.pending.Stop()

	limit := time.Duration(model.DefaultRoomSettings().TimePerQuestion) * time.Second
	if b.room != nil {
		limit = b.room.QuestionTimeout()
	}
	delay := b.strategy.ThinkTime(q, limit)
	if delay >= limit {
		delay = limit / 2
	}
	choice := b.strategy.ChooseAnswer(q)

	b.pending = b.loop.After(delay, func() {
		b.logger.Debug("answering",
			slog.Int("question", q.QuestionNumber),
			slog.Duration("think", delay),
		)
		b.controller.Answer(choice)
	})
}

func (b *Bot) onFailure(f *model.Failure) {
	b.failure = f
	b.pending.Stop()
	if b.retries < b.maxRetries {
		b.retries++
		b.logger.Warn("session failed, retrying",
			slog.Int("attempt", b.retries),
			slog.String("title", f.Title),
		)
		b.controller.Retry()
		return
	}
	b.logger.Warn("session failed, giving up", slog.String("title", f.Title))
	b.controller.Abandon()
}

func (b *Bot) end(s session.State) {
	b.pending.Stop()
	results := b.results
	if results == nil {
		results = b.controller.Snapshot().Session.Results
	}

	b.mu.Lock()
	b.outcome = Outcome{
		Name:     b.name,
		State:    s,
		Results:  results,
		Failure:  b.failure,
		Score:    b.score,
		Answered: b.answered,
	}
	b.mu.Unlock()

	b.doneOnce.Do(func() { close(b.done) })
}
