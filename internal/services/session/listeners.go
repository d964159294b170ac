package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/barrier"
	"github.com/mcoot/triviasync/internal/services/connection"
	"github.com/mcoot/triviasync/internal/services/progress"
	"github.com/mcoot/triviasync/internal/services/roomtracker"
)

// componentEvents routes component callbacks into the controller. Every
// method runs on the loop.
type componentEvents struct {
	c *Controller
}

func (e *componentEvents) OnConnectionState(s model.ConnectionState) {
	e.c.emit(Event{Kind: EventConnection, Connection: s})
}

func (e *componentEvents) OnReconnectScheduled(attempt int, delay time.Duration) {
	e.c.emit(Event{
		Kind:       EventConnection,
		Connection: e.c.conn.State(),
		Message:    fmt.Sprintf("reconnecting in %s (attempt %d)", delay, attempt),
	})
}

func (e *componentEvents) OnConnectionLost(f *model.Failure) {
	e.c.fail(f)
}

func (e *componentEvents) OnProgress(snap model.ProgressSnapshot, message string) {
	c := e.c
	if snap.Generated > c.lastGenerated {
		c.lastGenerated = snap.Generated
		c.restarts = 0
	}
	c.emit(Event{Kind: EventProgress, Progress: snap, Message: message})
}

func (e *componentEvents) OnReady(snap model.ProgressSnapshot) {
	e.c.emit(Event{Kind: EventProgress, Progress: snap})
	e.c.questionsReady()
}

func (e *componentEvents) OnFatal(f *model.Failure) {
	e.c.fail(f)
}

func (e *componentEvents) OnRoomUpdate(room model.Room, participants []model.Participant) {
	e.c.emit(Event{Kind: EventRoomUpdated, Room: &room, Participants: participants})
}

func (e *componentEvents) OnStarting() {
	if e.c.state == StateWaiting {
		e.c.enterStarting()
	}
}

func (e *componentEvents) OnCancelled() {
	e.c.cancelled("room closed")
}

func (e *componentEvents) OnProgressHint(snap model.ProgressSnapshot) {
	c := e.c
	held := c.store.SetProgress(snap)
	e.OnProgress(held, "")
	if held.Ready() {
		c.questionsReady()
	}
}

func (e *componentEvents) OnTimeout() {
	c := e.c
	switch c.state {
	case StateWaiting:
		c.logger.Debug("restarting room tracking while waiting for players")
		c.tracker.Start(c.roomID, c.store.Self().IsCreator)
	case StateStarting:
		c.restarts++
		if c.restarts > c.config.TrackerRestarts {
			c.fail(&model.Failure{
				Component: "roomtracker",
				Kind:      model.FailureStall,
				Title:     "the game did not start",
				Message:   fmt.Sprintf("no progress after %d checks", c.restarts),
			})
			return
		}
		c.tracker.Start(c.roomID, c.store.Self().IsCreator)
	}
}

func (e *componentEvents) OnQuorumProgress(finished, total int) {
	e.c.emit(Event{Kind: EventQuorum, Finished: finished, Total: total})
}

func (e *componentEvents) OnAllFinished(outcome barrier.Outcome) {
	c := e.c
	if c.state != StateAwaitingCompletion {
		return
	}
	c.logger.Info("completion barrier opened", slog.String("outcome", outcome.String()))
	c.emit(Event{
		Kind:     EventQuorum,
		Finished: len(outcome.Finished),
		Total:    outcome.Total,
		Message:  outcome.String(),
	})
	c.fetchResults()
}

func (e *componentEvents) OnStalled() {
	e.c.emit(Event{Kind: EventQuorum, Message: "some players have not finished, wrapping up"})
}

var _ interface {
	connection.Listener
	progress.Listener
	roomtracker.Listener
	barrier.Listener
} = (*componentEvents)(nil)
