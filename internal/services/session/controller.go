// Package session drives one participant through a trivia room: creating or
// joining it, waiting for the start, playing the questions and waiting for
// everyone to finish before fetching results.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/triviasync/internal/api/request"
	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/barrier"
	"github.com/mcoot/triviasync/internal/services/connection"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/progress"
	"github.com/mcoot/triviasync/internal/services/roomtracker"
	"github.com/mcoot/triviasync/internal/services/scoring"
	"github.com/mcoot/triviasync/internal/services/state"
)

// API is the server surface the controller talks to
type API interface {
	CreateRoom(ctx context.Context, req request.CreateRoomRequest) (*model.Room, error)
	JoinRoom(ctx context.Context, roomID model.RoomID, playerName string) (*response.JoinRoomResponse, error)
	StartRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error
	GetRoom(ctx context.Context, roomID model.RoomID) (*response.RoomDetailResponse, error)
	GetProgress(ctx context.Context, roomID model.RoomID) (*response.ProgressResponse, error)
	SubmitAnswer(ctx context.Context, roomID model.RoomID, req request.SubmitAnswerRequest) (*model.Answer, error)
	MarkFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error
	RegisterFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID, playerName string) error
	GetFinishedPlayers(ctx context.Context, roomID model.RoomID) (*response.FinishedPlayersResponse, error)
	ForceComplete(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error
	GetResults(ctx context.Context, roomID model.RoomID) (*model.Results, error)
	LeaveRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID, reason model.LeaveReason) error
	ListWaitingRooms(ctx context.Context) ([]model.Room, error)
	DeleteMessage(ctx context.Context, roomID model.RoomID, messageID string, guestID model.GuestID) error
}

// Config holds the settings of the controller and every component it drives
type Config struct {
	Connection connection.Config
	Progress   progress.Config
	Tracker    roomtracker.Config
	Barrier    barrier.Config

	// TrackerRestarts bounds how often the room tracker is restarted after
	// its ceiling while the room is starting and generation is not advancing.
	// Restarts while waiting for players are unbounded.
	TrackerRestarts int

	// LeaveTimeout bounds the best-effort leave notification
	LeaveTimeout time.Duration
}

// DefaultConfig returns the default controller settings
func DefaultConfig() Config {
	return Config{
		Connection:      connection.DefaultConfig(),
		Progress:        progress.DefaultConfig(),
		Tracker:         roomtracker.DefaultConfig(),
		Barrier:         barrier.DefaultConfig(),
		TrackerRestarts: 3,
		LeaveTimeout:    5 * time.Second,
	}
}

// Controller is the per-room state machine. Its exported methods may be
// called from any goroutine; the work happens on the loop, which the caller
// must run.
type Controller struct {
	loop     *loop.Loop
	api      API
	store    *state.GameSessionState
	scorer   *scoring.Service
	observer Observer
	config   Config
	logger   *slog.Logger

	conn    *connection.Manager
	poller  *progress.Poller
	tracker *roomtracker.Tracker
	barrier *barrier.Barrier

	mu      sync.RWMutex
	state   State
	failure *model.Failure

	// Everything below is owned by the loop
	roomID         model.RoomID
	epoch          int
	ctx            context.Context
	cancel         context.CancelFunc
	questionTimer  *loop.Timer
	askedAt        time.Time
	answering      bool
	fetching       bool
	haveQuestions  bool
	resultsFetched bool
	restarts       int
	lastGenerated  int
	failedIn       State
	joinRequest    func()
}

// New creates a controller. A nil dialer means no push channel.
func New(
	l *loop.Loop,
	api API,
	dialer connection.Dialer,
	observer Observer,
	config Config,
	logger *slog.Logger,
) *Controller {
	if dialer == nil {
		dialer = connection.Unavailable
	}
	if observer == nil {
		observer = ObserverFunc(func(Event) {})
	}

	c := &Controller{
		loop:     l,
		api:      api,
		store:    state.New(),
		scorer:   scoring.New(),
		observer: observer,
		config:   config,
		logger:   logger.With(slog.String("component", "session")),
		state:    StateIdle,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	events := &componentEvents{c: c}
	c.conn = connection.NewManager(l, dialer, c.store, events, config.Connection, logger)
	c.poller = progress.NewPoller(l, api, c.store, events, config.Progress, logger)
	c.tracker = roomtracker.NewTracker(l, api, c.store, events, config.Tracker, logger)
	c.barrier = barrier.New(l, api, c.store, events, config.Barrier, logger)
	c.conn.OnMessage(c.handlePush)

	return c
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the lifecycle state together with the session record
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	st, failure := c.state, c.failure
	c.mu.RUnlock()
	return Snapshot{
		State:   st,
		Failure: failure,
		Session: c.store.Snapshot(),
	}
}

// CreateRoom creates a room with the local participant as its creator
func (c *Controller) CreateRoom(settings model.RoomSettings, playerName string) {
	c.loop.Post(func() {
		if !c.canBegin() {
			return
		}
		if playerName == "" {
			c.reject(model.ErrNameRequired)
			return
		}
		if err := settings.Validate(); err != nil {
			c.reject(err)
			return
		}
		c.joinRequest = func() { c.create(settings, playerName) }
		c.store.Reset()
		c.joinRequest()
	})
}

// JoinRoom joins an existing room as a guest
func (c *Controller) JoinRoom(roomID model.RoomID, playerName string) {
	c.loop.Post(func() {
		if !c.canBegin() {
			return
		}
		if playerName == "" {
			c.reject(model.ErrNameRequired)
			return
		}
		c.joinRequest = func() { c.join(roomID, playerName) }
		c.store.Reset()
		c.joinRequest()
	})
}

// StartGame asks the server to generate questions. Only the creator can
// start, and only while waiting.
func (c *Controller) StartGame() {
	c.loop.Post(func() {
		if c.state != StateWaiting {
			c.reject(model.ErrInvalidTransition)
			return
		}
		self := c.store.Self()
		if self == nil || !self.IsCreator {
			c.reject(model.ErrNotCreator)
			return
		}
		c.start()
	})
}

// Answer submits an answer to the question being asked
func (c *Controller) Answer(selected string) {
	c.loop.Post(func() {
		if c.state != StatePlaying {
			c.reject(model.ErrInvalidTransition)
			return
		}
		if c.answering || c.currentQuestion() == nil {
			c.reject(model.ErrNoQuestion)
			return
		}
		c.submit(selected, c.loop.Clock().Now().Sub(c.askedAt))
	})
}

// Leave leaves the room
func (c *Controller) Leave() {
	c.LeaveWithReason(model.LeaveExplicit)
}

// LeaveWithReason leaves the room, telling the server why. The notification
// is best effort and the controller is back to idle without waiting for it.
func (c *Controller) LeaveWithReason(reason model.LeaveReason) {
	c.loop.Post(func() {
		if c.state == StateIdle {
			return
		}
		if !c.state.IsTerminal() {
			c.notifyLeave(reason)
		}
		c.stopAll()
		c.store.ResetGame()
		c.setState(StateIdle)
	})
}

// Retry re-enters the state the session failed in
func (c *Controller) Retry() {
	c.loop.Post(func() {
		if c.state != StateError {
			c.reject(model.ErrNothingToRetry)
			return
		}
		c.logger.Info("retrying", slog.String("state", string(c.failedIn)))
		c.mu.Lock()
		c.failure = nil
		c.mu.Unlock()
		c.resume(c.failedIn)
	})
}

// Abandon gives up on a failed or running session and returns to idle. The
// local score is kept as partial results when nothing better is known.
func (c *Controller) Abandon() {
	c.loop.Post(func() {
		if c.state == StateIdle {
			return
		}
		if c.state.InRoom() || (c.state == StateError && c.failedIn.InRoom()) {
			c.notifyLeave(model.LeaveExplicit)
		}
		c.stopAll()
		if c.store.Results() == nil && c.store.AnsweredCount() > 0 {
			c.store.SetResults(c.localResults())
		}
		c.store.ResetGame()
		c.setState(StateIdle)
	})
}

// SendChat sends a chat message over the push channel
func (c *Controller) SendChat(text string) {
	c.loop.Post(func() {
		self := c.store.Self()
		if !c.state.InRoom() || self == nil {
			c.reject(model.ErrNoActiveRoom)
			return
		}
		payload := model.ChatPayload{
			MessageID:  uuid.NewString(),
			GuestID:    self.GuestID,
			PlayerName: self.PlayerName,
			Text:       text,
		}
		if !c.push(model.MessageSendMessage, payload) {
			c.reject(connection.ErrPushUnavailable)
		}
	})
}

// SendTyping announces that the local participant is or stopped typing.
// Dropped silently without a push channel.
func (c *Controller) SendTyping(typing bool) {
	c.loop.Post(func() {
		self := c.store.Self()
		if !c.state.InRoom() || self == nil {
			return
		}
		c.push(model.MessageTyping, model.TypingPayload{GuestID: self.GuestID, IsTyping: typing})
	})
}

// DeleteMessage deletes a chat message. The deletion is pushed when a
// channel is open and always also sent over HTTP, which is idempotent.
func (c *Controller) DeleteMessage(messageID string) {
	c.loop.Post(func() {
		self := c.store.Self()
		if !c.state.InRoom() || self == nil {
			c.reject(model.ErrNoActiveRoom)
			return
		}
		c.push(model.MessageDeleteMessage, model.ChatPayload{MessageID: messageID, GuestID: self.GuestID})

		roomID, guestID := c.roomID, self.GuestID
		c.loop.Go(c.ctx, func(ctx context.Context) func() {
			if err := c.api.DeleteMessage(ctx, roomID, messageID, guestID); err != nil {
				c.logger.Warn("could not delete message",
					slog.String("message_id", messageID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	})
}

// WaitingRooms lists rooms that can be joined
func (c *Controller) WaitingRooms(ctx context.Context) ([]model.Room, error) {
	rooms, err := c.api.ListWaitingRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// Close leaves any room as if the process were going away
func (c *Controller) Close() {
	c.LeaveWithReason(model.LeaveUnload)
}

// Lifecycle

func (c *Controller) canBegin() bool {
	if c.state != StateIdle && !c.state.IsTerminal() {
		c.reject(model.ErrInvalidTransition)
		return false
	}
	c.stopAll()
	c.roomID = ""
	c.haveQuestions = false
	c.resultsFetched = false
	return true
}

func (c *Controller) create(settings model.RoomSettings, playerName string) {
	c.setState(StateCreating)
	epoch := c.epoch
	req := request.CreateRoomRequest{
		Name:             settings.Name,
		Difficulty:       settings.Difficulty,
		MaxPlayers:       settings.MaxPlayers,
		QuestionsPerGame: settings.QuestionsPerGame,
		TimePerQuestion:  settings.TimePerQuestion,
		CreatorName:      playerName,
	}

	loop.Call(c.loop, c.ctx, func(ctx context.Context) (*model.Room, error) {
		return c.api.CreateRoom(ctx, req)
	}, func(room *model.Room, err error) {
		if epoch != c.epoch {
			return
		}
		if err != nil {
			c.fail(c.requestFailure("could not create room", err))
			return
		}

		creator := model.NewCreator(playerName, room.CreatedAt)
		c.roomID = room.ID
		c.store.SetSelf(state.Self{GuestID: creator.GuestID, PlayerName: playerName, IsCreator: true})
		c.store.SetRoom(*room, []model.Participant{creator})
		c.logger.Info("room created", slog.String("room_id", string(room.ID)))
		c.enterWaiting()
	})
}

func (c *Controller) join(roomID model.RoomID, playerName string) {
	c.setState(StateCreating)
	epoch := c.epoch

	loop.Call(c.loop, c.ctx, func(ctx context.Context) (*response.JoinRoomResponse, error) {
		return c.api.JoinRoom(ctx, roomID, playerName)
	}, func(resp *response.JoinRoomResponse, err error) {
		if epoch != c.epoch {
			return
		}
		if err != nil {
			c.fail(c.requestFailure("could not join room", err))
			return
		}
		if err := model.ValidateRoster(resp.Participants); err != nil {
			c.fail(&model.Failure{
				Component: "session",
				Kind:      model.FailureApplication,
				Title:     "could not join room",
				Message:   "the server returned an inconsistent roster",
				Err:       err,
			})
			return
		}

		c.roomID = resp.Room.ID
		c.store.SetSelf(state.Self{
			GuestID:    resp.Participant.GuestID,
			PlayerName: resp.Participant.PlayerName,
			IsCreator:  resp.Participant.IsCreator,
		})
		c.store.SetRoom(resp.Room, resp.Participants)
		c.logger.Info("joined room",
			slog.String("room_id", string(resp.Room.ID)),
			slog.Int("guest_id", int(resp.Participant.GuestID)),
		)

		switch resp.Room.Status {
		case model.RoomStatusWaiting:
			c.enterWaiting()
		case model.RoomStatusStarting:
			c.enterWaiting()
			c.enterStarting()
		default:
			c.fail(&model.Failure{
				Component: "session",
				Kind:      model.FailureApplication,
				Title:     "could not join room",
				Message:   fmt.Sprintf("room is already %s", resp.Room.Status),
				Err:       model.ErrRoomNotJoinable,
			})
		}
	})
}

func (c *Controller) enterWaiting() {
	self := c.store.Self()
	c.setState(StateWaiting)
	c.emitRoom()
	c.tracker.Start(c.roomID, self.IsCreator)
	c.conn.Connect(c.roomID, self.GuestID)
}

func (c *Controller) start() {
	epoch := c.epoch
	roomID, guestID := c.roomID, c.store.Self().GuestID

	c.loop.Go(c.ctx, func(ctx context.Context) func() {
		err := c.api.StartRoom(ctx, roomID, guestID)
		return func() {
			if epoch != c.epoch || c.state != StateWaiting {
				return
			}
			if err != nil {
				c.fail(c.requestFailure("could not start the game", err))
				return
			}
			c.store.SetRoomStatus(model.RoomStatusStarting)
			c.enterStarting()
		}
	})
}

func (c *Controller) enterStarting() {
	if c.state == StateStarting {
		return
	}
	room := c.store.Room()
	if room == nil {
		return
	}

	c.setState(StateStarting)
	c.restarts = 0
	c.lastGenerated = c.store.Progress().Generated
	c.poller.Start(c.roomID, room.QuestionsPerGame)
	if !c.tracker.Running() {
		c.tracker.Start(c.roomID, c.store.Self().IsCreator)
	}
}

// questionsReady fetches the finalized question set, exactly once per game
func (c *Controller) questionsReady() {
	if c.state != StateStarting || c.haveQuestions || c.fetching {
		return
	}
	c.fetching = true
	epoch := c.epoch
	roomID := c.roomID

	loop.Call(c.loop, c.ctx, func(ctx context.Context) (*response.RoomDetailResponse, error) {
		return c.api.GetRoom(ctx, roomID)
	}, func(resp *response.RoomDetailResponse, err error) {
		if epoch != c.epoch {
			return
		}
		c.fetching = false
		if err != nil {
			c.fail(c.requestFailure("could not load questions", err))
			return
		}
		if err := checkQuestions(resp); err != nil {
			c.fail(&model.Failure{
				Component: "session",
				Kind:      model.FailureApplication,
				Title:     "could not load questions",
				Message:   err.Error(),
				Err:       err,
			})
			return
		}

		c.haveQuestions = true
		c.tracker.Stop()
		c.poller.Stop()
		c.store.SetRoom(resp.Room, resp.Participants)
		c.store.SetRoomStatus(model.RoomStatusPlaying)
		c.store.SetQuestions(resp.Questions)
		c.logger.Info("questions loaded", slog.Int("count", len(resp.Questions)))

		c.setState(StatePlaying)
		c.ask()
	})
}

func checkQuestions(resp *response.RoomDetailResponse) error {
	if len(resp.Questions) == 0 || len(resp.Questions) < resp.Room.QuestionsPerGame {
		return fmt.Errorf("%w: got %d of %d", model.ErrQuestionsIncomplete, len(resp.Questions), resp.Room.QuestionsPerGame)
	}
	for i := range resp.Questions {
		if err := resp.Questions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Questions

func (c *Controller) currentQuestion() *model.Question {
	questions := c.store.Questions()
	i := c.store.CurrentIndex()
	if i >= len(questions) {
		return nil
	}
	return &questions[i]
}

func (c *Controller) questionTimeout() time.Duration {
	if room := c.store.Room(); room != nil {
		return room.QuestionTimeout()
	}
	return time.Duration(model.DefaultRoomSettings().TimePerQuestion) * time.Second
}

func (c *Controller) ask() {
	q := c.currentQuestion()
	if q == nil {
		c.finish()
		return
	}

	c.answering = false
	c.askedAt = c.loop.Clock().Now()
	limit := c.questionTimeout()
	epoch, index := c.epoch, c.store.CurrentIndex()
	c.questionTimer.Stop()
	c.questionTimer = c.loop.After(limit, func() {
		if epoch != c.epoch || index != c.store.CurrentIndex() || c.answering {
			return
		}
		c.logger.Debug("question timed out", slog.Int("question", q.QuestionNumber))
		c.submit("", limit)
	})

	c.emit(Event{Kind: EventQuestion, Question: q})
}

func (c *Controller) submit(selected string, taken time.Duration) {
	q := c.currentQuestion()
	self := c.store.Self()
	limit := c.questionTimeout()
	if taken > limit {
		taken = limit
	}

	c.answering = true
	c.questionTimer.Stop()
	c.questionTimer = nil

	local := c.scorer.Score(c.roomID, self.GuestID, q, selected, taken, limit)
	req := request.SubmitAnswerRequest{
		QuestionID:       q.ID,
		GuestID:          self.GuestID,
		SelectedAnswer:   selected,
		TimeTakenSeconds: taken.Seconds(),
	}
	epoch := c.epoch
	roomID := c.roomID

	loop.Call(c.loop, c.ctx, func(ctx context.Context) (*model.Answer, error) {
		return c.api.SubmitAnswer(ctx, roomID, req)
	}, func(answer *model.Answer, err error) {
		if epoch != c.epoch {
			return
		}
		recorded := local
		if err != nil {
			c.logger.Warn("could not submit answer, scoring locally",
				slog.String("question_id", string(q.ID)),
				slog.Any("error", err),
			)
		} else if answer != nil {
			recorded = *answer
		}
		c.store.RecordAnswer(recorded)
		c.emit(Event{Kind: EventAnswered, Question: q, Answer: &recorded})

		c.answering = false
		c.store.AdvanceQuestion()
		c.ask()
	})
}

// finish runs once the last question is answered
func (c *Controller) finish() {
	room := c.store.Room()
	if room != nil && room.IsSolo() {
		c.logger.Info("solo room, skipping the completion barrier")
		c.fetchResults()
		return
	}

	self := c.store.Self()
	c.setState(StateAwaitingCompletion)
	c.barrier.Begin(c.roomID, self.GuestID, self.PlayerName, len(c.store.Participants()))
}

// fetchResults fetches the final leaderboard, exactly once per game
func (c *Controller) fetchResults() {
	if c.resultsFetched {
		return
	}
	c.resultsFetched = true
	epoch := c.epoch
	roomID := c.roomID

	loop.Call(c.loop, c.ctx, func(ctx context.Context) (*model.Results, error) {
		return c.api.GetResults(ctx, roomID)
	}, func(results *model.Results, err error) {
		if epoch != c.epoch {
			return
		}
		var final model.Results
		if err != nil || results == nil {
			c.logger.Warn("could not fetch results, using local scores", slog.Any("error", err))
			final = c.localResults()
		} else {
			final = *results
		}

		c.barrier.Stop()
		c.conn.Disconnect()
		c.store.SetResults(final)
		c.store.SetRoomStatus(model.RoomStatusCompleted)
		c.setState(StateCompleted)
		c.emit(Event{Kind: EventResults, Results: &final})
	})
}

// localResults ranks the last known roster with the local score applied
func (c *Controller) localResults() model.Results {
	participants := c.store.Participants()
	score, correct := c.store.Score()
	if self := c.store.Self(); self != nil {
		if p := model.FindParticipant(participants, self.GuestID); p != nil {
			p.Score = score
			p.CorrectAnswers = correct
		} else {
			participants = append(participants, model.Participant{
				GuestID:        self.GuestID,
				PlayerName:     self.PlayerName,
				IsCreator:      self.IsCreator,
				Score:          score,
				CorrectAnswers: correct,
			})
		}
	}

	results := c.scorer.Results(c.roomID, participants, model.NewFinishRegistration(c.store.Finished()...))
	results.Partial = true
	return results
}

// Failure handling

func (c *Controller) requestFailure(title string, err error) *model.Failure {
	kind := model.FailureApplication
	if client.Classify(err) == client.KindTransient {
		kind = model.FailureTransient
	}
	return &model.Failure{
		Component: "session",
		Kind:      kind,
		Title:     title,
		Message:   client.Message(err),
		Err:       err,
	}
}

func (c *Controller) fail(f *model.Failure) {
	if c.state == StateError || c.state == StateIdle || c.state.IsTerminal() {
		return
	}

	c.logger.Error("session failed",
		slog.String("state", string(c.state)),
		slog.String("component", f.Component),
		slog.String("kind", string(f.Kind)),
		slog.String("title", f.Title),
		slog.Any("error", f.Err),
	)
	c.failedIn = c.state
	c.stopAll()

	c.mu.Lock()
	c.failure = f
	c.mu.Unlock()
	c.setState(StateError)
	c.emit(Event{Kind: EventFailure, Failure: f, Message: f.Message})
}

// resume re-enters a state after a failure
func (c *Controller) resume(s State) {
	self := c.store.Self()
	if s != StateCreating && self == nil {
		s = StateCreating
	}

	switch s {
	case StateCreating:
		if c.joinRequest == nil {
			c.setState(StateIdle)
			return
		}
		c.joinRequest()
	case StateWaiting:
		c.enterWaiting()
	case StateStarting:
		c.conn.Connect(c.roomID, self.GuestID)
		c.enterStarting()
	case StatePlaying:
		c.conn.Connect(c.roomID, self.GuestID)
		c.setState(StatePlaying)
		c.ask()
	case StateAwaitingCompletion:
		c.conn.Connect(c.roomID, self.GuestID)
		c.setState(StateAwaitingCompletion)
		c.barrier.Begin(c.roomID, self.GuestID, self.PlayerName, len(c.store.Participants()))
	default:
		c.setState(StateIdle)
	}
}

func (c *Controller) cancelled(reason string) {
	if c.state.IsTerminal() || c.state == StateIdle {
		return
	}
	c.logger.Info("room cancelled", slog.String("room_id", string(c.roomID)), slog.String("reason", reason))
	c.stopAll()
	c.store.ClearRoom()
	c.setState(StateCancelled)
}

// stopAll stops every component timer and drops in-flight responses
func (c *Controller) stopAll() {
	c.epoch++
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.questionTimer.Stop()
	c.questionTimer = nil
	c.tracker.Stop()
	c.poller.Stop()
	c.barrier.Stop()
	c.conn.Disconnect()
	c.answering = false
	c.fetching = false
}

func (c *Controller) notifyLeave(reason model.LeaveReason) {
	self := c.store.Self()
	if c.roomID == "" || self == nil {
		return
	}
	roomID, guestID := c.roomID, self.GuestID
	ctx, cancel := context.WithTimeout(context.Background(), c.config.LeaveTimeout)

	c.loop.Go(ctx, func(ctx context.Context) func() {
		defer cancel()
		if err := c.api.LeaveRoom(ctx, roomID, guestID, reason); err != nil {
			c.logger.Warn("leave notification failed",
				slog.String("room_id", string(roomID)),
				slog.Any("error", err),
			)
		}
		return nil
	})
}

// Push channel

func (c *Controller) push(t model.MessageType, payload any) bool {
	msg, err := model.NewPushMessage(t, c.roomID, payload, c.loop.Clock().Now())
	if err != nil {
		c.logger.Error("failed to encode push message", slog.Any("error", err))
		return false
	}
	if self := c.store.Self(); self != nil {
		guestID := self.GuestID
		msg.GuestID = &guestID
	}
	return c.conn.Send(msg)
}

func (c *Controller) handlePush(msg model.PushMessage) {
	if msg.Type == model.MessagePing {
		return
	}
	if msg.RoomID != "" && msg.RoomID != c.roomID {
		return
	}

	if msg.Type == model.MessageUpdate {
		var update model.UpdatePayload
		if err := msg.Decode(&update); err != nil {
			c.logger.Warn("malformed update message", slog.Any("error", err))
		}
		switch update.Status {
		case model.RoomStatusStarting, model.RoomStatusPlaying:
			if c.state == StateWaiting {
				c.tracker.NotifyStartPushed()
				c.store.SetRoomStatus(model.RoomStatusStarting)
				c.enterStarting()
			}
		case model.RoomStatusCancelled:
			c.cancelled("cancellation pushed")
			return
		}
	}
	if msg.Type.IsRefresh() {
		c.tracker.PollNow()
	}

	pushed := msg
	c.emit(Event{Kind: EventPush, Push: &pushed})
}

// Events

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("state changed", slog.String("from", string(prev)), slog.String("to", string(s)))
	}
	c.emit(Event{Kind: EventStateChanged})
}

func (c *Controller) reject(err error) {
	c.logger.Debug("operation rejected", slog.String("state", string(c.state)), slog.Any("error", err))
	c.emit(Event{Kind: EventRejected, Err: err, Message: err.Error()})
}

func (c *Controller) emitRoom() {
	c.emit(Event{Kind: EventRoomUpdated, Room: c.store.Room(), Participants: c.store.Participants()})
}

func (c *Controller) emit(ev Event) {
	ev.State = c.state
	c.observer.OnEvent(ev)
}
