// Package connection manages the push channel to the server: heartbeat
// watchdog, exponential backoff reconnect, and fallback to pure polling.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
)

// Mode says whether a push channel is in use at all
type Mode int

const (
	ModePush    Mode = iota // Push channel in use (possibly reconnecting)
	ModePolling             // No push channel in this environment
)

func (m Mode) String() string {
	if m == ModePolling {
		return "polling"
	}
	return "push"
}

// Config holds connection manager settings
type Config struct {
	// HeartbeatTimeout is how long the channel may stay silent before it is
	// declared stale
	HeartbeatTimeout time.Duration

	// BaseDelay and MaxDelay bound the reconnect backoff
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxAttempts is the number of reconnects tried before giving up
	MaxAttempts int

	// SendQueue bounds outbound messages waiting behind an in-flight write
	SendQueue int
}

// DefaultConfig returns the default connection settings
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: 45 * time.Second,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		MaxAttempts:      5,
		SendQueue:        64,
	}
}

// Listener receives connection lifecycle events on the loop
type Listener interface {
	OnConnectionState(state model.ConnectionState)
	OnReconnectScheduled(attempt int, delay time.Duration)
	OnConnectionLost(failure *model.Failure)
}

// Manager owns the single push channel of a session. All methods must be
// called on the loop.
type Manager struct {
	loop     *loop.Loop
	dialer   Dialer
	store    *state.GameSessionState
	listener Listener
	config   Config
	logger   *slog.Logger

	handlers []func(model.PushMessage)
	backoff  *backoff.ExponentialBackOff

	mode    Mode
	roomID  model.RoomID
	guestID model.GuestID
	wanted  bool
	epoch   int

	channel    Channel
	ctx        context.Context
	cancel     context.CancelFunc
	dialCancel context.CancelFunc
	heartbeat  *loop.Timer
	reconnect  *loop.Timer
	status     model.ConnectionState

	// outbox holds messages behind the single in-flight write, in send order
	outbox  []model.PushMessage
	writing bool
}

// NewManager creates a connection manager
func NewManager(
	l *loop.Loop,
	dialer Dialer,
	store *state.GameSessionState,
	listener Listener,
	config Config,
	logger *slog.Logger,
) *Manager {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     config.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         config.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	if listener == nil {
		listener = NopListener{}
	}

	return &Manager{
		loop:     l,
		dialer:   dialer,
		store:    store,
		listener: listener,
		config:   config,
		logger:   logger.With(slog.String("component", "connection")),
		backoff:  b,
	}
}

// OnMessage registers a handler for inbound messages
func (m *Manager) OnMessage(handler func(model.PushMessage)) {
	m.handlers = append(m.handlers, handler)
}

// Mode returns whether the manager uses a push channel
func (m *Manager) Mode() Mode {
	return m.mode
}

// IsConnected reports whether a push channel is open
func (m *Manager) IsConnected() bool {
	return m.channel != nil
}

// State returns a copy of the connection state
func (m *Manager) State() model.ConnectionState {
	return m.status
}

// Connect opens the push channel for a room. An already-open channel is
// closed first so at most one is ever open.
func (m *Manager) Connect(roomID model.RoomID, guestID model.GuestID) {
	if m.mode == ModePolling {
		m.logger.Debug("push unavailable, staying in polling mode")
		return
	}

	m.teardown()
	m.roomID = roomID
	m.guestID = guestID
	m.wanted = true
	m.status.ReconnectAttempts = 0
	m.backoff.Reset()
	m.dial()
}

// Disconnect closes the channel and stops reconnecting. Idempotent.
func (m *Manager) Disconnect() {
	if !m.wanted && m.channel == nil {
		return
	}
	m.wanted = false
	m.teardown()
	m.status.ReconnectAttempts = 0
	m.backoff.Reset()
	m.publish()
	m.logger.Debug("disconnected", slog.String("room_id", string(m.roomID)))
}

// Send queues a message for the open channel. Writes go out one at a time in
// the order Send was called. When disconnected, or when the queue is full,
// the message is dropped and Send returns false.
func (m *Manager) Send(msg model.PushMessage) bool {
	if m.channel == nil {
		m.logger.Debug("dropping message while disconnected", slog.String("type", string(msg.Type)))
		return false
	}
	if m.config.SendQueue > 0 && len(m.outbox) >= m.config.SendQueue {
		m.logger.Warn("dropping message, send queue full", slog.String("type", string(msg.Type)))
		return false
	}

	m.outbox = append(m.outbox, msg)
	if !m.writing {
		m.writeNext()
	}
	return true
}

// writeNext starts the write of the oldest queued message
func (m *Manager) writeNext() {
	if len(m.outbox) == 0 || m.channel == nil {
		m.writing = false
		return
	}

	msg := m.outbox[0]
	m.outbox = m.outbox[1:]
	m.writing = true

	ch, epoch := m.channel, m.epoch
	m.loop.Go(m.ctx, func(ctx context.Context) func() {
		err := ch.Send(ctx, msg)
		return func() {
			if err != nil {
				m.logger.Warn("failed to send message",
					slog.String("type", string(msg.Type)),
					slog.Any("error", err),
				)
			}
			if epoch != m.epoch {
				return
			}
			m.writeNext()
		}
	})
}

// teardown invalidates the current channel and all pending timers
func (m *Manager) teardown() {
	m.epoch++
	m.heartbeat.Stop()
	m.heartbeat = nil
	m.reconnect.Stop()
	m.reconnect = nil
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.ctx = nil
	m.outbox = nil
	m.writing = false
	if m.channel != nil {
		m.closeChannel(m.channel)
		m.channel = nil
		m.status.IsConnected = false
	}
}

func (m *Manager) closeChannel(ch Channel) {
	m.loop.Go(context.Background(), func(context.Context) func() {
		if err := ch.Close(); err != nil {
			m.logger.Debug("error closing push channel", slog.Any("error", err))
		}
		return nil
	})
}

func (m *Manager) dial() {
	epoch := m.epoch
	roomID, guestID := m.roomID, m.guestID
	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel

	loop.Call(m.loop, ctx, func(ctx context.Context) (Channel, error) {
		return m.dialer.Dial(ctx, roomID, guestID)
	}, func(ch Channel, err error) {
		if epoch != m.epoch || !m.wanted {
			if ch != nil {
				m.closeChannel(ch)
			}
			return
		}
		m.dialCancel = nil
		cancel()

		if errors.Is(err, ErrPushUnavailable) {
			m.mode = ModePolling
			m.wanted = false
			m.logger.Info("push channel unavailable, using polling only")
			m.publish()
			return
		}
		if err != nil {
			m.logger.Warn("failed to open push channel", slog.Any("error", err))
			m.scheduleReconnect()
			return
		}

		m.opened(ch)
	})
}

func (m *Manager) opened(ch Channel) {
	ctx, cancel := context.WithCancel(context.Background())
	m.channel = ch
	m.ctx = ctx
	m.cancel = cancel
	m.status = model.ConnectionState{
		IsConnected:       true,
		ReconnectAttempts: 0,
		LastMessageAt:     m.loop.Clock().Now(),
	}
	m.backoff.Reset()
	m.armHeartbeat()
	m.publish()

	m.logger.Info("push channel open", slog.String("room_id", string(m.roomID)))

	epoch := m.epoch
	go m.read(ctx, epoch, ch)
}

// read pumps inbound messages onto the loop until the channel fails
func (m *Manager) read(ctx context.Context, epoch int, ch Channel) {
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			m.loop.Post(func() { m.closed(epoch, err) })
			return
		}
		m.loop.Post(func() { m.received(epoch, msg) })
	}
}

func (m *Manager) received(epoch int, msg model.PushMessage) {
	if epoch != m.epoch {
		return
	}
	m.status.LastMessageAt = m.loop.Clock().Now()
	m.armHeartbeat()
	if m.store != nil {
		m.store.SetConnection(m.status)
	}

	for _, h := range m.handlers {
		h(msg)
	}
}

func (m *Manager) closed(epoch int, err error) {
	if epoch != m.epoch {
		return
	}

	if errors.Is(err, ErrNormalClosure) {
		m.logger.Info("push channel closed by server")
		m.wanted = false
		m.teardown()
		m.publish()
		return
	}

	m.logger.Warn("push channel closed unexpectedly", slog.Any("error", err))
	m.teardown()
	m.publish()
	m.scheduleReconnect()
}

func (m *Manager) armHeartbeat() {
	m.heartbeat.Stop()
	epoch := m.epoch
	m.heartbeat = m.loop.After(m.config.HeartbeatTimeout, func() {
		if epoch != m.epoch {
			return
		}
		m.logger.Warn("push channel stale",
			slog.Duration("silent_for", m.loop.Clock().Now().Sub(m.status.LastMessageAt)),
		)
		m.teardown()
		m.publish()
		m.scheduleReconnect()
	})
}

func (m *Manager) scheduleReconnect() {
	if !m.wanted {
		return
	}

	m.status.ReconnectAttempts++
	attempt := m.status.ReconnectAttempts
	if attempt > m.config.MaxAttempts {
		m.wanted = false
		m.publish()
		m.logger.Error("giving up on push channel", slog.Int("attempts", attempt-1))
		m.listener.OnConnectionLost(&model.Failure{
			Component: "connection",
			Kind:      model.FailureConnection,
			Title:     "connection lost",
			Message:   fmt.Sprintf("could not reconnect after %d attempts", attempt-1),
		})
		return
	}

	delay := m.backoff.NextBackOff()
	m.publish()
	m.logger.Info("reconnect scheduled",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
	m.listener.OnReconnectScheduled(attempt, delay)

	epoch := m.epoch
	m.reconnect = m.loop.After(delay, func() {
		if epoch != m.epoch {
			return
		}
		m.reconnect = nil
		m.dial()
	})
}

func (m *Manager) publish() {
	m.status.IsConnected = m.channel != nil
	if m.store != nil {
		m.store.SetConnection(m.status)
	}
	m.listener.OnConnectionState(m.status)
}

// NopListener ignores every connection event
type NopListener struct{}

func (NopListener) OnConnectionState(model.ConnectionState) {}
func (NopListener) OnReconnectScheduled(int, time.Duration) {}
func (NopListener) OnConnectionLost(*model.Failure) {}
