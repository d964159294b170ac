// Package natspush carries push messages over NATS subjects. The server
// publishes room events on a per-room subject; participants publish their
// own messages on the room's inbound subject for the server to relay.
package natspush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/connection"
)

// SubjectPrefix roots every trivia subject
const SubjectPrefix = "trivia.rooms"

// EventsSubject is where the server publishes a room's events
func EventsSubject(roomID model.RoomID) string {
	return fmt.Sprintf("%s.%s.events", SubjectPrefix, roomID)
}

// InboundSubject is where participants publish to a room
func InboundSubject(roomID model.RoomID) string {
	return fmt.Sprintf("%s.%s.inbound", SubjectPrefix, roomID)
}

// InboundWildcard matches every room's inbound subject
const InboundWildcard = SubjectPrefix + ".*.inbound"

// Connect opens a NATS connection that keeps retrying in the background
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// Dialer subscribes participants to room subjects on a shared connection
type Dialer struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewDialer creates a Dialer. A nil connection dials nothing and reports
// push as unavailable.
func NewDialer(nc *nats.Conn, logger *slog.Logger) *Dialer {
	return &Dialer{nc: nc, logger: logger.With(slog.String("component", "natspush"))}
}

// Dial subscribes to a room's events
func (d *Dialer) Dial(_ context.Context, roomID model.RoomID, guestID model.GuestID) (connection.Channel, error) {
	if d.nc == nil {
		return nil, connection.ErrPushUnavailable
	}
	if d.nc.IsClosed() {
		return nil, fmt.Errorf("nats connection closed: %w", nats.ErrConnectionClosed)
	}

	sub, err := d.nc.SubscribeSync(EventsSubject(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room events: %w", err)
	}

	d.logger.Debug("subscribed to room events",
		slog.String("room_id", string(roomID)),
		slog.Int("guest_id", int(guestID)),
	)
	return &channel{nc: d.nc, sub: sub, roomID: roomID, logger: d.logger}, nil
}

type channel struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	roomID model.RoomID
	logger *slog.Logger
}

func (c *channel) Send(_ context.Context, msg model.PushMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}
	return c.nc.Publish(InboundSubject(c.roomID), data)
}

func (c *channel) Receive(ctx context.Context) (model.PushMessage, error) {
	for {
		m, err := c.sub.NextMsgWithContext(ctx)
		if err != nil {
			// Our own Close unsubscribes; that is a deliberate close
			if errors.Is(err, nats.ErrBadSubscription) {
				return model.PushMessage{}, fmt.Errorf("%w: %v", connection.ErrNormalClosure, err)
			}
			return model.PushMessage{}, err
		}

		var msg model.PushMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			c.logger.Warn("skipping malformed push message", slog.Any("error", err))
			continue
		}
		return msg, nil
	}
}

func (c *channel) Close() error {
	err := c.sub.Unsubscribe()
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return err
}

// Publisher publishes room events for NATS subscribers
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates a Publisher on a connection
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish sends one event to a room's subscribers
func (p *Publisher) Publish(msg model.PushMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}
	return p.nc.Publish(EventsSubject(msg.RoomID), data)
}

// SubscribeInbound delivers every message participants publish to any room
func (p *Publisher) SubscribeInbound(handler func(model.PushMessage)) (*nats.Subscription, error) {
	return p.nc.Subscribe(InboundWildcard, func(m *nats.Msg) {
		var msg model.PushMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return
		}
		handler(msg)
	})
}
