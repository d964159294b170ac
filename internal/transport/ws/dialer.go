// Package ws carries push messages over a websocket
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/connection"
)

// Subprotocol is negotiated by both ends of a push channel
const Subprotocol = "trivia.v1"

// ReadLimit caps the size of a single inbound message
const ReadLimit = 1 << 20

// Path returns the push channel route of a room, relative to the API prefix
func Path(roomID model.RoomID) string {
	return "/rooms/" + url.PathEscape(string(roomID)) + "/ws"
}

// Dialer opens websocket push channels against the trivia server
type Dialer struct {
	baseURL string
	prefix  string
	logger  *slog.Logger
}

// NewDialer creates a Dialer for a server's HTTP base URL. prefix is the API
// path prefix the push route lives under.
func NewDialer(baseURL, prefix string, logger *slog.Logger) *Dialer {
	return &Dialer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "ws")),
	}
}

// URL returns the websocket URL for a participant's push channel
func (d *Dialer) URL(roomID model.RoomID, guestID model.GuestID) (string, error) {
	u, err := url.Parse(d.baseURL + d.prefix + Path(roomID))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("guestId", strconv.Itoa(int(guestID)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a push channel. A server that does not serve the route at all
// is reported as connection.ErrPushUnavailable.
func (d *Dialer) Dial(ctx context.Context, roomID model.RoomID, guestID model.GuestID) (connection.Channel, error) {
	target, err := d.URL(roomID, guestID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented) {
			return nil, fmt.Errorf("%w: server answered %d", connection.ErrPushUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial push channel: %w", err)
	}
	if conn.Subprotocol() != Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "unsupported subprotocol")
		return nil, fmt.Errorf("%w: server does not speak %s", connection.ErrPushUnavailable, Subprotocol)
	}
	conn.SetReadLimit(ReadLimit)

	d.logger.Debug("push channel dialled", slog.String("room_id", string(roomID)))
	return &Channel{conn: conn, logger: d.logger}, nil
}

// Channel is an open websocket push channel
type Channel struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// NewChannel wraps an accepted server-side connection
func NewChannel(conn *websocket.Conn, logger *slog.Logger) *Channel {
	conn.SetReadLimit(ReadLimit)
	return &Channel{conn: conn, logger: logger}
}

// Send writes one message as a JSON text frame
func (c *Channel) Send(ctx context.Context, msg model.PushMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Receive reads the next message. Binary frames and undecodable text frames
// are skipped.
func (c *Channel) Receive(ctx context.Context) (model.PushMessage, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return model.PushMessage{}, closeError(err)
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg model.PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("skipping malformed push message", slog.Any("error", err))
			continue
		}
		return msg, nil
	}
}

// Close closes the channel normally
func (c *Channel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}

// CloseWith closes the channel with an explicit status
func (c *Channel) CloseWith(status websocket.StatusCode, reason string) error {
	return c.conn.Close(status, reason)
}

// closeError reports a deliberate 1000 close as ErrNormalClosure. Anything
// else, 1001 from a restarting server or draining proxy included, is left for
// the manager to reconnect.
func closeError(err error) error {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return fmt.Errorf("%w: %v", connection.ErrNormalClosure, err)
	}
	return err
}
