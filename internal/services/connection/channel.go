package connection

import (
	"context"
	"errors"

	"github.com/mcoot/triviasync/internal/model"
)

var (
	// ErrPushUnavailable is returned by a Dialer when the environment has no
	// push channel at all. The manager then stays in polling mode for good.
	ErrPushUnavailable = errors.New("push channel unavailable")

	// ErrNormalClosure is returned by Channel.Receive when the server closed
	// the channel deliberately. No reconnect is attempted.
	ErrNormalClosure = errors.New("push channel closed normally")
)

// Channel is one open push channel
type Channel interface {
	// Send writes a message to the server
	Send(ctx context.Context, msg model.PushMessage) error

	// Receive blocks until the next inbound message or until the channel
	// closes. A deliberate server-side close is reported as ErrNormalClosure.
	Receive(ctx context.Context) (model.PushMessage, error)

	// Close closes the channel from the client side
	Close() error
}

// Dialer opens push channels
type Dialer interface {
	Dial(ctx context.Context, roomID model.RoomID, guestID model.GuestID) (Channel, error)
}

// DialerFunc adapts a function to a Dialer
type DialerFunc func(ctx context.Context, roomID model.RoomID, guestID model.GuestID) (Channel, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, roomID model.RoomID, guestID model.GuestID) (Channel, error) {
	return f(ctx, roomID, guestID)
}

// Unavailable is a Dialer for environments with no push channel
var Unavailable Dialer = DialerFunc(func(context.Context, model.RoomID, model.GuestID) (Channel, error) {
	return nil, ErrPushUnavailable
})
