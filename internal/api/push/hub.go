// Package push fans room events out to participants' push channels and feeds
// what participants send back into the room service
package push

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/mcoot/triviasync/internal/api/apierr"
	"github.com/mcoot/triviasync/internal/api/response"
	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/rooms"
	"github.com/mcoot/triviasync/internal/transport/natspush"
	"github.com/mcoot/triviasync/internal/transport/ws"
)

// Rooms is the room service surface the hub needs
type Rooms interface {
	GetRoom(ctx context.Context, roomID model.RoomID) (*rooms.Detail, error)
	HandleInbound(ctx context.Context, msg model.PushMessage)
}

// Config controls push channel behavior
type Config struct {
	// PingInterval is how often idle channels get a keepalive
	PingInterval time.Duration
	// SendBuffer is how many messages may queue for one subscriber before it
	// is dropped as too slow
	SendBuffer int
	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		PingInterval: 25 * time.Second,
		SendBuffer:   64,
		WriteTimeout: 5 * time.Second,
	}
}

type subscriber struct {
	roomID  model.RoomID
	guestID model.GuestID
	send    chan model.PushMessage
	cancel  context.CancelFunc
}

// Hub tracks the websocket subscribers of every room and optionally mirrors
// events onto NATS
type Hub struct {
	rooms     Rooms
	publisher *natspush.Publisher
	clock     clock.Clock
	config    Config
	logger    *slog.Logger

	mu   sync.Mutex
	subs map[model.RoomID]map[*subscriber]struct{}
}

// NewHub creates a new Hub. publisher may be nil when NATS is not configured.
func NewHub(rooms Rooms, publisher *natspush.Publisher, clk clock.Clock, config Config, logger *slog.Logger) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 1
	}
	return &Hub{
		rooms:     rooms,
		publisher: publisher,
		clock:     clk,
		config:    config,
		logger:    logger.With(slog.String("component", "push")),
		subs:      make(map[model.RoomID]map[*subscriber]struct{}),
	}
}

// Publish delivers a room event to every subscriber of the room
func (h *Hub) Publish(msg model.PushMessage) {
	h.mu.Lock()
	for sub := range h.subs[msg.RoomID] {
		h.deliverLocked(sub, msg)
	}
	h.mu.Unlock()

	if h.publisher != nil {
		if err := h.publisher.Publish(msg); err != nil {
			h.logger.Warn("failed to publish to nats",
				slog.String("room_id", string(msg.RoomID)),
				slog.Any("error", err),
			)
		}
	}
}

// deliverLocked queues msg for sub, dropping subscribers that fall behind.
// Caller holds h.mu.
func (h *Hub) deliverLocked(sub *subscriber, msg model.PushMessage) {
	select {
	case sub.send <- msg:
	default:
		h.logger.Warn("dropping slow subscriber",
			slog.String("room_id", string(sub.roomID)),
			slog.Int("guest_id", int(sub.guestID)),
		)
		h.removeLocked(sub)
		sub.cancel()
	}
}

// Subscribers returns the number of open channels for a room
func (h *Hub) Subscribers(roomID model.RoomID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[roomID])
}

// ServeWS handles GET /api/v1/rooms/{id}/ws?guestId=
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := model.RoomID(mux.Vars(r)["id"])
	guest, err := strconv.Atoi(r.URL.Query().Get("guestId"))
	if err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("guestId is required"))
		return
	}
	guestID := model.GuestID(guest)

	detail, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, model.ErrRoomNotFound) {
			// 404 on this route means push is not served at all
			response.JSON(w, http.StatusGone, response.Failed(apierr.CodeRoomNotFound, "Room not found"))
			return
		}
		apierr.WriteError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{ws.Subprotocol},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.Any("error", err))
		return
	}
	if conn.Subprotocol() != ws.Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "client must speak "+ws.Subprotocol)
		return
	}

	logger := h.logger.With(
		slog.String("room_id", string(roomID)),
		slog.Int("guest_id", guest),
	)
	ch := ws.NewChannel(conn, logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := &subscriber{
		roomID:  roomID,
		guestID: guestID,
		send:    make(chan model.PushMessage, h.config.SendBuffer),
		cancel:  cancel,
	}

	initial, err := model.NewPushMessage(model.MessageInitial, roomID, model.UpdatePayload{
		Status:         detail.Room.Status,
		CurrentPlayers: detail.Room.CurrentPlayers,
	}, h.clock.Now())
	if err == nil {
		sub.send <- initial
	}

	h.mu.Lock()
	if _, ok := h.subs[roomID]; !ok {
		h.subs[roomID] = make(map[*subscriber]struct{})
	}
	h.subs[roomID][sub] = struct{}{}
	h.mu.Unlock()
	logger.Debug("push channel opened")

	go h.writeLoop(ctx, ch, sub)
	h.readLoop(ctx, ch, sub)

	h.mu.Lock()
	h.removeLocked(sub)
	h.mu.Unlock()
	_ = ch.Close()
	logger.Debug("push channel closed")
}

func (h *Hub) writeLoop(ctx context.Context, ch *ws.Channel, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.send:
			writeCtx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := ch.Send(writeCtx, msg)
			cancel()
			if err != nil {
				sub.cancel()
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, ch *ws.Channel, sub *subscriber) {
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			return
		}
		msg.RoomID = sub.roomID
		guestID := sub.guestID
		msg.GuestID = &guestID
		h.rooms.HandleInbound(ctx, msg)
	}
}

// removeLocked forgets a subscriber. Caller holds h.mu.
func (h *Hub) removeLocked(sub *subscriber) {
	room := h.subs[sub.roomID]
	delete(room, sub)
	if len(room) == 0 {
		delete(h.subs, sub.roomID)
	}
}

// Run sends keepalives and, with NATS configured, consumes inbound messages
// until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	if h.publisher != nil {
		sub, err := h.publisher.SubscribeInbound(func(msg model.PushMessage) {
			h.rooms.HandleInbound(ctx, msg)
		})
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	var mu sync.Mutex
	var timer clock.Timer
	var schedule func()
	schedule = func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		timer = h.clock.AfterFunc(h.config.PingInterval, func() {
			h.ping()
			schedule()
		})
	}
	schedule()

	<-ctx.Done()
	mu.Lock()
	timer.Stop()
	mu.Unlock()
	return nil
}

// ping sends a keepalive to every subscriber
func (h *Hub) ping() {
	now := h.clock.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, room := range h.subs {
		msg := model.PushMessage{Type: model.MessagePing, RoomID: roomID, Timestamp: now}
		for sub := range room {
			h.deliverLocked(sub, msg)
		}
	}
}
