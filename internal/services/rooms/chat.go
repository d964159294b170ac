package rooms

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mcoot/triviasync/internal/model"
)

// PostMessage stores a chat message and broadcasts it. The client may choose
// the message id so it can delete the message before the echo arrives.
func (s *Service) PostMessage(ctx context.Context, roomID model.RoomID, guestID model.GuestID, messageID, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.ErrMessageRequired
	}
	if len(text) > model.MaxChatLength {
		return nil, model.ErrMessageTooLong
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	participant, err := s.member(ctx, roomID, guestID)
	if err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{
		ID:         messageID,
		RoomID:     roomID,
		GuestID:    guestID,
		PlayerName: participant.PlayerName,
		Text:       text,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.storage.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(roomID, model.MessageNewMessage, model.ChatPayload{
		MessageID:  msg.ID,
		GuestID:    guestID,
		PlayerName: msg.PlayerName,
		Text:       msg.Text,
	})
	return msg, nil
}

// DeleteMessage removes a chat message. Only the sender can delete it, and
// deleting a message that is already gone succeeds.
func (s *Service) DeleteMessage(ctx context.Context, roomID model.RoomID, messageID string, guestID model.GuestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.storage.GetRoom(ctx, roomID); err != nil {
		return err
	}
	msg, err := s.storage.GetMessage(ctx, roomID, messageID)
	if err == model.ErrMessageNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if msg.GuestID != guestID {
		return model.ErrNotMessageOwner
	}
	if err := s.storage.DeleteMessage(ctx, roomID, messageID); err != nil {
		return err
	}

	s.publish(roomID, model.MessageDeleteMessage, model.ChatPayload{MessageID: messageID, GuestID: guestID})
	return nil
}

// HandleInbound applies a message a client sent over its push channel
func (s *Service) HandleInbound(ctx context.Context, msg model.PushMessage) {
	logger := s.logger.With(
		slog.String("room_id", string(msg.RoomID)),
		slog.String("type", string(msg.Type)),
	)

	var err error
	switch msg.Type {
	case model.MessageSendMessage:
		var payload model.ChatPayload
		if err = msg.Decode(&payload); err == nil {
			_, err = s.PostMessage(ctx, msg.RoomID, payload.GuestID, payload.MessageID, payload.Text)
		}
	case model.MessageDeleteMessage:
		var payload model.ChatPayload
		if err = msg.Decode(&payload); err == nil {
			err = s.DeleteMessage(ctx, msg.RoomID, payload.MessageID, payload.GuestID)
		}
	case model.MessageTyping:
		var payload model.TypingPayload
		if err = msg.Decode(&payload); err == nil {
			err = s.relay(ctx, msg.RoomID, payload.GuestID, model.MessageTyping, payload)
		}
	case model.MessageReaction:
		var payload model.ReactionPayload
		if err = msg.Decode(&payload); err == nil {
			err = s.relay(ctx, msg.RoomID, payload.GuestID, model.MessageReaction, payload)
		}
	case model.MessagePing:
	default:
		logger.Debug("ignoring inbound message")
		return
	}
	if err != nil {
		logger.Warn("inbound message rejected", slog.Any("error", err))
	}
}

// relay rebroadcasts an ephemeral message from a room member
func (s *Service) relay(ctx context.Context, roomID model.RoomID, guestID model.GuestID, t model.MessageType, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.member(ctx, roomID, guestID); err != nil {
		return err
	}
	s.publish(roomID, t, payload)
	return nil
}

// member loads a participant of a live room. Caller holds s.mu.
func (s *Service) member(ctx context.Context, roomID model.RoomID, guestID model.GuestID) (*model.Participant, error) {
	room, err := s.storage.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status.IsTerminal() {
		return nil, model.ErrRoomClosed
	}
	participants, err := s.storage.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participant := model.FindParticipant(participants, guestID)
	if participant == nil {
		return nil, model.ErrParticipantNotFound
	}
	return participant, nil
}
