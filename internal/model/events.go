package model

import (
	"encoding/json"
	"time"
)

// MessageType tags a push channel message
type MessageType string

const (
	// Roster events
	MessageUserJoined MessageType = "user_joined"
	MessageUserLeft   MessageType = "user_left"

	// Room/roster refresh signals
	MessageInitial MessageType = "initial"
	MessageUpdate  MessageType = "update"

	// Chat collaborator traffic
	MessageTyping        MessageType = "typing"
	MessageNewMessage    MessageType = "new_message"
	MessageReaction      MessageType = "reaction"
	MessageSendMessage   MessageType = "send_message"
	MessageDeleteMessage MessageType = "delete_message"

	// Keepalive sent by the server so idle rooms don't look stale
	MessagePing MessageType = "ping"
)

// IsRefresh reports whether the message should trigger a room re-fetch
func (t MessageType) IsRefresh() bool {
	switch t {
	case MessageUserJoined, MessageUserLeft, MessageInitial, MessageUpdate, MessageNewMessage:
		return true
	}
	return false
}

// PushMessage is the envelope for every push channel message
type PushMessage struct {
	Type      MessageType     `json:"type"`
	RoomID    RoomID          `json:"roomId,omitempty"`
	GuestID   *GuestID        `json:"guestId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewPushMessage creates a message with the payload marshalled into Data
func NewPushMessage(t MessageType, roomID RoomID, payload any, now time.Time) (PushMessage, error) {
	msg := PushMessage{Type: t, RoomID: roomID, Timestamp: now}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return PushMessage{}, err
		}
		msg.Data = data
	}
	return msg, nil
}

// Decode unmarshals Data into v
func (m PushMessage) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// UserPayload is carried by user_joined and user_left
type UserPayload struct {
	GuestID    GuestID `json:"guestId"`
	PlayerName string  `json:"playerName"`
	Reason     string  `json:"reason,omitempty"`
}

// UpdatePayload is carried by update and initial
type UpdatePayload struct {
	Status         RoomStatus `json:"status"`
	CurrentPlayers int        `json:"currentPlayers"`
}

// ChatPayload is carried by send_message, new_message and delete_message
type ChatPayload struct {
	MessageID  string  `json:"messageId,omitempty"`
	GuestID    GuestID `json:"guestId"`
	PlayerName string  `json:"playerName,omitempty"`
	Text       string  `json:"text,omitempty"`
}

// TypingPayload is carried by typing
type TypingPayload struct {
	GuestID  GuestID `json:"guestId"`
	IsTyping bool    `json:"isTyping"`
}

// ReactionPayload is carried by reaction
type ReactionPayload struct {
	MessageID string  `json:"messageId"`
	GuestID   GuestID `json:"guestId"`
	Emoji     string  `json:"emoji"`
}
