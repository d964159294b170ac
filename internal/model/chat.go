package model

import "time"

// ChatMessage is one message posted to a room's chat
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     RoomID    `json:"roomId"`
	GuestID    GuestID   `json:"guestId"`
	PlayerName string    `json:"playerName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MaxChatLength caps the text of a single chat message
const MaxChatLength = 500
