package model

import (
	"fmt"
	"time"
)

// GuestID identifies a seat within a room
type GuestID int

// CreatorGuestID is reserved for the participant who created the room
const CreatorGuestID GuestID = 0

// Participant is one seat in a room
type Participant struct {
	GuestID               GuestID   `json:"guestId"`
	PlayerName            string    `json:"playerName"`
	IsCreator             bool      `json:"isCreator"`
	Score                 int       `json:"score"`
	CorrectAnswers        int       `json:"correctAnswers"`
	FinishedQuestionCount int       `json:"finishedQuestionCount"`
	JoinedAt              time.Time `json:"joinedAt"`
}

// NewCreator returns the participant record for a room's creator
func NewCreator(name string, joinedAt time.Time) Participant {
	return Participant{
		GuestID:    CreatorGuestID,
		PlayerName: name,
		IsCreator:  true,
		JoinedAt:   joinedAt,
	}
}

// ValidateRoster enforces the seat invariants of a room: guest ids are unique
// and exactly one participant is the creator, holding guest id 0.
func ValidateRoster(participants []Participant) error {
	seen := make(map[GuestID]bool, len(participants))
	creators := 0
	for _, p := range participants {
		if seen[p.GuestID] {
			return fmt.Errorf("%w: duplicate guest id %d", ErrInvalidRoster, p.GuestID)
		}
		seen[p.GuestID] = true
		if p.GuestID < 0 {
			return fmt.Errorf("%w: negative guest id %d", ErrInvalidRoster, p.GuestID)
		}
		if p.IsCreator != (p.GuestID == CreatorGuestID) {
			return fmt.Errorf("%w: guest %d creator flag is %t", ErrInvalidRoster, p.GuestID, p.IsCreator)
		}
		if p.IsCreator {
			creators++
		}
	}
	if creators != 1 {
		return fmt.Errorf("%w: %d creators", ErrInvalidRoster, creators)
	}
	return nil
}

// FindParticipant returns the participant with the given guest id, or nil
func FindParticipant(participants []Participant, guestID GuestID) *Participant {
	for i := range participants {
		if participants[i].GuestID == guestID {
			return &participants[i]
		}
	}
	return nil
}

// NextGuestID returns the lowest unused joiner id (never 0)
func NextGuestID(participants []Participant) GuestID {
	next := CreatorGuestID + 1
	for _, p := range participants {
		if p.GuestID >= next {
			next = p.GuestID + 1
		}
	}
	return next
}

// LeaveReason says why a participant left a room
type LeaveReason string

const (
	LeaveExplicit LeaveReason = "leave"  // User chose to leave
	LeaveReload   LeaveReason = "reload" // Page/process reloaded
	LeaveUnload   LeaveReason = "unload" // Page/process torn down
)
