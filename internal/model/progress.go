package model

import (
	"slices"
	"time"
)

// ProgressSnapshot is the server-reported question generation progress
type ProgressSnapshot struct {
	Generated int  `json:"generated"`
	Total     int  `json:"total"`
	IsReady   bool `json:"isReady"`
}

// NewProgressSnapshot builds a snapshot with IsReady derived from the counts
func NewProgressSnapshot(generated, total int) ProgressSnapshot {
	return ProgressSnapshot{
		Generated: generated,
		Total:     total,
		IsReady:   total > 0 && generated >= total,
	}
}

// Ready reports whether generation is complete
func (p ProgressSnapshot) Ready() bool {
	return p.IsReady || (p.Total > 0 && p.Generated >= p.Total)
}

// ConnectionState is the push channel status. Owned by the connection manager.
type ConnectionState struct {
	IsConnected       bool      `json:"isConnected"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
}

// FinishRegistration is the set of guests that confirmed completion
type FinishRegistration struct {
	guests map[GuestID]struct{}
}

// NewFinishRegistration creates a registration set from the given guests
func NewFinishRegistration(guests ...GuestID) FinishRegistration {
	r := FinishRegistration{guests: make(map[GuestID]struct{}, len(guests))}
	for _, g := range guests {
		r.guests[g] = struct{}{}
	}
	return r
}

// Add records a guest as finished. The set never shrinks.
func (r *FinishRegistration) Add(guests ...GuestID) {
	if r.guests == nil {
		r.guests = make(map[GuestID]struct{}, len(guests))
	}
	for _, g := range guests {
		r.guests[g] = struct{}{}
	}
}

// Has reports whether the guest is registered
func (r FinishRegistration) Has(guest GuestID) bool {
	_, ok := r.guests[guest]
	return ok
}

// Len returns the number of registered guests
func (r FinishRegistration) Len() int {
	return len(r.guests)
}

// Guests returns the registered guests in ascending order
func (r FinishRegistration) Guests() []GuestID {
	out := make([]GuestID, 0, len(r.guests))
	for g := range r.guests {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}
