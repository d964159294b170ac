package model

// RankedParticipant is one leaderboard entry
type RankedParticipant struct {
	Rank           int     `json:"rank"`
	GuestID        GuestID `json:"guestId"`
	PlayerName     string  `json:"playerName"`
	Score          int     `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	Finished       bool    `json:"finished"`
}

// Results is the final leaderboard of a room
type Results struct {
	RoomID      RoomID              `json:"roomId"`
	Leaderboard []RankedParticipant `json:"leaderboard"`
	// Partial is set when the leaderboard was assembled from locally known
	// scores because the server's results could not be fetched.
	Partial bool `json:"partial,omitempty"`
}

// Winner returns the first ranked entry, or nil for an empty leaderboard
func (r *Results) Winner() *RankedParticipant {
	if len(r.Leaderboard) == 0 {
		return nil
	}
	return &r.Leaderboard[0]
}
