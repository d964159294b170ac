package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mcoot/triviasync/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case RoomList:
		o.printRoomList(v)
	case RoomDetail:
		o.printRoomDetail(v)
	case model.Results:
		o.printResults(v)
	case SimulationResult:
		o.printSimulation(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// RoomList is a list of joinable rooms
type RoomList struct {
	Rooms []model.Room `json:"rooms"`
}

// RoomDetail is a room with its roster
type RoomDetail struct {
	Room         model.Room          `json:"room"`
	Participants []model.Participant `json:"participants"`
	Questions    int                 `json:"questions"`
}

// GameResult is one simulated game
type GameResult struct {
	Game    int            `json:"game"`
	Players []PlayerResult `json:"players"`
	Error   string         `json:"error,omitempty"`
}

// PlayerResult is how one bot finished
type PlayerResult struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Score    int    `json:"score"`
	Answered int    `json:"answered"`
	Rank     int    `json:"rank,omitempty"`
	Failure  string `json:"failure,omitempty"`
}

// SimulationResult is the output of the simulate command
type SimulationResult struct {
	Games []GameResult `json:"games"`
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}

func (o *Output) printRoomList(l RoomList) {
	if len(l.Rooms) == 0 {
		fmt.Println("No rooms waiting for players")
		return
	}
	for _, r := range l.Rooms {
		fmt.Printf("%s  %-20s %-7s %d/%d players, %d questions, by %s\n",
			r.ID, r.Name, r.Difficulty, r.CurrentPlayers, r.MaxPlayers, r.QuestionsPerGame, r.CreatedByName)
	}
}

func (o *Output) printRoomDetail(d RoomDetail) {
	r := d.Room
	fmt.Printf("Room: %s (%s)\n", r.Name, r.ID)
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Difficulty: %s\n", r.Difficulty)
	fmt.Printf("Questions: %d (%ds each)\n", r.QuestionsPerGame, r.TimePerQuestion)
	if d.Questions > 0 {
		fmt.Printf("Generated: %d\n", d.Questions)
	}
	fmt.Printf("Players (%d/%d):\n", len(d.Participants), r.MaxPlayers)
	for _, p := range d.Participants {
		creator := ""
		if p.IsCreator {
			creator = " [creator]"
		}
		fmt.Printf("  - %s (guest %d) %d points%s\n", p.PlayerName, p.GuestID, p.Score, creator)
	}
}

func (o *Output) printResults(r model.Results) {
	if r.Partial {
		fmt.Println("Results (partial, from local scores):")
	} else {
		fmt.Println("Results:")
	}
	for _, e := range r.Leaderboard {
		status := ""
		if !e.Finished {
			status = " (did not finish)"
		}
		fmt.Printf("  %d. %s: %d points, %d correct%s\n", e.Rank, e.PlayerName, e.Score, e.CorrectAnswers, status)
	}
}

func (o *Output) printSimulation(s SimulationResult) {
	for _, g := range s.Games {
		fmt.Printf("Game %d:\n", g.Game)
		if g.Error != "" {
			fmt.Printf("  error: %s\n", g.Error)
		}
		for _, p := range g.Players {
			var extra []string
			if p.Rank > 0 {
				extra = append(extra, fmt.Sprintf("rank %d", p.Rank))
			}
			if p.Failure != "" {
				extra = append(extra, p.Failure)
			}
			suffix := ""
			if len(extra) > 0 {
				suffix = " (" + strings.Join(extra, ", ") + ")"
			}
			fmt.Printf("  %-12s %-10s %4d points, %d answered%s\n", p.Name, p.State, p.Score, p.Answered, suffix)
		}
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	if h.Storage != "" {
		fmt.Printf("Storage: %s\n", h.Storage)
	}
}
