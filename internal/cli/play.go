package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/triviasync/internal/dependencies/clock"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/session"
)

func newPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play interactively",
		Long: `Create or join a room and play from the terminal.

While playing, type:
  start        start the game (room creator only)
  1-4          answer the current question
  say <text>   send a chat message
  retry        retry after an error
  abandon      give up after an error
  leave        leave the room`,
	}

	cmd.AddCommand(newPlayCreateCmd())
	cmd.AddCommand(newPlayJoinCmd())

	return cmd
}

func newPlayCreateCmd() *cobra.Command {
	var playerName string
	settings := model.DefaultRoomSettings()

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and play in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return playSession(cmd.Context(), func(c *session.Controller) {
				c.CreateRoom(settings, playerName)
			})
		},
	}

	cmd.Flags().StringVar(&playerName, "player", "", "Your player name")
	cmd.Flags().StringVar(&settings.Name, "name", settings.Name, "Room name")
	cmd.Flags().StringVar((*string)(&settings.Difficulty), "difficulty", string(settings.Difficulty), "Difficulty: easy, medium, hard, expert")
	cmd.Flags().IntVar(&settings.MaxPlayers, "max-players", settings.MaxPlayers, "Seats in the room")
	cmd.Flags().IntVar(&settings.QuestionsPerGame, "questions", settings.QuestionsPerGame, "Questions per game")
	cmd.Flags().IntVar(&settings.TimePerQuestion, "time", settings.TimePerQuestion, "Seconds per question")
	_ = cmd.MarkFlagRequired("player")

	return cmd
}

func newPlayJoinCmd() *cobra.Command {
	var playerName string

	cmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a room and play in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := model.RoomID(args[0])
			return playSession(cmd.Context(), func(c *session.Controller) {
				c.JoinRoom(roomID, playerName)
			})
		},
	}

	cmd.Flags().StringVar(&playerName, "player", "", "Your player name")
	_ = cmd.MarkFlagRequired("player")

	return cmd
}

const leaveWait = 5 * time.Second

// player prints session events to the terminal
type player struct {
	out        *Output
	controller *session.Controller

	// Owned by the loop
	begun bool

	once sync.Once
	done chan struct{}
}

func (p *player) OnEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventStateChanged:
		p.onState(ev.State)
	case session.EventRoomUpdated:
		if ev.Room != nil && ev.State == session.StateWaiting {
			p.out.PrintMessage(fmt.Sprintf("Room %s: %d/%d players", ev.Room.ID, len(ev.Participants), ev.Room.MaxPlayers))
		}
	case session.EventProgress:
		p.out.PrintMessage(fmt.Sprintf("Generating questions %d/%d", ev.Progress.Generated, ev.Progress.Total))
	case session.EventQuestion:
		q := ev.Question
		lines := []string{fmt.Sprintf("\nQuestion %d: %s", q.QuestionNumber, q.Text)}
		for i, opt := range q.Options {
			lines = append(lines, fmt.Sprintf("  %d) %s", i+1, opt))
		}
		p.out.PrintMessage(strings.Join(lines, "\n"))
	case session.EventAnswered:
		if ev.Answer.IsCorrect {
			p.out.PrintMessage(fmt.Sprintf("Correct! +%d points", ev.Answer.PointsAwarded))
		} else {
			p.out.PrintMessage(fmt.Sprintf("Wrong, the answer was %s", ev.Question.CorrectAnswer))
		}
	case session.EventQuorum:
		p.out.PrintMessage(fmt.Sprintf("Waiting for players: %d/%d finished", ev.Finished, ev.Total))
	case session.EventConnection:
		if ev.Message != "" {
			p.out.PrintMessage(ev.Message)
		}
	case session.EventPush:
		if ev.Push.Type == model.MessageNewMessage || ev.Push.Type == model.MessageUserJoined || ev.Push.Type == model.MessageUserLeft {
			p.out.PrintMessage(describePush(*ev.Push))
		}
	case session.EventResults:
		p.out.Print(*ev.Results)
	case session.EventFailure:
		p.out.PrintError(fmt.Errorf("%s: %s (type retry or abandon)", ev.Failure.Title, ev.Failure.Message))
	case session.EventRejected:
		p.out.PrintError(ev.Err)
		if !p.begun {
			p.finish()
		}
	}
}

func (p *player) onState(s session.State) {
	switch s {
	case session.StateCreating:
		p.begun = true
	case session.StateWaiting:
		snap := p.controller.Snapshot()
		if self := snap.Session.Self; self != nil && self.IsCreator {
			p.out.PrintMessage("Waiting for players. Type start when everyone is here.")
		} else {
			p.out.PrintMessage("Waiting for the creator to start.")
		}
	case session.StateStarting:
		p.out.PrintMessage("Game starting")
	case session.StateCancelled:
		p.out.PrintMessage("The room was closed")
		p.finish()
	case session.StateCompleted:
		p.finish()
	case session.StateIdle:
		if p.begun {
			p.finish()
		}
	}
}

// leave closes the session and waits briefly for the leave to go out
func (p *player) leave() {
	p.controller.Close()
	select {
	case <-p.done:
	case <-time.After(leaveWait):
	}
}

func (p *player) finish() {
	p.once.Do(func() { close(p.done) })
}

// playSession runs one interactive session until it ends or is interrupted
func playSession(ctx context.Context, begin func(c *session.Controller)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := NewOutput(cfg.Output)
	l := loop.New(clock.New(), env.Logger)
	p := &player{out: out, done: make(chan struct{})}
	p.controller = session.New(l, env.API, env.Dialer, p, session.DefaultConfig(), env.Logger)

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(loopCtx) }()

	begin(p.controller)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-p.done:
			return nil
		case <-ctx.Done():
			p.leave()
			return nil
		case line, ok := <-lines:
			if !ok {
				p.leave()
				return nil
			}
			if err := handleInput(p.controller, line); err != nil {
				out.PrintError(err)
			}
		}
	}
}

// handleInput maps one typed line onto a controller operation
func handleInput(c *session.Controller, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "start":
		c.StartGame()
	case "retry":
		c.Retry()
	case "abandon":
		c.Abandon()
	case "leave", "quit":
		c.Leave()
	case "say":
		c.SendChat(arg)
	default:
		n, err := strconv.Atoi(cmd)
		if err != nil {
			return fmt.Errorf("unknown command %q", cmd)
		}
		snap := c.Snapshot()
		q := snap.Session.CurrentQuestion()
		if q == nil {
			return errors.New("no question to answer")
		}
		if n < 1 || n > len(q.Options) {
			return fmt.Errorf("answer must be between 1 and %d", len(q.Options))
		}
		c.Answer(q.Options[n-1])
	}
	return nil
}
