package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/connection"
)

func newWatchCmd() *cobra.Command {
	var (
		guestID    int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "watch <room-id>",
		Short: "Stream a room's live events",
		Long: `Connect to the room's push channel and print events as they arrive.

Events include:
  - user_joined / user_left: Roster changed
  - update / initial: Room status refresh
  - new_message / delete_message: Chat
  - typing / reaction: Chat activity

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRoom(cmd.Context(), model.RoomID(args[0]), model.GuestID(guestID), jsonOutput)
		},
	}

	cmd.Flags().IntVar(&guestID, "guest", 0, "Guest id to connect as")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")

	return cmd
}

func watchRoom(ctx context.Context, roomID model.RoomID, guestID model.GuestID, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := env.Dialer.Dial(ctx, roomID, guestID)
	if err != nil {
		if errors.Is(err, connection.ErrPushUnavailable) {
			return fmt.Errorf("push channel unavailable for room %s: %w", roomID, err)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = ch.Close() }()

	fmt.Fprintf(os.Stderr, "Watching room %s. Press Ctrl+C to stop.\n", roomID)

	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "\nDisconnected.")
				return nil
			}
			if errors.Is(err, connection.ErrNormalClosure) {
				fmt.Fprintln(os.Stderr, "Room closed the channel.")
				return nil
			}
			return fmt.Errorf("channel error: %w", err)
		}
		if msg.Type == model.MessagePing {
			continue
		}

		if jsonOutput {
			data, _ := json.Marshal(msg)
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("[%s] %s\n", msg.Timestamp.Format("15:04:05"), describePush(msg))
	}
}

// describePush renders a push message as one human-readable line
func describePush(msg model.PushMessage) string {
	switch msg.Type {
	case model.MessageUserJoined, model.MessageUserLeft:
		var p model.UserPayload
		if err := msg.Decode(&p); err == nil {
			verb := "joined"
			if msg.Type == model.MessageUserLeft {
				verb = "left"
			}
			return fmt.Sprintf("%s %s", p.PlayerName, verb)
		}
	case model.MessageUpdate, model.MessageInitial:
		var p model.UpdatePayload
		if err := msg.Decode(&p); err == nil {
			return fmt.Sprintf("room %s, %d players", p.Status, p.CurrentPlayers)
		}
	case model.MessageNewMessage:
		var p model.ChatPayload
		if err := msg.Decode(&p); err == nil {
			return fmt.Sprintf("%s: %s", p.PlayerName, p.Text)
		}
	case model.MessageDeleteMessage:
		var p model.ChatPayload
		if err := msg.Decode(&p); err == nil {
			return fmt.Sprintf("message %s deleted", p.MessageID)
		}
	case model.MessageTyping:
		var p model.TypingPayload
		if err := msg.Decode(&p); err == nil {
			if p.IsTyping {
				return fmt.Sprintf("guest %d is typing", p.GuestID)
			}
			return fmt.Sprintf("guest %d stopped typing", p.GuestID)
		}
	case model.MessageReaction:
		var p model.ReactionPayload
		if err := msg.Decode(&p); err == nil {
			return fmt.Sprintf("guest %d reacted %s", p.GuestID, p.Emoji)
		}
	}
	return string(msg.Type)
}
