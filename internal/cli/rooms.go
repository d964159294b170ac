package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/triviasync/internal/model"
)

func newRoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List rooms waiting for players",
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := env.API.ListWaitingRooms(cmd.Context())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(RoomList{Rooms: rooms})
			return nil
		},
	}

	cmd.AddCommand(newRoomShowCmd())

	return cmd
}

func newRoomShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <room-id>",
		Short: "Show a room and its players",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := env.API.GetRoom(cmd.Context(), model.RoomID(args[0]))
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(RoomDetail{
				Room:         resp.Room,
				Participants: resp.Participants,
				Questions:    len(resp.Questions),
			})
			return nil
		},
	}
}
