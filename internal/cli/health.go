package cli

import (
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := env.API.Health(cmd.Context())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(HealthResult{Status: result.Status, Storage: result.Storage})
			return nil
		},
	}
}
