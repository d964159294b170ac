package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfg *Config
	env *Env
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "trivia",
		Short: "CLI tool for the multiplayer trivia server",
		Long: `trivia plays multiplayer trivia against a trivia server.

It can list and inspect rooms, play interactively, watch a room's live
events, and run simulated games between bots.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e, err := NewEnv(cfg)
			if err != nil {
				return err
			}
			env = e
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env != nil {
				env.Close()
			}
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: TRIVIA_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Push, "push", cfg.Push, "Push transport: ws, nats, off (env: TRIVIA_PUSH)")
	rootCmd.PersistentFlags().StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS URL for --push nats (env: TRIVIA_NATS_URL)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newRoomsCmd())
	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	// A missing .env file is fine
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
