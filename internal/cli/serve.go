package cli

import (
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mathgame/internal/runtime"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game, speech and HTTP services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Telemetry.LogLevel)
			if err := runtime.New(cfg, logger).Start(cmd.Context()); err != nil {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
