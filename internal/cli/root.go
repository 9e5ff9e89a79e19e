// Package cli builds the mathgame command tree.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mathgame/internal/config"
)

// Version is stamped at build time.
var Version = "0.1.0-dev"

type options struct {
	configPath string
	logLevel   string
}

// NewRootCommand returns the mathgame command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "mathgame",
		Short: "Spoken arithmetic quiz",
		Long: `mathgame poses arithmetic problems and scores spoken answers.

Examples:
  mathgame serve --config mathgame.yaml   # run the game service on the bus
  mathgame play                           # play in the terminal, one answer per line
  mathgame parse "twenty one"             # show how a transcript is read`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override telemetry.log_level")

	root.AddCommand(
		newServeCommand(opts),
		newPlayCommand(opts),
		newParseCommand(),
		newVersionCommand(),
	)
	return root
}

func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.Telemetry.LogLevel = o.logLevel
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
