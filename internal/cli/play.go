package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/loqalabs/loqa-mathgame/internal/eventstore"
	"github.com/loqalabs/loqa-mathgame/internal/game"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
)

func newPlayCommand(opts *options) *cobra.Command {
	var (
		maxOperand int
		multiply   bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play in the terminal; each input line is one spoken answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-operand") {
				cfg.Game.MaxOperand = maxOperand
			}
			if cmd.Flags().Changed("multiply") {
				cfg.Game.IncludeMultiply = multiply
			}
			level := cfg.Telemetry.LogLevel
			if opts.logLevel == "" {
				level = "warn"
			}
			return runPlay(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), newLogger(level), timeout)
		},
	}
	cmd.Flags().IntVar(&maxOperand, "max-operand", 10, "Largest operand for addition and subtraction")
	cmd.Flags().BoolVar(&multiply, "multiply", false, "Include multiplication problems")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up on an answer after this long (0 waits forever)")
	return cmd
}

// runPlay asks problems until in is exhausted and prints the final score.
func runPlay(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, logger *slog.Logger, timeout time.Duration) error {
	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	views := make(chan game.View, 64)
	publisher := game.PublisherFunc(func(_ context.Context, v game.View) error {
		select {
		case views <- v:
		default:
		}
		return nil
	})

	gameCfg := cfg.Game
	gameCfg.AutoListen = false
	rec := stt.NewConsoleRecognizer(in, timeout)
	svc := game.NewService(ctx, gameCfg, rec, store, publisher, logger)
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Close()

	for {
		view, err := svc.RequestNewProblem(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, view.Problem)

		for view.State != game.StateEvaluated.String() {
			drain(views)
			if _, err := svc.StartListening(ctx); err != nil {
				if errors.Is(err, stt.ErrRecognitionUnavailable) {
					final, _ := svc.View(ctx)
					fmt.Fprintf(out, "Final score: %s\n", final.Score)
					return nil
				}
				return err
			}
			if view, err = awaitListenEnd(ctx, views); err != nil {
				return err
			}
			switch {
			case view.State == game.StateEvaluated.String():
				fmt.Fprintf(out, "%s  [%s]\n", view.Result, view.Score)
			case view.Status != game.StatusCanceled:
				fmt.Fprintln(out, view.Status)
			}
		}
	}
}

func awaitListenEnd(ctx context.Context, views <-chan game.View) (game.View, error) {
	for {
		select {
		case v := <-views:
			if !v.Listening {
				return v, nil
			}
		case <-ctx.Done():
			return game.View{}, ctx.Err()
		}
	}
}

func drain(views <-chan game.View) {
	for {
		select {
		case <-views:
		default:
			return
		}
	}
}
