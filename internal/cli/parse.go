package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mathgame/internal/numwords"
)

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <transcript>...",
		Short: "Print the number read from a transcript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if n, ok := numwords.Parse(text); ok {
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no number recognized")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
