package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-mathgame/internal/config"
)

func runCommand(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "play", "parse", "version"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("missing subcommand %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatal("expected --config flag")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"parse", "twenty", "one"}, "21"},
		{[]string{"parse", "I think it's 5"}, "5"},
		{[]string{"parse", "hello"}, "no number recognized"},
	}
	for _, tt := range tests {
		got := strings.TrimSpace(runCommand(t, "", tt.args...))
		if got != tt.want {
			t.Fatalf("%v: expected %q, got %q", tt.args, tt.want, got)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	if got := strings.TrimSpace(runCommand(t, "", "version")); got != Version {
		t.Fatalf("expected %q, got %q", Version, got)
	}
}

func TestRunPlay(t *testing.T) {
	cfg := config.Default()
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := runPlay(context.Background(), cfg, strings.NewReader("ten\nhello\n5\n"), &out, logger, 0)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "No number recognized, try again") {
		t.Fatalf("expected retry prompt, got:\n%s", got)
	}
	if !strings.Contains(got, "/2]") || !strings.Contains(got, "Final score: ") {
		t.Fatalf("expected two scored answers, got:\n%s", got)
	}
	if strings.Count(got, "= ?") != 3 {
		t.Fatalf("expected three problems posed, got:\n%s", got)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}
