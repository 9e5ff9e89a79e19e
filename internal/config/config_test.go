package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Game.MaxOperand != 10 || cfg.Game.IncludeMultiply {
		t.Fatalf("unexpected game defaults: %+v", cfg.Game)
	}
	if cfg.EventStore.RetentionMode != "session" {
		t.Fatalf("expected session retention, got %q", cfg.EventStore.RetentionMode)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mathgame.yaml")
	data := `game:
  max_operand: 20
  include_multiply: true
  advance_delay_ms: 500
  recognizer: console
stt:
  enabled: true
  mode: exec
  command: "whisper-cli --json"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Game.MaxOperand != 20 || !cfg.Game.IncludeMultiply || cfg.Game.AdvanceDelayMS != 500 {
		t.Fatalf("game section not applied: %+v", cfg.Game)
	}
	if cfg.Game.Recognizer != "console" {
		t.Fatalf("expected console recognizer, got %q", cfg.Game.Recognizer)
	}
	if cfg.STT.Command != "whisper-cli --json" {
		t.Fatalf("unexpected stt command %q", cfg.STT.Command)
	}
	if cfg.STT.SampleRate != 16000 {
		t.Fatalf("expected default sample rate to survive, got %d", cfg.STT.SampleRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATHGAME_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MATHGAME_BUS_USERNAME", "alice")
	t.Setenv("MATHGAME_BUS_PASSWORD", "secret")
	t.Setenv("MATHGAME_BUS_TLS_INSECURE", "true")
	t.Setenv("MATHGAME_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("MATHGAME_NODE_ID", "test-node")
	t.Setenv("MATHGAME_EVENT_STORE_RETENTION_MODE", "ephemeral")
	t.Setenv("MATHGAME_EVENT_STORE_MAX_SESSIONS", "7")
	t.Setenv("MATHGAME_STT_LISTEN_TIMEOUT_MS", "3000")
	t.Setenv("MATHGAME_GAME_MAX_OPERAND", "3")
	t.Setenv("MATHGAME_GAME_INCLUDE_MULTIPLY", "true")
	t.Setenv("MATHGAME_GAME_ADVANCE_DELAY_MS", "250")
	t.Setenv("MATHGAME_GAME_RECOGNIZER", "mock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Node.ID != "test-node" {
		t.Fatalf("expected node id override")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" || cfg.EventStore.MaxSessions != 7 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.STT.ListenTimeoutMS != 3000 {
		t.Fatalf("expected listen timeout override")
	}
	if cfg.Game.MaxOperand != 3 || !cfg.Game.IncludeMultiply || cfg.Game.AdvanceDelayMS != 250 {
		t.Fatalf("expected game overrides, got %+v", cfg.Game)
	}
	if cfg.Game.Recognizer != "mock" {
		t.Fatalf("expected recognizer override")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"max operand", func(c *Config) { c.Game.MaxOperand = 0 }, "game.max_operand"},
		{"advance delay", func(c *Config) { c.Game.AdvanceDelayMS = 0 }, "game.advance_delay_ms"},
		{"recognizer", func(c *Config) { c.Game.Recognizer = "telepathy" }, "game.recognizer"},
		{"retention", func(c *Config) { c.EventStore.RetentionMode = "persistent" }, "event_store.retention_mode"},
		{"stt exec", func(c *Config) { c.STT.Enabled = true; c.STT.Mode = "exec" }, "stt.command"},
		{"heartbeat", func(c *Config) { c.Node.HeartbeatTimeout = c.Node.HeartbeatInterval }, "heartbeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
