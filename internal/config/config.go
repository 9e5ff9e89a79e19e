package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	Game        GameConfig       `yaml:"game"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string           `yaml:"id"`
	Role              string           `yaml:"role"`
	HeartbeatInterval int              `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int              `yaml:"heartbeat_timeout_ms"`
	Capabilities      []NodeCapability `yaml:"capabilities"`
}

type NodeCapability struct {
	Name       string            `yaml:"name"`
	Tier       string            `yaml:"tier"`
	Attributes map[string]string `yaml:"attributes"`
}

// EventStoreConfig controls the in-process game timeline. Nothing is
// written to disk: "session" keeps the timeline in memory until exit,
// "ephemeral" keeps nothing.
type EventStoreConfig struct {
	RetentionMode string `yaml:"retention_mode"`
	MaxSessions   int    `yaml:"max_sessions"`
}

type STTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	ModelPath       string `yaml:"model_path"`
	Language        string `yaml:"language"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	PartialEveryMS  int    `yaml:"partial_every_ms"`
	PublishInterim  bool   `yaml:"publish_interim"`
	ListenTimeoutMS int    `yaml:"listen_timeout_ms"`
}

type GameConfig struct {
	MaxOperand      int    `yaml:"max_operand"`
	IncludeMultiply bool   `yaml:"include_multiply"`
	AdvanceDelayMS  int    `yaml:"advance_delay_ms"`
	AutoListen      bool   `yaml:"auto_listen"`
	Recognizer      string `yaml:"recognizer"` // bus, console, mock
	DeviceID        string `yaml:"device_id"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-mathgame",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "mathgame-node-1",
			Role:              "game",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
			Capabilities: []NodeCapability{
				{Name: "game.arithmetic", Tier: "balanced"},
			},
		},
		EventStore: EventStoreConfig{
			RetentionMode: "session",
			MaxSessions:   100,
		},
		STT: STTConfig{
			Enabled:         false,
			Mode:            "mock",
			SampleRate:      16000,
			Channels:        1,
			PartialEveryMS:  800,
			ListenTimeoutMS: 8000,
		},
		Game: GameConfig{
			MaxOperand:     10,
			AdvanceDelayMS: 1500,
			Recognizer:     "bus",
			DeviceID:       "default",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "MATHGAME_RUNTIME_NAME")
	overrideString(&cfg.Environment, "MATHGAME_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "MATHGAME_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MATHGAME_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MATHGAME_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MATHGAME_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MATHGAME_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "MATHGAME_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "MATHGAME_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MATHGAME_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MATHGAME_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MATHGAME_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MATHGAME_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MATHGAME_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MATHGAME_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MATHGAME_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "MATHGAME_NODE_ID")
	overrideString(&cfg.Node.Role, "MATHGAME_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "MATHGAME_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "MATHGAME_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.RetentionMode, "MATHGAME_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.MaxSessions, "MATHGAME_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.STT.Enabled, "MATHGAME_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "MATHGAME_STT_MODE")
	overrideString(&cfg.STT.Command, "MATHGAME_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "MATHGAME_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "MATHGAME_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "MATHGAME_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "MATHGAME_STT_CHANNELS")
	overrideInt(&cfg.STT.PartialEveryMS, "MATHGAME_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.STT.PublishInterim, "MATHGAME_STT_PUBLISH_INTERIM")
	overrideInt(&cfg.STT.ListenTimeoutMS, "MATHGAME_STT_LISTEN_TIMEOUT_MS")
	overrideInt(&cfg.Game.MaxOperand, "MATHGAME_GAME_MAX_OPERAND")
	overrideBool(&cfg.Game.IncludeMultiply, "MATHGAME_GAME_INCLUDE_MULTIPLY")
	overrideInt(&cfg.Game.AdvanceDelayMS, "MATHGAME_GAME_ADVANCE_DELAY_MS")
	overrideBool(&cfg.Game.AutoListen, "MATHGAME_GAME_AUTO_LISTEN")
	overrideString(&cfg.Game.Recognizer, "MATHGAME_GAME_RECOGNIZER")
	overrideString(&cfg.Game.DeviceID, "MATHGAME_GAME_DEVICE_ID")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session")
	}
	if cfg.EventStore.MaxSessions < 0 {
		return errors.New("event_store.max_sessions must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.ListenTimeoutMS < 0 {
			return errors.New("stt.listen_timeout_ms must be >= 0")
		}
	}
	if cfg.Game.MaxOperand < 1 {
		return errors.New("game.max_operand must be >= 1")
	}
	if cfg.Game.AdvanceDelayMS <= 0 {
		return errors.New("game.advance_delay_ms must be positive")
	}
	switch cfg.Game.Recognizer {
	case "bus", "console", "mock":
	default:
		return errors.New("game.recognizer must be one of bus|console|mock")
	}
	if cfg.Game.Recognizer == "bus" && cfg.Game.DeviceID == "" {
		return errors.New("game.device_id must be set when recognizer=bus")
	}
	return nil
}
