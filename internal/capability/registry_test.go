package capability

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/loqalabs/loqa-mathgame/internal/protocol"
)

func newTestRegistry(now *time.Time) *Registry {
	return &Registry{
		cfg:   config.NodeConfig{ID: "self", HeartbeatInterval: 1000, HeartbeatTimeout: 3000},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock: func() time.Time { return *now },
		nodes: make(map[string]*NodeInfo),
	}
}

func TestAvailableTracksSpeechNodes(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRegistry(&now)

	if r.Available(protocol.CapabilitySpeechRecognizer) {
		t.Fatalf("expected no speech capability before any announce")
	}

	r.updateNode("edge-1", "speech", []Capability{{Name: protocol.CapabilitySpeechRecognizer}}, now)
	r.updateNode("self", "game", []Capability{{Name: "game.arithmetic"}}, now)
	if !r.Available(protocol.CapabilitySpeechRecognizer) {
		t.Fatalf("expected speech capability after announce")
	}
	if !r.Healthy() {
		t.Fatalf("expected self to be healthy")
	}

	now = now.Add(5 * time.Second)
	r.evaluateHealth()
	if r.Available(protocol.CapabilitySpeechRecognizer) {
		t.Fatalf("expected stale speech node to be unavailable")
	}

	// a heartbeat revives the node and keeps its capabilities
	r.updateNode("edge-1", "", nil, now)
	if !r.Available(protocol.CapabilitySpeechRecognizer) {
		t.Fatalf("expected heartbeat to restore availability")
	}
}

func TestQueryFilter(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.updateNode("a", "speech", []Capability{{Name: protocol.CapabilitySpeechRecognizer}}, now)
	r.updateNode("b", "game", []Capability{{Name: "game.arithmetic"}}, now)
	r.updateNode("", "ghost", nil, now)

	if got := len(r.Query(nil)); got != 2 {
		t.Fatalf("expected 2 nodes, got %d", got)
	}
	nodes := r.Query(WithCapabilityFilter("game.arithmetic"))
	if len(nodes) != 1 || nodes[0].ID != "b" {
		t.Fatalf("unexpected filter result %+v", nodes)
	}
}

func TestConvertCapabilities(t *testing.T) {
	if convertCapabilities(nil) != nil {
		t.Fatalf("expected nil for empty config")
	}
	caps := convertCapabilities([]config.NodeCapability{{Name: "x", Tier: "fast", Attributes: map[string]string{"k": "v"}}})
	if len(caps) != 1 || caps[0].Name != "x" || caps[0].Attributes["k"] != "v" {
		t.Fatalf("unexpected conversion %+v", caps)
	}
}
