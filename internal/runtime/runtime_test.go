package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/loqalabs/loqa-mathgame/internal/game"
	"github.com/loqalabs/loqa-mathgame/internal/protocol"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
	"github.com/nats-io/nats.go"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Bus.Port = -1
	cfg.STT.Enabled = true
	cfg.STT.ListenTimeoutMS = 5000
	cfg.Game.AdvanceDelayMS = 60000
	cfg.Game.DeviceID = "test-device"

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	r := New(cfg, logger)
	r.engine = stt.NewMockEngine("seven")

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.setup(ctx); err != nil {
		cancel()
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		if err := r.shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	r.ready.Store(true)
	return r
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRuntimeHealthEndpoints(t *testing.T) {
	r := newTestRuntime(t)

	if res := get(t, r.router, http.MethodGet, "/healthz"); res.Code != http.StatusOK {
		t.Fatalf("healthz: %d", res.Code)
	}
	if res := get(t, r.router, http.MethodGet, "/readyz"); res.Code != http.StatusOK {
		t.Fatalf("readyz: %d %s", res.Code, res.Body.String())
	}

	if res := get(t, r.router, http.MethodPost, "/game/new"); res.Code != http.StatusOK {
		t.Fatalf("new problem: %d", res.Code)
	}
	res := get(t, r.router, http.MethodGet, "/metrics")
	if res.Code != http.StatusOK {
		t.Fatalf("metrics: %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "mathgame_problems_generated") {
		t.Fatalf("expected game counter in metrics output")
	}
}

func TestRuntimeSpokenAnswerOverBus(t *testing.T) {
	r := newTestRuntime(t)

	controls := make(chan protocol.ListenControl, 4)
	sub, err := r.bus.Conn().Subscribe(protocol.SubjectListenPrefix+".test-device", func(msg *nats.Msg) {
		var ctrl protocol.ListenControl
		if err := json.Unmarshal(msg.Data, &ctrl); err == nil {
			controls <- ctrl
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := r.bus.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if res := get(t, r.router, http.MethodPost, "/game/listen"); res.Code != http.StatusAccepted {
		t.Fatalf("listen: %d %s", res.Code, res.Body.String())
	}

	var ctrl protocol.ListenControl
	select {
	case ctrl = <-controls:
	case <-time.After(3 * time.Second):
		t.Fatal("no listen control published")
	}
	if ctrl.Action != protocol.ListenActionStart || ctrl.DeviceID != "test-device" {
		t.Fatalf("unexpected control %+v", ctrl)
	}

	frame, _ := json.Marshal(protocol.AudioFrame{SessionID: ctrl.SessionID, SampleRate: 16000, Channels: 1, PCM: make([]byte, 64), Final: true})
	if err := r.bus.Conn().Publish(protocol.SubjectAudioFramePrefix+"."+ctrl.SessionID, frame); err != nil {
		t.Fatalf("publish frame: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		res := get(t, r.router, http.MethodGet, "/game/")
		var view game.View
		if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
			t.Fatalf("decode view: %v", err)
		}
		if view.Total == 1 && !view.Listening {
			if !strings.Contains(view.Result, "you said 7") && !strings.HasPrefix(view.Result, "Correct!") {
				t.Fatalf("unexpected result %q", view.Result)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("answer never evaluated, last view %+v", view)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRuntimePublishesGameView(t *testing.T) {
	r := newTestRuntime(t)

	views := make(chan protocol.GameView, 8)
	sub, err := r.bus.Conn().Subscribe(protocol.SubjectGameView, func(msg *nats.Msg) {
		var v protocol.GameView
		if err := json.Unmarshal(msg.Data, &v); err == nil {
			views <- v
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := r.bus.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if res := get(t, r.router, http.MethodPost, "/game/new"); res.Code != http.StatusOK {
		t.Fatalf("new problem: %d", res.Code)
	}

	select {
	case v := <-views:
		if v.SessionID != r.game.SessionID() || v.State != "awaiting_answer" || v.Problem == "" {
			t.Fatalf("unexpected view %+v", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no game view published")
	}
}
