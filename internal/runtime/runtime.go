package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/loqalabs/loqa-mathgame/internal/bus"
	"github.com/loqalabs/loqa-mathgame/internal/capability"
	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/loqalabs/loqa-mathgame/internal/eventstore"
	"github.com/loqalabs/loqa-mathgame/internal/game"
	"github.com/loqalabs/loqa-mathgame/internal/natsserver"
	"github.com/loqalabs/loqa-mathgame/internal/protocol"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	router        chi.Router
	telemetryStop func(context.Context) error
	metrics       http.Handler

	embedded   *natsserver.EmbeddedServer
	bus        *bus.Client
	registry   *capability.Registry
	store      *eventstore.Store
	engine     stt.Engine
	stt        *stt.Service
	busRec     *stt.BusRecognizer
	recognizer stt.Recognizer
	game       *game.Service

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the runtime up and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.setup(ctx); err != nil {
		return errors.Join(err, r.shutdown())
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if r.metrics != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := chi.NewRouter()
		mux.Handle("/metrics", r.metrics)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("game_session", r.game.SessionID()))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	return r.shutdown()
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(name+" server failed", slog.String("error", err.Error()))
		}
	}()
}

// setup wires every component but serves nothing.
func (r *Runtime) setup(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryStop = shutdownTelemetry
	r.metrics = metricsHandler

	busCfg := r.cfg.Bus
	r.embedded, err = natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if r.embedded != nil {
		busCfg.Servers = []string{r.embedded.ClientURL()}
	}

	r.bus, err = bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	nodeCfg := r.cfg.Node
	if r.cfg.STT.Enabled {
		nodeCfg.Capabilities = append(append([]config.NodeCapability(nil), nodeCfg.Capabilities...),
			config.NodeCapability{Name: protocol.CapabilitySpeechRecognizer, Attributes: map[string]string{"mode": r.cfg.STT.Mode}})
	}
	r.registry, err = capability.NewRegistry(ctx, nodeCfg, r.bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start capability registry: %w", err)
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}

	if r.cfg.STT.Enabled {
		if r.engine == nil {
			if r.engine, err = newEngine(r.cfg.STT); err != nil {
				return fmt.Errorf("failed to create stt engine: %w", err)
			}
		}
		r.stt = stt.NewService(ctx, r.cfg.STT, r.bus, r.engine, r.logger)
		if err := r.stt.Start(); err != nil {
			return fmt.Errorf("failed to start stt service: %w", err)
		}
	}

	r.recognizer, err = r.newRecognizer()
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}

	publisher := game.NewBusPublisher(r.bus)
	r.game = game.NewService(ctx, r.cfg.Game, r.recognizer, r.store, publisher, r.logger)
	if err := r.game.Start(); err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}

	r.router = r.newRouter()
	return nil
}

func newEngine(cfg config.STTConfig) (stt.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return stt.NewExecEngine(cfg)
	default:
		return stt.NewMockEngine(), nil
	}
}

func (r *Runtime) newRecognizer() (stt.Recognizer, error) {
	timeout := time.Duration(r.cfg.STT.ListenTimeoutMS) * time.Millisecond
	switch r.cfg.Game.Recognizer {
	case "console":
		return stt.NewConsoleRecognizer(os.Stdin, timeout), nil
	case "mock":
		return stt.NewMockRecognizer(), nil
	default:
		rec, err := stt.NewBusRecognizer(r.bus, r.cfg.Game.DeviceID, r.registry, r.logger)
		if err != nil {
			return nil, err
		}
		r.busRec = rec
		return rec, nil
	}
}

func (r *Runtime) newRouter() chi.Router {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(10 * time.Second))

	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)
	if r.metrics != nil {
		router.Handle("/metrics", r.metrics)
	}
	r.game.Mount(router)
	return router
}

// shutdown stops components in reverse order of setup.
func (r *Runtime) shutdown() error {
	r.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	r.wg.Wait()

	if r.game != nil {
		r.game.Close()
	}
	if r.busRec != nil {
		r.busRec.Close()
	}
	if r.stt != nil {
		r.stt.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event store close: %w", err))
		}
	}
	if r.registry != nil {
		r.registry.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.embedded.Shutdown()

	if r.telemetryStop != nil {
		if err := r.telemetryStop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) healthy() bool {
	if !r.bus.Healthy() || !r.registry.Healthy() || !r.game.Healthy() {
		return false
	}
	return r.stt == nil || r.stt.Healthy()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
