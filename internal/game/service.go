package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/loqalabs/loqa-mathgame/internal/eventstore"
	"github.com/loqalabs/loqa-mathgame/internal/numwords"
	"github.com/loqalabs/loqa-mathgame/internal/problem"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Timeline records what happened during a game.
type Timeline interface {
	AppendSession(ctx context.Context, sessionID, deviceID string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]eventstore.Event, error)
}

// ViewPublisher receives the view after every change.
type ViewPublisher interface {
	PublishView(ctx context.Context, view View) error
}

const (
	eventProblemPosted      = "problem_posted"
	eventAnswerEvaluated    = "answer_evaluated"
	eventAnswerUnrecognized = "answer_unrecognized"
	eventListenStarted      = "listen_started"
	eventListenEnded        = "listen_ended"
)

type commandKind int

const (
	cmdNewProblem commandKind = iota
	cmdStartListening
	cmdStopListening
	cmdSubmit
	cmdView
)

type command struct {
	kind  commandKind
	text  string
	reply chan reply
}

type reply struct {
	view    View
	outcome Outcome
	err     error
}

type gameMetrics struct {
	answers      metric.Int64Counter
	correct      metric.Int64Counter
	unrecognized metric.Int64Counter
	problems     metric.Int64Counter
}

// Service owns one Session and feeds it commands, recognizer events and the
// auto-advance timer from a single goroutine.
type Service struct {
	cfg        config.GameConfig
	recognizer stt.Recognizer
	timeline   Timeline
	publisher  ViewPublisher
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    gameMetrics
	source     problem.Source
	id         string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cmds    chan command
	started atomic.Bool

	// Owned by the run loop.
	session     *Session
	listenID    string
	resultTaken bool
	advance     *time.Timer
	advanceC    <-chan time.Time
}

// NewService builds the game. recognizer, timeline and publisher may be nil.
func NewService(parent context.Context, cfg config.GameConfig, recognizer stt.Recognizer, timeline Timeline, publisher ViewPublisher, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        cfg,
		recognizer: recognizer,
		timeline:   timeline,
		publisher:  publisher,
		logger:     logger.With(slog.String("component", "game")),
		tracer:     otel.Tracer("github.com/loqalabs/loqa-mathgame/game"),
		id:         uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan command),
	}
	if err := s.initMetrics(otel.Meter("github.com/loqalabs/loqa-mathgame/game")); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
		_ = s.initMetrics(noop.NewMeterProvider().Meter(""))
	}
	return s
}

// SessionID identifies this game on the timeline and the bus.
func (s *Service) SessionID() string { return s.id }

func (s *Service) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("game service already started")
	}

	gen := problem.NewGenerator(problem.Config{
		MaxOperand:      s.cfg.MaxOperand,
		IncludeMultiply: s.cfg.IncludeMultiply,
	}, s.source)
	s.session = NewSession(gen, numwords.NewParser(numwords.DefaultLexicon()))

	if s.timeline != nil {
		if err := s.timeline.AppendSession(s.ctx, s.id, s.cfg.DeviceID); err != nil {
			s.logger.Warn("failed to record game session", slogError(err))
		}
	}

	var events <-chan stt.Event
	if s.recognizer != nil {
		events = s.recognizer.Events()
	}
	s.wg.Add(1)
	go s.run(events)
	s.logger.Info("game started", slog.String("session_id", s.id))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.started.Load() && s.ctx.Err() == nil
}

// RequestNewProblem poses a new problem, superseding any pending auto-advance.
func (s *Service) RequestNewProblem(ctx context.Context) (View, error) {
	r, err := s.do(ctx, command{kind: cmdNewProblem})
	return r.view, err
}

// StartListening opens a recognition session for the current problem,
// stopping any session already open.
func (s *Service) StartListening(ctx context.Context) (View, error) {
	r, err := s.do(ctx, command{kind: cmdStartListening})
	return r.view, err
}

func (s *Service) StopListening(ctx context.Context) (View, error) {
	r, err := s.do(ctx, command{kind: cmdStopListening})
	return r.view, err
}

// SubmitTranscript evaluates text as if it had been recognized.
func (s *Service) SubmitTranscript(ctx context.Context, text string) (Outcome, View, error) {
	r, err := s.do(ctx, command{kind: cmdSubmit, text: text})
	return r.outcome, r.view, err
}

func (s *Service) View(ctx context.Context) (View, error) {
	r, err := s.do(ctx, command{kind: cmdView})
	return r.view, err
}

// History lists the timeline of this game.
func (s *Service) History(ctx context.Context, limit int) ([]eventstore.Event, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.ListSessionEvents(ctx, s.id, limit)
}

func (s *Service) do(ctx context.Context, cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-s.ctx.Done():
		return reply{}, errors.New("game service closed")
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (s *Service) run(events <-chan stt.Event) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.stopAdvance()
			if s.listenID != "" && s.recognizer != nil {
				_ = s.recognizer.Stop()
			}
			return
		case cmd := <-s.cmds:
			cmd.reply <- s.handleCommand(cmd)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleRecognizerEvent(ev)
		case <-s.advanceC:
			s.advance = nil
			s.advanceC = nil
			s.newProblem("auto")
		}
	}
}

func (s *Service) handleCommand(cmd command) reply {
	var r reply
	switch cmd.kind {
	case cmdNewProblem:
		s.newProblem("manual")
	case cmdStartListening:
		r.err = s.startListening()
		s.publishView()
	case cmdStopListening:
		s.stopListening(StatusCanceled)
		s.publishView()
	case cmdSubmit:
		r.outcome, r.err = s.submit(cmd.text, "manual")
	}
	r.view = s.view()
	return r
}

func (s *Service) newProblem(reason string) {
	s.stopAdvance()
	// A result still in flight belongs to the previous problem.
	s.stopListening("")

	p := s.session.RequestNewProblem()
	s.metrics.problems.Add(s.ctx, 1, metric.WithAttributes(attribute.String("operator", p.Op.String())))
	s.record(eventProblemPosted, map[string]any{"problem": p, "reason": reason})
	s.logger.Debug("problem posted", slog.String("problem", p.String()), slog.String("reason", reason))

	if s.cfg.AutoListen && s.recognizer != nil {
		if err := s.startListening(); err != nil {
			s.logger.Debug("auto listen unavailable", slogError(err))
		}
	}
	s.publishView()
}

func (s *Service) startListening() error {
	if s.recognizer == nil {
		s.session.SetStatus(StatusUnavailable)
		return stt.ErrRecognitionUnavailable
	}
	if err := s.recognizer.Available(); err != nil {
		s.session.SetStatus(StatusUnavailable)
		return err
	}
	switch s.session.State() {
	case StateIdle:
		s.newProblemQuiet()
	case StateEvaluated:
		return ErrNotAwaitingAnswer
	}
	// A restart replaces the open session; close it on the timeline first.
	s.stopListening("")

	id, err := s.recognizer.Start(s.ctx)
	if err != nil {
		s.listenID = ""
		if errors.Is(err, stt.ErrRecognitionUnavailable) {
			s.session.SetStatus(StatusUnavailable)
		} else {
			s.session.SessionEnded(stt.CauseOther, err)
		}
		return fmt.Errorf("start listening: %w", err)
	}
	s.listenID = id
	s.resultTaken = false
	s.session.SetStatus(StatusListening)
	s.record(eventListenStarted, map[string]any{"listen_id": id})
	return nil
}

// newProblemQuiet posts the first problem when listening is requested from
// Idle, without recursing into auto-listen.
func (s *Service) newProblemQuiet() {
	p := s.session.RequestNewProblem()
	s.metrics.problems.Add(s.ctx, 1, metric.WithAttributes(attribute.String("operator", p.Op.String())))
	s.record(eventProblemPosted, map[string]any{"problem": p, "reason": "listen"})
}

// stopListening closes the open listen session. Its late events no longer
// match listenID and are dropped.
func (s *Service) stopListening(status string) {
	if s.listenID == "" {
		return
	}
	id := s.listenID
	s.listenID = ""
	if err := s.recognizer.Stop(); err != nil {
		s.logger.Warn("failed to stop recognizer", slogError(err))
	}
	s.record(eventListenEnded, map[string]any{"listen_id": id, "cause": stt.CauseCanceled})
	if status != "" {
		s.session.SetStatus(status)
	}
}

func (s *Service) handleRecognizerEvent(ev stt.Event) {
	if ev.SessionID == "" || ev.SessionID != s.listenID {
		s.logger.Debug("dropping stale recognizer event", slog.String("listen_id", ev.SessionID))
		return
	}
	switch ev.Kind {
	case stt.EventHypothesis:
		// Display only.
		if ev.Text != "" {
			s.session.SetStatus(fmt.Sprintf("Hearing %q", ev.Text))
			s.publishView()
		}
	case stt.EventResult:
		if s.resultTaken {
			return
		}
		s.resultTaken = true
		if _, err := s.submit(ev.Text, "speech"); err != nil {
			s.logger.Debug("transcript ignored", slogError(err))
		}
	case stt.EventSessionEnd:
		s.listenID = ""
		s.session.SessionEnded(ev.Cause, ev.Err)
		if ev.Cause == stt.CauseCompleted && !s.resultTaken && s.session.State() == StateAwaitingAnswer {
			s.session.SetStatus(StatusNoAnswer)
		}
		attrs := map[string]any{"listen_id": ev.SessionID, "cause": ev.Cause}
		if ev.Err != nil {
			attrs["error"] = ev.Err.Error()
			s.logger.Warn("recognition session failed", slogError(ev.Err))
		}
		s.record(eventListenEnded, attrs)
		s.publishView()
	}
}

func (s *Service) submit(text, source string) (Outcome, error) {
	ctx, span := s.tracer.Start(s.ctx, "game.evaluate_transcript",
		trace.WithAttributes(attribute.String("mathgame.source", source)))
	defer span.End()

	out, err := s.session.SubmitTranscript(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	span.SetAttributes(attribute.Bool("mathgame.recognized", out.Recognized))

	if !out.Recognized {
		s.metrics.unrecognized.Add(ctx, 1)
		s.record(eventAnswerUnrecognized, map[string]any{"text": text, "source": source})
		s.publishView()
		return out, nil
	}

	span.SetAttributes(
		attribute.Int("mathgame.value", out.Value),
		attribute.Bool("mathgame.correct", out.Correct),
	)
	s.metrics.answers.Add(ctx, 1)
	if out.Correct {
		s.metrics.correct.Add(ctx, 1)
	}
	s.record(eventAnswerEvaluated, map[string]any{
		"problem": out.Problem,
		"value":   out.Value,
		"correct": out.Correct,
		"score":   s.session.Score(),
		"source":  source,
	})
	if source == "manual" {
		s.stopListening("")
	}
	s.logger.Info("answer evaluated",
		slog.String("problem", out.Problem.String()),
		slog.Int("value", out.Value),
		slog.Bool("correct", out.Correct),
		slog.String("score", s.session.Score().String()),
	)
	s.scheduleAdvance()
	s.publishView()
	return out, nil
}

func (s *Service) scheduleAdvance() {
	s.stopAdvance()
	s.advance = time.NewTimer(time.Duration(s.cfg.AdvanceDelayMS) * time.Millisecond)
	s.advanceC = s.advance.C
}

func (s *Service) stopAdvance() {
	if s.advance != nil {
		s.advance.Stop()
	}
	s.advance = nil
	s.advanceC = nil
}

func (s *Service) view() View {
	v := s.session.View()
	v.SessionID = s.id
	v.Listening = s.listenID != ""
	v.ListeningEnabled = s.recognizer != nil && s.recognizer.Available() == nil
	return v
}

func (s *Service) publishView() {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishView(s.ctx, s.view()); err != nil {
		s.logger.Warn("failed to publish game view", slogError(err))
	}
}

func (s *Service) record(eventType string, payload any) {
	if s.timeline == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode timeline event", slogError(err))
		return
	}
	if err := s.timeline.AppendEvent(s.ctx, eventstore.Event{SessionID: s.id, Type: eventType, Payload: data}); err != nil {
		s.logger.Warn("failed to record timeline event", slog.String("type", eventType), slogError(err))
	}
}

func (s *Service) initMetrics(meter metric.Meter) error {
	var err error
	var errs []error
	s.metrics.answers, err = meter.Int64Counter("mathgame.answers.total", metric.WithDescription("Evaluated answers"))
	errs = append(errs, err)
	s.metrics.correct, err = meter.Int64Counter("mathgame.answers.correct", metric.WithDescription("Correct answers"))
	errs = append(errs, err)
	s.metrics.unrecognized, err = meter.Int64Counter("mathgame.answers.unrecognized", metric.WithDescription("Transcripts without a number"))
	errs = append(errs, err)
	s.metrics.problems, err = meter.Int64Counter("mathgame.problems.generated", metric.WithDescription("Problems posed"))
	errs = append(errs, err)
	return errors.Join(errs...)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
