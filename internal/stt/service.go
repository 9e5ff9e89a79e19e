package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-mathgame/internal/bus"
	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/loqalabs/loqa-mathgame/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service is the bus side of the speech capability: it buffers audio frames
// per listen session, runs the Engine and publishes transcripts and
// session-end causes.
type Service struct {
	cfg      config.STTConfig
	bus      *bus.Client
	engine   Engine
	logger   *slog.Logger
	sessions map[string]*listenState
	ended    map[string]time.Time
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	subs     []*nats.Subscription
	wg       sync.WaitGroup
	ready    bool
}

// endedTTL is how long frames for a finished session are still recognized
// as late and dropped.
const endedTTL = 5 * time.Minute

type listenState struct {
	Buffer       []byte
	LastPartial  time.Time
	Inflight     bool
	PendingFinal bool
	Finalizing   bool
	deadline     *time.Timer
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, engine Engine, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		engine:   engine,
		logger:   logger.With(slog.String("component", "stt")),
		sessions: make(map[string]*listenState),
		ended:    make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	frames, err := s.bus.Conn().Subscribe(protocol.SubjectAudioFramePrefix+".>", s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.subs = append(s.subs, frames)

	control, err := s.bus.Conn().Subscribe(protocol.SubjectListenPrefix+".*", s.handleControl)
	if err != nil {
		_ = frames.Drain()
		return fmt.Errorf("subscribe listen control: %w", err)
	}
	s.subs = append(s.subs, control)
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.mu.Lock()
	for id, state := range s.sessions {
		if state.deadline != nil {
			state.deadline.Stop()
		}
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleControl(msg *nats.Msg) {
	var ctrl protocol.ListenControl
	if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
		s.logger.Warn("failed to decode listen control", slogError(err))
		return
	}
	switch ctrl.Action {
	case protocol.ListenActionStart:
		s.mu.Lock()
		state := s.ensureSession(ctrl.SessionID)
		s.mu.Unlock()
		if state == nil {
			s.logger.Debug("listen start for finished session ignored", slog.String("session_id", ctrl.SessionID))
			return
		}
		s.logger.Debug("listen session started", slog.String("session_id", ctrl.SessionID), slog.String("device_id", ctrl.DeviceID))
	case protocol.ListenActionStop:
		s.endSession(ctrl.SessionID, CauseCanceled, nil)
	default:
		s.logger.Warn("unknown listen action", slog.String("action", ctrl.Action))
	}
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode audio frame", slogError(err))
		return
	}

	s.mu.Lock()
	state := s.ensureSession(frame.SessionID)
	if state == nil {
		s.mu.Unlock()
		s.logger.Debug("late audio frame dropped", slog.String("session_id", frame.SessionID))
		return
	}
	if state.Finalizing {
		s.mu.Unlock()
		return
	}
	state.Buffer = append(state.Buffer, frame.PCM...)
	if frame.Final {
		state.Finalizing = true
		if state.deadline != nil {
			state.deadline.Stop()
		}
	}
	s.mu.Unlock()

	if s.cfg.PublishInterim && !frame.Final && s.shouldSchedulePartial(frame.SessionID) {
		s.scheduleTranscription(frame.SessionID, false)
	}
	if frame.Final {
		s.scheduleTranscription(frame.SessionID, true)
	}
}

// ensureSession returns the live state for sessionID, creating it on first
// use. It returns nil for a session that already ended. Must be called with
// s.mu held.
func (s *Service) ensureSession(sessionID string) *listenState {
	state := s.sessions[sessionID]
	if state != nil {
		return state
	}
	if _, done := s.ended[sessionID]; done {
		return nil
	}
	state = &listenState{}
	if timeout := time.Duration(s.cfg.ListenTimeoutMS) * time.Millisecond; timeout > 0 {
		state.deadline = time.AfterFunc(timeout, func() {
			s.endSession(sessionID, CauseTimedOut, nil)
		})
	}
	s.sessions[sessionID] = state
	return state
}

// endSession drops a session that has not started its final transcription
// and announces the cause.
func (s *Service) endSession(sessionID string, cause Cause, err error) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil || state.Finalizing {
		s.mu.Unlock()
		return
	}
	if state.deadline != nil {
		state.deadline.Stop()
	}
	s.finishLocked(sessionID)
	s.mu.Unlock()

	s.publishSessionEnd(sessionID, cause, err)
}

// finishLocked removes a session and remembers it as ended so late frames
// cannot revive it. Must be called with s.mu held.
func (s *Service) finishLocked(sessionID string) {
	delete(s.sessions, sessionID)
	now := time.Now()
	for id, at := range s.ended {
		if now.Sub(at) > endedTTL {
			delete(s.ended, id)
		}
	}
	s.ended[sessionID] = now
}

func (s *Service) shouldSchedulePartial(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	if state == nil || state.Inflight {
		return false
	}
	if state.LastPartial.IsZero() {
		state.LastPartial = time.Now()
		return true
	}
	interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 {
		return false
	}
	if time.Since(state.LastPartial) >= interval {
		state.LastPartial = time.Now()
		return true
	}
	return false
}

func (s *Service) scheduleTranscription(sessionID string, final bool) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	if state.Inflight {
		if final {
			state.PendingFinal = true
		}
		s.mu.Unlock()
		return
	}
	pcm := append([]byte(nil), state.Buffer...)
	state.Inflight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
		defer cancel()

		result, err := s.engine.Transcribe(ctx, pcm, s.cfg.SampleRate, s.cfg.Channels, final)
		switch {
		case err != nil && final:
			s.logger.Warn("stt transcription failed", slogError(err))
			s.publishSessionEnd(sessionID, CauseOther, err)
		case err != nil:
			s.logger.Debug("stt partial transcription failed", slogError(err))
		case final:
			s.publishTranscript(sessionID, result.Text, result.Confidence, true)
			s.publishSessionEnd(sessionID, CauseCompleted, nil)
		default:
			s.publishTranscript(sessionID, result.Text, result.Confidence, false)
		}

		s.mu.Lock()
		var pendingFinal bool
		if state := s.sessions[sessionID]; state != nil {
			state.Inflight = false
			pendingFinal = state.PendingFinal
			if final {
				s.finishLocked(sessionID)
			} else {
				state.LastPartial = time.Now()
			}
		}
		s.mu.Unlock()

		if pendingFinal && !final {
			s.scheduleTranscription(sessionID, true)
		}
	}()
}

func (s *Service) publishTranscript(sessionID, text string, confidence float64, final bool) {
	if text == "" {
		return
	}
	subject := protocol.SubjectTranscriptPartial
	if final {
		subject = protocol.SubjectTranscriptFinal
	}
	s.publish(subject, protocol.Transcript{
		SessionID:  sessionID,
		Text:       text,
		Partial:    !final,
		Timestamp:  time.Now().UTC(),
		Confidence: confidence,
	})
}

func (s *Service) publishSessionEnd(sessionID string, cause Cause, err error) {
	msg := protocol.SessionEnd{
		SessionID: sessionID,
		Cause:     string(cause),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	s.publish(protocol.SubjectSessionEnd, msg)
}

func (s *Service) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal stt message", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish stt message", slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
