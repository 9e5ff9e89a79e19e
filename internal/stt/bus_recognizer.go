package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-mathgame/internal/bus"
	"github.com/loqalabs/loqa-mathgame/internal/protocol"
	"github.com/nats-io/nats.go"
)

// CapabilityName is advertised by nodes that run the speech Service.
const CapabilityName = protocol.CapabilitySpeechRecognizer

// Discovery reports whether a healthy node advertises a capability.
type Discovery interface {
	Available(capability string) bool
}

// BusRecognizer drives a remote speech capability over the bus: it publishes
// listen control for a device and relays transcripts and session ends for
// the active listen session.
type BusRecognizer struct {
	bus       *bus.Client
	deviceID  string
	discovery Discovery
	logger    *slog.Logger
	events    chan Event
	sub       *nats.Subscription

	mu     sync.Mutex
	active string
}

// NewBusRecognizer subscribes to the stt subjects. A nil discovery skips
// the capability check in Available.
func NewBusRecognizer(busClient *bus.Client, deviceID string, discovery Discovery, logger *slog.Logger) (*BusRecognizer, error) {
	r := &BusRecognizer{
		bus:       busClient,
		deviceID:  deviceID,
		discovery: discovery,
		logger:    logger.With(slog.String("component", "bus-recognizer")),
		events:    make(chan Event, 64),
	}
	// One subscription keeps a session's transcript ahead of its end.
	sub, err := busClient.Conn().Subscribe("stt.>", r.dispatch)
	if err != nil {
		return nil, fmt.Errorf("subscribe stt subjects: %w", err)
	}
	r.sub = sub
	if err := busClient.Conn().Flush(); err != nil {
		r.Close()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}
	return r, nil
}

func (r *BusRecognizer) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}

func (r *BusRecognizer) dispatch(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.SubjectTranscriptFinal:
		r.handleFinal(msg)
	case protocol.SubjectTranscriptPartial:
		r.handlePartial(msg)
	case protocol.SubjectSessionEnd:
		r.handleSessionEnd(msg)
	}
}

func (r *BusRecognizer) Available() error {
	if !r.bus.Healthy() {
		return fmt.Errorf("%w: bus disconnected", ErrRecognitionUnavailable)
	}
	if r.discovery != nil && !r.discovery.Available(CapabilityName) {
		return fmt.Errorf("%w: no node advertises %s", ErrRecognitionUnavailable, CapabilityName)
	}
	return nil
}

func (r *BusRecognizer) Start(_ context.Context) (string, error) {
	if err := r.Available(); err != nil {
		return "", err
	}
	if err := r.Stop(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.active = id
	r.mu.Unlock()

	if err := r.publishControl(id, protocol.ListenActionStart); err != nil {
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
		return "", err
	}
	return id, nil
}

// Stop cancels the active session and reports its end immediately.
func (r *BusRecognizer) Stop() error {
	r.mu.Lock()
	id := r.active
	r.active = ""
	r.mu.Unlock()
	if id == "" {
		return nil
	}
	err := r.publishControl(id, protocol.ListenActionStop)
	if !offer(r.events, Event{Kind: EventSessionEnd, SessionID: id, Cause: CauseCanceled}) {
		r.logger.Warn("event buffer full, cancel dropped", slog.String("session_id", id))
	}
	return err
}

func (r *BusRecognizer) Events() <-chan Event { return r.events }

func (r *BusRecognizer) publishControl(sessionID, action string) error {
	data, err := json.Marshal(protocol.ListenControl{
		SessionID: sessionID,
		DeviceID:  r.deviceID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	subject := protocol.SubjectListenPrefix + "." + r.deviceID
	if err := r.bus.Conn().Publish(subject, data); err != nil {
		return fmt.Errorf("publish listen %s: %w", action, err)
	}
	return nil
}

func (r *BusRecognizer) isActive(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sessionID != "" && sessionID == r.active
}

func (r *BusRecognizer) handleFinal(msg *nats.Msg) {
	var t protocol.Transcript
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		r.logger.Warn("failed to decode transcript", slogError(err))
		return
	}
	if !r.isActive(t.SessionID) {
		return
	}
	r.events <- Event{Kind: EventResult, SessionID: t.SessionID, Text: t.Text, Confidence: t.Confidence}
}

func (r *BusRecognizer) handlePartial(msg *nats.Msg) {
	var t protocol.Transcript
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		r.logger.Warn("failed to decode partial transcript", slogError(err))
		return
	}
	if !r.isActive(t.SessionID) {
		return
	}
	r.events <- Event{Kind: EventHypothesis, SessionID: t.SessionID, Text: t.Text, Confidence: t.Confidence}
}

func (r *BusRecognizer) handleSessionEnd(msg *nats.Msg) {
	var end protocol.SessionEnd
	if err := json.Unmarshal(msg.Data, &end); err != nil {
		r.logger.Warn("failed to decode session end", slogError(err))
		return
	}
	r.mu.Lock()
	if end.SessionID == "" || end.SessionID != r.active {
		r.mu.Unlock()
		return
	}
	r.active = ""
	r.mu.Unlock()

	ev := Event{Kind: EventSessionEnd, SessionID: end.SessionID, Cause: ParseCause(end.Cause)}
	if end.Error != "" {
		ev.Err = errors.New(end.Error)
	}
	r.events <- ev
}
