package stt

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockRecognizer answers each listen session with the next scripted
// transcript. With Hold enabled, sessions stay open until Emit or Stop.
type MockRecognizer struct {
	mu          sync.Mutex
	events      chan Event
	script      []string
	active      string
	hold        bool
	unavailable error
	starts      int
}

func NewMockRecognizer(transcripts ...string) *MockRecognizer {
	return &MockRecognizer{
		events: make(chan Event, 64),
		script: append([]string(nil), transcripts...),
	}
}

// SetUnavailable makes Available and Start fail with err until cleared with nil.
func (m *MockRecognizer) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = err
}

// Hold keeps started sessions open instead of replaying the script.
func (m *MockRecognizer) Hold(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = hold
}

// Active returns the open session ID, if any.
func (m *MockRecognizer) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Starts reports how many sessions were started.
func (m *MockRecognizer) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockRecognizer) Available() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked()
}

func (m *MockRecognizer) availableLocked() error {
	if m.unavailable != nil {
		return fmt.Errorf("%w: %v", ErrRecognitionUnavailable, m.unavailable)
	}
	return nil
}

func (m *MockRecognizer) Start(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.availableLocked(); err != nil {
		return "", err
	}
	m.stopLocked()

	id := uuid.NewString()
	m.starts++
	if m.hold {
		m.active = id
		return id, nil
	}
	if len(m.script) == 0 {
		offer(m.events, Event{Kind: EventSessionEnd, SessionID: id, Cause: CauseTimedOut})
		return id, nil
	}
	text := m.script[0]
	m.script = m.script[1:]
	offer(m.events, Event{Kind: EventResult, SessionID: id, Text: text, Confidence: 1})
	offer(m.events, Event{Kind: EventSessionEnd, SessionID: id, Cause: CauseCompleted})
	return id, nil
}

func (m *MockRecognizer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	return nil
}

func (m *MockRecognizer) stopLocked() {
	if m.active == "" {
		return
	}
	offer(m.events, Event{Kind: EventSessionEnd, SessionID: m.active, Cause: CauseCanceled})
	m.active = ""
}

// Emit injects an event and blocks while the buffer is full. An empty
// SessionID targets the open session.
func (m *MockRecognizer) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.SessionID == "" {
		ev.SessionID = m.active
	}
	if ev.Kind == EventSessionEnd && ev.SessionID == m.active {
		m.active = ""
	}
	m.events <- ev
}

func (m *MockRecognizer) Events() <-chan Event { return m.events }
