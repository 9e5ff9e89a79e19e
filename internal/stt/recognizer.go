package stt

import (
	"context"
	"errors"
)

// ErrRecognitionUnavailable means no speech capability can be engaged.
var ErrRecognitionUnavailable = errors.New("speech recognition unavailable")

// TranscriptResult captures engine output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Engine abstracts batch transcription backends.
type Engine interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error)
}

// EventKind distinguishes recognizer notifications.
type EventKind int

const (
	// EventHypothesis carries partial text for display only.
	EventHypothesis EventKind = iota
	// EventResult carries the finalized transcript of a listen session.
	EventResult
	// EventSessionEnd closes a listen session with a Cause.
	EventSessionEnd
)

// Cause explains why a listen session ended.
type Cause string

const (
	CauseCompleted Cause = "completed"
	CauseTimedOut  Cause = "timed_out"
	CauseCanceled  Cause = "canceled"
	CauseOther     Cause = "other"
)

// ParseCause maps a wire value to a Cause, defaulting to CauseOther.
func ParseCause(s string) Cause {
	switch c := Cause(s); c {
	case CauseCompleted, CauseTimedOut, CauseCanceled:
		return c
	default:
		return CauseOther
	}
}

// Event is one notification from a Recognizer.
type Event struct {
	Kind       EventKind
	SessionID  string
	Text       string
	Confidence float64
	Cause      Cause
	Err        error
}

// Recognizer is the speech capability the game listens through.
//
// Start begins a listen session and returns its ID; starting while a session
// is active stops the prior one first. Events delivers hypotheses, at most
// one result and exactly one session end per started session. Start and Stop
// never block on Events, so the reader may call them from its own loop.
type Recognizer interface {
	Available() error
	Start(ctx context.Context) (string, error)
	Stop() error
	Events() <-chan Event
}

// offer queues ev without blocking and reports whether it was accepted.
func offer(events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	default:
		return false
	}
}
