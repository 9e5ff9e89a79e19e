package stt

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestConsoleRecognizerLinePerListen(t *testing.T) {
	c := NewConsoleRecognizer(strings.NewReader("twenty-nine\nfive\n"), 0)
	ctx := context.Background()

	for _, want := range []string{"twenty-nine", "five"} {
		id, err := c.Start(ctx)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		ev := nextEvent(t, c.Events())
		if ev.Kind != EventResult || ev.Text != want || ev.SessionID != id {
			t.Fatalf("expected result %q, got %+v", want, ev)
		}
		ev = nextEvent(t, c.Events())
		if ev.Kind != EventSessionEnd || ev.Cause != CauseCompleted {
			t.Fatalf("expected completed, got %+v", ev)
		}
	}

	// The reader is exhausted.
	if _, err := c.Start(ctx); err == nil {
		ev := nextEvent(t, c.Events())
		if ev.Kind != EventSessionEnd || !errors.Is(ev.Err, io.EOF) {
			t.Fatalf("expected end of input, got %+v", ev)
		}
	}
	deadline := time.Now().Add(time.Second)
	for c.Available() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := c.Available(); !errors.Is(err, ErrRecognitionUnavailable) {
		t.Fatalf("expected unavailable after EOF, got %v", err)
	}
}

func TestConsoleRecognizerTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c := NewConsoleRecognizer(pr, 20*time.Millisecond)

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := nextEvent(t, c.Events())
	if ev.Kind != EventSessionEnd || ev.Cause != CauseTimedOut {
		t.Fatalf("expected timeout, got %+v", ev)
	}
}

func TestConsoleRecognizerStop(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c := NewConsoleRecognizer(pr, 0)

	id, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	ev := nextEvent(t, c.Events())
	if ev.Kind != EventSessionEnd || ev.SessionID != id || ev.Cause != CauseCanceled {
		t.Fatalf("expected canceled, got %+v", ev)
	}
}

func TestConsoleRecognizerLineGoesToCurrentListen(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c := NewConsoleRecognizer(pr, 0)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		first, err := c.Start(ctx)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		second, err := c.Start(ctx)
		if err != nil {
			t.Fatalf("restart: %v", err)
		}
		if _, err := io.WriteString(pw, "seven\n"); err != nil {
			t.Fatalf("write: %v", err)
		}

		ev := nextEvent(t, c.Events())
		if ev.Kind != EventSessionEnd || ev.SessionID != first || ev.Cause != CauseCanceled {
			t.Fatalf("round %d: expected first listen canceled, got %+v", i, ev)
		}
		ev = nextEvent(t, c.Events())
		if ev.Kind != EventResult || ev.SessionID != second || ev.Text != "seven" {
			t.Fatalf("round %d: expected the line for the current listen, got %+v", i, ev)
		}
		ev = nextEvent(t, c.Events())
		if ev.Kind != EventSessionEnd || ev.SessionID != second || ev.Cause != CauseCompleted {
			t.Fatalf("round %d: expected completed, got %+v", i, ev)
		}
	}
}

func TestConsoleRecognizerQueuesTypeAhead(t *testing.T) {
	c := NewConsoleRecognizer(strings.NewReader("nine\n"), 0)

	deadline := time.Now().Add(time.Second)
	for {
		c.mu.Lock()
		queued := len(c.pending)
		c.mu.Unlock()
		if queued == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("line never queued")
		}
		time.Sleep(time.Millisecond)
	}
	if err := c.Available(); err != nil {
		t.Fatalf("queued input must keep the console available: %v", err)
	}

	id, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := nextEvent(t, c.Events())
	if ev.Kind != EventResult || ev.SessionID != id || ev.Text != "nine" {
		t.Fatalf("expected queued line, got %+v", ev)
	}
	if ev = nextEvent(t, c.Events()); ev.Kind != EventSessionEnd || ev.Cause != CauseCompleted {
		t.Fatalf("expected completed, got %+v", ev)
	}
	if err := c.Available(); !errors.Is(err, ErrRecognitionUnavailable) {
		t.Fatalf("expected unavailable once input is consumed, got %v", err)
	}
}

func TestConsoleRecognizerEOFEndsOpenListen(t *testing.T) {
	pr, pw := io.Pipe()
	c := NewConsoleRecognizer(pr, 0)

	id, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = pw.Close()
	ev := nextEvent(t, c.Events())
	if ev.Kind != EventSessionEnd || ev.SessionID != id || !errors.Is(ev.Err, io.EOF) {
		t.Fatalf("expected end of input, got %+v", ev)
	}
}
