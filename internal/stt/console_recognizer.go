package stt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConsoleRecognizer treats each line read from an io.Reader as the
// transcript of one listen session. It lets the game run from a terminal
// without a speech backend.
//
// Lines typed while no session is open are queued for the next Start.
type ConsoleRecognizer struct {
	events  chan Event
	timeout time.Duration

	mu      sync.Mutex
	pending []string
	closed  bool
	active  *consoleListen
}

type consoleListen struct {
	id      string
	timer   *time.Timer
	release func() bool
}

// NewConsoleRecognizer starts reading r. A zero timeout waits indefinitely.
func NewConsoleRecognizer(r io.Reader, timeout time.Duration) *ConsoleRecognizer {
	c := &ConsoleRecognizer{
		events:  make(chan Event, 64),
		timeout: timeout,
	}
	go c.read(r)
	return c
}

// read owns the input. Each line goes to the open session or the queue,
// never to more than one session.
func (c *ConsoleRecognizer) read(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		c.deliver(sc.Text())
	}

	c.mu.Lock()
	c.closed = true
	l := c.detachLocked()
	c.mu.Unlock()
	if l != nil {
		c.events <- Event{Kind: EventSessionEnd, SessionID: l.id, Cause: CauseCanceled, Err: io.EOF}
	}
}

func (c *ConsoleRecognizer) deliver(line string) {
	c.mu.Lock()
	l := c.detachLocked()
	if l == nil {
		c.pending = append(c.pending, line)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.events <- Event{Kind: EventResult, SessionID: l.id, Text: line, Confidence: 1}
	c.events <- Event{Kind: EventSessionEnd, SessionID: l.id, Cause: CauseCompleted}
}

// Available fails once input is closed and every queued line was consumed.
func (c *ConsoleRecognizer) Available() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableLocked()
}

func (c *ConsoleRecognizer) availableLocked() error {
	if c.closed && len(c.pending) == 0 {
		return fmt.Errorf("%w: console input closed", ErrRecognitionUnavailable)
	}
	return nil
}

func (c *ConsoleRecognizer) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.availableLocked(); err != nil {
		return "", err
	}
	if prev := c.detachLocked(); prev != nil {
		offer(c.events, Event{Kind: EventSessionEnd, SessionID: prev.id, Cause: CauseCanceled})
	}

	id := uuid.NewString()
	if len(c.pending) > 0 {
		line := c.pending[0]
		c.pending = c.pending[1:]
		offer(c.events, Event{Kind: EventResult, SessionID: id, Text: line, Confidence: 1})
		offer(c.events, Event{Kind: EventSessionEnd, SessionID: id, Cause: CauseCompleted})
		return id, nil
	}

	l := &consoleListen{id: id}
	if c.timeout > 0 {
		l.timer = time.AfterFunc(c.timeout, func() { c.end(l, CauseTimedOut, nil) })
	}
	l.release = context.AfterFunc(ctx, func() { c.end(l, CauseCanceled, ctx.Err()) })
	c.active = l
	return id, nil
}

func (c *ConsoleRecognizer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l := c.detachLocked(); l != nil {
		offer(c.events, Event{Kind: EventSessionEnd, SessionID: l.id, Cause: CauseCanceled})
	}
	return nil
}

func (c *ConsoleRecognizer) Events() <-chan Event { return c.events }

// end closes l if it is still the open session.
func (c *ConsoleRecognizer) end(l *consoleListen, cause Cause, err error) {
	c.mu.Lock()
	if c.active != l {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.mu.Unlock()
	c.events <- Event{Kind: EventSessionEnd, SessionID: l.id, Cause: cause, Err: err}
}

// detachLocked clears and returns the open session. Must be called with c.mu held.
func (c *ConsoleRecognizer) detachLocked() *consoleListen {
	l := c.active
	if l == nil {
		return nil
	}
	c.active = nil
	if l.timer != nil {
		l.timer.Stop()
	}
	if l.release != nil {
		l.release()
	}
	return l
}
