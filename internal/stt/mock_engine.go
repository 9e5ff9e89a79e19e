package stt

import (
	"context"
	"sync"
)

// MockEngine returns canned transcripts in order, repeating the last one.
type MockEngine struct {
	mu      sync.Mutex
	answers []string
	calls   int
}

func NewMockEngine(answers ...string) *MockEngine {
	return &MockEngine{answers: answers}
}

func (m *MockEngine) Transcribe(ctx context.Context, pcm []byte, _ int, _ int, final bool) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.answers) == 0 || !final {
		return TranscriptResult{}, nil
	}
	idx := min(m.calls, len(m.answers)-1)
	m.calls++
	return TranscriptResult{Text: m.answers[idx], Confidence: 1}, nil
}
