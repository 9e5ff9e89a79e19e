package game

import (
	"errors"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-mathgame/internal/problem"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
)

// fixedSource replays values modulo n.
type fixedSource struct {
	values []int
	i      int
}

func (s *fixedSource) IntN(n int) int {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v % n
}

// 3 + 7 = 10 on every call.
func addSource() *fixedSource { return &fixedSource{values: []int{0, 2, 6}} }

func newTestSession() *Session {
	gen := problem.NewGenerator(problem.Config{MaxOperand: 10}, addSource())
	return NewSession(gen, nil)
}

func TestSessionStartsIdle(t *testing.T) {
	s := newTestSession()
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %v", s.State())
	}
	if _, err := s.SubmitTranscript("10"); !errors.Is(err, ErrNotAwaitingAnswer) {
		t.Fatalf("expected ErrNotAwaitingAnswer, got %v", err)
	}
	v := s.View()
	if v.Problem != "" || v.Score != "0/0" {
		t.Fatalf("unexpected idle view: %+v", v)
	}
}

func TestSessionScoreAccounting(t *testing.T) {
	s := newTestSession()

	tests := []struct {
		text        string
		recognized  bool
		correct     bool
		wantScore   string
		wantState   State
		wantSuccess bool
	}{
		{"ten", true, true, "1/1", StateEvaluated, true},
		{"I think it's 9", true, false, "1/2", StateEvaluated, false},
		{"hello world", false, false, "1/2", StateAwaitingAnswer, false},
		{"", false, false, "1/2", StateAwaitingAnswer, false},
		{"10!", true, true, "2/3", StateEvaluated, true},
	}
	for _, tt := range tests {
		if s.State() != StateAwaitingAnswer {
			s.RequestNewProblem()
		}
		out, err := s.SubmitTranscript(tt.text)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.text, err)
		}
		if out.Recognized != tt.recognized || out.Correct != tt.correct {
			t.Fatalf("%q: unexpected outcome %+v", tt.text, out)
		}
		if got := s.Score().String(); got != tt.wantScore {
			t.Fatalf("%q: expected score %s, got %s", tt.text, tt.wantScore, got)
		}
		if s.State() != tt.wantState {
			t.Fatalf("%q: expected state %v, got %v", tt.text, tt.wantState, s.State())
		}
		if !tt.recognized && s.View().Status != StatusNoNumber {
			t.Fatalf("%q: expected no-number status, got %q", tt.text, s.View().Status)
		}
		if tt.recognized && s.View().Success != tt.wantSuccess {
			t.Fatalf("%q: expected success %v", tt.text, tt.wantSuccess)
		}
	}
}

func TestSessionRejectsSecondAnswer(t *testing.T) {
	s := newTestSession()
	s.RequestNewProblem()
	if _, err := s.SubmitTranscript("10"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.SubmitTranscript("10"); !errors.Is(err, ErrNotAwaitingAnswer) {
		t.Fatalf("expected second answer rejected, got %v", err)
	}
	if s.Score().Total != 1 {
		t.Fatalf("expected one attempt, got %d", s.Score().Total)
	}
}

func TestSessionNewProblemClearsResult(t *testing.T) {
	s := newTestSession()
	s.RequestNewProblem()
	if _, err := s.SubmitTranscript("4"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := s.View()
	if !strings.HasPrefix(v.Result, "Not quite: 3 + 7 = 10") {
		t.Fatalf("unexpected result %q", v.Result)
	}
	s.RequestNewProblem()
	v = s.View()
	if v.Result != "" || v.Success || v.Status != StatusAnswerPrompt {
		t.Fatalf("expected cleared result, got %+v", v)
	}
	if v.Problem != "3 + 7 = ?" {
		t.Fatalf("unexpected problem %q", v.Problem)
	}
}

func TestSessionEndedNeverScores(t *testing.T) {
	tests := []struct {
		cause stt.Cause
		err   error
		want  string
	}{
		{stt.CauseTimedOut, nil, StatusTimedOut},
		{stt.CauseCanceled, nil, StatusCanceled},
		{stt.CauseOther, errors.New("mic unplugged"), "Recognition error: mic unplugged"},
		{stt.CauseOther, nil, "Recognition error: unknown failure"},
	}
	for _, tt := range tests {
		s := newTestSession()
		s.RequestNewProblem()
		s.SessionEnded(tt.cause, tt.err)
		if s.View().Status != tt.want {
			t.Fatalf("%s: expected status %q, got %q", tt.cause, tt.want, s.View().Status)
		}
		if s.State() != StateAwaitingAnswer || s.Score() != (Score{}) {
			t.Fatalf("%s: session end changed state or score", tt.cause)
		}
	}
}
