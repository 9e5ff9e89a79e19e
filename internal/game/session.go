// Package game runs the arithmetic quiz: it poses problems, evaluates spoken
// answers and keeps the running score.
package game

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-mathgame/internal/numwords"
	"github.com/loqalabs/loqa-mathgame/internal/problem"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
)

// ErrNotAwaitingAnswer is returned when an answer arrives with no open problem.
var ErrNotAwaitingAnswer = errors.New("no problem awaiting an answer")

type State int

const (
	StateIdle State = iota
	StateAwaitingAnswer
	StateEvaluated
)

func (s State) String() string {
	switch s {
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateEvaluated:
		return "evaluated"
	default:
		return "idle"
	}
}

// Status lines shown to the player.
const (
	StatusReady         = "Press new problem to start"
	StatusAnswerPrompt  = "Say your answer"
	StatusNoNumber      = "No number recognized, try again"
	StatusListening     = "Listening..."
	StatusNoAnswer      = "Didn't catch an answer"
	StatusTimedOut      = "Listening timed out"
	StatusCanceled      = "Listening stopped"
	StatusUnavailable   = "Speech recognition unavailable"
	statusSessionErrorf = "Recognition error: %v"
)

// Score counts evaluated answers. Both fields only grow.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

func (s Score) String() string {
	return fmt.Sprintf("%d/%d", s.Correct, s.Total)
}

// Outcome describes one submitted transcript.
type Outcome struct {
	Recognized bool            `json:"recognized"`
	Value      int             `json:"value"`
	Correct    bool            `json:"correct"`
	Problem    problem.Problem `json:"problem"`
}

// View is what a display shows.
type View struct {
	SessionID        string `json:"session_id,omitempty"`
	State            string `json:"state"`
	Problem          string `json:"problem"`
	Status           string `json:"status"`
	Result           string `json:"result"`
	Success          bool   `json:"success"`
	Score            string `json:"score"`
	Correct          int    `json:"correct"`
	Total            int    `json:"total"`
	Listening        bool   `json:"listening"`
	ListeningEnabled bool   `json:"listening_enabled"`
}

// Session is the quiz state machine. It is not safe for concurrent use;
// Service serializes access to it.
type Session struct {
	gen    *problem.Generator
	parser *numwords.Parser

	state   State
	current problem.Problem
	score   Score
	status  string
	result  string
	success bool
}

func NewSession(gen *problem.Generator, parser *numwords.Parser) *Session {
	if parser == nil {
		parser = numwords.NewParser(numwords.DefaultLexicon())
	}
	return &Session{
		gen:    gen,
		parser: parser,
		status: StatusReady,
	}
}

// RequestNewProblem poses a fresh problem and clears the last result.
func (s *Session) RequestNewProblem() problem.Problem {
	s.current = s.gen.Generate()
	s.state = StateAwaitingAnswer
	s.result = ""
	s.success = false
	s.status = StatusAnswerPrompt
	return s.current
}

// SubmitTranscript evaluates text against the open problem. A transcript
// without a number leaves state and score untouched.
func (s *Session) SubmitTranscript(text string) (Outcome, error) {
	if s.state != StateAwaitingAnswer {
		return Outcome{}, ErrNotAwaitingAnswer
	}
	out := Outcome{Problem: s.current}
	value, ok := s.parser.Parse(text)
	if !ok {
		s.status = StatusNoNumber
		return out, nil
	}

	out.Recognized = true
	out.Value = value
	out.Correct = value == s.current.Answer

	s.state = StateEvaluated
	s.score.Total++
	if out.Correct {
		s.score.Correct++
		s.result = fmt.Sprintf("Correct! %s", s.solved())
	} else {
		s.result = fmt.Sprintf("Not quite: %s (you said %d)", s.solved(), value)
	}
	s.success = out.Correct
	s.status = fmt.Sprintf("Heard %d", value)
	return out, nil
}

// SessionEnded reports how a listen session finished. It only changes the
// status line; no cause counts as an answer.
func (s *Session) SessionEnded(cause stt.Cause, err error) {
	switch cause {
	case stt.CauseCompleted:
	case stt.CauseTimedOut:
		s.status = StatusTimedOut
	case stt.CauseCanceled:
		s.status = StatusCanceled
	default:
		if err == nil {
			err = errors.New("unknown failure")
		}
		s.status = fmt.Sprintf(statusSessionErrorf, err)
	}
}

func (s *Session) SetStatus(status string) { s.status = status }

func (s *Session) State() State { return s.state }

func (s *Session) Score() Score { return s.score }

// Problem returns the current problem and whether one has been posed.
func (s *Session) Problem() (problem.Problem, bool) {
	return s.current, s.state != StateIdle
}

func (s *Session) View() View {
	v := View{
		State:   s.state.String(),
		Status:  s.status,
		Result:  s.result,
		Success: s.success,
		Score:   s.score.String(),
		Correct: s.score.Correct,
		Total:   s.score.Total,
	}
	if s.state != StateIdle {
		v.Problem = s.current.String()
	}
	return v
}

func (s *Session) solved() string {
	p := s.current
	return fmt.Sprintf("%d %s %d = %d", p.A, p.Op.Symbol(), p.B, p.Answer)
}
