package game

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/loqalabs/loqa-mathgame/internal/stt"
)

type answerRequest struct {
	Text string `json:"text"`
}

type answerResponse struct {
	Outcome Outcome `json:"outcome"`
	View    View    `json:"view"`
}

type errorResponse struct {
	Error string `json:"error"`
	View  *View  `json:"view,omitempty"`
}

// Mount registers the /game routes on r.
func (s *Service) Mount(r chi.Router) {
	r.Route("/game", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Post("/new", s.handleNew)
		r.Post("/listen", s.handleListen)
		r.Delete("/listen", s.handleStopListen)
		r.Post("/answer", s.handleAnswer)
		r.Get("/history", s.handleHistory)
	})
}

func (s *Service) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.View(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleNew(w http.ResponseWriter, r *http.Request) {
	view, err := s.RequestNewProblem(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleListen(w http.ResponseWriter, r *http.Request) {
	view, err := s.StartListening(r.Context())
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, view)
	case errors.Is(err, stt.ErrRecognitionUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err, &view)
	case errors.Is(err, ErrNotAwaitingAnswer):
		s.writeError(w, http.StatusConflict, err, &view)
	default:
		s.writeError(w, http.StatusBadGateway, err, &view)
	}
}

func (s *Service) handleStopListen(w http.ResponseWriter, r *http.Request) {
	view, err := s.StopListening(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid json"), nil)
		return
	}
	outcome, view, err := s.SubmitTranscript(r.Context(), req.Text)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrNotAwaitingAnswer) {
			status = http.StatusConflict
		}
		s.writeError(w, status, err, &view)
		return
	}
	s.writeJSON(w, http.StatusOK, answerResponse{Outcome: outcome, View: view})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"), nil)
			return
		}
		limit = n
	}
	events, err := s.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err, nil)
		return
	}
	if events == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", slogError(err))
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error, view *View) {
	if status >= http.StatusInternalServerError {
		s.logger.Warn("game request failed", slog.Int("status", status), slogError(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), View: view})
}
