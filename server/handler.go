package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/nomnom/core"
)

// Stream trailers set once the answer has ended.
const (
	TrailerStatus = "X-Stream-Status"
	TrailerError  = "X-Stream-Error"

	StatusComplete = "complete"
	StatusAborted  = "aborted"
)

// askRequest is the request body. History entries carry either a role name
// or the isOwnerHuman flag older clients send.
type askRequest struct {
	Query       string        `json:"query"`
	ChatHistory []historyTurn `json:"chatHistory"`
}

type historyTurn struct {
	Role         string `json:"role,omitempty"`
	IsOwnerHuman *bool  `json:"isOwnerHuman,omitempty"`
	Content      string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (t historyTurn) toTurn() (core.Turn, error) {
	switch {
	case t.Role != "":
		role, err := core.ParseRole(t.Role)
		if err != nil {
			return core.Turn{}, fmt.Errorf("%w: %q", err, t.Role)
		}
		return core.Turn{Role: role, Content: t.Content}, nil
	case t.IsOwnerHuman != nil && *t.IsOwnerHuman:
		return core.Turn{Role: core.RoleHuman, Content: t.Content}, nil
	case t.IsOwnerHuman != nil:
		return core.Turn{Role: core.RoleAssistant, Content: t.Content}, nil
	default:
		return core.Turn{}, fmt.Errorf("%w: missing role", core.ErrInvalidRole)
	}
}

func (r *askRequest) toRequest() (*core.Request, error) {
	req := &core.Request{
		Query:   r.Query,
		History: make([]core.Turn, 0, len(r.ChatHistory)),
	}
	for i, t := range r.ChatHistory {
		turn, err := t.toTurn()
		if err != nil {
			return nil, fmt.Errorf("chatHistory[%d]: %w", i, err)
		}
		req.History = append(req.History, turn)
	}
	return req, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), s.logger)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req)
	if err != nil {
		status, msg := classify(err)
		switch {
		case errors.Is(err, context.Canceled):
			logger.Debug("request canceled before the answer started")
		case errors.Is(err, core.ErrTimeout):
			logger.Warn("answer timed out", "err", err)
		case status >= http.StatusInternalServerError:
			logger.Error("answer failed", "status", status, "err", err)
		}
		writeError(w, status, msg)
		return
	}
	defer answer.Close()

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-cache")
	h.Add("Trailer", TrailerStatus)
	h.Add("Trailer", TrailerError)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for answer.Next() {
		if _, err := io.WriteString(w, answer.Fragment()); err != nil {
			logger.Debug("client write failed, stopping generation", "fragments", answer.Fragments(), "err", err)
			return
		}
		if err := rc.Flush(); err != nil {
			logger.Debug("flush failed, stopping generation", "err", err)
			return
		}
	}

	if err := answer.Err(); err != nil {
		h.Set(TrailerStatus, StatusAborted)
		_, msg := classify(err)
		h.Set(TrailerError, msg)
		if errors.Is(err, context.Canceled) {
			logger.Debug("client went away mid-stream", "fragments", answer.Fragments())
		} else {
			logger.Warn("answer aborted mid-stream", "fragments", answer.Fragments(), "err", err)
		}
		return
	}
	h.Set(TrailerStatus, StatusComplete)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// classify maps a pipeline error onto a status code and a message safe to
// show the client.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrEmptyQuery):
		return http.StatusBadRequest, core.ErrEmptyQuery.Error()
	case errors.Is(err, core.ErrInvalidRole):
		return http.StatusBadRequest, core.ErrInvalidRole.Error()
	case errors.Is(err, core.ErrConfiguration):
		return http.StatusInternalServerError, "service misconfigured"
	case errors.Is(err, core.ErrTimeout):
		return http.StatusServiceUnavailable, core.ErrTimeout.Error()
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, core.ErrUpstreamUnavailable.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: msg}); err != nil {
		slog.Default().Debug("error response not written", "err", err)
	}
}
