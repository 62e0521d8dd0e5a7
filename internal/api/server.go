// Package api serves the chat engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"trialrag/internal/domain"
	"trialrag/internal/engine"
	"trialrag/internal/metrics"
)

// Engine is the part of the answer engine the HTTP transport needs.
type Engine interface {
	SubmitTurn(ctx context.Context, sessionID, message string) (engine.Reply, error)
	ResetSession(sessionID string) error
	History(sessionID string) []domain.Turn
	Metrics() metrics.Snapshot
	Stats() engine.Stats
}

// Server is the HTTP front end for an Engine.
type Server struct {
	router *chi.Mux
	addr   string
	engine Engine
	logger *slog.Logger
}

// NewServer builds the router. A nil logger falls back to slog.Default.
func NewServer(addr string, eng Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		addr:   addr,
		engine: eng,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chat)
		r.Post("/reset_session", s.resetSession)
		r.Get("/metrics", s.metrics)
		r.Get("/sessions/{id}/history", s.history)
	})

	return s
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// ChatRequest is the body of POST /api/chat. A missing session id starts a new session.
type ChatRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	UserMessage string `json:"user_message"`
}

// ChatResponse is returned for every answered turn, grounded or not.
type ChatResponse struct {
	SessionID        string             `json:"session_id"`
	AssistantMessage string             `json:"assistant_message"`
	SourceCitation   *string            `json:"source_citation"`
	SourceUsed       string             `json:"source_used"`
	RetrievedCount   int                `json:"retrieved_count"`
	IsUnknown        bool               `json:"is_unknown"`
	IsSafetyRefusal  bool               `json:"is_safety_refusal"`
	IsClarification  bool               `json:"is_clarification"`
	Sources          []engine.SourceRef `json:"sources,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  s.engine.Stats(),
	})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(w, http.StatusBadRequest, "user message cannot be empty")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply, err := s.engine.SubmitTurn(r.Context(), req.SessionID, req.UserMessage)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, engine.ErrEmptyMessage), errors.Is(err, engine.ErrEmptySession):
			status = http.StatusBadRequest
		case errors.Is(err, engine.ErrRetrievalTimeout):
			status = http.StatusGatewayTimeout
		}
		s.logger.Warn("chat turn failed", "session", req.SessionID, "status", status, "error", err)
		writeJSON(w, status, map[string]string{"error": err.Error(), "session_id": req.SessionID})
		return
	}

	resp := ChatResponse{
		SessionID:        req.SessionID,
		AssistantMessage: reply.Message,
		SourceUsed:       reply.Source,
		RetrievedCount:   reply.Retrieved,
		IsUnknown:        reply.Unknown,
		IsSafetyRefusal:  reply.SafetyRefusal,
		IsClarification:  reply.Clarification,
		Sources:          reply.Sources,
	}
	if reply.Citation != "" {
		c := reply.Citation
		resp.SourceCitation = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := s.engine.ResetSession(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Session " + id + " reset",
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics())
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns := s.engine.History(id)
	if turns == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "turns": turns})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
