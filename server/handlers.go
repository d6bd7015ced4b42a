package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/logging"
	"github.com/becomeliminal/nim-recall/memory"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var in core.AddMemoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	if err := s.store.AddMemory(r.Context(), in.Text, in.Emotion, in.Timestamp); err != nil {
		respondError(w, r, statusFor(err), messageFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, core.OKResponse{OK: true})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var in core.AskInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	answer, err := s.ask(r.Context(), in)
	if err != nil {
		respondError(w, r, statusFor(err), messageFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, core.NewAskResponse(answer))
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListMemories(r.Context())
	if err != nil {
		respondError(w, r, statusFor(err), messageFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, core.MemoriesResponse{Memories: core.NewMemories(records)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := core.HealthResponse{
		Status:   "ok",
		Memories: s.store.Len(),
	}
	if s.cfg.LLMStatus != nil {
		resp.LLM = s.cfg.LLMStatus()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) ask(ctx context.Context, in core.AskInput) (*memory.Answer, error) {
	if in.TopK < 0 {
		return nil, goerr.New("top_k must be positive", goerr.V("top_k", in.TopK), goerr.T(memory.ErrTagInput))
	}
	return s.manager.Ask(ctx, in.Question, in.TopK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(err, "failed to decode request body")
	}
	return nil
}

// statusFor maps error tags to HTTP status codes.
func statusFor(err error) int {
	switch {
	case memory.IsInput(err):
		return http.StatusBadRequest
	case memory.IsLLMUnavailable(err), memory.IsClosed(err):
		return http.StatusServiceUnavailable
	case memory.IsEmbedding(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns a client-safe description of err.
func messageFor(err error) string {
	switch {
	case memory.IsInput(err):
		// Input errors are created at the validation site and never wrapped.
		return err.Error()
	case memory.IsLLMUnavailable(err):
		return "language model unavailable"
	case memory.IsClosed(err):
		return "memory store is closed"
	case memory.IsEmbedding(err):
		return "embedding failed"
	default:
		return "internal error"
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Default().Error("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	logger := logging.From(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "path", r.URL.Path, "error", err)
	} else {
		logger.Info("request rejected", "status", status, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, core.ErrorResponse{
		Detail:    message,
		RequestID: requestIDFrom(r.Context()),
	})
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
