package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datamill/askdb/internal/agent"
	"github.com/datamill/askdb/internal/schema"
	"github.com/datamill/askdb/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// QueryAgent abstracts the question-answering agent for the API layer.
type QueryAgent interface {
	Query(ctx context.Context, q agent.Question) agent.Result
	Reset()
	Schema() string
}

type QueryRequest struct {
	Question        string       `json:"question"`
	ConversationID  string       `json:"conversation_id"`
	History         []agent.Turn `json:"history,omitempty"`
	MaxResults      int          `json:"max_results"`
	ReasoningEffort string       `json:"reasoning_effort"`
	Verbosity       string       `json:"verbosity"`
	Model           string       `json:"model,omitempty"`
}

type ResetRequest struct {
	ConversationID string `json:"conversation_id"`
}

type AppDeps struct {
	Agent QueryAgent
	Store *storage.Store
	// Token guards all /api routes when non-empty; /health stays open.
	Token string
	// Ping checks that the query engine's database answers. Optional;
	// when nil the health endpoint reports process liveness only.
	Ping func(ctx context.Context) error
}

// NewAppHandler returns the HTTP handler for the question-answering API.
func NewAppHandler(deps AppDeps) http.Handler {
	h := &appHandler{deps: deps, convLocks: map[string]*sync.Mutex{}}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Route("/api/ai", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/query", h.handleQuery)
		r.Get("/schema", h.handleSchema)
		r.Get("/examples", h.handleExamples)
		r.Post("/reset", h.handleReset)
		r.Get("/interactions", h.handleInteractions)
	})

	return r
}

type appHandler struct {
	deps AppDeps

	// convLocks serializes queries within one conversation so concurrent
	// requests cannot interleave continuity identifiers.
	mu        sync.Mutex
	convLocks map[string]*sync.Mutex
}

func (h *appHandler) lockConversation(id string) func() {
	h.mu.Lock()
	l, ok := h.convLocks[id]
	if !ok {
		l = &sync.Mutex{}
		h.convLocks[id] = l
	}
	h.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":   "healthy",
			"database": schema.Database,
		}
		code := http.StatusOK
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}
}

func (h *appHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Question == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
		return
	}

	var previousID string
	if req.ConversationID != "" {
		unlock := h.lockConversation(req.ConversationID)
		defer unlock()

		stored, err := h.deps.Store.GetConversationResponseID(req.ConversationID)
		switch {
		case err == nil:
			previousID = stored
		case errors.Is(err, storage.ErrNotFound):
			// Fresh conversation.
		default:
			httpError(w, http.StatusInternalServerError, "api_error", "loading conversation: %v", err)
			return
		}
	}

	start := time.Now()
	result := h.deps.Agent.Query(r.Context(), agent.Question{
		Text:               req.Question,
		History:            req.History,
		PreviousResponseID: previousID,
		MaxResults:         req.MaxResults,
		ReasoningEffort:    req.ReasoningEffort,
		Verbosity:          req.Verbosity,
		Model:              req.Model,
	})
	duration := time.Since(start)

	if req.ConversationID != "" && result.ResponseID != "" {
		if err := h.deps.Store.SetConversationResponseID(req.ConversationID, result.ResponseID); err != nil {
			slog.Error("saving conversation state", "conversation_id", req.ConversationID, "error", err)
		}
	}

	h.recordInteraction(req, result, duration)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		agent.Result
		ConversationID       string  `json:"conversation_id,omitempty"`
		ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	}{
		Result:               result,
		ConversationID:       req.ConversationID,
		ExecutionTimeSeconds: duration.Seconds(),
	})
}

func (h *appHandler) recordInteraction(req QueryRequest, result agent.Result, duration time.Duration) {
	pipelineJSON := ""
	if result.Pipeline != nil {
		if b, err := json.Marshal(result.Pipeline); err == nil {
			pipelineJSON = string(b)
		}
	}
	err := h.deps.Store.SaveInteraction(storage.Interaction{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Question:       req.Question,
		PipelineJSON:   pipelineJSON,
		Answer:         result.Answer,
		Success:        result.Success,
		Error:          result.Error,
		DurationMs:     duration.Milliseconds(),
		CreatedAt:      result.Timestamp,
	})
	if err != nil {
		slog.Error("saving interaction", "error", err)
	}
}

func (h *appHandler) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"database":   schema.Database,
		"collection": schema.Collection,
		"schema":     h.deps.Agent.Schema(),
	})
}

func (h *appHandler) handleExamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schema.Examples())
}

func (h *appHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ResetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
	}

	var err error
	if req.ConversationID != "" {
		err = h.deps.Store.DeleteConversation(req.ConversationID)
	} else {
		err = h.deps.Store.DeleteAllConversations()
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "resetting conversations: %v", err)
		return
	}
	h.deps.Agent.Reset()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (h *appHandler) handleInteractions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	interactions, err := h.deps.Store.GetRecentInteractions(limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "listing interactions: %v", err)
		return
	}
	if interactions == nil {
		interactions = []storage.Interaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(interactions)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
