// Package httpadapter exposes the turn service over HTTP with a
// server-sent-events response stream.
package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

type Router struct {
	turns   ports.TurnService
	metrics MetricsHandler
	logger  *slog.Logger

	// Traffic bounds inbound load; the zero value leaves both gates
	// open.
	Traffic TrafficConfig
}

// MetricsHandler lets the server mount the Prometheus endpoint without
// depending on the metrics package.
type MetricsHandler interface {
	Handler() http.Handler
}

func NewRouter(turns ports.TurnService, metrics MetricsHandler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{turns: turns, metrics: metrics, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/turns", rt.runTurn)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.Traffic.MaxInFlight, rt.Traffic.MaxWait)
	handler = rateLimitMiddleware(handler, rt.Traffic.RateLimitRPS, rt.Traffic.RateLimitBurst)
	return withRequestID(logRequests(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type turnRequest struct {
	ThreadID string        `json:"thread_id"`
	Messages []turnMessage `json:"messages"`
}

type turnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// runTurn executes one conversation turn and streams its events as SSE
// data frames, terminated by a [DONE] sentinel.
func (rt *Router) runTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messages are required"})
		return
	}

	messages := make([]domain.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.Message{
			Role:    domain.Role(strings.ToLower(strings.TrimSpace(m.Role))),
			Content: m.Content,
		})
	}

	events, err := rt.turns.RunTurn(r.Context(), req.ThreadID, messages)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			rt.logger.Error("encode turn event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client went away; drain the channel so the turn finishes.
			for range events {
			}
			return
		}
		flusher.Flush()
	}

	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return
	}
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
