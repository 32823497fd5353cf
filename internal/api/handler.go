// Package api exposes a Dispatcher over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/lattiq/dispatcher"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SendEmailRequest is the body of POST /send-email.
type SendEmailRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the submission and status endpoints.
type Handler struct {
	dispatcher dispatcher.Dispatcher
	logger     zerolog.Logger
	newID      func() string
}

// NewHandler creates a handler backed by d.
func NewHandler(d dispatcher.Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		logger:     logger.With().Str("component", "api").Logger(),
		newID: func() string {
			return "email-" + uuid.NewString()
		},
	}
}

// Routes registers the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/send-email", h.SendEmail)
	r.Get("/emails/{id}", h.GetEmail)
	r.Get("/stats/providers", h.ProviderStats)
	r.Get("/stats/rate-limit", h.RateLimitStats)
	r.Get("/healthz", h.Health)
	r.Get("/version", h.Version)
}

// NewRouter returns a chi router with the standard middleware stack and the
// handler's routes. m may be nil.
func NewRouter(h *Handler, m *Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	h.Routes(r)
	return r
}

// SendEmail accepts a message and queues it. The reply is 202 with the new
// attempt record; delivery happens in the background.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("failed to decode send-email request")
		writeJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	msg := &dispatcher.Message{
		ID:        h.newID(),
		To:        req.To,
		From:      req.From,
		Subject:   req.Subject,
		Body:      req.Body,
		CreatedAt: time.Now(),
	}

	attempt, err := h.dispatcher.Submit(ctx, msg)
	if err != nil {
		level := h.logger.Error()
		if errors.Is(err, dispatcher.ErrClosed) {
			level = h.logger.Warn()
		}
		level.Err(err).Str("message_id", msg.ID).Msg("failed to submit message")
		writeJSON(w, h.logger, http.StatusInternalServerError, ErrorResponse{Error: "Failed to send email"})
		return
	}

	writeJSON(w, h.logger, http.StatusAccepted, attempt)
}

// GetEmail returns the attempt record for an id.
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attempt, ok := h.dispatcher.Status(id)
	if !ok {
		writeJSON(w, h.logger, http.StatusNotFound, ErrorResponse{Error: "Email not found"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, attempt)
}

// ProviderStats returns health and circuit state per provider.
func (h *Handler) ProviderStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.dispatcher.ProviderStats())
}

// RateLimitStats returns the admitted count and queue depth.
func (h *Handler) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.dispatcher.RateLimitStats())
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// Version returns build information.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, dispatcher.GetVersionInfo())
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request handled")
		})
	}
}
