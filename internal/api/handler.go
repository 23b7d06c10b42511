// Package api exposes the lobby coordinator, invitations, and live channel over HTTP.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/live"
	"github.com/cory-johannsen/lobby/internal/lobby"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

// Config holds request-layer settings.
type Config struct {
	// PublicBaseURL is the websocket base advertised to joining players. Empty
	// derives it from the request.
	PublicBaseURL string
	// AllowedOrigins are host patterns accepted for cross-origin websocket upgrades.
	AllowedOrigins []string
	// MaxCountdown bounds the length of a countdown request.
	MaxCountdown time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	coord    *lobby.Coordinator
	invites  *lobby.InvitationService
	registry *live.Registry
	health   HealthFunc
	validate *validator.Validate
	cfg      Config
	logger   *zap.Logger
}

// NewHandler creates a Handler. health may be nil, in which case the store is
// always reported healthy.
//
// Precondition: coord, invites, registry, and logger must be non-nil.
func NewHandler(
	coord *lobby.Coordinator,
	invites *lobby.InvitationService,
	registry *live.Registry,
	health HealthFunc,
	cfg Config,
	logger *zap.Logger,
) *Handler {
	validate := validator.New()
	// notblank rejects whitespace-only strings that required lets through.
	_ = validate.RegisterValidation("notblank", validators.NotBlank)

	return &Handler{
		coord:    coord,
		invites:  invites,
		registry: registry,
		health:   health,
		validate: validate,
		cfg:      cfg,
		logger:   logger,
	}
}

// Routes returns the API's request multiplexer wrapped in access logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("POST /sessions/join", h.joinSession)
	mux.HandleFunc("POST /sessions/delete", h.deleteSession)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("POST /sessions/{id}/advance", h.advanceSession)
	mux.HandleFunc("POST /sessions/{id}/leave", h.leaveSession)
	mux.HandleFunc("POST /sessions/{id}/countdown", h.startCountdown)
	mux.HandleFunc("GET /sessions/{id}/connections", h.connections)
	mux.HandleFunc("POST /invitations", h.sendInvitation)
	mux.HandleFunc("POST /invitations/{id}/respond", h.respondInvitation)
	mux.HandleFunc("GET /invitations", h.listInvitations)
	mux.HandleFunc("GET /ws/{id}", h.liveChannel)
	mux.HandleFunc("GET /healthz", h.healthz)
	return h.accessLog(mux)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", s.ResponseWriter)
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
