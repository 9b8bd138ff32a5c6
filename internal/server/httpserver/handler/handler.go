package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/internal/storage"
	"github.com/yndnr/sockmesh-go/internal/telemetry/logger"
)

// DefaultAckWait bounds an admin emit that waits for an acknowledgement.
const DefaultAckWait = 5 * time.Second

// MaxAckWait is the largest timeout_ms an admin emit accepts.
const MaxAckWait = 10 * time.Minute

// Handler serves the health and admin endpoints.
type Handler struct {
	registry  *service.Registry
	presence  storage.PresenceStore
	logger    *slog.Logger
	startedAt time.Time
	mux       *http.ServeMux
}

// New creates a Handler. presence may be nil when no store is configured.
func New(registry *service.Registry, presence storage.PresenceStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		registry:  registry,
		presence:  presence,
		logger:    logger,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleStatus)
	h.mux.HandleFunc("GET /admin/v1/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /admin/v1/sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("POST /admin/v1/sessions/{id}/disconnect", h.handleDisconnectSession)
	h.mux.HandleFunc("POST /admin/v1/sessions/{id}/emit", h.handleEmit)
	h.mux.HandleFunc("GET /admin/v1/presence", h.handlePresence)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleServiceError converts domain errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error(), nil)
		return
	}

	h.logger.Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, "internal server error", nil)
}

// errorCodeToHTTPStatus maps an SM-<AREA>-<NNNN> code to a status. The
// first three digits of NNNN are the status for 4xx and 5xx codes; ARG
// codes are bad requests.
func errorCodeToHTTPStatus(code string) int {
	if strings.HasPrefix(code, "SM-ARG-") {
		return http.StatusBadRequest
	}
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[i+1:])
	if err != nil {
		return http.StatusInternalServerError
	}
	if status := n / 10; status >= 400 && status < 600 {
		return status
	}
	return http.StatusInternalServerError
}

// getRequestID returns the id set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
