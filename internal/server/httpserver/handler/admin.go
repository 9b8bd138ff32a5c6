package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/infra/buildinfo"
)

// handleStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Get()
	presence := "disabled"
	if h.presence != nil {
		presence = "enabled"
	}
	status := "running"
	if h.registry.Closed() {
		status = "shutting_down"
	}

	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Status:   status,
		Version:  info.Version,
		Commit:   info.Commit,
		Uptime:   time.Since(h.startedAt).Truncate(time.Second).String(),
		Sessions: h.registry.Count(),
		Presence: presence,
	})
}

// handleListSessions handles GET /admin/v1/sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	items := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionToResponse(s, 0))
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{Items: items, Total: len(items)})
}

// handleGetSession handles GET /admin/v1/sessions/{id}.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, sessionToResponse(s.Session(), s.PendingAcks()))
}

// handleDisconnectSession handles POST /admin/v1/sessions/{id}/disconnect.
func (h *Handler) handleDisconnectSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.registry.Disconnect(id, domain.ReasonServerDisconnect); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.logger.Info("session disconnected by admin", "session_id", id)
	h.writeJSON(w, r, http.StatusOK, DisconnectResponse{
		ID:     id,
		Reason: string(domain.ReasonServerDisconnect),
	})
}

// handleEmit handles POST /admin/v1/sessions/{id}/emit.
func (h *Handler) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req EmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("invalid request body"))
		return
	}
	if req.Event == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("event is required"))
		return
	}

	s, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	args := make([]any, len(req.Args))
	for i, a := range req.Args {
		args[i] = a
	}

	if !req.Ack {
		if err := s.Emit(req.Event, args...); err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, EmitResponse{Event: req.Event, Emitted: true})
		return
	}

	wait := DefaultAckWait
	if req.TimeoutMS < 0 || req.TimeoutMS > MaxAckWait.Milliseconds() {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("timeout_ms must be between 0 and %d", MaxAckWait.Milliseconds())))
		return
	}
	if req.TimeoutMS > 0 {
		wait = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	type ackResult struct {
		args domain.Args
		err  error
	}
	result := make(chan ackResult, 1)
	err = s.EmitWithAckTimeout(req.Event, wait, func(args domain.Args, err error) {
		result <- ackResult{args: args, err: err}
	}, args...)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	// The ack table resolves every pending entry within wait. The extra
	// second covers a session whose dispatch queue is busy.
	ctx, cancel := context.WithTimeout(r.Context(), wait+time.Second)
	defer cancel()
	select {
	case res := <-result:
		if res.err != nil {
			h.handleServiceError(w, r, res.err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, EmitResponse{Event: req.Event, Emitted: true, AckArgs: res.args})
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.handleServiceError(w, r, domain.ErrAckTimeout.WithDetails(req.Event))
		}
	}
}

// handlePresence handles GET /admin/v1/presence.
func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		h.handleServiceError(w, r, domain.ErrServiceUnavailable.WithDetails("presence store disabled"))
		return
	}
	sessions, err := h.presence.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	items := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionToResponse(s, 0))
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{Items: items, Total: len(items)})
}
