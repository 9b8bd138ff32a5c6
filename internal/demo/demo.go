// Package demo wires the example application onto a registry: every new
// session is asked for "ccc", and an "aaa" event is answered with "bbb"
// followed by an "fff" event.
package demo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/internal/telemetry/logger"
)

// Event names used by the example application.
const (
	EventCCC = "ccc"
	EventAAA = "aaa"
	EventFFF = "fff"

	// ReplyAAA is the acknowledgement sent for every "aaa" event.
	ReplyAAA = "bbb"
)

// App is the example application.
type App struct {
	logger *slog.Logger
}

// New creates the application. A nil logger uses slog.Default().
func New(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger}
}

// Register installs the application on reg.
func (a *App) Register(reg *service.Registry) {
	reg.OnConnection(a.onConnection)
}

func (a *App) onConnection(ctx context.Context, s *service.Socket) {
	log := a.sessionLogger(ctx)
	log.Info("connection", "remote_addr", s.Session().RemoteAddr)

	s.On(EventAAA, a.onAAA)
	s.OnError(func(_ context.Context, _ *service.Socket, err error) {
		log.Error("error", "error", err)
	})
	s.OnDisconnecting(func(_ context.Context, _ *service.Socket, reason domain.Reason) {
		log.Info("disconnecting", "reason", string(reason))
	})
	s.OnDisconnect(func(_ context.Context, _ *service.Socket, reason domain.Reason) {
		log.Info("disconnect", "reason", string(reason))
	})

	err := s.EmitWithAck(EventCCC, func(args domain.Args, err error) {
		if err != nil {
			a.logAckFailure(log, EventCCC, err)
			return
		}
		log.Info(EventCCC, "data", args.String(0))
	})
	if err != nil {
		log.Warn("emit failed", "event", EventCCC, "error", err)
	}
}

func (a *App) onAAA(ctx context.Context, s *service.Socket, args domain.Args, ack service.AckFunc) {
	log := a.sessionLogger(ctx)
	log.Info(EventAAA, "data", args.String(0))

	if ack != nil {
		if err := ack(ReplyAAA); err != nil {
			log.Warn("ack failed", "event", EventAAA, "error", err)
		}
	}

	err := s.EmitWithAck(EventFFF, func(args domain.Args, err error) {
		if err != nil {
			a.logAckFailure(log, EventFFF, err)
			return
		}
		log.Info(EventFFF, "data", args.String(0))
	})
	if err != nil {
		log.Warn("emit failed", "event", EventFFF, "error", err)
	}
}

func (a *App) sessionLogger(ctx context.Context) *slog.Logger {
	return a.logger.With("session_id", logger.SessionIDFromContext(ctx))
}

func (a *App) logAckFailure(log *slog.Logger, event string, err error) {
	if errors.Is(err, domain.ErrSessionClosed) {
		log.Debug("ack abandoned", "event", event, "error", err)
		return
	}
	log.Warn("ack failed", "event", event, "error", err)
}
