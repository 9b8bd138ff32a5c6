// Package service provides the connection registry and event router for SockMesh.
package service

import (
	"context"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// Transport is the server side of one client connection.
type Transport interface {
	// Send queues a packet for writing. It must not block; a full queue
	// returns domain.ErrSendQueueFull and a closed connection returns
	// domain.ErrSessionClosed.
	Send(p socketio.Packet) error

	// Close flushes queued packets and closes the connection.
	// It must be safe to call more than once.
	Close() error
}

// PresenceStore mirrors connected sessions for external visibility.
type PresenceStore interface {
	Put(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
}

// Metrics receives registry and router measurements.
type Metrics interface {
	SessionOpened()
	SessionClosed(reason domain.Reason)
	EventReceived(event string)
	EventEmitted(event string)
	AckPending(delta int)
	AckObserved(latency time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()              {}
func (nopMetrics) SessionClosed(domain.Reason) {}
func (nopMetrics) EventReceived(string)        {}
func (nopMetrics) EventEmitted(string)         {}
func (nopMetrics) AckPending(int)              {}
func (nopMetrics) AckObserved(time.Duration)   {}

// ConnInfo describes an accepted connection.
type ConnInfo struct {
	RemoteAddr string
	UserAgent  string
	Protocol   int // Engine.IO protocol revision
}

// ConnectionHandler is called once a session has completed CONNECT.
type ConnectionHandler func(ctx context.Context, s *Socket)

// EventHandler handles an inbound named event. ack is nil when the client
// did not ask for an acknowledgement.
type EventHandler func(ctx context.Context, s *Socket, args domain.Args, ack AckFunc)

// AckFunc replies to an inbound event. Only the first call sends;
// later calls return domain.ErrAckAlreadySent.
type AckFunc func(args ...any) error

// AckHandler receives the reply to an emitted event, or the error that
// ended the wait (domain.ErrAckTimeout or domain.ErrSessionClosed).
// It is called at most once.
type AckHandler func(args domain.Args, err error)

// ErrorHandler is called for session-level errors.
type ErrorHandler func(ctx context.Context, s *Socket, err error)

// DisconnectHandler is called with the reason a session went away.
type DisconnectHandler func(ctx context.Context, s *Socket, reason domain.Reason)
