// Package service provides the connection registry and event router for SockMesh.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/telemetry/logger"
	"github.com/yndnr/sockmesh-go/pkg/engineio"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// Socket is one client session on the default namespace.
type Socket struct {
	id        string
	registry  *Registry
	transport Transport
	logger    *slog.Logger
	limiter   *rate.Limiter
	acks      *ackTable

	// ctx carries the session logger and ID, and is cancelled when the
	// session starts disconnecting.
	ctx    context.Context
	cancel context.CancelFunc

	inbox     chan func()
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu                    sync.RWMutex
	session               *domain.Session
	handlers              map[string]EventHandler
	errorHandlers         []ErrorHandler
	disconnectingHandlers []DisconnectHandler
	disconnectHandlers    []DisconnectHandler
}

func newSocket(r *Registry, session *domain.Session, t Transport) *Socket {
	ctx := logger.WithSessionID(logger.WithLogger(context.Background(), r.logger), session.ID)
	ctx, cancel := context.WithCancel(ctx)
	s := &Socket{
		id:        session.ID,
		registry:  r,
		transport: t,
		logger:    logger.L(ctx),
		acks:      newAckTable(),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func(), r.cfg.QueueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		session:   session,
		handlers:  make(map[string]EventHandler),
	}
	if r.cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(r.cfg.RateLimit), r.cfg.RateBurst)
	}
	return s
}

// ID returns the session identifier.
func (s *Socket) ID() string {
	return s.id
}

// Session returns a snapshot of the session.
func (s *Socket) Session() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// State returns the current lifecycle state.
func (s *Socket) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.State
}

// Context returns a context cancelled when the session starts disconnecting.
func (s *Socket) Context() context.Context {
	return s.ctx
}

// Logger returns the session-scoped logger.
func (s *Socket) Logger() *slog.Logger {
	return s.logger
}

// Done is closed after the disconnect hooks have run and the session has
// left the registry.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// PendingAcks returns the number of emitted events awaiting a reply.
func (s *Socket) PendingAcks() int {
	return s.acks.len()
}

// ============================================================================
// Handler Registration
// ============================================================================

// On registers the handler for inbound events named name, replacing any
// previous one. Reserved names are rejected; use the dedicated hooks.
func (s *Socket) On(name string, h EventHandler) {
	if domain.IsReservedEvent(name) {
		s.logger.Warn("handler for reserved event ignored", "event", name)
		return
	}
	if h == nil {
		s.Off(name)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Off removes the handler for name.
func (s *Socket) Off(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, name)
}

// OnError registers a hook for session-level errors.
func (s *Socket) OnError(h ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandlers = append(s.errorHandlers, h)
}

// OnDisconnecting registers a hook run when the session starts disconnecting,
// before pending acknowledgements are failed.
func (s *Socket) OnDisconnecting(h DisconnectHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectingHandlers = append(s.disconnectingHandlers, h)
}

// OnDisconnect registers a hook run once the session is disconnected.
func (s *Socket) OnDisconnect(h DisconnectHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectHandlers = append(s.disconnectHandlers, h)
}

// ============================================================================
// Emission
// ============================================================================

// Emit sends a fire-and-forget event.
func (s *Socket) Emit(name string, args ...any) error {
	if err := s.checkEmit(name); err != nil {
		return err
	}
	p, err := socketio.NewEvent(name, nil, args...)
	if err != nil {
		return domain.ErrInvalidPayload.WithCause(err)
	}
	if err := s.transport.Send(p); err != nil {
		return err
	}
	s.registry.metrics.EventEmitted(name)
	return nil
}

// EmitWithAck sends an event and routes the client's acknowledgement to fn.
// When it returns an error fn is never called.
func (s *Socket) EmitWithAck(name string, fn AckHandler, args ...any) error {
	return s.EmitWithAckTimeout(name, s.registry.cfg.AckTimeout, fn, args...)
}

// EmitWithAckTimeout is EmitWithAck with a per-call timeout overriding the
// registry's. When timeout elapses the pending acknowledgement is dropped
// and fn receives ErrAckTimeout. A timeout of zero waits until the session
// closes.
func (s *Socket) EmitWithAckTimeout(name string, timeout time.Duration, fn AckHandler, args ...any) error {
	if fn == nil {
		return s.Emit(name, args...)
	}
	if err := s.checkEmit(name); err != nil {
		return err
	}

	id, err := s.acks.register(name, fn, timeout, s.onAckTimeout)
	if err != nil {
		return err
	}
	s.registry.metrics.AckPending(1)

	p, err := socketio.NewEvent(name, socketio.IntID(id), args...)
	if err != nil {
		s.discardAck(id)
		return domain.ErrInvalidPayload.WithCause(err)
	}
	if err := s.transport.Send(p); err != nil {
		s.discardAck(id)
		return err
	}
	s.registry.metrics.EventEmitted(name)
	return nil
}

// Disconnect closes the session from the server side. The client is told
// with a DISCONNECT packet.
func (s *Socket) Disconnect() {
	s.close(domain.ReasonServerDisconnect)
}

func (s *Socket) checkEmit(name string) error {
	if err := domain.ValidateEventName(name); err != nil {
		return err
	}
	if state := s.State(); state != domain.StateConnected {
		return domain.ErrSessionClosed.WithDetails("session is " + state.String())
	}
	return nil
}

func (s *Socket) discardAck(id int) {
	if _, ok := s.acks.take(id); ok {
		s.registry.metrics.AckPending(-1)
	}
}

func (s *Socket) newAckFunc(id int) AckFunc {
	var sent atomic.Bool
	return func(args ...any) error {
		p, err := socketio.NewAck(id, args...)
		if err != nil {
			return domain.ErrInvalidPayload.WithCause(err)
		}
		if !sent.CompareAndSwap(false, true) {
			return domain.ErrAckAlreadySent
		}
		if s.State() != domain.StateConnected {
			return domain.ErrSessionClosed
		}
		return s.transport.Send(p)
	}
}

// ============================================================================
// Transport Input
// ============================================================================

// HandlePacket processes a packet read from the transport. A returned error
// means the packet violated the protocol; the transport should pass it to
// HandleProtocolError.
func (s *Socket) HandlePacket(p socketio.Packet) error {
	s.mu.Lock()
	s.session.Touch()
	s.mu.Unlock()

	if p.Namespace != "" && p.Namespace != socketio.DefaultNamespace {
		if p.Type == socketio.Connect {
			return s.transport.Send(socketio.NewConnectError(p.Namespace, "Invalid namespace"))
		}
		s.logger.Debug("packet for unknown namespace dropped",
			"namespace", p.Namespace,
			"type", p.Type.String(),
		)
		return nil
	}

	switch p.Type {
	case socketio.Connect:
		return s.handleConnect()
	case socketio.Disconnect:
		s.close(domain.ReasonClientDisconnect)
		return nil
	case socketio.Event:
		return s.handleEvent(p)
	case socketio.Ack:
		return s.handleAck(p)
	default:
		return domain.ErrUnexpectedPacket.WithDetails(p.Type.String())
	}
}

// HandleTransportClose reports that the connection has gone away.
func (s *Socket) HandleTransportClose(reason domain.Reason) {
	s.close(reason)
}

// HandleProtocolError reports err to the error hooks and closes the session
// with domain.ReasonParseError.
func (s *Socket) HandleProtocolError(err error) {
	s.logger.Warn("protocol error", "error", err)
	s.reportError(err)
	s.close(domain.ReasonParseError)
}

func (s *Socket) handleConnect() error {
	s.mu.Lock()
	if s.session.State != domain.StateConnecting {
		state := s.session.State
		s.mu.Unlock()
		s.logger.Debug("connect ignored", "state", state.String())
		return nil
	}
	_ = s.session.Transition(domain.StateConnected)
	session := s.session.Clone()
	s.mu.Unlock()

	sid := ""
	if session.Protocol >= engineio.ProtocolV4 {
		sid = session.ID
	}
	if err := s.transport.Send(socketio.NewConnect(sid)); err != nil {
		return err
	}

	s.logger.Info("session connected", "remote_addr", session.RemoteAddr)

	handlers := s.registry.connectionHandlers()
	return s.enqueue(func() {
		s.registry.putPresence(session)
		for _, h := range handlers {
			h(s.ctx, s)
		}
	})
}

func (s *Socket) handleEvent(p socketio.Packet) error {
	if state := s.State(); state != domain.StateConnected {
		s.logger.Debug("event dropped", "state", state.String())
		return nil
	}

	name, raw, err := p.Event()
	if err != nil {
		return domain.ErrMalformedPacket.WithCause(err)
	}

	if s.limiter != nil && !s.limiter.Allow() {
		s.reportError(domain.ErrRateLimited.WithDetails(name))
		return nil
	}
	s.registry.metrics.EventReceived(name)

	var ack AckFunc
	if p.ID != nil {
		ack = s.newAckFunc(*p.ID)
	}
	args := domain.Args(raw)
	return s.enqueue(func() { s.dispatch(name, args, ack) })
}

func (s *Socket) handleAck(p socketio.Packet) error {
	if p.ID == nil {
		return domain.ErrMalformedPacket.WithDetails("ack without id")
	}
	raw, err := p.Args()
	if err != nil {
		return domain.ErrMalformedPacket.WithCause(err)
	}
	id := *p.ID
	args := domain.Args(raw)
	return s.enqueue(func() { s.resolveAck(id, args) })
}

// ============================================================================
// Dispatch Queue
// ============================================================================

// enqueue blocks until the dispatch queue accepts task or the session ends.
func (s *Socket) enqueue(task func()) error {
	select {
	case s.inbox <- task:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

func (s *Socket) run() {
	defer close(s.done)
	for {
		select {
		case task := <-s.inbox:
			s.safeRun(task)
		case <-s.closing:
			s.drain()
			s.finish()
			return
		}
	}
}

func (s *Socket) drain() {
	for {
		select {
		case task := <-s.inbox:
			s.safeRun(task)
		default:
			return
		}
	}
}

func (s *Socket) safeRun(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panic", "panic", fmt.Sprint(rec))
		}
	}()
	task()
}

func (s *Socket) dispatch(name string, args domain.Args, ack AckFunc) {
	if domain.IsReservedEvent(name) {
		s.logger.Debug("reserved event from client dropped", "event", name)
		return
	}

	s.mu.RLock()
	h := s.handlers[name]
	s.mu.RUnlock()

	if h == nil {
		s.logger.Debug("no handler for event", "event", name)
		return
	}
	h(s.ctx, s, args, ack)
}

func (s *Socket) resolveAck(id int, args domain.Args) {
	p, ok := s.acks.take(id)
	if !ok {
		s.logger.Debug("ack for unknown id dropped", "ack_id", id)
		return
	}
	s.registry.metrics.AckPending(-1)
	s.registry.metrics.AckObserved(time.Since(p.sentAt))
	p.handler(args, nil)
}

func (s *Socket) onAckTimeout(id int) {
	_ = s.enqueue(func() {
		p, ok := s.acks.take(id)
		if !ok {
			return
		}
		s.registry.metrics.AckPending(-1)
		s.logger.Debug("ack timeout", "ack_id", id, "event", p.event)
		p.handler(nil, domain.ErrAckTimeout.WithDetails(p.event))
	})
}

func (s *Socket) reportError(err error) {
	_ = s.enqueue(func() {
		s.mu.RLock()
		hooks := append([]ErrorHandler(nil), s.errorHandlers...)
		s.mu.RUnlock()

		if len(hooks) == 0 {
			s.logger.Warn("unhandled session error", "error", err)
			return
		}
		for _, h := range hooks {
			h(s.ctx, s, err)
		}
	})
}

// ============================================================================
// Disconnect
// ============================================================================

// close starts the disconnect sequence once. The rest of the sequence runs
// on the dispatch goroutine after queued work has drained.
func (s *Socket) close(reason domain.Reason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.session.State
		_ = s.session.Transition(domain.StateDisconnecting)
		s.session.Reason = reason
		s.mu.Unlock()

		s.cancel()
		s.logger.Debug("session disconnecting", "reason", string(reason))

		if prev == domain.StateConnected && notifiesClient(reason) {
			if err := s.transport.Send(socketio.Packet{Type: socketio.Disconnect}); err != nil {
				s.logger.Debug("disconnect packet not sent", "error", err)
			}
		}
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("transport close failed", "error", err)
		}
		close(s.closing)
	})
}

func (s *Socket) finish() {
	ctx := context.WithoutCancel(s.ctx)

	s.mu.RLock()
	reason := s.session.Reason
	disconnecting := append([]DisconnectHandler(nil), s.disconnectingHandlers...)
	s.mu.RUnlock()

	for _, h := range disconnecting {
		s.safeRun(func() { h(ctx, s, reason) })
	}

	for _, p := range s.acks.drain() {
		s.registry.metrics.AckPending(-1)
		s.safeRun(func() { p.handler(nil, domain.ErrSessionClosed) })
	}

	s.mu.Lock()
	_ = s.session.Transition(domain.StateDisconnected)
	disconnect := append([]DisconnectHandler(nil), s.disconnectHandlers...)
	s.mu.Unlock()

	for _, h := range disconnect {
		s.safeRun(func() { h(ctx, s, reason) })
	}

	s.registry.remove(s, reason)
	s.logger.Info("session disconnected", "reason", string(reason))
}

func notifiesClient(reason domain.Reason) bool {
	return reason == domain.ReasonServerDisconnect || reason == domain.ReasonServerShutdown
}
