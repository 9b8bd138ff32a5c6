package wsserver

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/pkg/engineio"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// ctrlQueue holds heartbeat frames, which bypass the message queue.
const ctrlQueue = 4

// conn is one Engine.IO WebSocket connection. It implements
// service.Transport.
type conn struct {
	ws       *websocket.Conn
	cfg      Config
	protocol int
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool

	send       chan string
	ctrl       chan string
	quit       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	writeFailed atomic.Bool
}

func newConn(ws *websocket.Conn, cfg Config, protocol int, logger *slog.Logger) *conn {
	return &conn{
		ws:         ws,
		cfg:        cfg,
		protocol:   protocol,
		logger:     logger,
		send:       make(chan string, cfg.SendQueue),
		ctrl:       make(chan string, ctrlQueue),
		quit:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Send queues a Socket.IO packet without blocking.
func (c *conn) Send(p socketio.Packet) error {
	frame, err := encodeMessage(p)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// Close flushes queued frames, sends a close frame and closes the socket.
// It waits at most WriteTimeout for the writer.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.quit)
		c.mu.Unlock()
	})

	select {
	case <-c.writerDone:
	case <-time.After(c.cfg.WriteTimeout):
		return c.ws.Close()
	}
	return nil
}

func (c *conn) enqueue(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return domain.ErrSendQueueFull
	}
}

func (c *conn) control(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ctrl <- frame:
	default:
		c.logger.Debug("heartbeat frame dropped", "frame", frame)
	}
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// serve attaches the connection and runs the read loop until it ends.
func (c *conn) serve(registry *service.Registry, info service.ConnInfo) {
	go c.writeLoop()

	sock, err := registry.Attach(c, info)
	if err != nil {
		c.logger.Warn("connection refused",
			"remote_addr", info.RemoteAddr,
			"error", err,
		)
		c.refuse(err)
		return
	}

	open, err := engineio.OpenPacket(engineio.NewOpenResponse(
		sock.ID(), c.cfg.PingInterval, c.cfg.PingTimeout, int(c.cfg.MaxPayload),
	))
	if err != nil {
		sock.HandleTransportClose(domain.ReasonTransportError)
		return
	}
	if err := c.enqueue(engineio.Encode(open)); err != nil {
		sock.HandleTransportClose(domain.ReasonTransportError)
		return
	}

	// Revision 3 clients are joined to the main namespace without asking.
	if c.protocol == engineio.ProtocolV3 {
		if err := sock.HandlePacket(socketio.NewConnect("")); err != nil {
			sock.HandleTransportClose(domain.ReasonTransportError)
			return
		}
	}

	c.readLoop(sock)
}

func (c *conn) refuse(err error) {
	code := websocket.CloseInternalServerErr
	if errors.Is(err, domain.ErrSessionLimit) || errors.Is(err, domain.ErrServiceUnavailable) {
		code = websocket.CloseTryAgainLater
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, domain.GetErrorCode(err)),
		time.Now().Add(c.cfg.WriteTimeout),
	)
	c.Close()
}

func (c *conn) readLoop(sock *service.Socket) {
	c.ws.SetReadLimit(c.cfg.MaxPayload)
	idle := c.cfg.PingInterval + c.cfg.PingTimeout

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			reason := c.closeReason(err)
			if reason == domain.ReasonTransportError {
				sock.Logger().Debug("read failed", "error", err)
			}
			sock.HandleTransportClose(reason)
			return
		}
		if mt == websocket.BinaryMessage {
			sock.HandleProtocolError(domain.ErrMalformedPacket.WithCause(socketio.ErrBinaryUnsupported))
			return
		}

		pkt, err := engineio.Decode(string(data))
		if err != nil {
			sock.HandleProtocolError(domain.ErrMalformedPacket.WithCause(err))
			return
		}

		switch pkt.Type {
		case engineio.Ping:
			c.control(engineio.Encode(engineio.Packet{Type: engineio.Pong, Data: pkt.Data}))
		case engineio.Pong, engineio.Noop, engineio.Upgrade:
		case engineio.Close:
			sock.HandleTransportClose(domain.ReasonTransportClose)
			return
		case engineio.Message:
			if pkt.Binary {
				sock.HandleProtocolError(domain.ErrMalformedPacket.WithCause(socketio.ErrBinaryUnsupported))
				return
			}
			if !c.dispatch(sock, pkt.Data) {
				return
			}
		default:
			sock.HandleProtocolError(domain.ErrUnexpectedPacket.WithDetails(pkt.Type.String()))
			return
		}
	}
}

// dispatch hands a message to the socket and reports whether reading
// should continue.
func (c *conn) dispatch(sock *service.Socket, data string) bool {
	p, err := socketio.Decode(data)
	if err != nil {
		sock.HandleProtocolError(domain.ErrMalformedPacket.WithCause(err))
		return false
	}

	err = sock.HandlePacket(p)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrSessionClosed):
		return false
	case errors.Is(err, domain.ErrSendQueueFull):
		sock.HandleTransportClose(domain.ReasonTransportError)
		return false
	default:
		sock.HandleProtocolError(err)
		return false
	}
}

func (c *conn) closeReason(err error) domain.Reason {
	if c.isClosed() {
		return domain.ReasonTransportClose
	}
	if c.writeFailed.Load() || errors.Is(err, websocket.ErrReadLimit) {
		return domain.ReasonTransportError
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ReasonPingTimeout
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.ReasonTransportClose
	}
	return domain.ReasonTransportError
}

func (c *conn) writeLoop() {
	defer close(c.writerDone)
	defer c.ws.Close()

	var ping <-chan time.Time
	if c.protocol >= engineio.ProtocolV4 {
		t := time.NewTicker(c.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}
	pingFrame := engineio.Encode(engineio.Packet{Type: engineio.Ping})

	for {
		var frame string
		select {
		case frame = <-c.ctrl:
		case frame = <-c.send:
		case <-ping:
			frame = pingFrame
		case <-c.quit:
			c.flush()
			return
		}
		if err := c.write(frame); err != nil {
			c.writeFailed.Store(true)
			c.logger.Debug("write failed", "error", err)
			return
		}
	}
}

// flush writes what is still queued, then the close frame.
func (c *conn) flush() {
	for {
		var frame string
		select {
		case frame = <-c.ctrl:
		case frame = <-c.send:
		default:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout),
			)
			return
		}
		if err := c.write(frame); err != nil {
			return
		}
	}
}

func (c *conn) write(frame string) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}
