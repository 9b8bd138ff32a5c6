package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/sockmesh-go/pkg/engineio"
	"github.com/yndnr/sockmesh-go/pkg/socketio"
)

// Defaults applied by Dial for zero Config fields.
const (
	DefaultPath             = "/socket.io/"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultQueueSize        = 64
)

var (
	// ErrClosed is returned after Close or once the connection is gone.
	ErrClosed = errors.New("client: connection closed")

	// ErrServerDisconnect reports that the server ended the session.
	ErrServerDisconnect = errors.New("client: disconnected by server")

	// ErrConnectRefused reports a CONNECT_ERROR reply.
	ErrConnectRefused = errors.New("client: connect refused")

	// ErrUnexpectedPacket reports a protocol violation during the handshake.
	ErrUnexpectedPacket = errors.New("client: unexpected packet")
)

// AckFunc replies to an event that asked for an acknowledgement.
type AckFunc func(args ...any) error

// Handler handles an inbound event. ack is nil when the server did not ask
// for an acknowledgement.
type Handler func(args []json.RawMessage, ack AckFunc)

// AnyHandler handles inbound events that have no registered Handler.
type AnyHandler func(event string, args []json.RawMessage, ack AckFunc)

// Config configures Dial.
type Config struct {
	// URL is the server base URL: http, https, ws or wss. The Engine.IO
	// path defaults to DefaultPath when URL has none.
	URL string

	// Protocol is the Engine.IO revision (3 or 4). Defaults to 4.
	Protocol int

	// Header is sent with the WebSocket handshake.
	Header http.Header

	// TLSConfig is used for https and wss URLs.
	TLSConfig *tls.Config

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// QueueSize is the capacity of the inbound event queue.
	QueueSize int
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHandler registers h for event before the connection starts, so events
// the server sends right after connecting are not missed.
func WithHandler(event string, h Handler) Option {
	return func(c *Client) {
		if h != nil {
			c.handlers[event] = h
		}
	}
}

// WithAnyHandler is the OnAny counterpart of WithHandler.
func WithAnyHandler(h AnyHandler) Option {
	return func(c *Client) {
		c.fallback = h
	}
}

type ackResult struct {
	args []json.RawMessage
	err  error
}

// Client is a connected Socket.IO client.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	conn     *websocket.Conn
	open     engineio.OpenResponse
	id       string
	protocol int

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]Handler
	fallback AnyHandler
	acks     map[int]chan ackResult
	nextID   int
	err      error

	events    chan socketio.Packet
	done      chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
}

// Dial connects to the server and joins the main namespace.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Protocol == 0 {
		cfg.Protocol = engineio.ProtocolV4
	}
	if cfg.Protocol != engineio.ProtocolV3 && cfg.Protocol != engineio.ProtocolV4 {
		return nil, fmt.Errorf("%w: %d", engineio.ErrUnsupportedProtocol, cfg.Protocol)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	endpoint, err := EndpointURL(cfg.URL, cfg.Protocol)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		logger:   slog.Default(),
		protocol: cfg.Protocol,
		handlers: make(map[string]Handler),
		acks:     make(map[int]chan ackResult),
		events:   make(chan socketio.Packet, cfg.QueueSize),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		TLSClientConfig:  cfg.TLSConfig,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", endpoint, err)
	}
	c.conn = conn

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	go c.dispatchLoop()
	if c.protocol == engineio.ProtocolV3 {
		go c.pingLoop()
	}

	c.logger.Debug("socket.io connected",
		"url", endpoint,
		"id", c.id,
		"protocol", c.protocol,
	)
	return c, nil
}

// EndpointURL builds the WebSocket URL for a server base URL.
func EndpointURL(raw string, protocol int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("client: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("client: url %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	} else if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	q := u.Query()
	q.Set("EIO", strconv.Itoa(protocol))
	q.Set("transport", engineio.TransportWebSocket)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handshake reads the open packet and completes the namespace CONNECT.
func (c *Client) handshake(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)

	p, err := c.readEngine()
	if err != nil {
		return fmt.Errorf("client: read open packet: %w", err)
	}
	open, err := engineio.ParseOpen(p)
	if err != nil {
		return err
	}
	c.open = open
	c.id = open.SID
	if open.MaxPayload > 0 {
		c.conn.SetReadLimit(int64(open.MaxPayload))
	}

	if c.protocol == engineio.ProtocolV4 {
		if err := c.send(socketio.Packet{Type: socketio.Connect, Namespace: socketio.DefaultNamespace}); err != nil {
			return err
		}
	}

	for {
		p, err := c.readEngine()
		if err != nil {
			return fmt.Errorf("client: await connect: %w", err)
		}
		switch p.Type {
		case engineio.Ping:
			if err := c.writeEngine(engineio.Packet{Type: engineio.Pong, Data: p.Data}); err != nil {
				return err
			}
			continue
		case engineio.Noop, engineio.Pong:
			continue
		case engineio.Message:
		default:
			return fmt.Errorf("%w: engine.io %s before connect", ErrUnexpectedPacket, p.Type)
		}

		sp, err := socketio.Decode(p.Data)
		if err != nil {
			return err
		}
		switch sp.Type {
		case socketio.Connect:
			var body struct {
				SID string `json:"sid"`
			}
			if len(sp.Data) > 0 && json.Unmarshal(sp.Data, &body) == nil && body.SID != "" {
				c.id = body.SID
			}
			return nil
		case socketio.ConnectError:
			return fmt.Errorf("%w: %s", ErrConnectRefused, string(sp.Data))
		default:
			return fmt.Errorf("%w: %s before connect", ErrUnexpectedPacket, sp.Type)
		}
	}
}

// ID returns the session id assigned by the server.
func (c *Client) ID() string {
	return c.id
}

// Protocol returns the negotiated Engine.IO revision.
func (c *Client) Protocol() int {
	return c.protocol
}

// PingInterval returns the heartbeat interval advertised by the server.
func (c *Client) PingInterval() time.Duration {
	return time.Duration(c.open.PingInterval) * time.Millisecond
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// On registers the handler for event, replacing any previous one.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, event)
		return
	}
	c.handlers[event] = h
}

// OnAny registers the handler for events without a registered Handler.
func (c *Client) OnAny(h AnyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = h
}

// Emit sends a fire-and-forget event.
func (c *Client) Emit(event string, args ...any) error {
	p, err := socketio.NewEvent(event, nil, args...)
	if err != nil {
		return err
	}
	return c.send(p)
}

// EmitWithAck sends an event and waits for the server's acknowledgement.
func (c *Client) EmitWithAck(ctx context.Context, event string, args ...any) ([]json.RawMessage, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	id := c.nextID
	c.nextID++
	ch := make(chan ackResult, 1)
	c.acks[id] = ch
	c.mu.Unlock()

	p, err := socketio.NewEvent(event, socketio.IntID(id), args...)
	if err == nil {
		err = c.send(p)
	}
	if err != nil {
		c.dropAck(id)
		return nil, err
	}

	select {
	case res := <-ch:
		return res.args, res.err
	case <-ctx.Done():
		c.dropAck(id)
		return nil, ctx.Err()
	}
}

// Close leaves the namespace and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.Err() == nil {
			c.send(socketio.Packet{Type: socketio.Disconnect, Namespace: socketio.DefaultNamespace})
			c.writeMu.Lock()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}
		c.finish(ErrClosed)
		err = c.conn.Close()
		<-c.readDone
	})
	return err
}

func (c *Client) dropAck(id int) {
	c.mu.Lock()
	delete(c.acks, id)
	c.mu.Unlock()
}

// finish records the first terminal error and fails pending acks.
func (c *Client) finish(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	acks := c.acks
	c.acks = make(map[int]chan ackResult)
	c.mu.Unlock()

	for _, ch := range acks {
		ch <- ackResult{err: err}
	}
	close(c.done)
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		c.refreshDeadline()
		p, err := c.readEngine()
		if err != nil {
			c.finish(c.readError(err))
			c.conn.Close()
			return
		}

		switch p.Type {
		case engineio.Ping:
			if err := c.writeEngine(engineio.Packet{Type: engineio.Pong, Data: p.Data}); err != nil {
				c.finish(err)
				c.conn.Close()
				return
			}
		case engineio.Close:
			c.finish(ErrServerDisconnect)
			c.conn.Close()
			return
		case engineio.Message:
			if !c.handleMessage(p.Data) {
				c.conn.Close()
				return
			}
		}
	}
}

// handleMessage processes one Socket.IO packet. It reports false when the
// connection should end.
func (c *Client) handleMessage(data string) bool {
	p, err := socketio.Decode(data)
	if err != nil {
		c.logger.Warn("dropping malformed packet", "error", err)
		return true
	}

	switch p.Type {
	case socketio.Event:
		select {
		case c.events <- p:
		case <-c.done:
			return false
		}
	case socketio.Ack:
		if p.ID == nil {
			return true
		}
		args, err := p.Args()
		c.mu.Lock()
		ch, ok := c.acks[*p.ID]
		delete(c.acks, *p.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("ack for unknown id dropped", "id", *p.ID)
			return true
		}
		ch <- ackResult{args: args, err: err}
	case socketio.Disconnect:
		c.finish(ErrServerDisconnect)
		return false
	default:
		c.logger.Debug("packet ignored", "type", p.Type.String())
	}
	return true
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case p := <-c.events:
			c.dispatch(p)
		case <-c.done:
			return
		}
	}
}

func (c *Client) dispatch(p socketio.Packet) {
	name, args, err := p.Event()
	if err != nil {
		c.logger.Warn("dropping malformed event", "error", err)
		return
	}

	c.mu.Lock()
	h := c.handlers[name]
	fallback := c.fallback
	c.mu.Unlock()
	if h == nil && fallback == nil {
		c.logger.Debug("no handler for event", "event", name)
		return
	}

	var ack AckFunc
	if p.ID != nil {
		id := *p.ID
		var once sync.Once
		ack = func(args ...any) error {
			err := errors.New("client: ack already sent")
			once.Do(func() {
				var reply socketio.Packet
				reply, err = socketio.NewAck(id, args...)
				if err == nil {
					err = c.send(reply)
				}
			})
			return err
		}
	}
	if h == nil {
		fallback(name, args, ack)
		return
	}
	h(args, ack)
}

// pingLoop sends heartbeats for protocol revision 3.
func (c *Client) pingLoop() {
	interval := c.PingInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.writeEngine(engineio.Packet{Type: engineio.Ping}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) refreshDeadline() {
	timeout := time.Duration(c.open.PingInterval+c.open.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		c.conn.SetReadDeadline(time.Time{})
		return
	}
	c.conn.SetReadDeadline(time.Now().Add(timeout))
}

func (c *Client) readError(err error) error {
	if c.Err() != nil {
		return ErrClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ErrServerDisconnect
	}
	return fmt.Errorf("client: read: %w", err)
}

func (c *Client) readEngine() (engineio.Packet, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return engineio.Packet{}, err
		}
		if typ == websocket.BinaryMessage {
			c.logger.Debug("binary frame ignored", "len", len(data))
			continue
		}
		return engineio.Decode(string(data))
	}
}

func (c *Client) send(p socketio.Packet) error {
	s, err := socketio.Encode(p)
	if err != nil {
		return err
	}
	return c.writeEngine(engineio.Packet{Type: engineio.Message, Data: s})
}

func (c *Client) writeEngine(p engineio.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(engineio.Encode(p)))
}
