package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Handlers receive Socket lifecycle events. Nil fields are ignored.
type Handlers struct {
	OnOpen    func()
	OnClose   func()
	OnError   func(err error)
	OnMessage func(msg TimestampedMessage)
}

// Socket is a single duplex connection to the exchange.
type Socket interface {
	// SetHandlers replaces the event handlers.
	SetHandlers(h Handlers)

	// Connect dials the endpoint. Success emits open; failure emits error then close.
	Connect(ctx context.Context) error

	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error

	// ReadyState returns the current readiness.
	ReadyState() ReadyState

	// Close terminates the connection and emits close once.
	Close() error
}

// wsSocket implements Socket over gorilla/websocket.
type wsSocket struct {
	url    string
	opts   SocketOptions
	logger *slog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers Handlers

	// Write serialization
	writeMu sync.Mutex

	state     atomic.Int32
	closeOnce sync.Once
}

// NewWSSocket creates a WebSocket-backed Socket. It does not dial until Connect.
func NewWSSocket(endpoint string, opts SocketOptions, logger *slog.Logger) Socket {
	if logger == nil {
		logger = slog.Default()
	}

	return &wsSocket{
		url:    endpoint,
		opts:   opts,
		logger: logger,
	}
}

// SetHandlers replaces the event handlers.
func (s *wsSocket) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

// ReadyState returns the current readiness.
func (s *wsSocket) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// Connect establishes the WebSocket connection.
func (s *wsSocket) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyClosed
	}

	proxy := s.opts.Proxy
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}

	dialer := websocket.Dialer{
		Proxy:             proxy,
		HandshakeTimeout:  s.opts.HandshakeTimeout,
		ReadBufferSize:    s.opts.ReadBufferSize,
		WriteBufferSize:   s.opts.WriteBufferSize,
		EnableCompression: s.opts.EnableCompression,
	}

	s.logger.Debug("websocket connecting", "url", s.url)

	conn, _, err := dialer.DialContext(ctx, s.url, s.opts.Header)
	if err != nil {
		s.emitError(err)
		s.finish()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Close() may have run while dialing
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		conn.Close()
		return ErrAlreadyClosed
	}

	go s.readLoop(conn)

	s.logger.Debug("websocket connected", "url", s.url)
	s.emitOpen()

	return nil
}

// Send writes one text frame.
func (s *wsSocket) Send(ctx context.Context, data []byte) error {
	if s.ReadyState() != StateOpen {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(s.writeDeadline(ctx))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// writeDeadline is the earlier of the context deadline and the write timeout.
func (s *wsSocket) writeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if s.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(s.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// Close gracefully closes the connection.
func (s *wsSocket) Close() error {
	if ReadyState(s.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	var err error
	if conn != nil {
		s.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		err = conn.Close()
	}

	s.finish()
	return err
}

// readLoop reads messages until the connection fails or is closed.
func (s *wsSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Errors after Close() are expected
			if s.ReadyState() != StateClosed && !isNormalClosure(err) {
				s.emitError(err)
			}
			conn.Close()
			s.finish()
			return
		}

		s.emitMessage(TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		})
	}
}

// finish marks the socket closed and emits close exactly once.
func (s *wsSocket) finish() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.logger.Debug("websocket closed", "url", s.url)

		s.mu.RLock()
		fn := s.handlers.OnClose
		s.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})
}

func (s *wsSocket) emitOpen() {
	s.mu.RLock()
	fn := s.handlers.OnOpen
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (s *wsSocket) emitError(err error) {
	s.mu.RLock()
	fn := s.handlers.OnError
	s.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (s *wsSocket) emitMessage(msg TimestampedMessage) {
	s.mu.RLock()
	fn := s.handlers.OnMessage
	s.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func isNormalClosure(err error) bool {
	ce, ok := err.(*websocket.CloseError)
	return ok && ce.Code == websocket.CloseNormalClosure
}
