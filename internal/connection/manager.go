package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rickgao/bitmex-realtime/internal/auth"
)

// Metrics receives connection lifecycle counters.
type Metrics interface {
	IncConnect(status string)
	IncDisconnect()
	IncSend(op, status string)
	IncError()
	IncMessage()
	IncDrop()
	IncReconnect()
	SetSubscriptions(n int)
}

type nopMetrics struct{}

func (nopMetrics) IncConnect(string) {}
func (nopMetrics) IncDisconnect() {}
func (nopMetrics) IncSend(string, string) {}
func (nopMetrics) IncError() {}
func (nopMetrics) IncMessage() {}
func (nopMetrics) IncDrop() {}
func (nopMetrics) IncReconnect() {}
func (nopMetrics) SetSubscriptions(int) {}

// Option customizes a Manager.
type Option func(*Manager)

// WithSocketFactory overrides how sockets are created on Open.
func WithSocketFactory(f SocketFactory) Option {
	return func(m *Manager) { m.newSocket = f }
}

// WithSigner overrides the handshake signer.
func WithSigner(s auth.Signer) Option {
	return func(m *Manager) { m.signer = s }
}

// WithClock overrides the nonce clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(mt Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager owns one socket to the realtime API, authenticates it, keeps it alive
// and replays the tracked subscriptions whenever it opens.
type Manager struct {
	cfg       ManagerConfig
	endpoint  string
	creds     *auth.Credentials
	signer    auth.Signer
	heartbeat time.Duration
	table     string
	newSocket SocketFactory
	now       func() time.Time
	metrics   Metrics
	logger    *slog.Logger

	messages chan TimestampedMessage

	mu            sync.Mutex
	socket        Socket
	subscriptions map[string]struct{}
	lastError     error
	cycle         *openCycle
}

// openCycle is the state of one Open attempt on one socket.
type openCycle struct {
	id     string
	socket Socket
	done   chan struct{} // closed when the socket closes

	// Guarded by Manager.mu
	opening       bool
	connected     bool
	closed        bool
	stopHeartbeat context.CancelFunc

	settleOnce sync.Once
	settled    chan struct{}
	err        error
}

func (c *openCycle) settle(err error) {
	c.settleOnce.Do(func() {
		c.err = err
		close(c.settled)
	})
}

// NewManager creates a Manager. It does not connect until Open.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:           cfg,
		endpoint:      ResolveEndpoint(cfg.Endpoint, cfg.Testmode),
		signer:        auth.HMACSigner{},
		heartbeat:     cfg.Heartbeat,
		table:         cfg.Table,
		newSocket:     NewWSSocket,
		now:           time.Now,
		metrics:       nopMetrics{},
		logger:        logger,
		socket:        cfg.Socket,
		subscriptions: make(map[string]struct{}),
	}
	if m.heartbeat <= 0 {
		m.heartbeat = DefaultHeartbeat
	}
	if m.table == "" {
		m.table = DefaultTable
	}
	bufSize := cfg.MessageBufferSize
	if bufSize <= 0 {
		bufSize = DefaultManagerConfig().MessageBufferSize
	}
	m.messages = make(chan TimestampedMessage, bufSize)

	for _, opt := range opts {
		opt(m)
	}

	if creds, ok := auth.NewCredentials(cfg.APIKey, cfg.APISecret); ok {
		m.creds = creds
	} else if cfg.APIKey != "" || cfg.APISecret != "" {
		m.logger.Warn("incomplete API credentials, authentication disabled",
			"api_key_set", cfg.APIKey != "",
			"api_secret_set", cfg.APISecret != "",
		)
	}

	return m
}

// Endpoint returns the resolved endpoint URI.
func (m *Manager) Endpoint() string {
	return m.endpoint
}

// Authenticated reports whether Open performs the authKey handshake.
func (m *Manager) Authenticated() bool {
	return m.creds != nil
}

// Connected reports whether the socket is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	sock := m.socket
	m.mu.Unlock()

	return sock != nil && sock.ReadyState() == StateOpen
}

// LastError returns the most recent error reported by the socket.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Subscriptions returns the tracked symbols, sorted.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.subscriptions))
	for s := range m.subscriptions {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()

	sort.Strings(symbols)
	return symbols
}

// Messages returns the channel of raw inbound frames.
func (m *Manager) Messages() <-chan TimestampedMessage {
	return m.messages
}

// Open connects the socket, authenticates when credentials are set and replays
// the tracked subscriptions. It returns true once all of that has been sent.
//
// If the socket closes before reaching the open state, Open fails with a
// *ConnectionError carrying the last socket error. Cancelling ctx abandons the
// wait only. The dial keeps going and a later Open picks up the same socket.
func (m *Manager) Open(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.socket == nil || m.socket.ReadyState() == StateClosed {
		m.socket = m.newSocket(m.endpoint, m.cfg.SocketOptions, m.logger)
	}
	sock := m.socket

	c := m.cycle
	if c == nil || c.socket != sock {
		c = &openCycle{
			id:      uuid.NewString(),
			socket:  sock,
			done:    make(chan struct{}),
			settled: make(chan struct{}),
		}
		m.cycle = c

		// Handlers go in before any network activity
		sock.SetHandlers(Handlers{
			OnOpen:    func() { m.handleOpen(c) },
			OnClose:   func() { m.handleClose(c) },
			OnError:   func(err error) { m.handleError(c, err) },
			OnMessage: m.handleMessage,
		})
	}
	m.mu.Unlock()

	switch sock.ReadyState() {
	case StateIdle:
		m.logger.Info("connecting", "endpoint", m.endpoint, "session_id", c.id)
		// The dial outlives ctx; HandshakeTimeout bounds it
		go sock.Connect(context.WithoutCancel(ctx))
	case StateOpen:
		// A supplied socket that is already open will not emit open again
		go m.handleOpen(c)
	}

	select {
	case <-c.settled:
		return c.err == nil, c.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// handleOpen runs the open sequence: heartbeat, handshake, replay.
func (m *Manager) handleOpen(c *openCycle) {
	m.mu.Lock()
	if c.opening || c.closed {
		m.mu.Unlock()
		return
	}
	c.connected = c.socket.ReadyState() == StateOpen
	if !c.connected {
		m.mu.Unlock()
		return
	}
	c.opening = true
	hbCtx, cancel := context.WithCancel(context.Background())
	c.stopHeartbeat = cancel
	m.mu.Unlock()

	logger := m.logger.With("session_id", c.id)
	logger.Info("connection opened", "endpoint", m.endpoint)
	m.metrics.IncConnect("ok")

	go m.heartbeatLoop(hbCtx, logger)

	if m.creds != nil {
		if err := m.authenticate(hbCtx); err != nil {
			logger.Error("authentication failed", "error", err)
			c.settle(&AuthenticationError{Err: err})
			return
		}
		logger.Debug("authentication sent", "api_key", m.creds.Key)
	}

	replayed := 0
	for _, symbol := range m.Subscriptions() {
		sent, err := m.replay(hbCtx, symbol)
		if err != nil {
			logger.Warn("failed to replay subscription",
				"symbol", symbol,
				"error", err,
			)
			continue
		}
		if sent {
			replayed++
		}
	}

	m.mu.Lock()
	closed := c.closed
	lastErr := m.lastError
	m.mu.Unlock()

	if closed {
		c.settle(&ConnectionError{Err: lastErr})
		return
	}

	logger.Info("connection ready", "replayed", replayed, "authenticated", m.creds != nil)
	c.settle(nil)
}

// handleClose stops the heartbeat and rejects a pending Open when the socket
// never reached the open state.
func (m *Manager) handleClose(c *openCycle) {
	m.mu.Lock()
	if c.closed {
		m.mu.Unlock()
		return
	}
	c.closed = true
	if c.stopHeartbeat != nil {
		c.stopHeartbeat()
	}
	wasConnected := c.connected
	c.connected = false
	lastErr := m.lastError
	close(c.done)
	m.mu.Unlock()

	if !wasConnected {
		m.logger.Warn("connection closed before open", "session_id", c.id, "error", lastErr)
		m.metrics.IncConnect("failed")
		c.settle(&ConnectionError{Err: lastErr})
		return
	}

	m.logger.Info("connection closed", "session_id", c.id)
	m.metrics.IncDisconnect()
}

// handleError records the error. Only a following close makes it fatal.
func (m *Manager) handleError(c *openCycle, err error) {
	m.mu.Lock()
	m.lastError = err
	m.mu.Unlock()

	m.logger.Warn("connection error", "session_id", c.id, "error", err)
	m.metrics.IncError()
}

// handleMessage forwards an inbound frame without interpreting it.
func (m *Manager) handleMessage(msg TimestampedMessage) {
	m.metrics.IncMessage()

	select {
	case m.messages <- msg:
	default:
		m.metrics.IncDrop()
		m.logger.Warn("message buffer full, dropping message")
	}
}

// heartbeatLoop pings until ctx is cancelled by the close handler.
func (m *Manager) heartbeatLoop(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Ping(ctx); err != nil {
				logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// authenticate sends the signed authKey command.
func (m *Manager) authenticate(ctx context.Context) error {
	nonce := m.now().UnixMilli()

	args, err := m.creds.AuthArgs(m.signer, nonce)
	if err != nil {
		return err
	}

	return m.SendMessage(ctx, Command{Op: "authKey", Args: args})
}

// Ping sends a liveness frame. Failure does not close the connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.write(ctx, "ping", []byte(pingFrame))
}

// replay resends the subscribe command for symbol without touching the set.
// A symbol unsubscribed since the snapshot was taken is skipped.
func (m *Manager) replay(ctx context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	_, tracked := m.subscriptions[symbol]
	m.mu.Unlock()

	if !tracked {
		return false, nil
	}
	return true, m.SendMessage(ctx, Command{Op: "subscribe", Args: m.topic(symbol, nil)})
}

// Subscribe tracks symbol and sends a subscribe command. The symbol stays
// tracked when the send fails, so the next Open replays it.
func (m *Manager) Subscribe(ctx context.Context, symbol string, table ...string) error {
	m.mu.Lock()
	m.subscriptions[symbol] = struct{}{}
	n := len(m.subscriptions)
	m.mu.Unlock()
	m.metrics.SetSubscriptions(n)

	return m.SendMessage(ctx, Command{Op: "subscribe", Args: m.topic(symbol, table)})
}

// Track adds symbols to the replay set without sending anything.
func (m *Manager) Track(symbols ...string) {
	m.mu.Lock()
	for _, s := range symbols {
		m.subscriptions[s] = struct{}{}
	}
	n := len(m.subscriptions)
	m.mu.Unlock()
	m.metrics.SetSubscriptions(n)
}

// Unsubscribe stops tracking symbol and sends an unsubscribe command. A failed
// send does not restore the symbol.
func (m *Manager) Unsubscribe(ctx context.Context, symbol string, table ...string) error {
	m.mu.Lock()
	delete(m.subscriptions, symbol)
	n := len(m.subscriptions)
	m.mu.Unlock()
	m.metrics.SetSubscriptions(n)

	return m.SendMessage(ctx, Command{Op: "unsubscribe", Args: m.topic(symbol, table)})
}

func (m *Manager) topic(symbol string, table []string) string {
	t := m.table
	if len(table) > 0 && table[0] != "" {
		t = table[0]
	}
	return t + ":" + symbol
}

// SendMessage encodes payload as JSON and writes it as one text frame.
func (m *Manager) SendMessage(ctx context.Context, payload any) error {
	op := "send"
	if cmd, ok := payload.(Command); ok {
		op = cmd.Op
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}

	return m.write(ctx, op, data)
}

// write is the single path to the socket.
func (m *Manager) write(ctx context.Context, op string, data []byte) error {
	m.mu.Lock()
	sock := m.socket
	m.mu.Unlock()

	err := ErrNotConnected
	if sock != nil {
		err = sock.Send(ctx, data)
	}
	if err != nil {
		m.metrics.IncSend(op, "error")
		return &TransportError{Op: op, Err: err}
	}

	m.metrics.IncSend(op, "ok")
	m.logger.Debug("sent", "op", op, "bytes", len(data))
	return nil
}

// Wait blocks until the socket of the latest Open closes and returns the last
// recorded error.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	c := m.cycle
	m.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}

	select {
	case <-c.done:
		return m.LastError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the socket. The close handler cancels the heartbeat.
func (m *Manager) Close() error {
	m.mu.Lock()
	sock := m.socket
	c := m.cycle
	if c != nil && c.stopHeartbeat != nil {
		c.stopHeartbeat()
	}
	m.mu.Unlock()

	if sock == nil {
		return nil
	}
	return sock.Close()
}
