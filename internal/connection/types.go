package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Default endpoints for the BitMEX realtime API.
const (
	ProdURI = "wss://www.bitmex.com/realtime"
	TestURI = "wss://testnet.bitmex.com/realtime"
)

// DefaultHeartbeat is the interval between ping frames.
const DefaultHeartbeat = 15 * time.Second

// DefaultTable is the table used when Subscribe or Unsubscribe is called without one.
const DefaultTable = "orderBookL2"

// pingFrame is sent verbatim, without a JSON envelope.
const pingFrame = "ping"

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// TransportError reports a failed send.
type TransportError struct {
	Op  string // "ping", "subscribe", "unsubscribe", "authKey", "send"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConnectionError rejects Open when the socket closes before the open sequence
// completed. Err is the last error recorded by the error handler, possibly nil.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection closed before open"
	}
	return fmt.Sprintf("connection closed before open: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError reports a failed authKey handshake send.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Command is an outbound protocol message.
type Command struct {
	Op   string `json:"op"`
	Args any    `json:"args"`
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ReadyState mirrors the readiness of a Socket.
type ReadyState int32

const (
	StateIdle ReadyState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SocketOptions are forwarded untouched to the socket factory.
type SocketOptions struct {
	Header            http.Header
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration // Write deadline for sends
	ReadBufferSize    int
	WriteBufferSize   int
	EnableCompression bool
	Proxy             func(*http.Request) (*url.URL, error)
}

// DefaultSocketOptions returns sensible defaults.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// SocketFactory builds a Socket for an endpoint.
type SocketFactory func(endpoint string, opts SocketOptions, logger *slog.Logger) Socket

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	Socket            Socket        // Pre-built socket (nil = created on Open)
	Endpoint          string        // Overrides the testmode default
	APIKey            string        // Both key and secret are needed to authenticate
	APISecret         string
	Testmode          bool          // Selects TestURI when Endpoint is empty
	Heartbeat         time.Duration // Ping interval (0 = DefaultHeartbeat)
	Table             string        // Default subscription table (empty = DefaultTable)
	MessageBufferSize int           // Buffer size for the inbound message channel
	SocketOptions     SocketOptions
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Heartbeat:         DefaultHeartbeat,
		Table:             DefaultTable,
		MessageBufferSize: 10000,
		SocketOptions:     DefaultSocketOptions(),
	}
}

// ResolveEndpoint picks the explicit endpoint, else the default for the network.
func ResolveEndpoint(endpoint string, testmode bool) string {
	if endpoint != "" {
		return endpoint
	}
	if testmode {
		return TestURI
	}
	return ProdURI
}
