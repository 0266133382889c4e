package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// fakeSocket is an in-memory Socket driven by the test.
type fakeSocket struct {
	mu         sync.Mutex
	handlers   Handlers
	state      ReadyState
	sent       []string
	connects   int
	connectErr error                   // Connect emits error then close
	autoOpen   bool                    // Connect emits open
	sendHook   func(data string) error // Non-nil result fails the send
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{autoOpen: true}
}

func (f *fakeSocket) SetHandlers(h Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeSocket) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	h := f.handlers

	if f.connectErr != nil {
		err := f.connectErr
		f.state = StateClosed
		f.mu.Unlock()
		if h.OnError != nil {
			h.OnError(err)
		}
		if h.OnClose != nil {
			h.OnClose()
		}
		return err
	}

	if !f.autoOpen {
		f.state = StateConnecting
		f.mu.Unlock()
		return nil
	}

	f.state = StateOpen
	f.mu.Unlock()
	if h.OnOpen != nil {
		h.OnOpen()
	}
	return nil
}

func (f *fakeSocket) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateOpen {
		return ErrNotConnected
	}
	if f.sendHook != nil {
		if err := f.sendHook(string(data)); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeSocket) ReadyState() ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	if f.state == StateClosed {
		f.mu.Unlock()
		return nil
	}
	f.state = StateClosed
	h := f.handlers
	f.mu.Unlock()

	if h.OnClose != nil {
		h.OnClose()
	}
	return nil
}

// open transitions a connecting socket to open.
func (f *fakeSocket) open() {
	f.mu.Lock()
	f.state = StateOpen
	h := f.handlers
	f.mu.Unlock()
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

// fail emits an error without closing.
func (f *fakeSocket) fail(err error) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnError != nil {
		h.OnError(err)
	}
}

// receive delivers an inbound frame.
func (f *fakeSocket) receive(data string) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnMessage != nil {
		h.OnMessage(TimestampedMessage{Data: []byte(data)})
	}
}

// frames returns every sent frame except heartbeats.
func (f *fakeSocket) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, s := range f.sent {
		if s != pingFrame {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSocket) pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, s := range f.sent {
		if s == pingFrame {
			n++
		}
	}
	return n
}

// factoryOf returns a SocketFactory handing out the given sockets in order.
func factoryOf(t *testing.T, socks ...*fakeSocket) (SocketFactory, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var endpoints []string
	i := 0

	return func(endpoint string, _ SocketOptions, _ *slog.Logger) Socket {
		mu.Lock()
		defer mu.Unlock()
		endpoints = append(endpoints, endpoint)
		if i >= len(socks) {
			t.Fatalf("socket factory called %d times, only %d sockets prepared", i+1, len(socks))
		}
		s := socks[i]
		i++
		return s
	}, &endpoints
}

// decodeFrame parses a JSON protocol frame.
func decodeFrame(t *testing.T, frame string) (op string, args json.RawMessage) {
	t.Helper()
	var cmd struct {
		Op   string          `json:"op"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal([]byte(frame), &cmd); err != nil {
		t.Fatalf("frame %q is not JSON: %v", frame, err)
	}
	return cmd.Op, cmd.Args
}

func countOp(t *testing.T, frames []string, op string) int {
	t.Helper()
	n := 0
	for _, f := range frames {
		if got, _ := decodeFrame(t, f); got == op {
			n++
		}
	}
	return n
}

func containsFrame(frames []string, want string) bool {
	for _, f := range frames {
		if strings.TrimSpace(f) == want {
			return true
		}
	}
	return false
}
