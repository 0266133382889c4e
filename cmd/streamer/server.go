package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/bitmex-realtime/internal/version"
)

// controller is the part of *connection.Manager the HTTP API drives.
type controller interface {
	Connected() bool
	Authenticated() bool
	Endpoint() string
	LastError() error
	Subscriptions() []string
	Subscribe(ctx context.Context, symbol string, table ...string) error
	Unsubscribe(ctx context.Context, symbol string, table ...string) error
}

// subscriptionStore persists control API changes. Nil disables persistence.
type subscriptionStore interface {
	Add(ctx context.Context, symbol string) error
	Remove(ctx context.Context, symbol string) error
}

type server struct {
	mgr     controller
	store   subscriptionStore
	table   string
	metrics http.Handler
	logger  *slog.Logger
}

// handler creates the HTTP handler for health, control and metrics.
func (s *server) handler(metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /subscriptions", s.handleList)
	mux.HandleFunc("PUT /subscriptions/{symbol}", s.handleSubscribe)
	mux.HandleFunc("DELETE /subscriptions/{symbol}", s.handleUnsubscribe)
	if s.metrics != nil {
		mux.Handle("GET "+metricsPath, s.metrics)
	}

	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws := map[string]any{
		"connected":     s.mgr.Connected(),
		"endpoint":      s.mgr.Endpoint(),
		"authenticated": s.mgr.Authenticated(),
		"subscriptions": len(s.mgr.Subscriptions()),
	}
	if err := s.mgr.LastError(); err != nil {
		ws["last_error"] = err.Error()
	}

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.String(),
		Components: map[string]any{"websocket": ws},
	}

	status := http.StatusOK
	if !s.mgr.Connected() {
		health.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   s.table,
		"symbols": s.mgr.Subscriptions(),
	})
}

func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "subscribe")
}

func (s *server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "unsubscribe")
}

// apply changes the tracked set. The set changes even when the send fails;
// that case answers 202 since the next reconnect replays it. Only the symbol is
// kept, so a replay always uses the configured table.
func (s *server) apply(w http.ResponseWriter, r *http.Request, op string) {
	symbol := r.PathValue("symbol")
	table := r.URL.Query().Get("table")
	if table == "" {
		table = s.table
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var sendErr error
	if op == "subscribe" {
		sendErr = s.mgr.Subscribe(ctx, symbol, table)
	} else {
		sendErr = s.mgr.Unsubscribe(ctx, symbol, table)
	}

	if s.store != nil {
		var err error
		if op == "subscribe" {
			err = s.store.Add(ctx, symbol)
		} else {
			err = s.store.Remove(ctx, symbol)
		}
		if err != nil {
			s.logger.Error("failed to persist subscription", "op", op, "symbol", symbol, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}

	resp := map[string]any{
		"op":           op,
		"symbol":       symbol,
		"table":        table,
		"replay_table": s.table,
		"sent":         sendErr == nil,
	}
	status := http.StatusOK
	if sendErr != nil {
		s.logger.Warn("send failed, change kept for replay", "op", op, "symbol", symbol, "error", sendErr)
		resp["error"] = sendErr.Error()
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// serve runs srv until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
