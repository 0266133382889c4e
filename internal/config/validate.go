package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Exchange.Endpoint != "" {
		u, err := url.Parse(c.Exchange.Endpoint)
		if err != nil {
			return fmt.Errorf("exchange.endpoint: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("exchange.endpoint must use ws or wss, got %q", u.Scheme)
		}
	}
	if c.Exchange.HeartbeatMS < 1 {
		return errors.New("exchange.heartbeat must be >= 1")
	}
	if c.Exchange.Table == "" {
		return errors.New("exchange.table is required")
	}
	if c.Exchange.MessageBuffer < 1 {
		return errors.New("exchange.message_buffer must be >= 1")
	}

	if c.Socket.HandshakeTimeout < 0 || c.Socket.WriteTimeout < 0 {
		return errors.New("socket timeouts must be >= 0")
	}
	if c.Socket.ReadBufferSize < 0 || c.Socket.WriteBufferSize < 0 {
		return errors.New("socket buffer sizes must be >= 0")
	}

	for i, s := range c.Subscriptions.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("subscriptions.symbols[%d] is empty", i)
		}
	}

	if c.Reconnect.InitialInterval <= 0 {
		return errors.New("reconnect.initial_interval must be > 0")
	}
	if c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
		return fmt.Errorf("reconnect.max_interval (%s) cannot be less than initial_interval (%s)",
			c.Reconnect.MaxInterval, c.Reconnect.InitialInterval)
	}
	if c.Reconnect.MaxElapsedTime < 0 {
		return errors.New("reconnect.max_elapsed_time must be >= 0")
	}

	if c.Store.Enabled {
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.HTTP.MetricsPath, "/") {
		return fmt.Errorf("http.metrics_path must start with /, got %q", c.HTTP.MetricsPath)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
