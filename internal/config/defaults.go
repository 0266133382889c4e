package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatMS      = 15000
	DefaultTable            = "orderBookL2"
	DefaultMessageBuffer    = 10000
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultInitialInterval  = 1 * time.Second
	DefaultMaxInterval      = 60 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultHTTPPort         = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

func (c *StreamerConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.HeartbeatMS == 0 {
		c.Exchange.HeartbeatMS = DefaultHeartbeatMS
	}
	if c.Exchange.Table == "" {
		c.Exchange.Table = DefaultTable
	}
	if c.Exchange.MessageBuffer == 0 {
		c.Exchange.MessageBuffer = DefaultMessageBuffer
	}

	// Socket defaults
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}

	// Reconnect defaults
	if c.Reconnect.InitialInterval == 0 {
		c.Reconnect.InitialInterval = DefaultInitialInterval
	}
	if c.Reconnect.MaxInterval == 0 {
		c.Reconnect.MaxInterval = DefaultMaxInterval
	}

	// Store defaults
	applyDBDefaults(&c.Store.Postgres)

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
