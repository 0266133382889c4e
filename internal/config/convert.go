package config

import (
	"net/http"

	"github.com/rickgao/bitmex-realtime/internal/connection"
)

// ManagerConfig converts the exchange and socket sections.
func (c *StreamerConfig) ManagerConfig() connection.ManagerConfig {
	opts := connection.DefaultSocketOptions()
	if c.Socket.HandshakeTimeout > 0 {
		opts.HandshakeTimeout = c.Socket.HandshakeTimeout
	}
	if c.Socket.WriteTimeout > 0 {
		opts.WriteTimeout = c.Socket.WriteTimeout
	}
	opts.ReadBufferSize = c.Socket.ReadBufferSize
	opts.WriteBufferSize = c.Socket.WriteBufferSize
	opts.EnableCompression = c.Socket.EnableCompression
	if len(c.Socket.Headers) > 0 {
		opts.Header = make(http.Header, len(c.Socket.Headers))
		for k, v := range c.Socket.Headers {
			opts.Header.Set(k, v)
		}
	}

	return connection.ManagerConfig{
		Endpoint:          c.Exchange.Endpoint,
		APIKey:            c.Exchange.APIKey,
		APISecret:         c.Exchange.APISecret,
		Testmode:          bool(c.Exchange.Testmode),
		Heartbeat:         c.Exchange.Heartbeat(),
		Table:             c.Exchange.Table,
		MessageBufferSize: c.Exchange.MessageBuffer,
		SocketOptions:     opts,
	}
}

// SupervisorConfig converts the reconnect section.
func (c *StreamerConfig) SupervisorConfig() connection.SupervisorConfig {
	return connection.SupervisorConfig{
		InitialInterval: c.Reconnect.InitialInterval,
		MaxInterval:     c.Reconnect.MaxInterval,
		MaxElapsedTime:  c.Reconnect.MaxElapsedTime,
	}
}
