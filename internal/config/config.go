package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Socket        SocketConfig        `yaml:"socket"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Reconnect     ReconnectConfig     `yaml:"reconnect"`
	Store         StoreConfig         `yaml:"store"`
	HTTP          HTTPConfig          `yaml:"http"`
	Log           LogConfig           `yaml:"log"`
}

// ExchangeConfig holds realtime API settings.
type ExchangeConfig struct {
	Endpoint      string   `yaml:"endpoint"` // Overrides the testmode default
	Testmode      Testmode `yaml:"testmode"`
	APIKey        string   `yaml:"api_key"`
	APISecret     string   `yaml:"api_secret"`
	APISecretFile string   `yaml:"api_secret_file"` // Read when api_secret is empty
	HeartbeatMS   int      `yaml:"heartbeat"`       // Milliseconds
	Table         string   `yaml:"table"`
	MessageBuffer int      `yaml:"message_buffer"`
}

// Heartbeat returns the ping interval.
func (e ExchangeConfig) Heartbeat() time.Duration {
	return time.Duration(e.HeartbeatMS) * time.Millisecond
}

// Testmode selects the test endpoint. YAML true and the string "true" enable
// it; anything else disables it.
type Testmode bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Testmode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*t = false
		return nil
	}
	if node.Tag == "!!bool" {
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*t = Testmode(b)
		return nil
	}
	*t = Testmode(node.Value == "true")
	return nil
}

// SocketConfig holds WebSocket dial settings.
type SocketConfig struct {
	HandshakeTimeout  time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration     `yaml:"write_timeout"`
	ReadBufferSize    int               `yaml:"read_buffer_size"`
	WriteBufferSize   int               `yaml:"write_buffer_size"`
	EnableCompression bool              `yaml:"enable_compression"`
	Headers           map[string]string `yaml:"headers"`
}

// SubscriptionsConfig lists the symbols subscribed at startup.
type SubscriptionsConfig struct {
	Symbols []string `yaml:"symbols"`
}

// ReconnectConfig holds supervisor backoff settings.
type ReconnectConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"` // 0 retries forever
}

// StoreConfig holds the optional durable subscription store.
type StoreConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HTTPConfig holds the health, control and metrics server settings.
type HTTPConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}
