package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/bitmex-realtime/internal/connection"
)

func TestLoad(t *testing.T) {
	yaml := `
exchange:
  endpoint: wss://example.test/realtime
  api_key: key
  api_secret: secret
  heartbeat: 5000
  table: orderBook10
subscriptions:
  symbols: [XBTUSD, ETHUSD]
store:
  enabled: true
  postgres:
    host: localhost
    port: 5432
    name: bitmex
    user: streamer
    password: pass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Exchange.Endpoint != "wss://example.test/realtime" {
		t.Errorf("Exchange.Endpoint = %q", cfg.Exchange.Endpoint)
	}
	if cfg.Exchange.Heartbeat() != 5*time.Second {
		t.Errorf("Exchange.Heartbeat() = %v, want 5s", cfg.Exchange.Heartbeat())
	}
	if cfg.Exchange.Table != "orderBook10" {
		t.Errorf("Exchange.Table = %q, want orderBook10", cfg.Exchange.Table)
	}
	if len(cfg.Subscriptions.Symbols) != 2 || cfg.Subscriptions.Symbols[1] != "ETHUSD" {
		t.Errorf("Subscriptions.Symbols = %v", cfg.Subscriptions.Symbols)
	}
	if !cfg.Store.Enabled || cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BITMEX_KEY", "env-key")
	t.Setenv("TEST_BITMEX_SECRET", "env-secret")

	yaml := `
exchange:
  api_key: ${TEST_BITMEX_KEY}
  api_secret: ${TEST_BITMEX_SECRET}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Exchange.APIKey != "env-key" {
		t.Errorf("Exchange.APIKey = %q, want %q", cfg.Exchange.APIKey, "env-key")
	}
	if cfg.Exchange.APISecret != "env-secret" {
		t.Errorf("Exchange.APISecret = %q, want %q", cfg.Exchange.APISecret, "env-secret")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "exchange:\n  testmode: true\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Exchange.HeartbeatMS != DefaultHeartbeatMS {
		t.Errorf("Exchange.HeartbeatMS = %d, want default %d", cfg.Exchange.HeartbeatMS, DefaultHeartbeatMS)
	}
	if cfg.Exchange.Table != DefaultTable {
		t.Errorf("Exchange.Table = %q, want default %q", cfg.Exchange.Table, DefaultTable)
	}
	if cfg.Socket.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Socket.WriteTimeout = %v, want default %v", cfg.Socket.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Reconnect.MaxInterval != DefaultMaxInterval {
		t.Errorf("Reconnect.MaxInterval = %v, want default %v", cfg.Reconnect.MaxInterval, DefaultMaxInterval)
	}
	if cfg.Store.Postgres.Port != DefaultDBPort {
		t.Errorf("Store.Postgres.Port = %d, want default %d", cfg.Store.Postgres.Port, DefaultDBPort)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, DefaultLogFormat)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestTestmode(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "true", want: true},
		{value: `"true"`, want: true},
		{value: "false", want: false},
		{value: `"yes"`, want: false},
		{value: `"TRUE"`, want: false},
		{value: `" true "`, want: false},
		{value: "1", want: false},
		{value: "[true]", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg, err := Parse([]byte("exchange:\n  testmode: " + tt.value + "\n"))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if bool(cfg.Exchange.Testmode) != tt.want {
				t.Errorf("Testmode(%s) = %v, want %v", tt.value, cfg.Exchange.Testmode, tt.want)
			}
		})
	}
}

func TestLoadAndValidate_SecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secretPath, []byte("file-secret\n"), 0600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	path := writeTempFile(t, "exchange:\n  api_key: key\n  api_secret_file: "+secretPath+"\n")

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Exchange.APISecret != "file-secret" {
		t.Errorf("Exchange.APISecret = %q, want file-secret", cfg.Exchange.APISecret)
	}

	missing := writeTempFile(t, "exchange:\n  api_secret_file: /nonexistent/secret\n")
	if _, err := LoadAndValidate(missing); err == nil || !strings.Contains(err.Error(), "api_secret_file") {
		t.Errorf("expected api_secret_file error, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "exchange: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func validConfig() StreamerConfig {
	cfg := StreamerConfig{}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*StreamerConfig) {},
			wantErr: "",
		},
		{
			name:    "bad endpoint scheme",
			mutate:  func(c *StreamerConfig) { c.Exchange.Endpoint = "https://www.bitmex.com/realtime" },
			wantErr: `exchange.endpoint must use ws or wss, got "https"`,
		},
		{
			name:    "zero heartbeat",
			mutate:  func(c *StreamerConfig) { c.Exchange.HeartbeatMS = -1 },
			wantErr: "exchange.heartbeat must be >= 1",
		},
		{
			name:    "empty symbol",
			mutate:  func(c *StreamerConfig) { c.Subscriptions.Symbols = []string{"XBTUSD", " "} },
			wantErr: "subscriptions.symbols[1] is empty",
		},
		{
			name: "max interval below initial",
			mutate: func(c *StreamerConfig) {
				c.Reconnect.InitialInterval = 10 * time.Second
				c.Reconnect.MaxInterval = time.Second
			},
			wantErr: "reconnect.max_interval (1s) cannot be less than initial_interval (10s)",
		},
		{
			name:    "store enabled without host",
			mutate:  func(c *StreamerConfig) { c.Store.Enabled = true },
			wantErr: "store.postgres.host is required",
		},
		{
			name: "store min_conns exceeds max_conns",
			mutate: func(c *StreamerConfig) {
				c.Store.Enabled = true
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "store.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "store disabled skips postgres",
			mutate:  func(c *StreamerConfig) { c.Store.Postgres = DBConfig{} },
			wantErr: "",
		},
		{
			name:    "http port out of range",
			mutate:  func(c *StreamerConfig) { c.HTTP.Port = 70000 },
			wantErr: "http.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *StreamerConfig) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "bad log format",
			mutate:  func(c *StreamerConfig) { c.Log.Format = "xml" },
			wantErr: `log.format must be json or console, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestManagerConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Exchange.Testmode = true
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	cfg.Socket.Headers = map[string]string{"x-client": "streamer"}
	cfg.Socket.EnableCompression = true

	mc := cfg.ManagerConfig()

	if !mc.Testmode {
		t.Error("Testmode not carried over")
	}
	if mc.Heartbeat != 15*time.Second {
		t.Errorf("Heartbeat = %v, want 15s", mc.Heartbeat)
	}
	if mc.Table != DefaultTable || mc.MessageBufferSize != DefaultMessageBuffer {
		t.Errorf("Table/MessageBufferSize = %q/%d", mc.Table, mc.MessageBufferSize)
	}
	if mc.SocketOptions.Header.Get("X-Client") != "streamer" {
		t.Errorf("Header = %v", mc.SocketOptions.Header)
	}
	if !mc.SocketOptions.EnableCompression {
		t.Error("EnableCompression not carried over")
	}
	if mc.SocketOptions.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", mc.SocketOptions.WriteTimeout, DefaultWriteTimeout)
	}

	m := connection.NewManager(mc, nil)
	if m.Endpoint() != connection.TestURI {
		t.Errorf("Endpoint = %q, want %q", m.Endpoint(), connection.TestURI)
	}
	if !m.Authenticated() {
		t.Error("expected an authenticated manager")
	}

	sc := cfg.SupervisorConfig()
	if sc.InitialInterval != DefaultInitialInterval || sc.MaxInterval != DefaultMaxInterval {
		t.Errorf("SupervisorConfig = %+v", sc)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
