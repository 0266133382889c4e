// streamer keeps a BitMEX realtime session open, replays subscriptions on
// every reconnect and exposes health, control and metrics over HTTP.
//
// Usage: go run ./cmd/streamer --config configs/streamer.example.yaml
//
// Environment variables referenced by the example config:
//
//	BITMEX_API_KEY    - API key ID (optional, enables authKey)
//	BITMEX_API_SECRET - API secret
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/bitmex-realtime/internal/config"
	"github.com/rickgao/bitmex-realtime/internal/connection"
	"github.com/rickgao/bitmex-realtime/internal/database"
	"github.com/rickgao/bitmex-realtime/internal/logging"
	"github.com/rickgao/bitmex-realtime/internal/metrics"
	"github.com/rickgao/bitmex-realtime/internal/version"
)

func main() {
	configPath := flag.StringP("config", "c", "configs/streamer.yaml", "path to config file")
	logLevel := flag.String("log-level", "", "override log.level")
	testmode := flag.Bool("testmode", false, "force the testnet endpoint")
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath, *logLevel, *testmode); err != nil {
		fmt.Fprintln(os.Stderr, "streamer:", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string, testmode bool) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if testmode {
		cfg.Exchange.Testmode = true
	}

	logger, syncLogs, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer syncLogs()
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collectors := metrics.NewConnection()
	mgr := connection.NewManager(cfg.ManagerConfig(), logger, connection.WithMetrics(collectors))

	srv := &server{
		mgr:     mgr,
		table:   cfg.Exchange.Table,
		metrics: collectors.Handler(),
		logger:  logger,
	}

	mgr.Track(cfg.Subscriptions.Symbols...)

	if cfg.Store.Enabled {
		pool, store, err := openStore(ctx, cfg.Store.Postgres, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		for _, s := range cfg.Subscriptions.Symbols {
			if err := store.Add(ctx, s); err != nil {
				return err
			}
		}
		stored, err := store.List(ctx)
		if err != nil {
			return err
		}
		mgr.Track(stored...)
		srv.store = store
	}

	logger.Info("configuration loaded",
		"endpoint", mgr.Endpoint(),
		"authenticated", mgr.Authenticated(),
		"table", cfg.Exchange.Table,
		"subscriptions", mgr.Subscriptions(),
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: srv.handler(cfg.HTTP.MetricsPath),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return connection.NewSupervisor(mgr, cfg.SupervisorConfig(), logger).Run(gctx)
	})
	g.Go(func() error {
		return serve(gctx, httpServer, logger)
	})
	g.Go(func() error {
		consume(gctx, mgr.Messages(), logger)
		return nil
	})

	err = g.Wait()
	logger.Info("streamer stopped", "error", err)
	return err
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*pgxpool.Pool, *database.SubscriptionStore, error) {
	logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
	)

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect store: %w", err)
	}

	store := database.NewSubscriptionStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("database connected")
	return pool, store, nil
}

// envelope holds the routing fields of an inbound frame.
type envelope struct {
	Table   string `json:"table"`
	Action  string `json:"action"`
	Info    string `json:"info"`
	Error   string `json:"error"`
	Success *bool  `json:"success"`
}

// consume drains inbound frames and logs protocol-level responses.
func consume(ctx context.Context, msgs <-chan connection.TimestampedMessage, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			logFrame(msg, logger)
		}
	}
}

func logFrame(msg connection.TimestampedMessage, logger *slog.Logger) {
	if string(msg.Data) == "pong" {
		return
	}

	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		logger.Debug("unparseable frame", "error", err, "bytes", len(msg.Data))
		return
	}

	switch {
	case env.Error != "":
		logger.Warn("server error", "error", env.Error)
	case env.Info != "":
		logger.Info("server info", "info", env.Info)
	case env.Success != nil:
		logger.Debug("command acknowledged", "success", *env.Success)
	case env.Table != "":
		logger.Debug("data", "table", env.Table, "action", env.Action, "bytes", len(msg.Data))
	}
}
