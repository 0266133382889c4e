package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SupervisorConfig controls reconnect backoff.
type SupervisorConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration // 0 retries forever
}

// DefaultSupervisorConfig returns sensible reconnect defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     60 * time.Second,
	}
}

// Supervisor keeps a Manager connected. The Manager never reconnects on its
// own; the Supervisor reopens it after every close.
type Supervisor struct {
	mgr    *Manager
	cfg    SupervisorConfig
	logger *slog.Logger
}

// NewSupervisor creates a Supervisor for mgr.
func NewSupervisor(mgr *Manager, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultSupervisorConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultSupervisorConfig().MaxInterval
	}
	return &Supervisor{mgr: mgr, cfg: cfg, logger: logger}
}

// Run opens the manager, waits for it to close and reopens it until ctx is
// cancelled or backoff gives up. The manager is closed on return.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.mgr.Close()

	for cycle := 0; ; cycle++ {
		if cycle > 0 {
			s.mgr.metrics.IncReconnect()
		}

		if err := s.open(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("open connection: %w", err)
		}

		err := s.mgr.Wait(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("connection lost, reconnecting", "error", err)
	}
}

func (s *Supervisor) open(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialInterval
	bo.MaxInterval = s.cfg.MaxInterval
	bo.MaxElapsedTime = s.cfg.MaxElapsedTime

	attempts := 0
	operation := func() error {
		attempts++
		_, err := s.mgr.Open(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		// Drop a half-open socket so the next attempt dials fresh
		s.mgr.Close()
		return err
	}

	notify := func(err error, delay time.Duration) {
		s.logger.Warn("open failed, retrying",
			"error", err,
			"delay", delay,
			"attempt", attempts,
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return err
	}

	s.logger.Info("connection established", "attempts", attempts, "subscriptions", len(s.mgr.Subscriptions()))
	return nil
}
