package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/services/ratelimit"
	"github.com/authgate/authgate/services/session"
)

func TestStartWorkersReturns(t *testing.T) {
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:       true,
			Limit:         10,
			Window:        time.Minute,
			ReapInterval:  10 * time.Millisecond,
			IdleRetention: time.Minute,
		},
		Session: config.SessionConfig{
			CacheTTL:          time.Second,
			CacheReapInterval: 10 * time.Millisecond,
		},
	}
	logger := zap.NewNop()
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Limiter:   ratelimit.NewLimiter(cfg.RateLimit, logger),
		Validator: session.NewValidator(cfg.Session, nil, nil, logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		deps.StartWorkers(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StartWorkers must return immediately; the reapers run in the background")
	}
}
