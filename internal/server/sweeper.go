package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/dealwatch/internal/registry"
)

// Sweeper removes stale registry entries on a cron schedule. When a redis
// client is present a SetNX lock keeps multiple instances from sweeping
// the same store at once.
type Sweeper struct {
	Store    *registry.Store
	MaxAge   time.Duration
	Schedule string
	Rdb      *redis.Client

	logger *log.Logger
}

const sweepLockKey = "dealwatch:sweep:lock"

func (s *Sweeper) Run(ctx context.Context) {
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[SWEEP] ", log.LstdFlags)
	}
	expr, err := cronexpr.Parse(s.Schedule)
	if err != nil {
		s.logger.Printf("invalid schedule %q, sweeper disabled: %v", s.Schedule, err)
		return
	}
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			s.logger.Printf("schedule %q has no future firings, sweeper stopping", s.Schedule)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, sweepLockKey, "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, sweepLockKey)
	}
	removed, err := s.Store.Sweep(s.MaxAge)
	if err != nil {
		s.logger.Printf("sweep failed: %v", err)
		return
	}
	if removed > 0 {
		s.logger.Printf("removed %d stale products", removed)
	}
}
