package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/khscrm/api/internal/auth"
)

// TokenSweeper periodically deletes expired refresh-token records. It is an
// explicitly owned task handle: callers start it with Start and stop it with
// Stop, there is no package-level timer state.
type TokenSweeper struct {
	tokens      auth.TokenStore
	interval    time.Duration
	running     bool
	sweeps      int64
	lastDeleted int64
	lastSweepAt time.Time
	mu          sync.Mutex
	stopChan    chan struct{}
}

type SweeperConfig struct {
	Interval time.Duration
}

func NewTokenSweeper(tokens auth.TokenStore, cfg SweeperConfig) *TokenSweeper {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}

	return &TokenSweeper{
		tokens:   tokens,
		interval: cfg.Interval,
		stopChan: make(chan struct{}),
	}
}

func (s *TokenSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[Sweeper] Starting with interval %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Context cancelled, stopping")
			return
		case <-s.stopChan:
			log.Println("[Sweeper] Stop signal received")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TokenSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopChan)
		s.running = false
		log.Println("[Sweeper] Stopped")
	}
}

// sweep runs one garbage-collection pass. Failures are logged and never
// crash the process.
func (s *TokenSweeper) sweep(ctx context.Context) {
	deleted, err := s.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		log.Printf("[Sweeper] Error deleting expired tokens: %v", err)
		return
	}

	s.mu.Lock()
	s.sweeps++
	s.lastDeleted = deleted
	s.lastSweepAt = time.Now()
	s.mu.Unlock()

	if deleted > 0 {
		log.Printf("[Sweeper] Deleted %d expired refresh tokens", deleted)
	}
}

// GetStatus returns current sweeper status
func (s *TokenSweeper) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"running":     s.running,
		"interval":    s.interval.String(),
		"sweeps":      s.sweeps,
		"lastDeleted": s.lastDeleted,
		"lastSweepAt": s.lastSweepAt,
	}
}
