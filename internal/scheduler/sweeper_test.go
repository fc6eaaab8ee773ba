package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khscrm/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sweepOnlyStore implements auth.TokenStore; only DeleteExpired matters here.
type sweepOnlyStore struct {
	calls   atomic.Int64
	deleted int64
}

func (s *sweepOnlyStore) Insert(ctx context.Context, t *model.RefreshToken) error { return nil }
func (s *sweepOnlyStore) FindByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	return nil, nil
}
func (s *sweepOnlyStore) FindActiveByUser(ctx context.Context, userID int64) ([]model.RefreshToken, error) {
	return nil, nil
}
func (s *sweepOnlyStore) MarkRevoked(ctx context.Context, hash string) (bool, error) {
	return false, nil
}
func (s *sweepOnlyStore) MarkAllRevoked(ctx context.Context, userID int64) (int64, error) {
	return 0, nil
}
func (s *sweepOnlyStore) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (bool, error) {
	return false, nil
}
func (s *sweepOnlyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.calls.Add(1)
	return s.deleted, nil
}

func TestSweeperRunsAndStops(t *testing.T) {
	store := &sweepOnlyStore{deleted: 3}
	sweeper := NewTokenSweeper(store, SweeperConfig{Interval: 10 * time.Millisecond})

	go sweeper.Start(context.Background())

	require.Eventually(t, func() bool {
		return store.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	callsAtStop := store.calls.Load()

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, store.calls.Load(), callsAtStop+1, "no sweeps after Stop")

	status := sweeper.GetStatus()
	assert.Equal(t, false, status["running"])
	assert.Equal(t, int64(3), status["lastDeleted"])
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	store := &sweepOnlyStore{}
	sweeper := NewTokenSweeper(store, SweeperConfig{Interval: time.Hour})

	go sweeper.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}

func TestSweeperContextCancel(t *testing.T) {
	store := &sweepOnlyStore{}
	sweeper := NewTokenSweeper(store, SweeperConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
