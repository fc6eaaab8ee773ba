package limiter

import (
	"context"
	"fmt"
	"time"
)

// Counter is the shared fixed-window counter backend, normally Redis so
// that limits hold across multiple server instances.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type Policy struct {
	Name    string
	Limit   int64
	Window  time.Duration
	Message string
}

// Named policies applied in front of route groups.
var (
	AuthPolicy = Policy{
		Name:    "auth",
		Limit:   5,
		Window:  15 * time.Minute,
		Message: "too many login attempts, please try again later",
	}
	APIPolicy = Policy{
		Name:    "api",
		Limit:   100,
		Window:  time.Minute,
		Message: "too many requests, please slow down",
	}
	StrictPolicy = Policy{
		Name:    "strict",
		Limit:   3,
		Window:  time.Hour,
		Message: "too many attempts for this operation, please try again later",
	}
)

type Limiter struct {
	counters Counter
}

type CheckResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	ResetAt   int64 `json:"reset_at"`
	Limit     int64 `json:"limit"`
}

func NewLimiter(counters Counter) *Limiter {
	return &Limiter{counters: counters}
}

// Check counts a request from clientID against the policy's window.
func (l *Limiter) Check(ctx context.Context, clientID string, p Policy) (*CheckResult, error) {
	key := fmt.Sprintf("rate:%s:%s", p.Name, clientID)

	count, err := l.counters.Incr(ctx, key, p.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}

	ttl, err := l.counters.TTL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get TTL: %w", err)
	}

	resetAt := time.Now().Add(ttl).Unix()
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &CheckResult{
		Allowed:   count <= p.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Limit:     p.Limit,
	}, nil
}
