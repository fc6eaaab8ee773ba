package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khscrm/api/internal/apperror"
	"github.com/khscrm/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users map[string]*model.User // lowercased email -> user
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]*model.User)}
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, ok := m.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id int64) (*model.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, ErrUserNotFound
}

// mockTokenStore is an in-memory TokenStore. All mutations hold the mutex so
// Rotate is atomic the same way the real store's transaction is.
type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken // hash -> record
	nextID int64
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]*model.RefreshToken)}
}

func (m *mockTokenStore) Insert(ctx context.Context, t *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tokens[t.TokenHash] = &cp
	return nil
}

func (m *mockTokenStore) FindByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTokenStore) FindActiveByUser(ctx context.Context, userID int64) ([]model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && !t.Revoked && t.ExpiresAt.After(time.Now()) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTokenStore) MarkRevoked(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (m *mockTokenStore) MarkAllRevoked(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *mockTokenStore) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldHash]
	if !ok || old.Revoked {
		return false, nil
	}
	old.Revoked = true
	m.nextID++
	next.ID = m.nextID
	cp := *next
	m.tokens[next.TokenHash] = &cp
	return true, nil
}

func (m *mockTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, t := range m.tokens {
		if t.ExpiresAt.Before(now) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}

// mockEventRecorder captures recorded events
type mockEventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (m *mockEventRecorder) Record(ctx context.Context, eventType string, userID *int64, email string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}

func (m *mockEventRecorder) has(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == eventType {
			return true
		}
	}
	return false
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T) (*Service, *mockUserStore, *mockTokenStore, *mockEventRecorder, *testClock) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	users := newMockUserStore()
	users.users["owner@khs.com"] = &model.User{
		ID:           1,
		Email:        "owner@khs.com",
		PasswordHash: string(hash),
		Role:         model.RoleOwner,
		Active:       true,
	}
	users.users["inactive@khs.com"] = &model.User{
		ID:           2,
		Email:        "inactive@khs.com",
		PasswordHash: string(hash),
		Role:         model.RoleWorker,
		Active:       false,
	}

	tokens := newMockTokenStore()
	events := &mockEventRecorder{}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewService(users, tokens, events, Config{
		Secret: "test-secret",
		Now:    clock.Now,
	})
	return svc, users, tokens, events, clock
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr), "expected *apperror.Error, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestVerify(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Verify(ctx, "owner@khs.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
	})

	t.Run("case-insensitive email", func(t *testing.T) {
		user, err := svc.Verify(ctx, "  OWNER@KHS.com ", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Verify(ctx, "owner@khs.com", "wrong")
		requireCode(t, err, apperror.CodeInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Verify(ctx, "nobody@khs.com", "correct-horse")
		requireCode(t, err, apperror.CodeInvalidCredentials)
	})

	t.Run("inactive account", func(t *testing.T) {
		_, err := svc.Verify(ctx, "inactive@khs.com", "correct-horse")
		requireCode(t, err, apperror.CodeInvalidCredentials)
	})
}

func TestIssueTokensRoundTrip(t *testing.T) {
	svc, users, tokens, _, clock := newTestService(t)
	ctx := context.Background()
	user := users.users["owner@khs.com"]

	pair, err := svc.IssueTokens(ctx, user, false)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	record, err := tokens.FindByHash(ctx, HashToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, record.UserID)
	assert.False(t, record.Revoked)
	assert.True(t, record.ExpiresAt.After(clock.Now()))
	assert.Equal(t, clock.Now().Add(RefreshTokenExpiry), record.ExpiresAt)
}

func TestIssueTokensRememberMe(t *testing.T) {
	svc, users, tokens, _, clock := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, users.users["owner@khs.com"], true)
	require.NoError(t, err)

	record, err := tokens.FindByHash(ctx, HashToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, record.RememberMe)
	assert.Equal(t, clock.Now().Add(RememberMeRefreshExpiry), record.ExpiresAt)
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _, events, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken, nil)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// Replaying the rotated token fails closed and revokes everything.
	_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
	requireCode(t, err, apperror.CodeRevokedToken)
	assert.True(t, events.has(model.EventTokenReuse))

	// The replacement went down with the replay.
	_, err = svc.Refresh(ctx, rotated.RefreshToken, nil)
	requireCode(t, err, apperror.CodeRevokedToken)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, pair.RefreshToken, nil)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var appErr *apperror.Error
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, []string{apperror.CodeRevokedToken, apperror.CodeInvalidToken}, appErr.Code)
	}
	assert.Equal(t, 1, successes, "exactly one concurrent refresh may win")
}

func TestRefreshExpiryBoundary(t *testing.T) {
	svc, _, _, _, clock := newTestService(t)
	ctx := context.Background()
	issued := clock.Now()

	t.Run("one second before expiry succeeds", func(t *testing.T) {
		_, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
		require.NoError(t, err)

		clock.Set(issued.Add(RefreshTokenExpiry - time.Second))
		_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
		assert.NoError(t, err)
	})

	t.Run("exactly at expiry fails", func(t *testing.T) {
		clock.Set(issued)
		_, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
		require.NoError(t, err)

		clock.Set(issued.Add(RefreshTokenExpiry))
		_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
		requireCode(t, err, apperror.CodeExpiredToken)
	})

	t.Run("past expiry fails", func(t *testing.T) {
		clock.Set(issued)
		_, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
		require.NoError(t, err)

		clock.Set(issued.Add(RefreshTokenExpiry + time.Hour))
		_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
		requireCode(t, err, apperror.CodeExpiredToken)
	})
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "never-issued", nil)
	requireCode(t, err, apperror.CodeInvalidToken)

	_, err = svc.Refresh(context.Background(), "", nil)
	requireCode(t, err, apperror.CodeInvalidToken)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID, pair.RefreshToken, nil))

	_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
	requireCode(t, err, apperror.CodeRevokedToken)
}

func TestLogoutAllSessions(t *testing.T) {
	svc, _, tokens, _, _ := newTestService(t)
	ctx := context.Background()

	user, first, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)
	_, second, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID, "", nil))

	active, err := tokens.FindActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.Refresh(ctx, first.RefreshToken, nil)
	requireCode(t, err, apperror.CodeRevokedToken)
	_, err = svc.Refresh(ctx, second.RefreshToken, nil)
	requireCode(t, err, apperror.CodeRevokedToken)
}

func TestLogoutIgnoresForeignToken(t *testing.T) {
	svc, users, tokens, _, _ := newTestService(t)
	ctx := context.Background()

	// Activate the second account for this test.
	users.users["inactive@khs.com"].Active = true

	_, ownerPair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)

	// User 2 tries to log out with user 1's refresh token.
	require.NoError(t, svc.Logout(ctx, 2, ownerPair.RefreshToken, nil))

	record, err := tokens.FindByHash(ctx, HashToken(ownerPair.RefreshToken))
	require.NoError(t, err)
	assert.False(t, record.Revoked)
}

func TestRefreshInactiveUser(t *testing.T) {
	svc, users, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "owner@khs.com", "correct-horse", false, nil)
	require.NoError(t, err)

	users.users["owner@khs.com"].Active = false

	_, err = svc.Refresh(ctx, pair.RefreshToken, nil)
	requireCode(t, err, apperror.CodeInvalidToken)
}
