package auth

import (
	"context"
	"errors"
	"time"

	"github.com/khscrm/api/internal/apperror"
	"github.com/khscrm/api/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against on the unknown-account path so that a login
// attempt costs roughly the same whether or not the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("khscrm-timing-pad"), bcrypt.DefaultCost)

type Config struct {
	Secret        string
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration
	Now           func() time.Time
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

type Service struct {
	users  UserStore
	tokens TokenStore
	events EventRecorder
	cfg    Config
}

func NewService(users UserStore, tokens TokenStore, events EventRecorder, cfg Config) *Service {
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = RefreshTokenExpiry
	}
	if cfg.RememberMeTTL == 0 {
		cfg.RememberMeTTL = RememberMeRefreshExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{users: users, tokens: tokens, events: events, cfg: cfg}
}

// Verify checks submitted credentials against the stored user record. The
// returned error is identical for unknown, inactive and wrong-password
// accounts so the response does not leak account existence.
func (s *Service) Verify(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, apperror.InvalidCredentials()
		}
		return nil, err
	}
	if !user.Active {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, apperror.InvalidCredentials()
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperror.InvalidCredentials()
	}
	return user, nil
}

// IssueTokens mints a short-lived access token and a fresh refresh token,
// persisting only the refresh token's hash.
func (s *Service) IssueTokens(ctx context.Context, user *model.User, rememberMe bool) (*TokenPair, error) {
	now := s.cfg.Now()

	accessToken, err := GenerateAccessToken(user, s.cfg.Secret, now)
	if err != nil {
		return nil, err
	}

	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	ttl := s.cfg.RefreshTTL
	if rememberMe {
		ttl = s.cfg.RememberMeTTL
	}

	record := &model.RefreshToken{
		UserID:     user.ID,
		TokenHash:  HashToken(refreshToken),
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		RememberMe: rememberMe,
		CreatedAt:  now,
	}
	if err := s.tokens.Insert(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(AccessTokenExpiry.Seconds()),
	}, nil
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool, meta map[string]string) (*model.User, *TokenPair, error) {
	user, err := s.Verify(ctx, email, password)
	if err != nil {
		s.record(ctx, model.EventLoginFailure, nil, email, meta)
		return nil, nil, err
	}

	pair, err := s.IssueTokens(ctx, user, rememberMe)
	if err != nil {
		return nil, nil, err
	}

	s.record(ctx, model.EventLoginSuccess, &user.ID, user.Email, meta)
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued in one atomic step. Presenting an already-rotated token is
// treated as replay and revokes every session of the owning user.
func (s *Service) Refresh(ctx context.Context, raw string, meta map[string]string) (*TokenPair, error) {
	if raw == "" {
		return nil, apperror.InvalidToken()
	}

	hash := HashToken(raw)
	record, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, apperror.InvalidToken()
		}
		return nil, err
	}

	now := s.cfg.Now()
	if record.Revoked {
		return nil, s.handleReuse(ctx, record, meta)
	}
	if !now.Before(record.ExpiresAt) {
		return nil, apperror.ExpiredToken()
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperror.InvalidToken()
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperror.InvalidToken()
	}

	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	ttl := s.cfg.RefreshTTL
	if record.RememberMe {
		ttl = s.cfg.RememberMeTTL
	}
	next := &model.RefreshToken{
		UserID:     record.UserID,
		TokenHash:  HashToken(refreshToken),
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		RememberMe: record.RememberMe,
		CreatedAt:  now,
	}

	won, err := s.tokens.Rotate(ctx, hash, next)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent refresh already rotated this token.
		return nil, s.handleReuse(ctx, record, meta)
	}

	accessToken, err := GenerateAccessToken(user, s.cfg.Secret, now)
	if err != nil {
		return nil, err
	}

	s.record(ctx, model.EventTokenRefreshed, &user.ID, user.Email, meta)
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(AccessTokenExpiry.Seconds()),
	}, nil
}

// handleReuse fails closed on refresh-token replay: every session of the
// owning user is revoked.
func (s *Service) handleReuse(ctx context.Context, record *model.RefreshToken, meta map[string]string) error {
	if _, err := s.tokens.MarkAllRevoked(ctx, record.UserID); err != nil {
		return err
	}
	s.record(ctx, model.EventTokenReuse, &record.UserID, "", meta)
	return apperror.RevokedToken()
}

// Logout revokes the session's refresh token, or every session of the user
// when no token is supplied.
func (s *Service) Logout(ctx context.Context, userID int64, raw string, meta map[string]string) error {
	if raw == "" {
		if _, err := s.tokens.MarkAllRevoked(ctx, userID); err != nil {
			return err
		}
		s.record(ctx, model.EventLogout, &userID, "", meta)
		return nil
	}

	record, err := s.tokens.FindByHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return err
	}
	// Never let one user's logout touch another user's session.
	if record.UserID != userID {
		return nil
	}
	if _, err := s.tokens.MarkRevoked(ctx, record.TokenHash); err != nil {
		return err
	}
	s.record(ctx, model.EventLogout, &userID, "", meta)
	return nil
}

// RevokeAll revokes every active session of a user.
func (s *Service) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	return s.tokens.MarkAllRevoked(ctx, userID)
}

func (s *Service) record(ctx context.Context, eventType string, userID *int64, email string, meta map[string]string) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, eventType, userID, email, meta)
}
