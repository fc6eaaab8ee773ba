package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/khscrm/api/internal/model"
	"gorm.io/gorm"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrUserNotFound  = errors.New("user not found")
)

// TokenStore is the durable mapping from refresh-token hash to its record.
// Rotate must be atomic: of any number of concurrent calls for the same
// hash, exactly one may succeed.
type TokenStore interface {
	Insert(ctx context.Context, t *model.RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*model.RefreshToken, error)
	FindActiveByUser(ctx context.Context, userID int64) ([]model.RefreshToken, error)
	// MarkRevoked flips the revoked flag. Returns false when the record was
	// already revoked or does not exist (the compare-and-swap lost).
	MarkRevoked(ctx context.Context, hash string) (bool, error)
	MarkAllRevoked(ctx context.Context, userID int64) (int64, error)
	// Rotate revokes the old record and inserts the replacement in one
	// transaction. Returns false without inserting when the old record was
	// already revoked.
	Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserStore is the read-only view of the user persistence layer the
// auth core needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

type GormTokenStore struct {
	db *gorm.DB
}

func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

func (s *GormTokenStore) Insert(ctx context.Context, t *model.RefreshToken) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormTokenStore) FindByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *GormTokenStore) FindActiveByUser(ctx context.Context, userID int64) ([]model.RefreshToken, error) {
	var tokens []model.RefreshToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked = false AND expires_at > ?", userID, time.Now()).
		Find(&tokens).Error
	return tokens, err
}

func (s *GormTokenStore) MarkRevoked(ctx context.Context, hash string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked = false", hash).
		Update("revoked", true)
	return result.RowsAffected == 1, result.Error
}

func (s *GormTokenStore) MarkAllRevoked(ctx context.Context, userID int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = false", userID).
		Update("revoked", true)
	return result.RowsAffected, result.Error
}

func (s *GormTokenStore) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (bool, error) {
	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.RefreshToken{}).
			Where("token_hash = ? AND revoked = false", oldHash).
			Update("revoked", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		won = true
		return nil
	})
	return won, err
}

func (s *GormTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.RefreshToken{})
	return result.RowsAffected, result.Error
}

type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormUserStore) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
