package model

import "time"

// RefreshToken stores the SHA-256 hash of an issued refresh token, never the
// raw value. A record that has been revoked or rotated must never
// authenticate again.
type RefreshToken struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"not null;index" json:"userId"`
	TokenHash  string    `gorm:"not null;uniqueIndex;size:64" json:"-"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Revoked    bool      `gorm:"not null;default:false" json:"revoked"`
	RememberMe bool      `gorm:"not null;default:false" json:"rememberMe"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
