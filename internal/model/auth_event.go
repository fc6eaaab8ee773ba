package model

import (
	"time"

	"gorm.io/datatypes"
)

type AuthEvent struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    *int64         `gorm:"index" json:"userId,omitempty"`
	Email     string         `gorm:"size:255" json:"email,omitempty"`
	EventType string         `gorm:"not null;size:40;index" json:"eventType"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (AuthEvent) TableName() string {
	return "auth_events"
}

// EventType constants
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventTokenRefreshed = "token_refreshed"
	EventTokenReuse     = "token_reuse_detected"
	EventLogout         = "logout"
)
