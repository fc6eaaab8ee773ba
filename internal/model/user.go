package model

import "time"

// Role is the single source of truth for user roles across the API.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleWorker Role = "WORKER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleWorker:
		return true
	}
	return false
}

type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"not null;size:255" json:"email"`
	PasswordHash string    `gorm:"not null;size:255" json:"-"`
	Name         string    `gorm:"size:255" json:"name"`
	Role         Role      `gorm:"not null;size:20;default:'WORKER'" json:"role"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}
