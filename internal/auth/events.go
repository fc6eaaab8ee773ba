package auth

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/khscrm/api/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecorder receives security-relevant auth events. Recording is
// best-effort: a failed write must never fail the request that produced it.
type EventRecorder interface {
	Record(ctx context.Context, eventType string, userID *int64, email string, metadata map[string]string)
}

type EventLog struct {
	db *gorm.DB
}

func NewEventLog(db *gorm.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Record(ctx context.Context, eventType string, userID *int64, email string, metadata map[string]string) {
	ev := model.AuthEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		EventType: eventType,
		CreatedAt: time.Now(),
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err == nil {
			ev.Metadata = datatypes.JSON(raw)
		}
	}
	if err := l.db.WithContext(ctx).Create(&ev).Error; err != nil {
		log.Printf("Warning: failed to record auth event %s: %v", eventType, err)
	}
}
