package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khscrm/api/internal/model"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type DashboardSummary struct {
	TotalUsers     int64            `json:"totalUsers"`
	ActiveUsers    int64            `json:"activeUsers"`
	UsersByRole    map[string]int64 `json:"usersByRole"`
	ActiveSessions int64            `json:"activeSessions"`
	RecentLogins   int64            `json:"recentLogins"`
	RecentFailures int64            `json:"recentFailures"`
}

// GetSummary returns account and session statistics for the owner dashboard.
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	var summary DashboardSummary

	h.db.Model(&model.User{}).Count(&summary.TotalUsers)
	h.db.Model(&model.User{}).Where("active = true").Count(&summary.ActiveUsers)

	summary.UsersByRole = make(map[string]int64)
	type RoleCount struct {
		Role  string
		Count int64
	}
	var roleCounts []RoleCount
	h.db.Model(&model.User{}).
		Select("role, count(*) as count").
		Group("role").
		Scan(&roleCounts)
	for _, rc := range roleCounts {
		summary.UsersByRole[rc.Role] = rc.Count
	}

	h.db.Model(&model.RefreshToken{}).
		Where("revoked = false AND expires_at > ?", time.Now()).
		Count(&summary.ActiveSessions)

	// Login activity over the last 24 hours
	dayAgo := time.Now().Add(-24 * time.Hour)
	h.db.Model(&model.AuthEvent{}).
		Where("event_type = ? AND created_at > ?", model.EventLoginSuccess, dayAgo).
		Count(&summary.RecentLogins)
	h.db.Model(&model.AuthEvent{}).
		Where("event_type = ? AND created_at > ?", model.EventLoginFailure, dayAgo).
		Count(&summary.RecentFailures)

	c.JSON(http.StatusOK, summary)
}
