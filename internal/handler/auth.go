package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khscrm/api/internal/apperror"
	"github.com/khscrm/api/internal/auth"
	"github.com/khscrm/api/internal/middleware"
)

type AuthHandler struct {
	service *auth.Service
	users   auth.UserStore
}

func NewAuthHandler(service *auth.Service, users auth.UserStore) *AuthHandler {
	return &AuthHandler{service: service, users: users}
}

type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.FromBinding(err))
		c.Abort()
		return
	}

	user, pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password, req.RememberMe, requestMeta(c))
	if err != nil {
		middleware.RecordLoginAttempt(false)
		c.Error(err)
		c.Abort()
		return
	}

	middleware.RecordLoginAttempt(true)
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
		"user":         user,
	})
}

// Refresh rotates a refresh token and returns a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.FromBinding(err))
		c.Abort()
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken, requestMeta(c))
	if err != nil {
		middleware.RecordTokenRefresh(false)
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Code == apperror.CodeRevokedToken {
			middleware.RecordTokenReuse()
		}
		c.Error(err)
		c.Abort()
		return
	}

	middleware.RecordTokenRefresh(true)
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresIn":    pair.ExpiresIn,
	})
}

// Logout revokes the session's refresh token. When no token is supplied in
// the body, every session of the user is revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.Error(apperror.Unauthorized("authentication required"))
		c.Abort()
		return
	}

	var req LogoutRequest
	c.ShouldBindJSON(&req)

	if err := h.service.Logout(c.Request.Context(), userID, req.RefreshToken, requestMeta(c)); err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// Me returns current user info.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.Error(apperror.Unauthorized("authentication required"))
		c.Abort()
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.Error(apperror.NotFound("user not found"))
		} else {
			c.Error(err)
		}
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, user)
}

func requestMeta(c *gin.Context) map[string]string {
	return map[string]string{
		"ip":        c.ClientIP(),
		"userAgent": c.Request.UserAgent(),
	}
}
