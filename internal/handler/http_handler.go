package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/service"
	"github.com/elmchat/elm-chat/pkg/log"
	"github.com/elmchat/elm-chat/pkg/middleware"
	"github.com/elmchat/elm-chat/pkg/response"
)

// Handler handles the REST API.
type Handler struct {
	history        service.HistoryService
	users          service.UserService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(history service.HistoryService, users service.UserService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		history:        history,
		users:          users,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		api.GET("/messages", h.GetMessages)

		api.POST("/signup", h.Signup)
		api.POST("/login", h.Login)
		api.POST("/forgot-password", h.ForgotPassword)
		api.POST("/reset-password/:code", h.ResetPassword)

		api.PUT("/verify", h.authMiddleware.RequireAuth(), h.Verify)
		api.PUT("/profile", h.authMiddleware.RequireAuth(), h.UpdateProfile)
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetMessages returns the whole room history as a bare array.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	messages, err := h.history.FetchHistory(ctx)
	if err != nil {
		l.Error().Err(err).Msg("fetch history failed")
		response.InternalError(c, "failed to fetch messages")
		return
	}

	response.JSON(c, http.StatusOK, messages)
}

// Signup handles account creation.
func (h *Handler) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid signup request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.Signup(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrEmailExists) {
			response.Conflict(c, "email already exists")
			return
		}
		l.Error().Err(err).Msg("signup failed")
		response.InternalError(c, "failed to sign up")
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid email or password")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "failed to login")
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// Verify marks the caller's email as verified.
func (h *Handler) Verify(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	result, err := h.users.Verify(ctx, middleware.GetToken(c), middleware.GetClaims(c))
	if err != nil {
		if errors.Is(err, service.ErrNotApplied) || errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Msg("verify failed")
		response.InternalError(c, "failed to verify email")
		return
	}

	response.JSON(c, http.StatusOK, result)
}

// ForgotPassword starts a password reset.
func (h *Handler) ForgotPassword(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid forgot password request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.users.ForgotPassword(ctx, &req); err != nil {
		if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrNotApplied) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Msg("forgot password failed")
		response.InternalError(c, "failed to start password reset")
		return
	}

	response.Success(c, nil)
}

// ResetPassword sets a new password using a reset code.
func (h *Handler) ResetPassword(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid reset password request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.users.ResetPassword(ctx, c.Param("code"), &req); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidResetCode):
			response.Unauthorized(c, "invalid reset code")
		case errors.Is(err, service.ErrSamePassword):
			response.BadRequest(c, "new password must differ from the current one")
		case errors.Is(err, service.ErrNotApplied):
			response.NotFound(c, "user not found")
		default:
			l.Error().Err(err).Msg("reset password failed")
			response.InternalError(c, "failed to reset password")
		}
		return
	}

	response.Success(c, nil)
}

// UpdateProfile updates the caller's first name and avatar.
func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid profile request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.UpdateProfile(ctx, middleware.GetClaims(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProfileForbidden):
			response.Forbidden(c, "first name is required")
		case errors.Is(err, service.ErrInvalidImage):
			response.Forbidden(c, "failed to store profile picture")
		case errors.Is(err, service.ErrNotApplied), errors.Is(err, service.ErrUserNotFound):
			response.NotFound(c, "user not found")
		default:
			l.Error().Err(err).Msg("update profile failed")
			response.InternalError(c, "failed to update profile")
		}
		return
	}

	response.JSON(c, http.StatusOK, result)
}
