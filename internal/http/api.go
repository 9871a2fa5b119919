package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"contacts-api/internal/auth"
	"contacts-api/internal/domain"
	"contacts-api/internal/service"
	"contacts-api/internal/storage"
)

// RateLimiters groups the per-endpoint limiters. A nil limiter disables
// limiting for that endpoint.
type RateLimiters struct {
	Register *auth.RateLimiter
	Login    *auth.RateLimiter
	Me       *auth.RateLimiter
}

// Handler wires HTTP routes to the identity services.
type Handler struct {
	auth         *service.AuthService
	verification *service.VerificationService
	storage      storage.Service
	limiters     RateLimiters
	logger       *logrus.Logger
}

func NewHandler(
	authSvc *service.AuthService,
	verification *service.VerificationService,
	store storage.Service,
	limiters RateLimiters,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		auth:         authSvc,
		verification: verification,
		storage:      store,
		limiters:     limiters,
		logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", rateLimitMiddleware(h.limiters.Register, clientIPKey), h.register)
			authGroup.POST("/login", rateLimitMiddleware(h.limiters.Login, clientIPKey), h.login)
			authGroup.POST("/refresh", h.refresh)
			authGroup.POST("/logout", h.logout)
			authGroup.GET("/confirm/:token", h.confirmEmail)
			authGroup.POST("/resend", h.resendVerification)
			authGroup.POST("/password-reset", h.requestPasswordReset)
			authGroup.GET("/password-reset/confirm/:token", h.confirmPasswordReset)
		}

		users := api.Group("/users", h.authMiddleware())
		{
			users.GET("/me", rateLimitMiddleware(h.limiters.Me, userIDKey), h.me)
			users.PATCH("/avatar", h.updateAvatar)
			users.GET("/moderator", requireRole(domain.RoleModerator), h.moderatorOnly)
			users.GET("/admin", requireRole(domain.RoleAdmin), h.adminOnly)
		}

		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type passwordResetRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the public view of a user. It never carries the password
// digest or the refresh token.
type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Verified  bool   `json:"verified"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailAlreadyExists), errors.Is(err, service.ErrUsernameAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, userToResponse(user))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		case errors.Is(err, service.ErrEmailNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"error": "email is not verified"})
		case errors.Is(err, service.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, pairToResponse(pair))
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		case errors.Is(err, service.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		}
		return
	}

	c.JSON(http.StatusOK, pairToResponse(pair))
}

func (h *Handler) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		case errors.Is(err, service.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) confirmEmail(c *gin.Context) {
	user, err := h.verification.Confirm(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "verification token expired"})
		case errors.Is(err, auth.ErrTokenInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "verification token invalid"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "email confirmed", "email": user.Email})
}

func (h *Handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resend failed"})
		return
	}

	// Uniform acknowledgement regardless of whether the email is known or
	// already verified.
	c.JSON(http.StatusAccepted, gin.H{"message": "check your email for further instructions"})
}

func (h *Handler) requestPasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.verification.RequestPasswordReset(c.Request.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, service.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "check your email for further instructions"})
}

func (h *Handler) confirmPasswordReset(c *gin.Context) {
	if err := h.verification.ConfirmPasswordReset(c.Request.Context(), c.Param("token")); err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "reset token expired"})
		case errors.Is(err, auth.ErrTokenInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "reset token invalid"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "password reset failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset successful"})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, userToResponse(currentUser(c)))
}

// maxAvatarSize bounds avatar uploads to 5 MiB.
const maxAvatarSize = 5 << 20

func (h *Handler) updateAvatar(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "avatar storage not configured"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
		return
	}
	if file.Size > maxAvatarSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar file too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read avatar file"})
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	user := currentUser(c)
	key := fmt.Sprintf("%d%s", user.ID, filepath.Ext(file.Filename))

	uploadCtx, cancel := contextWithTimeout(c, 30*time.Second)
	defer cancel()

	url, err := h.storage.UploadAvatar(uploadCtx, key, contentType, src)
	if err != nil {
		h.logger.WithError(err).WithField("user", user.ID).Warn("avatar upload failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "avatar upload failed"})
		return
	}

	updated, err := h.auth.UpdateAvatar(c.Request.Context(), user.ID, url)
	if err != nil {
		if errors.Is(err, service.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "avatar update failed"})
		return
	}

	c.JSON(http.StatusOK, userToResponse(updated))
}

func (h *Handler) moderatorOnly(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("hello, %s", user.Username), "role": string(user.Role)})
}

func (h *Handler) adminOnly(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("hello, %s", user.Username), "role": string(user.Role)})
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

func userIDKey(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return strconv.FormatInt(user.ID, 10)
	}
	return c.ClientIP()
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Verified:  user.Verified,
		Role:      string(user.Role),
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func pairToResponse(pair *service.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}
}
