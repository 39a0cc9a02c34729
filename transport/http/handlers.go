package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/service"
)

// AuthHandlers contains HTTP handlers for wallet sign-in
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Challenge issues a sign-in challenge for an address
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, message, err := h.authService.CreateChallenge(req.Address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "message": message})
}

// Login exchanges a signed challenge for tokens
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		ChallengeToken string `json:"challenge_token" binding:"required"`
		Signature      string `json:"signature" binding:"required"`
		Address        string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	accessToken, refreshToken, err := h.authService.Login(c.Request.Context(), req.ChallengeToken, req.Signature, req.Address)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Authentication failed"

		switch {
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusBadRequest
			errorMsg = "Challenge token expired"
		case errors.Is(err, core.ErrInvalidChallenge), errors.Is(err, core.ErrInvalidToken), errors.Is(err, core.ErrInvalidAddress):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid challenge token"
		case errors.Is(err, core.ErrInvalidSignature):
			statusCode = http.StatusUnauthorized
			errorMsg = "Invalid signature"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	h.tokens(c, accessToken, refreshToken)
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	accessToken, refreshToken, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Failed to refresh tokens"

		switch {
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token expired"
		case errors.Is(err, core.ErrTokenInvalidated):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token has been invalidated"
		case errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid refresh token"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	h.tokens(c, accessToken, refreshToken)
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Access token is optional - we only need refresh token to invalidate the session
	err := h.authService.Logout(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTokenExpired):
			// Even if expired, we'll consider logout successful
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		case errors.Is(err, core.ErrInvalidToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the address of the authenticated wallet
func (h *AuthHandlers) Me(c *gin.Context) {
	address, ok := UserAddress(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": address,
	})
}

// Authorize checks if a user is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// The auth middleware has already validated the token.
	address, ok := UserAddress(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}

func (h *AuthHandlers) tokens(c *gin.Context, accessToken, refreshToken string) {
	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.authService.AccessTTL().Seconds()),
	})
}
