package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"voxbridge/internal/auth"
)

// TokenHandler mints bearer tokens for clients that hold the master
// secret. Production identity lives with a hosted auth provider; this
// endpoint covers local and test deployments.
type TokenHandler struct {
	TokenConfig auth.TokenConfig
}

type tokenBody struct {
	UserID string `json:"userId"`
	Secret string `json:"secret"`
}

func (h *TokenHandler) Mint(c *gin.Context) {
	var body tokenBody
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(body.Secret), []byte(h.TokenConfig.Secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret"})
		return
	}

	token, err := auth.CreateToken(body.UserID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}
