package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"voxbridge/internal/middleware"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

type SessionHandler struct {
	Store *store.Store
}

func sessionJSON(sess model.VoiceSession) gin.H {
	return gin.H{
		"id":              sess.ID,
		"transcript":      sess.Transcript,
		"intentType":      sess.IntentType,
		"category":        sess.Category,
		"confidence":      sess.Confidence,
		"parsedData":      sess.ParsedData,
		"executionStatus": sess.ExecutionStatus,
		"executionResult": sess.ExecutionResult,
		"executedAt":      sess.ExecutedAt,
		"createdAt":       sess.CreatedAt,
		"updatedAt":       sess.UpdatedAt,
	}
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = v
	}

	sessions, err := h.Store.ListVoiceSessions(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}

	resp := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionJSON(sess))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	sess, err := h.Store.GetVoiceSession(userID, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionJSON(sess)})
}
