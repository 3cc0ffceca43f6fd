package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"voxbridge/internal/credential"
	"voxbridge/internal/gateway"
	"voxbridge/internal/intent"
	"voxbridge/internal/metrics"
	"voxbridge/internal/middleware"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
	"voxbridge/internal/workflow"
)

// Classifier turns audio into a transcript plus parsed intent.
type Classifier interface {
	Process(ctx context.Context, audio []byte) (gateway.Result, error)
}

// Executor runs a confirmed intent.
type Executor interface {
	Execute(ctx context.Context, userID string, in intent.Intent) (string, error)
}

type VoiceHandler struct {
	Classifier Classifier
	Executor   Executor
	Store      *store.Store
	Logger     zerolog.Logger
}

type processBody struct {
	Audio string `json:"audio"`
}

type executeBody struct {
	SessionID string        `json:"sessionId"`
	Intent    intent.Intent `json:"intent"`
}

// Process accepts one base64-encoded utterance and returns the
// transcript and parsed intent for user review. The created session
// row stays pending until Execute settles it.
func (h *VoiceHandler) Process(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body processBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	audio, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid audio encoding"})
		return
	}
	if len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio captured"})
		return
	}

	start := time.Now()
	res, err := h.Classifier.Process(c.Request.Context(), audio)
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var te *gateway.TransientError
		var pe *gateway.ParseError
		switch {
		case errors.As(err, &te):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Processing temporarily unavailable"})
		case errors.As(err, &pe):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not understand the recording"})
		default:
			h.Logger.Error().Err(err).Msg("voice processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		}
		return
	}

	parsed, _ := json.Marshal(res.Intent)
	sess, err := h.Store.CreateVoiceSession(model.VoiceSession{
		UserID:     userID,
		Transcript: res.Transcript,
		IntentType: string(res.Intent.Type),
		Category:   res.Intent.Category,
		Confidence: res.Intent.Confidence,
		ParsedData: string(parsed),
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to persist voice session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":  sess.ID,
		"transcript": res.Transcript,
		"intent":     res.Intent,
	})
}

// Execute runs a reviewed intent. The backing session, when named,
// is settled exactly once; re-executing a settled session is
// rejected.
func (h *VoiceHandler) Execute(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body executeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if body.SessionID != "" {
		sess, err := h.Store.GetVoiceSession(userID, body.SessionID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Execution failed"})
			return
		}
		if sess.ExecutionStatus != model.ExecutionPending {
			c.JSON(http.StatusConflict, gin.H{"error": "Session already executed"})
			return
		}
	}

	parsed, _ := json.Marshal(body.Intent)
	msg, err := h.Executor.Execute(c.Request.Context(), userID, body.Intent)
	if err != nil {
		h.settleSession(userID, body.SessionID, model.ExecutionError, jsonError(err), string(parsed))
		h.renderExecuteError(c, err)
		return
	}

	result, _ := json.Marshal(map[string]string{"message": msg})
	h.settleSession(userID, body.SessionID, model.ExecutionSuccess, string(result), string(parsed))

	// Queries answer under "response"; log and act confirmations
	// come back under "result".
	if body.Intent.Type == intent.TypeQuery {
		c.JSON(http.StatusOK, gin.H{"success": true, "response": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": msg})
}

func (h *VoiceHandler) settleSession(userID, sessionID, status, result, parsed string) {
	if sessionID == "" {
		return
	}
	if _, err := h.Store.MarkSessionExecuted(userID, sessionID, status, result, parsed); err != nil {
		h.Logger.Error().Err(err).Str("session", sessionID).Msg("failed to settle session")
	}
}

func (h *VoiceHandler) renderExecuteError(c *gin.Context, err error) {
	var ve *intent.ValidationError
	var ae *credential.AuthError
	var ue *workflow.UpstreamError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.As(err, &ae):
		c.JSON(http.StatusUnauthorized, gin.H{"error": ae.Error()})
	case errors.As(err, &ue):
		c.JSON(http.StatusBadGateway, gin.H{"error": ue.Error()})
	default:
		h.Logger.Error().Err(err).Msg("intent execution failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func jsonError(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
