package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"voxbridge/internal/credential"
	"voxbridge/internal/middleware"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

// Credentials is the slice of the credential manager the integration
// endpoints need.
type Credentials interface {
	AuthURL(userID, provider, redirectURL, callbackURL string) (string, error)
	Connect(ctx context.Context, userID, provider, code, callbackURL string) (model.IntegrationCredential, error)
	Disconnect(ctx context.Context, userID, provider string) error
}

// Syncer triggers a provider pull for one user.
type Syncer interface {
	SyncGoogle(ctx context.Context, userID string) error
}

type IntegrationHandler struct {
	Credentials Credentials
	Sync        Syncer
	Store       *store.Store
	// PublicBaseURL is the externally reachable server origin the
	// OAuth callback is registered under.
	PublicBaseURL string
	Logger        zerolog.Logger
}

var knownProviders = []string{"google", "microsoft", "notion", "slack"}

func (h *IntegrationHandler) callbackURL(provider string) string {
	return h.PublicBaseURL + "/v1/integrations/" + provider + "/callback"
}

type connectBody struct {
	RedirectURL string `json:"redirectUrl"`
}

// List reports per-provider connection and sync state.
func (h *IntegrationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	creds, err := h.Store.ListCredentials(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list integrations"})
		return
	}
	byProvider := make(map[string]model.IntegrationCredential, len(creds))
	for _, cred := range creds {
		byProvider[cred.Provider] = cred
	}

	resp := make([]gin.H, 0, len(knownProviders))
	for _, p := range knownProviders {
		cred, exists := byProvider[p]
		entry := gin.H{"provider": p, "connected": exists && cred.Active()}
		if exists && cred.Active() {
			entry["account"] = cred.ProviderAccount
			entry["syncStatus"] = cred.SyncStatus
			entry["lastSyncAt"] = cred.LastSyncAt
			if cred.LastSyncError != "" {
				entry["lastSyncError"] = cred.LastSyncError
			}
		}
		resp = append(resp, entry)
	}
	c.JSON(http.StatusOK, gin.H{"integrations": resp})
}

// Connect begins the OAuth flow and returns the provider consent URL.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body connectBody
	if err := c.ShouldBindJSON(&body); err != nil || body.RedirectURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing redirectUrl"})
		return
	}

	provider := c.Param("provider")
	authURL, err := h.Credentials.AuthURL(userID, provider, body.RedirectURL, h.callbackURL(provider))
	if err != nil {
		var ce *credential.ConfigError
		if errors.As(err, &ce) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": ce.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authURL})
}

// Callback is the public OAuth return. Whatever happens, the user's
// browser is redirected back to the app; errors are carried as a
// query parameter and logged server-side.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	state, err := credential.DecodeState(c.Query("state"))
	if err != nil {
		h.Logger.Warn().Err(err).Str("provider", provider).Msg("bad oauth state")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
		return
	}

	redirect := func(result url.Values) {
		target := state.RedirectURL
		if q := result.Encode(); q != "" {
			sep := "?"
			if u, err := url.Parse(target); err == nil && u.RawQuery != "" {
				sep = "&"
			}
			target += sep + q
		}
		c.Redirect(http.StatusFound, target)
	}

	if errMsg := c.Query("error"); errMsg != "" {
		h.Logger.Warn().Str("provider", provider).Str("reason", errMsg).Msg("oauth consent denied")
		redirect(url.Values{"error": {errMsg}})
		return
	}
	code := c.Query("code")
	if code == "" {
		redirect(url.Values{"error": {"missing authorization code"}})
		return
	}

	if _, err := h.Credentials.Connect(c.Request.Context(), state.UserID, provider, code, h.callbackURL(provider)); err != nil {
		h.Logger.Warn().Err(err).Str("provider", provider).Str("user", state.UserID).Msg("oauth exchange failed")
		redirect(url.Values{"error": {"connection failed"}})
		return
	}
	redirect(url.Values{"connected": {provider}})
}

func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	if err := h.Credentials.Disconnect(c.Request.Context(), userID, c.Param("provider")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TriggerSync runs an on-demand provider pull.
func (h *IntegrationHandler) TriggerSync(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	if c.Param("provider") != "google" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sync is not supported for this provider"})
		return
	}
	if err := h.Sync.SyncGoogle(c.Request.Context(), userID); err != nil {
		var authErr *credential.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
