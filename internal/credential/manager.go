package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"voxbridge/internal/metrics"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

// expiryBuffer is how long before expiry a stored access token stops
// counting as usable.
const expiryBuffer = 5 * time.Minute

// AuthError means the caller has no usable credential for the provider:
// never connected, disconnected, or a refresh exchange failed. The
// message tells the user what to do about it.
type AuthError struct {
	Provider string
	Msg      string
}

func (e *AuthError) Error() string { return e.Msg }

// ConfigError means the server is missing the provider's OAuth client
// pair. This is an operator problem, not a user problem.
type ConfigError struct {
	Provider string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s OAuth credentials not configured", e.Provider)
}

// State carried through the OAuth consent round-trip.
type State struct {
	UserID      string `json:"userId"`
	RedirectURL string `json:"redirectUrl"`
}

func EncodeState(s State) string {
	raw, _ := json.Marshal(s)
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeState(encoded string) (State, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return State{}, fmt.Errorf("invalid state parameter: %w", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("invalid state parameter: %w", err)
	}
	if s.UserID == "" || s.RedirectURL == "" {
		return State{}, errors.New("invalid state parameter")
	}
	return s, nil
}

type Manager struct {
	store     *store.Store
	providers map[string]Provider
	clients   map[string]Client
	refresh   singleflight.Group
	now       func() time.Time
	logger    zerolog.Logger
}

func NewManager(st *store.Store, clients map[string]Client, logger zerolog.Logger, providers ...Provider) *Manager {
	if len(providers) == 0 {
		providers = []Provider{
			NewGoogleProvider(),
			NewMicrosoftProvider(),
			NewNotionProvider(),
			NewSlackProvider(),
		}
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Manager{
		store:     st,
		providers: byName,
		clients:   clients,
		now:       time.Now,
		logger:    logger.With().Str("component", "credential").Logger(),
	}
}

func (m *Manager) provider(name string) (Provider, Client, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, Client{}, fmt.Errorf("unknown provider: %q", name)
	}
	client, ok := m.clients[name]
	if !ok || client.ID == "" || client.Secret == "" {
		return nil, Client{}, &ConfigError{Provider: name}
	}
	return p, client, nil
}

// AuthURL builds the provider consent URL for the OAuth start endpoint.
func (m *Manager) AuthURL(userID, providerName, redirectURL, callbackURL string) (string, error) {
	p, client, err := m.provider(providerName)
	if err != nil {
		return "", err
	}
	state := EncodeState(State{UserID: userID, RedirectURL: redirectURL})
	return p.AuthURL(client, callbackURL, state), nil
}

// GetAccessToken resolves a usable access token for (user, provider).
// Returns "" with no error when the provider was never connected or the
// stored row cannot be refreshed into a usable token; a failed refresh
// exchange returns an AuthError without touching stored tokens.
func (m *Manager) GetAccessToken(ctx context.Context, userID, providerName string) (string, error) {
	p, client, err := m.provider(providerName)
	if err != nil {
		return "", err
	}

	cred, err := m.store.GetActiveCredential(userID, providerName)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	caps := p.Capabilities()
	if !caps.TokensExpire {
		// Workspace-bot style tokens are returned as stored.
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		// Expiring token with no recorded refresh capability cannot be
		// kept alive.
		return "", nil
	}

	if cred.AccessToken != "" && cred.TokenExpiresAt != nil &&
		cred.TokenExpiresAt.After(m.now().Add(expiryBuffer)) {
		return cred.AccessToken, nil
	}

	// Stale or near expiry: one refresh exchange per (user, provider),
	// shared across concurrent callers.
	key := userID + "|" + providerName
	result, err, _ := m.refresh.Do(key, func() (any, error) {
		tok, err := p.Refresh(ctx, client, cred.RefreshToken)
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues(providerName, "error").Inc()
			m.logger.Warn().Err(err).Str("provider", providerName).Msg("token refresh failed")
			return nil, &AuthError{
				Provider: providerName,
				Msg:      fmt.Sprintf("%s token refresh failed; reconnect the provider", providerName),
			}
		}

		expiresAt := m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		if err := m.store.UpdateCredentialTokens(userID, providerName, tok.AccessToken, tok.RefreshToken, &expiresAt); err != nil {
			return nil, err
		}
		metrics.TokenRefreshes.WithLabelValues(providerName, "success").Inc()
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Connect exchanges an authorization code and upserts the credential row.
func (m *Manager) Connect(ctx context.Context, userID, providerName, code, callbackURL string) (model.IntegrationCredential, error) {
	p, client, err := m.provider(providerName)
	if err != nil {
		return model.IntegrationCredential{}, err
	}

	tok, err := p.Exchange(ctx, client, code, callbackURL)
	if err != nil {
		return model.IntegrationCredential{}, &AuthError{
			Provider: providerName,
			Msg:      fmt.Sprintf("%s authorization failed: %v", providerName, err),
		}
	}

	cred := model.IntegrationCredential{
		UserID:          userID,
		Provider:        providerName,
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		ProviderAccount: tok.Account,
		Scopes:          tok.Scopes,
		ConnectedAt:     m.now(),
		SyncStatus:      model.SyncIdle,
	}
	if p.Capabilities().TokensExpire && tok.ExpiresIn > 0 {
		expiresAt := m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		cred.TokenExpiresAt = &expiresAt
	}

	stored, err := m.store.UpsertCredential(cred)
	if err != nil {
		return model.IntegrationCredential{}, err
	}
	m.logger.Info().Str("provider", providerName).Str("user", userID).Msg("provider connected")
	return stored, nil
}

// Disconnect revokes the stored token where the provider supports it and
// always clears local state. A failed remote revoke is logged, not fatal.
func (m *Manager) Disconnect(ctx context.Context, userID, providerName string) error {
	p, client, err := m.provider(providerName)
	if err != nil {
		return err
	}

	cred, err := m.store.GetActiveCredential(userID, providerName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err == nil && cred.AccessToken != "" && p.Capabilities().SupportsRevoke {
		if revokeErr := p.Revoke(ctx, client, cred.AccessToken); revokeErr != nil {
			m.logger.Warn().Err(revokeErr).Str("provider", providerName).Msg("token revoke failed")
		}
	}

	if err := m.store.DisconnectCredential(userID, providerName); err != nil {
		return err
	}
	m.logger.Info().Str("provider", providerName).Str("user", userID).Msg("provider disconnected")
	return nil
}
