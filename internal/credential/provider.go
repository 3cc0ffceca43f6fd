// Package credential manages per-provider OAuth tokens: connect,
// expiry-aware access, refresh, and revoke-on-disconnect.
package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Capabilities describes what a provider's tokens can do. One generic
// refresh/disconnect algorithm consults this instead of forking per
// provider.
type Capabilities struct {
	SupportsRefresh bool
	TokensExpire    bool
	SupportsRevoke  bool
}

// Token is the outcome of an exchange or refresh. ExpiresIn of zero
// means the token never expires. RefreshToken may be empty: some
// providers only issue one on first consent, others never do.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Account      string
	Scopes       string
}

// Client is one provider's OAuth application credentials.
type Client struct {
	ID     string
	Secret string
}

type Provider interface {
	Name() string
	Capabilities() Capabilities
	AuthURL(client Client, callbackURL, state string) string
	Exchange(ctx context.Context, client Client, code, callbackURL string) (Token, error)
	Refresh(ctx context.Context, client Client, refreshToken string) (Token, error)
	Revoke(ctx context.Context, client Client, accessToken string) error
}

var errNotSupported = errors.New("not supported by provider")

func postForm(ctx context.Context, httpc *http.Client, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// ---- Google ----

type GoogleProvider struct {
	AuthBase    string
	TokenURL    string
	RevokeURL   string
	UserinfoURL string
	HTTP        *http.Client
}

func NewGoogleProvider() *GoogleProvider {
	return &GoogleProvider{
		AuthBase:    "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		RevokeURL:   "https://oauth2.googleapis.com/revoke",
		UserinfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		HTTP:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Capabilities() Capabilities {
	return Capabilities{SupportsRefresh: true, TokensExpire: true, SupportsRevoke: true}
}

var googleScopes = strings.Join([]string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/userinfo.email",
}, " ")

func (p *GoogleProvider) AuthURL(client Client, callbackURL, state string) string {
	params := url.Values{
		"client_id":     {client.ID},
		"redirect_uri":  {callbackURL},
		"response_type": {"code"},
		"scope":         {googleScopes},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return p.AuthBase + "?" + params.Encode()
}

func (p *GoogleProvider) Exchange(ctx context.Context, client Client, code, callbackURL string) (Token, error) {
	body, status, err := postForm(ctx, p.HTTP, p.TokenURL, url.Values{
		"client_id":     {client.ID},
		"client_secret": {client.Secret},
		"code":          {code},
		"redirect_uri":  {callbackURL},
		"grant_type":    {"authorization_code"},
	})
	if err != nil {
		return Token{}, fmt.Errorf("google exchange: %w", err)
	}
	tok, err := parseGoogleToken(body, status)
	if err != nil {
		return Token{}, err
	}
	// Best effort; a missing account identifier is not fatal.
	tok.Account = p.fetchEmail(ctx, tok.AccessToken)
	return tok, nil
}

func (p *GoogleProvider) Refresh(ctx context.Context, client Client, refreshToken string) (Token, error) {
	body, status, err := postForm(ctx, p.HTTP, p.TokenURL, url.Values{
		"client_id":     {client.ID},
		"client_secret": {client.Secret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return Token{}, fmt.Errorf("google refresh: %w", err)
	}
	return parseGoogleToken(body, status)
}

func (p *GoogleProvider) Revoke(ctx context.Context, client Client, accessToken string) error {
	_, status, err := postForm(ctx, p.HTTP, p.RevokeURL+"?token="+url.QueryEscape(accessToken), url.Values{})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("google revoke failed (%d)", status)
	}
	return nil
}

func parseGoogleToken(body []byte, status int) (Token, error) {
	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, fmt.Errorf("google token response: %w", err)
	}
	if status < 200 || status > 299 || parsed.Error != "" {
		return Token{}, fmt.Errorf("google token exchange failed (%d): %s %s", status, parsed.Error, parsed.ErrorDesc)
	}
	if parsed.AccessToken == "" {
		return Token{}, errors.New("google token exchange returned no access token")
	}
	expiresIn := parsed.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	scopes, _ := json.Marshal(map[string]string{"granted_scopes": parsed.Scope})
	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    expiresIn,
		Scopes:       string(scopes),
	}, nil
}

func (p *GoogleProvider) fetchEmail(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserinfoURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	var parsed struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ""
	}
	return parsed.Email
}

// ---- Microsoft ----

type MicrosoftProvider struct {
	AuthBase   string
	TokenURL   string
	ProfileURL string
	HTTP       *http.Client
}

func NewMicrosoftProvider() *MicrosoftProvider {
	return &MicrosoftProvider{
		AuthBase:   "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL:   "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		ProfileURL: "https://graph.microsoft.com/v1.0/me",
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *MicrosoftProvider) Name() string { return "microsoft" }

// Microsoft rotates the refresh token on every exchange and exposes no
// revocation endpoint for v2 tokens.
func (p *MicrosoftProvider) Capabilities() Capabilities {
	return Capabilities{SupportsRefresh: true, TokensExpire: true, SupportsRevoke: false}
}

var microsoftScopes = "offline_access User.Read Mail.Read Calendars.ReadWrite"

func (p *MicrosoftProvider) AuthURL(client Client, callbackURL, state string) string {
	params := url.Values{
		"client_id":     {client.ID},
		"redirect_uri":  {callbackURL},
		"response_type": {"code"},
		"response_mode": {"query"},
		"scope":         {microsoftScopes},
		"state":         {state},
	}
	return p.AuthBase + "?" + params.Encode()
}

func (p *MicrosoftProvider) Exchange(ctx context.Context, client Client, code, callbackURL string) (Token, error) {
	tok, err := p.token(ctx, client, url.Values{
		"code":         {code},
		"redirect_uri": {callbackURL},
		"grant_type":   {"authorization_code"},
	})
	if err != nil {
		return Token{}, err
	}
	tok.Account = p.fetchPrincipal(ctx, tok.AccessToken)
	return tok, nil
}

func (p *MicrosoftProvider) Refresh(ctx context.Context, client Client, refreshToken string) (Token, error) {
	return p.token(ctx, client, url.Values{
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	})
}

func (p *MicrosoftProvider) Revoke(ctx context.Context, client Client, accessToken string) error {
	return errNotSupported
}

func (p *MicrosoftProvider) token(ctx context.Context, client Client, form url.Values) (Token, error) {
	form.Set("client_id", client.ID)
	form.Set("client_secret", client.Secret)
	form.Set("scope", microsoftScopes)

	body, status, err := postForm(ctx, p.HTTP, p.TokenURL, form)
	if err != nil {
		return Token{}, fmt.Errorf("microsoft token: %w", err)
	}
	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, fmt.Errorf("microsoft token response: %w", err)
	}
	if status < 200 || status > 299 || parsed.Error != "" {
		return Token{}, fmt.Errorf("microsoft token exchange failed (%d): %s %s", status, parsed.Error, parsed.ErrorDesc)
	}
	if parsed.AccessToken == "" {
		return Token{}, errors.New("microsoft token exchange returned no access token")
	}
	expiresIn := parsed.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	scopes, _ := json.Marshal(map[string]string{"granted_scopes": parsed.Scope})
	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    expiresIn,
		Scopes:       string(scopes),
	}, nil
}

func (p *MicrosoftProvider) fetchPrincipal(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	var parsed struct {
		UserPrincipalName string `json:"userPrincipalName"`
		Mail              string `json:"mail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ""
	}
	if parsed.Mail != "" {
		return parsed.Mail
	}
	return parsed.UserPrincipalName
}

// ---- Notion ----

type NotionProvider struct {
	AuthBase string
	TokenURL string
	HTTP     *http.Client
}

func NewNotionProvider() *NotionProvider {
	return &NotionProvider{
		AuthBase: "https://api.notion.com/v1/oauth/authorize",
		TokenURL: "https://api.notion.com/v1/oauth/token",
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *NotionProvider) Name() string { return "notion" }

// Notion issues workspace-bot tokens: no expiry, no refresh, no revoke.
func (p *NotionProvider) Capabilities() Capabilities {
	return Capabilities{SupportsRefresh: false, TokensExpire: false, SupportsRevoke: false}
}

func (p *NotionProvider) AuthURL(client Client, callbackURL, state string) string {
	params := url.Values{
		"client_id":     {client.ID},
		"redirect_uri":  {callbackURL},
		"response_type": {"code"},
		"owner":         {"user"},
		"state":         {state},
	}
	return p.AuthBase + "?" + params.Encode()
}

func (p *NotionProvider) Exchange(ctx context.Context, client Client, code, callbackURL string) (Token, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": callbackURL,
	})
	if err != nil {
		return Token{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return Token{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(client.ID + ":" + client.Secret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("notion exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("notion exchange: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Token{}, fmt.Errorf("notion token exchange failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken   string `json:"access_token"`
		WorkspaceID   string `json:"workspace_id"`
		WorkspaceName string `json:"workspace_name"`
		BotID         string `json:"bot_id"`
		Owner         struct {
			User struct {
				Person struct {
					Email string `json:"email"`
				} `json:"person"`
			} `json:"user"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, fmt.Errorf("notion token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return Token{}, errors.New("notion token exchange returned no access token")
	}

	scopes, _ := json.Marshal(map[string]string{
		"workspace_id":   parsed.WorkspaceID,
		"workspace_name": parsed.WorkspaceName,
		"bot_id":         parsed.BotID,
	})
	return Token{
		AccessToken: parsed.AccessToken,
		Account:     parsed.Owner.User.Person.Email,
		Scopes:      string(scopes),
	}, nil
}

func (p *NotionProvider) Refresh(ctx context.Context, client Client, refreshToken string) (Token, error) {
	return Token{}, errNotSupported
}

func (p *NotionProvider) Revoke(ctx context.Context, client Client, accessToken string) error {
	return errNotSupported
}

// ---- Slack ----

// slackHTTPClient matches the client interface slack-go accepts for the
// OAuth exchange, so tests can stub the network.
type slackHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackProvider struct {
	AuthBase string
	// APIURL overrides the Slack API base for revocation; must end in "/".
	APIURL string
	HTTP   slackHTTPClient
}

func NewSlackProvider() *SlackProvider {
	return &SlackProvider{
		AuthBase: "https://slack.com/oauth/v2/authorize",
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *SlackProvider) Name() string { return "slack" }

// Slack user tokens never expire and have no refresh flow, but can be
// revoked via auth.revoke.
func (p *SlackProvider) Capabilities() Capabilities {
	return Capabilities{SupportsRefresh: false, TokensExpire: false, SupportsRevoke: true}
}

var slackUserScopes = "channels:read,chat:write,users:read"

func (p *SlackProvider) AuthURL(client Client, callbackURL, state string) string {
	params := url.Values{
		"client_id":    {client.ID},
		"redirect_uri": {callbackURL},
		"user_scope":   {slackUserScopes},
		"state":        {state},
	}
	return p.AuthBase + "?" + params.Encode()
}

func (p *SlackProvider) Exchange(ctx context.Context, client Client, code, callbackURL string) (Token, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, p.HTTP, client.ID, client.Secret, code, callbackURL)
	if err != nil {
		return Token{}, fmt.Errorf("slack exchange: %w", err)
	}
	if resp.AuthedUser.AccessToken == "" {
		return Token{}, errors.New("slack token exchange returned no user access token")
	}

	scopes, _ := json.Marshal(map[string]string{
		"team_id":     resp.Team.ID,
		"team_name":   resp.Team.Name,
		"user_scopes": resp.AuthedUser.Scope,
	})
	return Token{
		AccessToken: resp.AuthedUser.AccessToken,
		Account:     resp.AuthedUser.ID,
		Scopes:      string(scopes),
	}, nil
}

func (p *SlackProvider) Refresh(ctx context.Context, client Client, refreshToken string) (Token, error) {
	return Token{}, errNotSupported
}

func (p *SlackProvider) Revoke(ctx context.Context, client Client, accessToken string) error {
	opts := []slack.Option{}
	if p.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(p.APIURL))
	}
	api := slack.New(accessToken, opts...)
	_, err := api.SendAuthRevokeContext(ctx, "")
	if err != nil {
		return fmt.Errorf("slack revoke: %w", err)
	}
	return nil
}
