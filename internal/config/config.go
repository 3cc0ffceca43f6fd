// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the client pair are present.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type Config struct {
	Port         int
	MasterSecret string
	GinMode      string
	Debug        bool
	TLSCertFile  string
	TLSKeyFile   string
	TokenExpiry  time.Duration

	DBPath string

	// Transcription & classification gateway.
	DeepgramAPIKey string
	GeminiAPIKey   string

	// Base URL for external query/action workflows.
	WorkflowBaseURL string

	// Per-provider OAuth client pairs.
	Google    OAuthClient
	Microsoft OAuthClient
	Notion    OAuthClient
	Slack     OAuthClient

	// Public base URL of this server, used to build OAuth callback URLs.
	PublicBaseURL string

	// Cron spec for the background provider sync sweep. Empty disables it.
	SyncSchedule string
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 3000)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("DEBUG", false)
	v.SetDefault("TOKEN_EXPIRY_SECONDS", 7*24*60*60)
	v.SetDefault("DB_PATH", "voxbridge.db")
	v.SetDefault("SYNC_SCHEDULE", "@hourly")

	cfg := Config{
		Port:            v.GetInt("PORT"),
		MasterSecret:    v.GetString("MASTER_SECRET"),
		GinMode:         v.GetString("GIN_MODE"),
		Debug:           v.GetBool("DEBUG"),
		TLSCertFile:     v.GetString("TLS_CERT_FILE"),
		TLSKeyFile:      v.GetString("TLS_KEY_FILE"),
		TokenExpiry:     time.Duration(v.GetInt("TOKEN_EXPIRY_SECONDS")) * time.Second,
		DBPath:          v.GetString("DB_PATH"),
		DeepgramAPIKey:  v.GetString("DEEPGRAM_API_KEY"),
		GeminiAPIKey:    v.GetString("GEMINI_API_KEY"),
		WorkflowBaseURL: v.GetString("WORKFLOW_BASE_URL"),
		PublicBaseURL:   v.GetString("PUBLIC_BASE_URL"),
		SyncSchedule:    v.GetString("SYNC_SCHEDULE"),
		Google: OAuthClient{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		},
		Microsoft: OAuthClient{
			ClientID:     v.GetString("MICROSOFT_CLIENT_ID"),
			ClientSecret: v.GetString("MICROSOFT_CLIENT_SECRET"),
		},
		Notion: OAuthClient{
			ClientID:     v.GetString("NOTION_CLIENT_ID"),
			ClientSecret: v.GetString("NOTION_CLIENT_SECRET"),
		},
		Slack: OAuthClient{
			ClientID:     v.GetString("SLACK_CLIENT_ID"),
			ClientSecret: v.GetString("SLACK_CLIENT_SECRET"),
		},
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT")
	}
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}
	if cfg.TokenExpiry <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
	}

	return cfg, nil
}

// ProviderClient returns the OAuth pair for a provider name.
func (c Config) ProviderClient(provider string) (OAuthClient, bool) {
	switch provider {
	case "google":
		return c.Google, true
	case "microsoft":
		return c.Microsoft, true
	case "notion":
		return c.Notion, true
	case "slack":
		return c.Slack, true
	}
	return OAuthClient{}, false
}
