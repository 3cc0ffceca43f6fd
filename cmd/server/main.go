package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"voxbridge/internal/auth"
	"voxbridge/internal/config"
	"voxbridge/internal/credential"
	"voxbridge/internal/gateway"
	"voxbridge/internal/hub"
	"voxbridge/internal/router"
	"voxbridge/internal/server"
	"voxbridge/internal/store"
	"voxbridge/internal/sync"
	"voxbridge/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	gin.SetMode(cfg.GinMode)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open store")
	}
	defer st.Close()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "voxbridge",
	}

	clients := map[string]credential.Client{}
	for _, name := range []string{"google", "microsoft", "notion", "slack"} {
		if pair, ok := cfg.ProviderClient(name); ok && pair.Configured() {
			clients[name] = credential.Client{ID: pair.ClientID, Secret: pair.ClientSecret}
		}
	}
	credentials := credential.NewManager(st, clients, logger)

	classifier := gateway.NewClient(gateway.Config{
		DeepgramAPIKey: cfg.DeepgramAPIKey,
		GeminiAPIKey:   cfg.GeminiAPIKey,
	}, logger)

	workflows := workflow.NewClient(cfg.WorkflowBaseURL)
	executor := router.New(st, workflows, credentials, cfg.GeminiAPIKey, logger)

	syncSvc := sync.NewService(st, credentials, logger)
	if cfg.SyncSchedule != "" {
		scheduler, err := sync.NewScheduler(syncSvc, st, cfg.SyncSchedule, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("spec", cfg.SyncSchedule).Msg("invalid sync schedule")
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	engine := server.NewRouter(server.Deps{
		Store:         st,
		TokenConfig:   tokenCfg,
		Classifier:    classifier,
		Executor:      executor,
		Credentials:   credentials,
		Sync:          syncSvc,
		Hub:           hub.New(),
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	logger.Info().Int("port", cfg.Port).Msg("listening")
	if err := server.Run(cfg, engine); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
