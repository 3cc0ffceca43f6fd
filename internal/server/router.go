package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"voxbridge/internal/auth"
	"voxbridge/internal/handler"
	"voxbridge/internal/hub"
	"voxbridge/internal/middleware"
	"voxbridge/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Classifier  handler.Classifier
	Executor    handler.Executor
	Credentials handler.Credentials
	Sync        handler.Syncer
	Hub         *hub.Hub
	Logger      zerolog.Logger

	// Externally reachable origin for OAuth callback URLs.
	PublicBaseURL string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokenHandler := &handler.TokenHandler{TokenConfig: deps.TokenConfig}
	r.POST("/v1/auth/token", tokenHandler.Mint)

	integrationHandler := &handler.IntegrationHandler{
		Credentials:   deps.Credentials,
		Sync:          deps.Sync,
		Store:         deps.Store,
		PublicBaseURL: deps.PublicBaseURL,
		Logger:        deps.Logger,
	}
	// The OAuth return must be reachable without a bearer token; the
	// signed state parameter carries the user identity.
	r.GET("/v1/integrations/:provider/callback", integrationHandler.Callback)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	processLimiter := middleware.NewRateLimiter(30, time.Minute)
	connectLimiter := middleware.NewRateLimiter(10, time.Minute)

	voiceHandler := &handler.VoiceHandler{
		Classifier: deps.Classifier,
		Executor:   deps.Executor,
		Store:      deps.Store,
		Logger:     deps.Logger,
	}
	protected.POST("/voice/process", middleware.RateLimitMiddleware(processLimiter), voiceHandler.Process)
	protected.POST("/voice/execute", voiceHandler.Execute)

	sessionHandler := &handler.SessionHandler{Store: deps.Store}
	protected.GET("/voice/sessions", sessionHandler.List)
	protected.GET("/voice/sessions/:id", sessionHandler.Get)

	protected.GET("/integrations", integrationHandler.List)
	protected.POST("/integrations/:provider/connect", middleware.RateLimitMiddleware(connectLimiter), integrationHandler.Connect)
	protected.POST("/integrations/:provider/disconnect", integrationHandler.Disconnect)
	protected.POST("/integrations/:provider/sync", integrationHandler.TriggerSync)

	wsHub := deps.Hub
	if wsHub == nil {
		wsHub = hub.New()
	}
	wsHandler := &handler.WebSocketHandler{Hub: wsHub, TokenConfig: deps.TokenConfig}
	r.GET("/ws", wsHandler.Serve)

	return r
}
