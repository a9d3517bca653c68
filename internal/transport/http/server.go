package http

import (
	stdhttp "net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lounge-server/internal/auth"
	"github.com/vovakirdan/lounge-server/internal/config"
	"github.com/vovakirdan/lounge-server/internal/core"
	"github.com/vovakirdan/lounge-server/internal/store"
)

// NewServer builds an HTTP server with the REST API and the websocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, identities store.IdentityStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(logger))
	engine.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	api := NewAPIHandlers(authService, hub, identities, logger)
	ws := NewWSHandler(hub, logger, WSOptions{
		ClientBuffer:    cfg.ClientBuffer,
		MaxMessageBytes: cfg.MaxMessageBytes,
		OriginPatterns:  cfg.CORSOrigins,
	})

	engine.GET("/health", healthHandler)
	engine.GET("/ws", gin.WrapH(ws))

	group := engine.Group("/api")
	group.POST("/register", api.Register)
	group.POST("/login", api.Login)
	group.GET("/presence", api.Presence)
	group.GET("/history", api.History)

	secured := group.Group("")
	secured.Use(AuthMiddleware(authService, logger))
	secured.GET("/me", api.Me)

	moderation := secured.Group("/moderation")
	moderation.Use(RequireOwner(identities, logger))
	moderation.GET("/bans", api.Bans)
	moderation.GET("/mutes", api.Mutes)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept-Language"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
