// Package http exposes sessions, runs, terminal output and session-log
// replay over a JSON API and a websocket event stream.
package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"redswarm/internal/agents"
	"redswarm/internal/logging"
	"redswarm/internal/observability"
	"redswarm/internal/server/app"
)

// RouterConfig carries everything the routes need.
type RouterConfig struct {
	Coordinator    Coordinator
	Broadcaster    *app.EventBroadcaster
	Health         *app.HealthCheckerImpl
	Profiles       *agents.Table
	Observability  *observability.Observability
	AllowedOrigins []string
	Version        string
	Debug          bool
}

// NewRouter builds the gin engine with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.NewComponentLogger("Router")

	var tracer *observability.TracerProvider
	var metrics *observability.MetricsCollector
	if cfg.Observability != nil {
		tracer = cfg.Observability.Tracer
		metrics = cfg.Observability.Metrics
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = app.NewEventBroadcaster()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	engine.Use(ObservabilityMiddleware(tracer, logger))

	apiHandler := NewAPIHandler(cfg.Coordinator, cfg.Health, cfg.Profiles, cfg.Version)
	streamHandler := NewStreamHandler(cfg.Coordinator, broadcaster, cfg.AllowedOrigins)

	api := engine.Group("/api")
	api.GET("/health", apiHandler.HandleHealth)
	api.GET("/agents", apiHandler.HandleAgents)

	// websocket upgrades skip the JSON guard
	api.GET("/sessions/:id/stream", streamHandler.HandleStream)

	sessions := api.Group("/sessions", JSONMiddleware())
	{
		sessions.POST("", apiHandler.HandleCreateSession)
		sessions.GET("", apiHandler.HandleListSessions)
		sessions.GET("/:id", apiHandler.HandleGetSession)
		sessions.GET("/:id/status", apiHandler.HandleGetSession)
		sessions.POST("/:id/messages", apiHandler.HandleSendMessage)
		sessions.GET("/:id/messages", apiHandler.HandleGetMessages)
		sessions.POST("/:id/stop", apiHandler.HandleStop)
		sessions.POST("/:id/reset", apiHandler.HandleNewChat)
		sessions.GET("/:id/terminal", apiHandler.HandleTerminal)
	}

	history := api.Group("/history")
	{
		history.GET("", apiHandler.HandleListHistory)
		history.GET("/:id/replay", apiHandler.HandleReplay)
	}

	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, APIResponse{Error: "route not found"})
	})
	return engine
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	config.AllowWebSockets = true
	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}
