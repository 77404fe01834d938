package router

import (
	"time"

	"whatsapp-clone-demo/backend/internal/api"
	"whatsapp-clone-demo/backend/internal/ws"
	"whatsapp-clone-demo/backend/pkg/config"
	"whatsapp-clone-demo/backend/pkg/di"
	apperrors "whatsapp-clone-demo/backend/pkg/errors"
	"whatsapp-clone-demo/backend/pkg/logger"
	"whatsapp-clone-demo/backend/pkg/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router assembles the gin engine with the ambient middleware chain and the
// messaging routes.
type Router struct {
	Engine    *gin.Engine
	container *di.Container
	cfg       *config.Config
}

// New creates the engine with request-id, logging, recovery, error
// formatting, CORS and rate limiting applied in that order.
func New(container *di.Container, cfg *config.Config) *Router {
	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(apperrors.RecoveryWithLogger())
	engine.Use(apperrors.ErrorHandler())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Security.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiterOpts := middleware.DefaultRateLimiterOptions()
	rateLimiterOpts.Limit = rate.Limit(cfg.Security.RateLimit)
	rateLimiterOpts.Burst = cfg.Security.RateLimitBurst
	engine.Use(middleware.NewRateLimiter(container.Logger, rateLimiterOpts).Middleware())

	return &Router{Engine: engine, container: container, cfg: cfg}
}

// SetupRoutes mounts the HTTP surface and the websocket attach point.
func (r *Router) SetupRoutes() {
	auth := api.AuthMiddleware(r.container.JWTService)

	controller := api.NewMessageController(r.container.MessageService, r.container.TypingTracker)
	controller.RegisterRoutes(r.Engine, auth)

	r.Engine.GET("/ws", auth, func(c *gin.Context) {
		ws.ServeWs(r.container.Hub, c)
	})
}
