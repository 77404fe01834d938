package router

import (
	"context"
	"time"

	"whatsapp-clone-demo/backend/pkg/config"
	"whatsapp-clone-demo/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// SetupHealth starts periodic health checks for the store and the presence
// backend and exposes them at /health.
func (r *Router) SetupHealth() *health.Checker {
	checker := health.NewChecker(r.container.Logger, 30*time.Second)

	checker.RegisterDatabaseCheck(func() error {
		return config.TestConnection(r.container.DB)
	})
	checker.RegisterRedisCheck(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return r.container.Redis.Ping(ctx)
	})
	checker.Start()

	r.Engine.GET("/health", gin.WrapF(checker.HTTPHandler()))
	return checker
}
