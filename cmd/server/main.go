package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-clone-demo/backend/internal/models"
	"whatsapp-clone-demo/backend/pkg/config"
	"whatsapp-clone-demo/backend/pkg/di"
	"whatsapp-clone-demo/backend/pkg/logger"
	"whatsapp-clone-demo/backend/pkg/router"
	"whatsapp-clone-demo/backend/shared/observability"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting chat backend", "env", cfg.Server.Env)

	// Observability: Tracing and Metrics
	shutdownTracing := observability.SetupTracing("chat-backend")
	defer shutdownTracing()
	_ = observability.SetupPrometheusMetrics(":2112")

	// Database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Message{}); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}
	// Conversation scans filter on the pair in both directions
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_pair_created ON messages(sender_id, receiver_id, created_at)").Error; err != nil {
		log.LogError(err, "Failed to create message index")
	}

	container := di.New(db, cfg, log)
	go container.Hub.Run()

	r := router.New(container, cfg)
	r.SetupHealth()
	r.SetupRoutes()

	// No read/write timeouts on the server itself: the websocket channel is
	// long-lived and enforces its own deadlines.
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}
