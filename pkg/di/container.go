package di

import (
	"whatsapp-clone-demo/backend/internal/presence"
	"whatsapp-clone-demo/backend/internal/repository"
	"whatsapp-clone-demo/backend/internal/service"
	"whatsapp-clone-demo/backend/internal/ws"
	"whatsapp-clone-demo/backend/pkg/config"
	"whatsapp-clone-demo/backend/pkg/jwt"
	"whatsapp-clone-demo/backend/pkg/logger"
	sharedredis "whatsapp-clone-demo/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB             *gorm.DB
	Logger         *logger.Logger
	Redis          *sharedredis.Client
	JWTService     *jwt.Service
	Hub            *ws.Hub
	MessageService *service.MessageService
	TypingTracker  *presence.Tracker
}

// New wires the message delivery pipeline: store, status tracking service,
// broadcaster hub and typing presence. The hub's inbound acks are routed
// back into the same services the HTTP surface uses.
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) *Container {
	redisClient := sharedredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	hub := ws.NewHub(log)

	messageRepo := repository.NewGormMessageRepository(db)
	messageService := service.NewMessageService(messageRepo, hub, service.Options{
		MaxContentLength:  cfg.Chat.MaxContentLength,
		MaxAttachmentSize: cfg.Chat.MaxAttachmentSize,
	})
	typingTracker := presence.NewTracker(redisClient, hub, cfg.Chat.TypingTTL, log)

	hub.SetDeliveryService(messageService)
	hub.SetTypingService(typingTracker)

	return &Container{
		DB:             db,
		Logger:         log,
		Redis:          redisClient,
		JWTService:     jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry),
		Hub:            hub,
		MessageService: messageService,
		TypingTracker:  typingTracker,
	}
}
