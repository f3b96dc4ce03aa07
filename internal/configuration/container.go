package configuration

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"messaging-service/internal/db"
	"messaging-service/internal/handler"
	"messaging-service/internal/identity"
	"messaging-service/internal/model"
	"messaging-service/internal/repo"
	"messaging-service/internal/service"
)

type Container struct {
	ConversationHandler *handler.ConversationHandler
	MessageHandler      *handler.MessageHandler
	Config              Config
	Logger              *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	// The unique direct_message_key index must exist before the first
	// resolve-or-create; the exactly-once guarantee depends on it.
	indexCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := db.EnsureIndexes(indexCtx, con, config.ChatDatabase.ConversationsCollection, config.ChatDatabase.MessagesCollection); err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	conversationStore := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	messageStore := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)

	conversationRepo := repo.NewConversationRepository(conversationStore, logger)
	messageRepo := repo.NewMessageRepository(messageStore, logger)

	conversationService := service.NewConversationService(conversationRepo, messageRepo, logger)
	messageService := service.NewMessageService(messageRepo, conversationRepo, logger)

	identityClient := identity.NewHTTPClient(
		config.Identity.BaseURL,
		time.Duration(config.Identity.TimeoutSeconds)*time.Second,
		logger,
	)

	return &Container{
		ConversationHandler: handler.NewConversationHandler(conversationService, identityClient, logger),
		MessageHandler:      handler.NewMessageHandler(messageService, logger),
		Config:              *config,
		Logger:              logger,
		mongoClient:         con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
