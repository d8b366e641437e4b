package handlers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/agent"
	"github.com/troikatech/voice-bridge/pkg/bridge"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/settings"
	"github.com/troikatech/voice-bridge/pkg/storage"
)

type Handler struct {
	cfg         *env.Config
	redisClient *redis.Client
	mongoClient *mongo.Client
	settings    settings.Source
	agentClient *agent.Client
	registry    *bridge.Registry
	recordings  storage.Driver
	logger      *zap.Logger
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	mongoClient *mongo.Client,
	settingsSource settings.Source,
	agentClient *agent.Client,
	registry *bridge.Registry,
	recordings storage.Driver,
) *Handler {
	return &Handler{
		cfg:         cfg,
		redisClient: redisClient,
		mongoClient: mongoClient,
		settings:    settingsSource,
		agentClient: agentClient,
		registry:    registry,
		recordings:  recordings,
		logger:      logger.Log,
	}
}
