package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/internal/api/handlers"
	"github.com/troikatech/voice-bridge/pkg/agent"
	"github.com/troikatech/voice-bridge/pkg/bridge"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/middleware"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/otel"
	"github.com/troikatech/voice-bridge/pkg/routing"
	"github.com/troikatech/voice-bridge/pkg/settings"
	"github.com/troikatech/voice-bridge/pkg/storage"
)

// BridgeServer combines the voice webhook API and the media stream bridge
type BridgeServer struct {
	cfg         *env.Config
	mongoClient *mongo.Client
	redisClient *redis.Client
	registry    *bridge.Registry
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize OpenTelemetry if enabled
	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("voice-bridge", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting Voice Bridge (webhook API + media stream bridge)",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	// Initialize Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Initialize MongoDB
	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	// Operator settings: MongoDB source behind a Redis cache, with
	// environment defaults for numbers that carry no document.
	defaults := routing.Settings{
		AgentMode:   routing.ModeAuto,
		AgentID:     cfg.DefaultAgentID,
		AgentAPIKey: cfg.DefaultAgentAPIKey,
	}
	settingsProvider := settings.NewProvider(
		mongoClient,
		redisClient,
		cfg.SettingsCollection,
		time.Duration(cfg.SettingsCacheTTLSec)*time.Second,
		defaults,
		logger.Log,
	)

	// Agent upstream client
	agentClient := agent.NewClient(
		cfg.AgentSignedURLEndpoint,
		time.Duration(cfg.AgentHandshakeTimeoutMs)*time.Millisecond,
		logger.Log,
	)

	registry := bridge.NewRegistry()

	// Recording storage driver
	recordings, err := storage.NewDriver(cfg.StorageDriver, cfg.TwilioAccountSID, cfg.LocalStoragePath)
	if err != nil {
		logger.Log.Fatal("Failed to create storage driver", zap.Error(err))
	}

	apiHandler := handlers.NewHandler(cfg, redisClient, mongoClient, settingsProvider, agentClient, registry, recordings)

	server := &BridgeServer{
		cfg:         cfg,
		mongoClient: mongoClient,
		redisClient: redisClient,
		registry:    registry,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Voice Bridge listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	// Stop taking new calls, then sweep the live bridge sessions.
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Warn("Server forced to shutdown", zap.Error(err))
	}
	registry.CloseAll()

	logger.Log.Info("Server exited")
}

func (s *BridgeServer) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit

	// Add OpenTelemetry middleware if enabled
	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	// CORS
	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.WebhookRateLimitRPM)

	// Health and metrics
	router.GET("/health", s.handler.HealthCheck)
	router.GET("/metrics", s.handler.GetMetrics)
	router.GET("/metrics/prometheus", s.handler.GetPrometheusMetrics)
	router.GET("/sessions", s.handler.GetSessions)
	router.GET("/recordings/:call_sid", s.handler.GetRecording)

	// Voice webhooks
	voice := router.Group("/voice")
	voice.Use(rateLimiter.Middleware())
	voice.Use(middleware.IdempotencyMiddleware(s.redisClient))
	{
		voice.POST("/inbound", s.handler.InboundCall)
		voice.POST("/dial-status", s.handler.DialStatus)
		voice.POST("/transcription", s.handler.TranscriptionCallback)
	}

	// Media stream WebSocket (token-authenticated, no rate limit: the
	// telephony provider opens exactly one per routed call)
	router.GET("/stream/ws", s.handler.StreamWebSocket)

	return router
}
