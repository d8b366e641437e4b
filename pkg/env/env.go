package env

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string
	TZ      string

	RedisURL string

	MongoURI string
	DBName   string

	// PublicBaseURL is the externally reachable HTTPS base of this
	// service; the stream WebSocket URL in TwiML is derived from it.
	PublicBaseURL string

	StreamTokenSecret string
	StreamTokenTTLMin int

	TwilioAuthToken  string
	TwilioAccountSID string

	StorageDriver    string
	LocalStoragePath string

	// Agent platform (ElevenLabs conversational agents)
	AgentSignedURLEndpoint  string
	AgentHandshakeTimeoutMs int
	DefaultAgentID          string
	DefaultAgentAPIKey      string

	// Prompt audio played before routing resolves
	WelcomeAudioURL string
	// PreDialAudioURL is announced to the caller before the forward
	// attempt begins dialing. It is not ringback; the provider plays it
	// to completion and only then starts the dial.
	PreDialAudioURL string
	VoicemailURL    string

	TranscriptionCallbackURL string
	ForwardTimeoutSec        int

	SettingsCollection  string
	SettingsCacheTTLSec int

	WebhookRateLimitRPM int

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Try to load .env file, but don't fail if it doesn't exist
		// This allows the app to work with environment variables only (e.g., in production)
		if err := godotenv.Load(envFile); err != nil {
			// If file doesn't exist, that's okay - we'll use environment variables directly
			// Only fail if it's a different error (permission, etc.)
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
			// File doesn't exist - continue without it, use environment variables
		}
	}

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),
		TZ:      getEnv("TZ", "UTC"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "voicebridge"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		StreamTokenSecret: mustGetEnv("STREAM_TOKEN_SECRET"),
		StreamTokenTTLMin: getEnvInt("STREAM_TOKEN_TTL_MIN", 5),

		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),

		StorageDriver:    getEnv("STORAGE_DRIVER", "twilio-proxy"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "/data/audio"),

		AgentSignedURLEndpoint:  getEnv("AGENT_SIGNED_URL_ENDPOINT", ""),
		AgentHandshakeTimeoutMs: getEnvInt("AGENT_HANDSHAKE_TIMEOUT_MS", 10000),
		DefaultAgentID:          getEnv("DEFAULT_AGENT_ID", ""),
		DefaultAgentAPIKey:      getEnv("DEFAULT_AGENT_API_KEY", ""),

		WelcomeAudioURL: getEnv("WELCOME_AUDIO_URL", ""),
		PreDialAudioURL: getEnv("PRE_DIAL_AUDIO_URL", ""),
		VoicemailURL:    getEnv("VOICEMAIL_URL", ""),

		TranscriptionCallbackURL: getEnv("TRANSCRIPTION_CALLBACK_URL", "/voice/transcription"),
		ForwardTimeoutSec:        getEnvInt("FORWARD_TIMEOUT_SEC", 20),

		SettingsCollection:  getEnv("SETTINGS_COLLECTION", "operators"),
		SettingsCacheTTLSec: getEnvInt("SETTINGS_CACHE_TTL_SEC", 60),

		WebhookRateLimitRPM: getEnvInt("WEBHOOK_RATE_LIMIT_RPM", 600),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
