package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr         = ":8099"
	defaultAPIBaseURL       = "http://localhost:5000/api"
	defaultAPITimeout       = 5 * time.Second
	defaultEventWindow      = 200
	defaultPollInterval     = time.Second
	defaultDBPath           = "/data/obstacle_panel.db"
	defaultRedisAddr        = "localhost:6379"
	defaultLEDCount         = 3
	defaultViewLEDCount     = 4
	defaultMQTTClientID     = "obstacle-panel"
	defaultMQTTCommandTopic = "devices/{subject}/command"
	defaultFrontendDist     = "/app/frontend/dist"
)

const (
	EventSourceHTTP     = "http"
	EventSourcePostgres = "postgres"

	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr     string
	LogLevel     slog.Level
	FrontendDist string

	APIBaseURL string
	APIToken   string
	APITimeout time.Duration

	EventSource  string
	PostgresURL  string
	EventWindow  int
	PollInterval time.Duration

	CacheBackend string
	DBPath       string
	RedisAddr    string

	// LEDCount sizes the local snapshot; ViewLEDCount the aggregated view.
	LEDCount     int
	ViewLEDCount int

	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTCommandTopic string
	MQTTEventTopic   string
}

// Load builds Config from environment variables using stable defaults. A
// .env file in the working directory is read first when present; variables
// already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", defaultHTTPAddr),
		LogLevel:     parseLogLevel(getenv("LOG_LEVEL", "info")),
		FrontendDist: getenv("FRONTEND_DIST", defaultFrontendDist),

		APIBaseURL: getenv("API_BASE_URL", defaultAPIBaseURL),
		APIToken:   getenv("API_TOKEN", ""),
		APITimeout: parseDuration("API_TIMEOUT", defaultAPITimeout),

		EventSource:  parseChoice("EVENT_SOURCE", EventSourceHTTP, EventSourceHTTP, EventSourcePostgres),
		PostgresURL:  getenv("POSTGRES_URL", ""),
		EventWindow:  parseInt("EVENT_WINDOW", defaultEventWindow),
		PollInterval: parseDuration("POLL_INTERVAL", defaultPollInterval),

		CacheBackend: parseChoice("CACHE_BACKEND", CacheSQLite, CacheSQLite, CacheRedis, CacheMemory),
		DBPath:       getenv("DB_PATH", defaultDBPath),
		RedisAddr:    getenv("REDIS_ADDR", defaultRedisAddr),

		LEDCount:     parseInt("LED_COUNT", defaultLEDCount),
		ViewLEDCount: parseInt("VIEW_LED_COUNT", defaultViewLEDCount),

		MQTTBroker:       getenv("MQTT_BROKER", ""),
		MQTTClientID:     getenv("MQTT_CLIENT_ID", defaultMQTTClientID),
		MQTTUsername:     getenv("MQTT_USERNAME", ""),
		MQTTPassword:     getenv("MQTT_PASSWORD", ""),
		MQTTCommandTopic: getenv("MQTT_COMMAND_TOPIC", defaultMQTTCommandTopic),
		MQTTEventTopic:   getenv("MQTT_EVENT_TOPIC", ""),
	}
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseChoice(key, fallback string, allowed ...string) string {
	value := strings.ToLower(getenv(key, fallback))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return fallback
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
