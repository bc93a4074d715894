package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseMaxConns int `env:"DB_MAX_CONNS" envDefault:"10"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Webhook Config (внешний диспетчер службы безопасности)
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// API Keys для интеграций (датчики, расписание, уведомления)
	APIKeys []string `env:"API_KEYS"`

	// JWT для пользователей приложения
	JWTSecret string `env:"JWT_SECRET"`

	// Dispatch Config
	EstimatedResponseTime string        `env:"ESTIMATED_RESPONSE_TIME" envDefault:"5-10 minutes"`
	DispatchFanoutTimeout time.Duration `env:"DISPATCH_FANOUT_TIMEOUT" envDefault:"10s"`

	// Broadcast Config
	BroadcastBackend     string        `env:"BROADCAST_BACKEND" envDefault:"local"`
	BroadcastQueueSize   int           `env:"BROADCAST_QUEUE_SIZE" envDefault:"64"`
	BroadcastSendTimeout time.Duration `env:"BROADCAST_SEND_TIMEOUT" envDefault:"5s"`
	StreamHeartbeat      time.Duration `env:"STREAM_HEARTBEAT" envDefault:"25s"`

	// Rate Limit Config
	RateLimitBackend string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	AuthRateLimit    int           `env:"AUTH_RATE_LIMIT" envDefault:"5"`
	AuthRateWindow   time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"15m"`
	SOSRateLimit     int           `env:"SOS_RATE_LIMIT" envDefault:"10"`
	SOSRateWindow    time.Duration `env:"SOS_RATE_WINDOW" envDefault:"1m"`

	// MQTT Config (датчики загруженности столовой)
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"sos-broadcasting"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
	MQTTMessTopic string `env:"MQTT_MESS_TOPIC" envDefault:"campus/mess/crowd"`

	MessSimulatorInterval time.Duration `env:"MESS_SIMULATOR_INTERVAL" envDefault:"0"`
}

const (
	BackendLocal    = "local"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DatabaseMaxConns:      getEnvAsInt("DB_MAX_CONNS", 10),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:        getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:     getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:      getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		APIKeys:               getEnvAsList("API_KEYS"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		EstimatedResponseTime: getEnv("ESTIMATED_RESPONSE_TIME", "5-10 minutes"),
		DispatchFanoutTimeout: getEnvAsDuration("DISPATCH_FANOUT_TIMEOUT", 10*time.Second),
		BroadcastBackend:      strings.ToLower(getEnv("BROADCAST_BACKEND", BackendLocal)),
		BroadcastQueueSize:    getEnvAsInt("BROADCAST_QUEUE_SIZE", 64),
		BroadcastSendTimeout:  getEnvAsDuration("BROADCAST_SEND_TIMEOUT", 5*time.Second),
		StreamHeartbeat:       getEnvAsDuration("STREAM_HEARTBEAT", 25*time.Second),
		RateLimitBackend:      strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
		AuthRateLimit:         getEnvAsInt("AUTH_RATE_LIMIT", 5),
		AuthRateWindow:        getEnvAsDuration("AUTH_RATE_WINDOW", 15*time.Minute),
		SOSRateLimit:          getEnvAsInt("SOS_RATE_LIMIT", 10),
		SOSRateWindow:         getEnvAsDuration("SOS_RATE_WINDOW", time.Minute),
		MQTTBrokerURL:         os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:          getEnv("MQTT_CLIENT_ID", "sos-broadcasting"),
		MQTTUsername:          os.Getenv("MQTT_USERNAME"),
		MQTTPassword:          os.Getenv("MQTT_PASSWORD"),
		MQTTMessTopic:         getEnv("MQTT_MESS_TOPIC", "campus/mess/crowd"),
		MessSimulatorInterval: getEnvAsDuration("MESS_SIMULATOR_INTERVAL", 0),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	switch cfg.BroadcastBackend {
	case BackendLocal, BackendRedis:
	default:
		return nil, fmt.Errorf("unsupported BROADCAST_BACKEND %q", cfg.BroadcastBackend)
	}

	switch cfg.RateLimitBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", cfg.RateLimitBackend)
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

// getEnvAsList разбирает список через запятую, пустые элементы отбрасываются
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
