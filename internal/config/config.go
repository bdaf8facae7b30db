package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultDatabaseURL      = "reliefdesk.db"
	defaultJWTSecret        = "change-me-jwt-secret"
	defaultBroadcastRoles   = "admin,coordinator"
	defaultHandshakeTimeout = "10s"
	defaultSendBuffer       = "64"
	defaultRedisChannel     = "reliefdesk:notifications"
	defaultKafkaTopic       = "incidents.created"
	defaultKafkaGroupID     = "reliefdesk-notifications"
	defaultRetentionDays    = "90"
	defaultLogLevel         = "info"
	defaultJWTLeeway        = "30s"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL string
	JWTSecret   string
	JWTIssuer   string
	JWTLeeway   time.Duration

	BroadcastRoles []string
	CORSOrigins    []string

	WSHandshakeTimeout time.Duration
	WSSendBuffer       int

	Redis RedisConfig
	Kafka KafkaConfig

	RetentionDays int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Enabled reports whether cross-instance relay is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(getEnv("APP_ENV", ""))
	if appEnv == "" {
		appEnv = strings.TrimSpace(getEnv("ENV", "dev"))
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.LogLevel = strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.JWTIssuer = strings.TrimSpace(getEnv("JWT_ISSUER", ""))
	cfg.BroadcastRoles = splitList(getEnv("BROADCAST_ROLES", defaultBroadcastRoles))
	cfg.CORSOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", ""))

	var err error
	cfg.WSHandshakeTimeout, err = parseDurationEnv("WS_HANDSHAKE_TIMEOUT", defaultHandshakeTimeout)
	if err != nil {
		return nil, err
	}
	cfg.JWTLeeway, err = parseDurationEnv("JWT_LEEWAY", defaultJWTLeeway)
	if err != nil {
		return nil, err
	}
	cfg.WSSendBuffer, err = parseIntEnv("WS_SEND_BUFFER", defaultSendBuffer)
	if err != nil {
		return nil, err
	}
	cfg.RetentionDays, err = parseIntEnv("NOTIFICATION_RETENTION_DAYS", defaultRetentionDays)
	if err != nil {
		return nil, err
	}

	cfg.Redis = RedisConfig{
		Addr:     strings.TrimSpace(getEnv("REDIS_ADDR", "")),
		Password: getEnv("REDIS_PASSWORD", ""),
		Channel:  strings.TrimSpace(getEnv("REDIS_CHANNEL", defaultRedisChannel)),
	}
	cfg.Redis.DB, err = parseIntEnv("REDIS_DB", "0")
	if err != nil {
		return nil, err
	}

	cfg.Kafka = KafkaConfig{
		Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
		Topic:   strings.TrimSpace(getEnv("KAFKA_INCIDENT_TOPIC", defaultKafkaTopic)),
		GroupID: strings.TrimSpace(getEnv("KAFKA_GROUP_ID", defaultKafkaGroupID)),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return fmt.Errorf("WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be > 0")
	}
	if cfg.RetentionDays <= 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION_DAYS must be > 0")
	}
	if len(cfg.BroadcastRoles) == 0 {
		return fmt.Errorf("BROADCAST_ROLES must name at least one role")
	}
	if cfg.Redis.Enabled() && cfg.Redis.Channel == "" {
		return fmt.Errorf("REDIS_CHANNEL must not be empty when REDIS_ADDR is set")
	}
	if cfg.Kafka.Enabled() && (cfg.Kafka.Topic == "" || cfg.Kafka.GroupID == "") {
		return fmt.Errorf("KAFKA_INCIDENT_TOPIC and KAFKA_GROUP_ID are required when KAFKA_BROKERS is set")
	}

	if IsProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
