package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Store         string
	MongoURI      string
	MongoDatabase string
	PGDSN         string
	RunMigrations bool

	RedisAddr          string
	RedisPassword      string
	RedisChannelPrefix string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string

	// CORSAllowedOrigins lists web client origins; "*" allows any.
	CORSAllowedOrigins []string
	// UsersSeedFile is a JSON array of users loaded at startup. Optional.
	UsersSeedFile string

	SearchRadiusKm            float64
	NotificationListLimit     int
	NotificationJanitorPeriod time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:                  ":8080",
		ReadTimeout:               5 * time.Second,
		WriteTimeout:              10 * time.Second,
		IdleTimeout:               120 * time.Second,
		ShutdownTimeout:           15 * time.Second,
		MongoDatabase:             "ridepool",
		RedisChannelPrefix:        "ridepool:user:",
		KafkaTopic:                "ride-events",
		CORSAllowedOrigins:        []string{"http://localhost:3000"},
		SearchRadiusKm:            10,
		NotificationListLimit:     20,
		NotificationJanitorPeriod: time.Hour,
		RateLimitRPS:              5,
		RateLimitBurst:            20,
		LogLevel:                  "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.MongoURI = strings.TrimSpace(os.Getenv("MONGODB_URI"))
	setStringFromEnv(&cfg.MongoDatabase, "MONGODB_DATABASE")
	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")
	cfg.Store = strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	if cfg.Store == "" {
		cfg.Store = inferStore(cfg)
	}

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisChannelPrefix, "REDIS_CHANNEL_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitAndTrim(origins)
	}
	cfg.UsersSeedFile = strings.TrimSpace(os.Getenv("USERS_SEED"))

	setFloatFromEnv(&cfg.SearchRadiusKm, "SEARCH_RADIUS_KM", &errs)
	setIntFromEnv(&cfg.NotificationListLimit, "NOTIFICATION_LIST_LIMIT", &errs)
	setDurationFromEnv(&cfg.NotificationJanitorPeriod, "NOTIFICATION_JANITOR_INTERVAL", &errs)
	setFloatFromEnv(&cfg.RateLimitRPS, "RATE_LIMIT_RPS", &errs)
	setIntFromEnv(&cfg.RateLimitBurst, "RATE_LIMIT_BURST", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, fmt.Errorf("PG_DSN is required for STORE=postgres"))
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			errs = append(errs, fmt.Errorf("MONGODB_URI is required for STORE=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", cfg.Store))
	}
	if cfg.SearchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_RADIUS_KM must be > 0"))
	}
	if cfg.NotificationListLimit <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_LIST_LIMIT must be > 0"))
	}
	if cfg.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be > 0"))
	}
	if cfg.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func inferStore(cfg ServerConfig) string {
	switch {
	case cfg.MongoURI != "":
		return StoreMongo
	case cfg.PGDSN != "":
		return StorePostgres
	default:
		return StoreMemory
	}
}

// ConsumerConfig configures the ride event consumer.
type ConsumerConfig struct {
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaGroup         string
	RedisAddr          string
	RedisPassword      string
	RedisChannelPrefix string
	MetricsAddr        string
	LogLevel           string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaTopic:         "ride-events",
		KafkaGroup:         "ride-pool-consumer",
		RedisAddr:          "localhost:6379",
		RedisChannelPrefix: "ridepool:user:",
		MetricsAddr:        ":2112",
		LogLevel:           "info",
	}
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisChannelPrefix, "REDIS_CHANNEL_PREFIX")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
