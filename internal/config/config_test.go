package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("PG_DSN", "")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Store != StoreMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SearchRadiusKm != 10 || cfg.NotificationListLimit != 20 || cfg.NotificationJanitorPeriod != time.Hour {
		t.Fatalf("unexpected domain defaults %+v", cfg)
	}
	if cfg.KafkaTopic != "ride-events" || cfg.RedisChannelPrefix != "ridepool:user:" {
		t.Fatalf("unexpected stream defaults %+v", cfg)
	}
}

func TestLoadServerConfigInfersStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "")
	t.Setenv("PG_DSN", "postgres://localhost/ridepool")
	t.Setenv("MONGODB_URI", "")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Store != StorePostgres {
		t.Fatalf("expected postgres, got %s", cfg.Store)
	}

	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	cfg, _ = LoadServerConfig()
	if cfg.Store != StoreMongo {
		t.Fatalf("expected mongo to win, got %s", cfg.Store)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "memory")
	t.Setenv("SEARCH_RADIUS_KM", "12.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.SearchRadiusKm != 12.5 {
		t.Fatalf("radius not overridden: %v", cfg.SearchRadiusKm)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if !cfg.RunMigrations || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected flags %+v", cfg)
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE", "sqlite")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("SEARCH_RADIUS_KM", "-1")
	t.Setenv("RATE_LIMIT_BURST", "0")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"JWT_SECRET is required", `unknown STORE "sqlite"`, "invalid HTTP_READ_TIMEOUT", "SEARCH_RADIUS_KM must be > 0", "RATE_LIMIT_BURST must be > 0"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_GROUP", "g1")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatalf("LoadConsumerConfig: %v", err)
	}
	if cfg.KafkaGroup != "g1" || cfg.KafkaBrokers[0] != "localhost:9092" || cfg.MetricsAddr != ":2112" {
		t.Fatalf("unexpected consumer config %+v", cfg)
	}
}

func TestLoadServerConfigOriginsAndSeed(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pool.college.edu, http://localhost:5173")
	t.Setenv("USERS_SEED", " ./seed/users.json ")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://localhost:5173" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.UsersSeedFile != "./seed/users.json" {
		t.Fatalf("unexpected seed file %q", cfg.UsersSeedFile)
	}
}
