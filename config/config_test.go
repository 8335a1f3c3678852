package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.ServerPort != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.ServerPort)
	}
	if cfg.Database.Name != "accountd" {
		t.Fatalf("unexpected default database name: %q", cfg.Database.Name)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected default token ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Storage.Backend != "" || cfg.MQ.Backend != "" {
		t.Fatalf("expected storage and mq backends to default to disabled")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MONGODB_URL", "mongodb://db:27017")
	t.Setenv("DATABASE_NAME", "accounts_test")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL_MINUTES", "60")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MQ_BACKEND", "rabbitmq")
	t.Setenv("RABBITMQ_QUEUE_DURABLE", "false")

	cfg := LoadConfig()

	if cfg.ServerPort != 9090 {
		t.Fatalf("unexpected port: %d", cfg.ServerPort)
	}
	if cfg.Database.URL != "mongodb://db:27017" {
		t.Fatalf("unexpected database url: %q", cfg.Database.URL)
	}
	if cfg.Database.Name != "accounts_test" {
		t.Fatalf("unexpected database name: %q", cfg.Database.Name)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("unexpected jwt secret: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Storage.Backend != "minio" || !cfg.Storage.Minio.UseSSL {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.MQ.Backend != "rabbitmq" || cfg.MQ.RabbitMQ.QueueDurable {
		t.Fatalf("unexpected mq config: %+v", cfg.MQ)
	}
}
