package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "shop-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second || cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected timeouts: %+v", cfg.Server)
	}
	if cfg.Database.Driver != DriverFirestore {
		t.Errorf("expected firestore driver, got %s", cfg.Database.Driver)
	}
	if cfg.Environment != "local" || !cfg.IsLocal() {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis disabled without addr")
	}
	if cfg.Redis.ProductTTL != defaultProductTTL {
		t.Errorf("unexpected product ttl: %s", cfg.Redis.ProductTTL)
	}
	if cfg.PubSub.Enabled() {
		t.Errorf("expected pubsub disabled without topic")
	}
	if cfg.PubSub.ProjectID != "shop-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Postgres.MaxConns != defaultPostgresConns {
		t.Errorf("unexpected max conns: %d", cfg.Postgres.MaxConns)
	}
	if cfg.Idempotency.Header != defaultIdempotencyKey || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
}

func TestLoadPostgresWithSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":         "PROD",
		"API_SERVER_PORT":         "9090",
		"API_SERVER_READ_TIMEOUT": "20s",
		"API_DATABASE_DRIVER":     "postgres",
		"API_POSTGRES_DSN":        "secret://postgres/dsn",
		"API_POSTGRES_MAX_CONNS":  "25",
		"API_REDIS_ADDR":          "localhost:6379",
		"API_REDIS_PASSWORD":      "sm://redis/password",
		"API_REDIS_DB":            "2",
		"API_REDIS_PRODUCT_TTL":   "90s",
		"API_PUBSUB_PROJECT_ID":   "shop-prod",
		"API_PUBSUB_ORDER_TOPIC":  "order-events",
		"API_AUTH_JWT_SECRET":     "secret://auth/jwt",
		"API_AUTH_JWT_ISSUER":     "shopfield",
		"API_IDEMPOTENCY_TTL":     "48h",
	}
	secrets := map[string]string{
		"secret://postgres/dsn":   "postgres://shop:pw@db:5432/shop",
		"secret://redis/password": "redis-pw",
		"secret://auth/jwt":       "jwt-signing-key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" || cfg.IsLocal() {
		t.Errorf("expected prod environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Postgres.DSN != "postgres://shop:pw@db:5432/shop" || cfg.Postgres.MaxConns != 25 {
		t.Errorf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if cfg.Redis.Password != "redis-pw" || cfg.Redis.DB != 2 || cfg.Redis.ProductTTL != 90*time.Second {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Auth.JWTSecret != "jwt-signing-key" || cfg.Auth.JWTIssuer != "shopfield" {
		t.Errorf("unexpected auth config: %+v", cfg.Auth)
	}
	if !cfg.PubSub.Enabled() || cfg.PubSub.OrderTopic != "order-events" {
		t.Errorf("unexpected pubsub config: %+v", cfg.PubSub)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_DATABASE_DRIVER=memory\nexport API_SERVER_PORT=\"7070\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("expected driver from .env, got %s", cfg.Database.Driver)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected quoted port from .env, got %s", cfg.Server.Port)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":        "prod",
		"API_DATABASE_DRIVER":    "postgres",
		"API_PUBSUB_ORDER_TOPIC": "order-events",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := map[string]bool{"Postgres.DSN": true, "PubSub.ProjectID": true, "Auth.JWTSecret": true}
	for _, field := range vErr.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("missing fields not reported: %v (got %v)", want, vErr.Fields())
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	env := map[string]string{"API_DATABASE_DRIVER": "mysql"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Fields()[0] != "Database.Driver" {
		t.Fatalf("expected driver validation error, got %v", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_DATABASE_DRIVER": "memory",
		"API_AUTH_JWT_SECRET": "secret://auth/jwt",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if sErr.Ref != "secret://auth/jwt" || !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("unexpected secret error: %v", sErr)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_SERVER_PORT=7000\nAPI_REDIS_ADDR=file:6379\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("API_REDIS_ADDR", "system:6379")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{"API_SERVER_PORT": "7100"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["API_SERVER_PORT"] != "7100" {
		t.Errorf("expected explicit map to win, got %s", values["API_SERVER_PORT"])
	}
	if values["API_REDIS_ADDR"] != "system:6379" {
		t.Errorf("expected system env to override .env, got %s", values["API_REDIS_ADDR"])
	}
}
