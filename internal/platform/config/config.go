package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultEnvironment    = "local"
	defaultPostgresConns  = 10
	defaultProductTTL     = 5 * time.Minute
	defaultIdempotencyKey = "Idempotency-Key"
	defaultIdempotencyTTL = 24 * time.Hour
)

// Database drivers accepted by API_DATABASE_DRIVER.
const (
	DriverFirestore = "firestore"
	DriverPostgres  = "postgres"
	DriverMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	PubSub      PubSubConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig configures the pgx pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// RedisConfig configures the product cache and the idempotency store. An empty Addr disables both.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	ProductTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// PubSubConfig configures order event publication. An empty OrderTopic disables publishing.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// Enabled reports whether order events should be published.
func (c PubSubConfig) Enabled() bool {
	return strings.TrimSpace(c.OrderTopic) != ""
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// IsLocal reports whether the configuration targets a developer machine.
func (c Config) IsLocal() bool {
	return c.Environment == "" || c.Environment == defaultEnvironment
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the dotenv file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values which take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues returns the effective key/value map after applying the precedence used by Load
// (dotenv < process environment < explicit map). Callers use it to build dependencies, such as the secret
// fetcher, before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, the dotenv file, the environment and
// secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return strings.TrimSpace(value), ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "API_DATABASE_DRIVER", DriverFirestore)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:      stringWithDefault(lookup, "API_POSTGRES_DSN", ""),
			MaxConns: int32(intWithDefault(lookup, "API_POSTGRES_MAX_CONNS", defaultPostgresConns)),
		},
		Redis: RedisConfig{
			Addr:       stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:   stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:         intWithDefault(lookup, "API_REDIS_DB", 0),
			ProductTTL: durationWithDefault(lookup, "API_REDIS_PRODUCT_TTL", defaultProductTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_TOPIC", ""),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			JWTIssuer: stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", ""),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyKey),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Postgres.DSN,
		&cfg.Redis.Password,
		&cfg.Auth.JWTSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.RequestTimeout <= 0 {
		invalid = append(invalid, "Server.RequestTimeout")
	}
	switch cfg.Database.Driver {
	case DriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case DriverPostgres:
		if cfg.Postgres.DSN == "" {
			invalid = append(invalid, "Postgres.DSN")
		}
		if cfg.Postgres.MaxConns <= 0 {
			invalid = append(invalid, "Postgres.MaxConns")
		}
	case DriverMemory:
	default:
		invalid = append(invalid, "Database.Driver")
	}
	if cfg.Redis.Enabled() && cfg.Redis.ProductTTL <= 0 {
		invalid = append(invalid, "Redis.ProductTTL")
	}
	if cfg.PubSub.Enabled() && cfg.PubSub.ProjectID == "" {
		invalid = append(invalid, "PubSub.ProjectID")
	}
	if !cfg.IsLocal() && cfg.Auth.JWTSecret == "" {
		invalid = append(invalid, "Auth.JWTSecret")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
