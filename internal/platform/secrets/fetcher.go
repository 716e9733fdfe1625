// Package secrets resolves secret:// configuration references through Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/shopfield/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references, caching every resolved value for the process lifetime. When Secret
// Manager is unreachable or denies access, values are read from a local fallback file of ref=value lines.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger
	callOpts   []gax.CallOption

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	callOpts     []gax.CallOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject sets the project used when a reference has no ?project= override.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback file. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects the meter recording fetch latency.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithRetry sets the gax retry policy applied to AccessSecretVersion calls.
func WithRetry(opts ...gax.CallOption) Option {
	return func(cfg *fetcherConfig) { cfg.callOpts = append(cfg.callOpts, opts...) }
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created leaves the fetcher in
// fallback-only mode rather than failing.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		callOpts: []gax.CallOption{
			gax.WithRetry(func() gax.Retryer {
				return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
					Initial:    100 * time.Millisecond,
					Max:        2 * time.Second,
					Multiplier: 2,
				})
			}),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}

	f := &Fetcher{
		client:       cfg.client,
		projectID:    cfg.projectID,
		logger:       cfg.logger,
		callOpts:     cfg.callOpts,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
		latency:      latency,
	}
	if f.client == nil {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for ref, consulting the cache, Secret Manager and the fallback file in order.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	value, ok := f.cache[parsed.key()]
	f.mu.RUnlock()
	if ok {
		f.recordLatency(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = f.projectID
	}
	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, project, parsed)
		if err == nil {
			f.store(parsed, value)
			f.recordLatency(ctx, start, "remote")
			return value, nil
		}
		if !isFallbackError(err) {
			f.recordLatency(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.canonical, err)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.canonical), zap.Error(err))
	}

	value, ok = f.lookupFallback(parsed)
	if !ok {
		f.recordLatency(ctx, start, "error")
		return "", fmt.Errorf("secrets: fallback value not found for %s", parsed.canonical)
	}
	f.store(parsed, value)
	f.recordLatency(ctx, start, "fallback")
	return value, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.secret, ref.versionOrLatest())
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, f.callOpts...)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) store(ref reference, value string) {
	f.mu.Lock()
	f.cache[ref.key()] = value
	f.mu.Unlock()
}

func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallback[ref.key()]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.canonical]
	return value, ok
}

// loadFallback parses ref=value lines. Keys contain "://", so dotenv parsers that split on ':' do not apply.
func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	raw, err := os.ReadFile(f.fallbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: unable to read fallback file %s: %w", f.fallbackPath, err)
		return
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if rest, found := strings.CutPrefix(key, "sm://"); found {
			key = "secret://" + rest
		}
		parsed, err := parseReference(key)
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		f.fallback[parsed.canonical] = value
		f.fallback[parsed.key()] = value
	}
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	f.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

func (r reference) versionOrLatest() string {
	if r.version == "" {
		return "latest"
	}
	return r.version
}

func (r reference) key() string {
	return r.canonical + "#" + r.versionOrLatest()
}

// parseReference accepts secret://name[?version=N&project=P].
func parseReference(ref string) (reference, error) {
	if strings.TrimSpace(ref) == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return reference{
		canonical: "secret://" + secret,
		secret:    secret,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
