// Package di assembles repositories, services and infrastructure clients from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopfield/api/internal/platform/auth"
	"github.com/shopfield/api/internal/platform/config"
	pfirestore "github.com/shopfield/api/internal/platform/firestore"
	"github.com/shopfield/api/internal/platform/idempotency"
	"github.com/shopfield/api/internal/platform/jobs"
	"github.com/shopfield/api/internal/platform/observability"
	ppostgres "github.com/shopfield/api/internal/platform/postgres"
	"github.com/shopfield/api/internal/repositories"
	"github.com/shopfield/api/internal/repositories/cache"
	firestoreRepo "github.com/shopfield/api/internal/repositories/firestore"
	"github.com/shopfield/api/internal/repositories/memory"
	postgresRepo "github.com/shopfield/api/internal/repositories/postgres"
	"github.com/shopfield/api/internal/services"
)

const (
	databaseCheckTimeout = 1500 * time.Millisecond
	redisCheckTimeout    = 500 * time.Millisecond
	pubsubCheckTimeout   = 2 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders    services.OrderService
	Catalog   services.CatalogService
	Customers services.CustomerService
	Addresses services.AddressService
	System    services.SystemService
}

// Container wires repositories, services and infrastructure clients for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Authenticator *auth.Authenticator
	Idempotency   idempotency.Store
	Build         services.BuildInfo

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	registry  repositories.Registry
	redis     redis.UniversalClient
	publisher services.OrderEventPublisher
	build     services.BuildInfo
	clock     func() time.Time
}

// WithRegistry supplies a prebuilt repository registry instead of selecting one from Database.Driver.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithRedisClient supplies the Redis client used for the product cache and idempotency records.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithOrderEventPublisher overrides the order event publisher built from PubSub configuration.
func WithOrderEventPublisher(p services.OrderEventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithBuildInfo sets the build metadata reported by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) { o.build = info }
}

// WithClock overrides the time source used by services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Resources opened here are released by Close, including
// when construction fails part way.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (c *Container, err error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c = &Container{Config: cfg, Build: o.build}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
			c = nil
		}
	}()

	var checks []repositories.DependencyCheck

	reg := o.registry
	if reg == nil {
		reg, err = openRegistry(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, reg.Close)
	}
	c.Repositories = reg
	checks = append(checks, databaseCheck(cfg.Database.Driver, reg))

	products := reg.Products()
	client := o.redis
	if client == nil && cfg.Redis.Enabled() {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	}
	if client != nil {
		products = cache.NewProductRepository(products, client, cfg.Redis.ProductTTL, logger.Named("cache"))
		c.Idempotency = idempotency.NewRedisStore(client)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: redisCheckTimeout,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	publisher := o.publisher
	if publisher == nil && cfg.PubSub.Enabled() {
		topic, err := c.openTopic(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		pub, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			return nil, fmt.Errorf("build order event publisher: %w", err)
		}
		publisher = pub
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: pubsubCheckTimeout,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}

	c.Authenticator = auth.NewAuthenticator([]byte(cfg.Auth.JWTSecret), auth.WithIssuer(cfg.Auth.JWTIssuer))

	c.Services, err = buildServices(reg, products, publisher, checks, cfg, o, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases clients opened by NewContainer in reverse order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory repositories; data is lost on restart")
		return memory.NewStore(), nil
	case config.DriverPostgres:
		db, err := ppostgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		applied, err := db.Migrate(ctx)
		if err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("postgres migrations applied", zap.Strings("migrations", applied))
		}
		reg, err := postgresRepo.NewRegistry(db)
		if err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return reg, nil
	case config.DriverFirestore:
		return firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func (c *Container) openTopic(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Topic, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("open pubsub client: %w", err)
	}
	topic := client.Topic(strings.TrimSpace(cfg.OrderTopic))
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})
	return topic, nil
}

func databaseCheck(driver string, reg repositories.Registry) repositories.DependencyCheck {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	check := func(ctx context.Context) error {
		_, err := reg.Categories().List(ctx)
		return err
	}
	if p, ok := reg.(pinger); ok {
		check = p.Ping
	}
	return repositories.DependencyCheck{
		Name:     driver,
		Timeout:  databaseCheckTimeout,
		Critical: true,
		Check:    check,
	}
}

func buildServices(reg repositories.Registry, products repositories.ProductRepository, publisher services.OrderEventPublisher, checks []repositories.DependencyCheck, cfg config.Config, o options, logger *zap.Logger) (Services, error) {
	var svc Services

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Categories: reg.Categories(),
		Products:   products,
		Clock:      o.clock,
		Logger:     observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	customers, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: reg.Customers(),
		Clock:     o.clock,
		Logger:    observability.EventLogger(logger.Named("customers")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}
	svc.Customers = customers

	addresses, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses:  reg.Addresses(),
		Customers:  reg.Customers(),
		UnitOfWork: reg,
		Clock:      o.clock,
		Logger:     observability.EventLogger(logger.Named("addresses")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addresses

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Items:      reg.OrderItems(),
		Products:   products,
		Customers:  reg.Customers(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Clock:      o.clock,
		Events:     publisher,
		Logger:     observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Environment
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: health,
		Clock:            o.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system
	return svc, nil
}
