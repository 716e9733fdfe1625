package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopfield/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	orders    RouteRegistrar
	catalog   RouteRegistrar
	customers RouteRegistrar
	addresses RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the API route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		if cfg.catalog != nil {
			api.Group(func(group chi.Router) { cfg.catalog(group) })
		} else {
			registerNotImplementedRoute(api, "/categories", "catalog")
			registerNotImplementedRoute(api, "/products", "catalog")
		}
		mount(api, "/orders", cfg.orders, "orders")
		mount(api, "/customers", cfg.customers, "customers")
		if cfg.addresses != nil {
			api.Group(func(group chi.Router) { cfg.addresses(group) })
		} else {
			registerNotImplementedRoute(api, "/addresses", "addresses")
		}
	})

	return r
}

func mount(api chi.Router, path string, registrar RouteRegistrar, name string) {
	api.Route(path, func(group chi.Router) {
		if registrar != nil {
			registrar(group)
			return
		}
		registerNotImplemented(group, name)
	})
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithOrderRoutes configures the registrar mounted at /orders.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithCatalogRoutes configures the registrar serving /categories and /products.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.catalog = reg
	}
}

// WithCustomerRoutes configures the registrar mounted at /customers.
func WithCustomerRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.customers = reg
	}
}

// WithAddressRoutes configures the registrar serving /customers/{customerID}/addresses and /addresses.
func WithAddressRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.addresses = reg
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := notImplemented(name)
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}

func registerNotImplementedRoute(r chi.Router, path string, name string) {
	handler := notImplemented(name)
	r.HandleFunc(path, handler)
	r.HandleFunc(path+"/*", handler)
}

func notImplemented(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
}
