package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/techshop-api/internal/auth"
	"github.com/noah-isme/techshop-api/internal/catalog"
	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/config"
	"github.com/noah-isme/techshop-api/internal/health"
	"github.com/noah-isme/techshop-api/internal/lock"
	"github.com/noah-isme/techshop-api/internal/obs"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/payment"
	"github.com/noah-isme/techshop-api/internal/pricing"
	"github.com/noah-isme/techshop-api/internal/ratelimit"
	"github.com/noah-isme/techshop-api/internal/resilience"
	"github.com/noah-isme/techshop-api/internal/security"
)

const metricsNamespace = "techshop"

// Dependencies is everything the router needs. Events, Verifier and
// Registry are optional.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Stores   *Stores
	Redis    *redis.Client
	Events   order.Publisher
	Verifier order.PaymentVerifier
	// Registry receives the HTTP and domain collectors and backs /metrics.
	// The default registry is used when nil.
	Registry *prometheus.Registry
	// LimiterStore overrides the Redis-backed rate limit store.
	LimiterStore limiter.Store
	Now          func() time.Time
}

// NewRouter assembles the HTTP API.
func NewRouter(d Dependencies) (http.Handler, error) {
	cfg := d.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if d.Stores == nil {
		return nil, errors.New("app: stores are required")
	}
	logger := d.Logger

	calc, err := pricing.New(cfg.Pricing.FreeShippingThreshold, cfg.Pricing.ShippingFee, cfg.Pricing.TaxRate)
	if err != nil {
		return nil, err
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}
	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, registerer)
		if err := resilience.RegisterMetrics(registerer); err != nil {
			return nil, err
		}
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, registerer)
	}

	var cache *catalog.Cache
	if d.Redis != nil {
		cache = catalog.NewCache(d.Redis, cfg.CatalogCacheTTL)
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Repo:     d.Stores.Catalog,
		Cache:    cache,
		PageSize: cfg.ProductsPageSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc})

	authSvc, err := auth.NewService(auth.Config{
		Users:          d.Stores.Users,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		ClockSkew:      30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if d.Now != nil {
		authSvc.WithNow(d.Now)
	}
	csrf := &security.CSRF{SessionCookie: cfg.AccessCookie}
	authHandler := &auth.Handler{
		Service:          authSvc,
		AccessCookieName: cfg.AccessCookie,
		CookieSecure:     cfg.CookieSecure,
		CookieSameSite:   cfg.CookieSameSite,
		CSRF:             csrf,
	}
	authMiddleware := auth.Middleware{Service: authSvc, AccessCookie: cfg.AccessCookie}

	orderSvc := &order.Service{
		Repo:     d.Stores.Orders,
		Pricing:  calc,
		Events:   d.Events,
		Verifier: d.Verifier,
		Log:      logger.With().Str("component", "orders").Logger(),
		Now:      d.Now,
	}
	if d.Redis != nil {
		orderSvc.Lock = lock.Redis{Client: d.Redis}
	}
	orderHandler := &order.Handler{Svc: orderSvc}
	orderAdmin := &order.AdminHandler{Svc: orderSvc, PageSize: cfg.OrdersPageSize}

	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}

	limiterStore := d.LimiterStore
	if limiterStore == nil {
		if d.Redis != nil {
			limiterStore, err = ratelimit.NewRedisStore(d.Redis, "techshop:ratelimit")
			if err != nil {
				return nil, err
			}
		} else {
			limiterStore = ratelimit.NewMemoryStore("techshop:ratelimit")
		}
	}
	onLimitError := func(err error) { logger.Error().Err(err).Msg("rate limit store") }
	loginLimiter, err := ratelimit.New(cfg.RateLimitAuth, limiterStore)
	if err != nil {
		return nil, err
	}
	ordersLimiter, err := ratelimit.New(cfg.RateLimitOrders, limiterStore)
	if err != nil {
		return nil, err
	}
	loginLimit := ratelimit.Handler{Limiter: loginLimiter, Key: ratelimit.ByIP, Scope: "login", OnError: onLimitError}
	ordersLimit := ratelimit.Handler{Limiter: ordersLimiter, Key: ratelimit.ByUser, Scope: "orders", OnError: onLimitError}

	probes := append([]health.Probe(nil), d.Stores.Probes...)
	if d.Redis != nil {
		rdb := d.Redis
		probes = append(probes, health.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	healthHandler := health.Handler{Probes: probes, Timeout: time.Second}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Tracing.Enabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction(), HSTSMaxAge: 15552000}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader, security.DefaultCSRFName},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.NotFound(common.NotFoundHandler)
	r.MethodNotAllowed(common.MethodNotAllowedHandler)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route(cfg.APIPrefix, func(api chi.Router) {
		api.NotFound(common.NotFoundHandler)
		api.Get("/config/paypal", payment.ConfigHandler{ClientID: cfg.PayPal.ClientID}.PayPal)

		api.Route("/products", func(p chi.Router) {
			p.Get("/", catalogHandler.Products)
			p.Get("/featured", catalogHandler.Featured)
			p.Get("/top", catalogHandler.Top)
			p.Get("/new", catalogHandler.Newest)
			p.Get("/category/{categoryId}", catalogHandler.ProductsByCategory)
			p.Get("/{id}", catalogHandler.Product)
		})
		api.Route("/categories", func(c chi.Router) {
			c.Get("/", catalogHandler.Categories)
			c.Get("/featured", catalogHandler.FeaturedCategories)
			c.Get("/{id}", catalogHandler.Category)
		})

		api.Route("/users", func(u chi.Router) {
			u.Post("/", authHandler.Register)
			u.With(loginLimit.Middleware).Post("/auth", authHandler.Login)
			u.With(authMiddleware.RequireAuth).Get("/profile", authHandler.Profile)
		})

		api.Route("/orders", func(o chi.Router) {
			o.Use(authMiddleware.RequireAuth)
			o.Use(csrf.Middleware)
			o.With(ordersLimit.Middleware, idem.Middleware).Post("/", orderHandler.Create)
			o.Get("/myorders", orderHandler.Mine)
			o.Get("/{id}", orderHandler.Get)
			o.With(idem.Middleware).Put("/{id}/pay", orderHandler.Pay)

			o.Group(func(admin chi.Router) {
				admin.Use(auth.RequireAdmin)
				admin.Get("/", orderAdmin.List)
				admin.Put("/{id}/deliver", orderAdmin.Deliver)
				admin.Delete("/{id}", orderAdmin.Purge)
			})
		})
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
