package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers understood by the API and the worker.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	HTTPAddr           string
	APIPrefix          string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string
	AutoMigrate   bool
	RedisURL      string

	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
	AccessCookie   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	Pricing Pricing
	PayPal  PayPal

	IdempotencyTTL   time.Duration
	CatalogCacheTTL  time.Duration
	RateLimitAuth    string
	RateLimitOrders  string
	OrdersPageSize   int
	ProductsPageSize int

	QueueEnabled      bool
	WorkerConcurrency int
	NotifyEmailFrom   string

	LogFormat      string
	LogLevel       string
	MetricsEnabled bool
	Tracing        Tracing
}

// Pricing carries the price calculator constants.
type Pricing struct {
	FreeShippingThreshold string
	ShippingFee           string
	TaxRate               string
	Currency              string
}

// PayPal carries the payment provider credentials.
type PayPal struct {
	ClientID       string
	ClientSecret   string
	BaseURL        string
	VerifyCaptures bool
	Timeout        time.Duration
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	p := parser{k: k}
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		HTTPAddr:           httpAddr(k.String("HTTP_ADDR"), k.String("PORT")),
		APIPrefix:          valueOrDefault(k.String("API_PREFIX"), "/api"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(p.integer("HTTP_MAX_BODY_BYTES", 1<<20)),

		StoreDriver:   strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), StoreMongo)),
		MongoURI:      valueOrDefault(k.String("MONGO_URI"), "mongodb://localhost:27017"),
		MongoDatabase: valueOrDefault(k.String("MONGO_DATABASE"), "techshop"),
		DatabaseURL:   k.String("DATABASE_URL"),
		AutoMigrate:   p.boolean("DB_AUTO_MIGRATE", true),
		RedisURL:      k.String("REDIS_URL"),

		JWTSecret:      k.String("JWT_SECRET"),
		JWTIssuer:      valueOrDefault(k.String("JWT_ISSUER"), "techshop-api"),
		JWTAudience:    valueOrDefault(k.String("JWT_AUDIENCE"), "techshop"),
		AccessTokenTTL: p.duration("JWT_ACCESS_TTL", 24*time.Hour),
		AccessCookie:   valueOrDefault(k.String("AUTH_ACCESS_COOKIE"), "jwt"),
		CookieSecure:   p.boolean("COOKIE_SECURE", false),
		CookieSameSite: parseSameSite(k.String("COOKIE_SAMESITE")),

		Pricing: Pricing{
			FreeShippingThreshold: p.decimal("PRICING_FREE_SHIPPING_THRESHOLD", "100"),
			ShippingFee:           p.decimal("PRICING_SHIPPING_FEE", "10"),
			TaxRate:               p.decimal("PRICING_TAX_RATE", "0.15"),
			Currency:              strings.ToUpper(valueOrDefault(k.String("PRICING_CURRENCY"), "USD")),
		},
		PayPal: PayPal{
			ClientID:       strings.TrimSpace(k.String("PAYPAL_CLIENT_ID")),
			ClientSecret:   strings.TrimSpace(k.String("PAYPAL_CLIENT_SECRET")),
			BaseURL:        valueOrDefault(k.String("PAYPAL_BASE_URL"), "https://api-m.sandbox.paypal.com"),
			VerifyCaptures: p.boolean("PAYPAL_VERIFY_CAPTURES", false),
			Timeout:        p.duration("PAYPAL_TIMEOUT", 10*time.Second),
		},

		IdempotencyTTL:   p.duration("IDEMPOTENCY_TTL", time.Minute),
		CatalogCacheTTL:  p.duration("CATALOG_CACHE_TTL", 60*time.Second),
		RateLimitAuth:    valueOrDefault(k.String("RATE_LIMIT_AUTH"), "20-M"),
		RateLimitOrders:  valueOrDefault(k.String("RATE_LIMIT_ORDERS"), "60-M"),
		OrdersPageSize:   p.integer("ORDERS_PAGE_SIZE", 20),
		ProductsPageSize: p.integer("PRODUCTS_PAGE_SIZE", 12),

		QueueEnabled:      p.boolean("QUEUE_ENABLED", true),
		WorkerConcurrency: p.integer("WORKER_CONCURRENCY", 10),
		NotifyEmailFrom:   valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "orders@techshop.local"),

		LogFormat:      valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:       valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsEnabled: p.boolean("METRICS_ENABLED", true),
		Tracing: Tracing{
			Enabled:     p.boolean("TRACING_ENABLED", false),
			Endpoint:    k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: valueOrDefault(k.String("OTEL_SERVICE_NAME"), "techshop-api"),
			SampleRatio: p.float("OTEL_SAMPLER_RATIO", 1),
		},
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreMemory:
		if c.IsProduction() {
			return errors.New("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q", StoreMongo, StorePostgres, StoreMemory, c.StoreDriver)
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.OrdersPageSize <= 0 || c.ProductsPageSize <= 0 {
		return errors.New("page sizes must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// PayPalConfigured reports whether REST credentials are present.
func (c *Config) PayPalConfigured() bool {
	return c.PayPal.ClientID != "" && c.PayPal.ClientSecret != ""
}

// ClientConfig configures the shopctl command line client.
type ClientConfig struct {
	APIURL          string
	StateDir        string
	PaymentProvider string
	Pricing         Pricing
	PayPal          PayPal
	LogLevel        string
	Timeout         time.Duration
}

// LoadClient reads SHOPCTL_* variables.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("SHOPCTL_", ".", func(s string) string {
		return strings.TrimPrefix(s, "SHOPCTL_")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	p := parser{k: k}
	cfg := &ClientConfig{
		APIURL:          strings.TrimRight(valueOrDefault(k.String("API_URL"), "http://localhost:8080/api"), "/"),
		StateDir:        valueOrDefault(k.String("STATE_DIR"), defaultStateDir()),
		PaymentProvider: strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "sandbox")),
		Pricing: Pricing{
			FreeShippingThreshold: p.decimal("PRICING_FREE_SHIPPING_THRESHOLD", "100"),
			ShippingFee:           p.decimal("PRICING_SHIPPING_FEE", "10"),
			TaxRate:               p.decimal("PRICING_TAX_RATE", "0.15"),
			Currency:              strings.ToUpper(valueOrDefault(k.String("PRICING_CURRENCY"), "USD")),
		},
		PayPal: PayPal{
			ClientID:     strings.TrimSpace(k.String("PAYPAL_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(k.String("PAYPAL_CLIENT_SECRET")),
			BaseURL:      valueOrDefault(k.String("PAYPAL_BASE_URL"), "https://api-m.sandbox.paypal.com"),
			Timeout:      p.duration("PAYPAL_TIMEOUT", 10*time.Second),
		},
		LogLevel: valueOrDefault(k.String("LOG_LEVEL"), "warn"),
		Timeout:  p.duration("TIMEOUT", 15*time.Second),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".shopctl"
	}
	return dir + string(os.PathSeparator) + "techshop"
}

// parser reads typed values and remembers the first malformed key.
type parser struct {
	k    *koanf.Koanf
	errs []string
}

func (p *parser) raw(key string) string {
	return strings.TrimSpace(p.k.String(key))
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Sprintf("%s=%q: %v", key, value, err))
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

// decimal validates the value but keeps its textual form for exact parsing downstream.
func (p *parser) decimal(key, fallback string) string {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	if f < 0 {
		p.fail(key, v, errors.New("must not be negative"))
		return fallback
	}
	return v
}

func (p *parser) boolean(key string, fallback bool) bool {
	v := strings.ToLower(p.raw(key))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		p.fail(key, v, errors.New("not a boolean"))
		return fallback
	}
}

func (p *parser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
}

func httpAddr(addr, port string) string {
	if a := strings.TrimSpace(addr); a != "" {
		return a
	}
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
