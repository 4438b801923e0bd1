package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/auth"
	"github.com/noah-isme/techshop-api/internal/catalog"
	"github.com/noah-isme/techshop-api/internal/config"
	"github.com/noah-isme/techshop-api/internal/health"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/payment"
	"github.com/noah-isme/techshop-api/internal/repo/mongodb"
	"github.com/noah-isme/techshop-api/internal/repo/postgres"
	"github.com/noah-isme/techshop-api/internal/resilience"
)

// Stores bundles the repositories of the configured store driver.
type Stores struct {
	Driver  string
	Orders  order.Repository
	Catalog catalog.Repository
	Users   auth.UserStore
	Probes  []health.Probe

	closers []func(context.Context) error
}

// Close releases the driver connections.
func (s *Stores) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// MemoryStores keeps everything in process. Development and tests only.
func MemoryStores() *Stores {
	return &Stores{
		Driver:  config.StoreMemory,
		Orders:  order.NewMemoryRepository(),
		Catalog: catalog.NewMemoryRepository(nil, nil),
		Users:   auth.NewMemoryUserStore(),
	}
}

// OpenStores connects the driver selected by STORE_DRIVER.
func OpenStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		store, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")
		return &Stores{
			Driver:  config.StoreMongo,
			Orders:  store.Orders(),
			Catalog: store.Catalog(),
			Users:   store.Users(),
			Probes:  []health.Probe{{Name: "mongo", Check: store.Ping}},
			closers: []func(context.Context) error{store.Close},
		}, nil
	case config.StorePostgres:
		if cfg.AutoMigrate {
			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			logger.Info().Msg("database migrations applied")
		}
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &Stores{
			Driver:  config.StorePostgres,
			Orders:  store.Orders(),
			Catalog: store.Catalog(),
			Users:   store.Users(),
			Probes:  []health.Probe{{Name: "db", Check: store.Ping}},
			closers: []func(context.Context) error{func(context.Context) error {
				store.Close()
				return nil
			}},
		}, nil
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory stores; data is lost on restart")
		return MemoryStores(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenRedis parses url, instruments the client and checks the connection.
func OpenRedis(ctx context.Context, url string, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// QueueConnOpt converts the Redis URL into asynq connection options.
func QueueConnOpt(url string) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Network:   opts.Network,
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// NewPaymentVerifier returns the server-side capture verifier, or nil when
// PAYPAL_VERIFY_CAPTURES is off.
func NewPaymentVerifier(cfg *config.Config, logger zerolog.Logger) (order.PaymentVerifier, error) {
	if !cfg.PayPal.VerifyCaptures {
		return nil, nil
	}
	if !cfg.PayPalConfigured() {
		return nil, errors.New("PAYPAL_VERIFY_CAPTURES needs PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET")
	}
	provider, err := payment.NewPayPal(payment.PayPalOptions{
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		BaseURL:      cfg.PayPal.BaseURL,
		Timeout:      cfg.PayPal.Timeout,
		Breaker: resilience.NewBreaker(resilience.BreakerSettings{
			Target:  "paypal",
			OpenFor: 30 * time.Second,
			Logger:  logger,
		}),
	})
	if err != nil {
		return nil, err
	}
	return payment.Verifier{Provider: provider}, nil
}
