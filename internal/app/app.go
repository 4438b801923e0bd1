package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/config"
	"github.com/noah-isme/techshop-api/internal/events"
)

// App is the assembled API together with the connections it owns.
type App struct {
	Handler http.Handler

	closers []func(context.Context) error
}

// New connects the stores, Redis and the event queue and builds the router.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{}
	fail := func(err error) (*App, error) {
		_ = a.Close(context.Background())
		return nil, err
	}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, stores.Close)

	rdb, err := OpenRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	deps := Dependencies{
		Config: cfg,
		Logger: logger,
		Stores: stores,
		Redis:  rdb,
	}

	if cfg.QueueEnabled {
		opt, err := QueueConnOpt(cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		client := asynq.NewClient(opt)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		deps.Events = &events.Publisher{
			Client:    client,
			Queue:     events.DefaultQueue,
			MaxRetry:  5,
			Retention: 24 * time.Hour,
		}
	} else {
		logger.Warn().Msg("event queue disabled; order notifications will not be sent")
	}

	deps.Verifier, err = NewPaymentVerifier(cfg, logger)
	if err != nil {
		return fail(err)
	}

	a.Handler, err = NewRouter(deps)
	if err != nil {
		return fail(err)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
