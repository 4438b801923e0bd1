package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/app"
	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/config"
	"github.com/noah-isme/techshop-api/internal/events"
	"github.com/noah-isme/techshop-api/internal/notify"
	"github.com/noah-isme/techshop-api/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	stores, err := app.OpenStores(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("open stores")
		os.Exit(1)
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("close stores")
		}
	}()

	redisOpt, err := app.QueueConnOpt(cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("queue connection")
		os.Exit(1)
	}

	notifier := notify.EmailNotifier{
		Users: stores.Users,
		Mail:  common.LogEmailSender{Logger: logger, From: cfg.NotifyEmailFrom},
		Log:   logger,
	}
	mux := asynq.NewServeMux()
	notifier.Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{events.DefaultQueue: 1},
		Logger:      asynqLogger{log: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("topic", task.Type()).Msg("order event failed")
		}),
		ShutdownTimeout: 10 * time.Second,
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Strs("topics", events.DefaultTopics()).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Error().Err(err).Msg("start worker")
		os.Exit(1)
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
