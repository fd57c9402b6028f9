package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/acopio-api/internal/config"
	"github.com/noah-isme/acopio-api/internal/obs"
	"github.com/noah-isme/acopio-api/internal/pricing"
	"github.com/noah-isme/acopio-api/internal/quality"
	"github.com/noah-isme/acopio-api/internal/queue"
	"github.com/noah-isme/acopio-api/internal/threshold"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "worker").
		Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		_ = redisClient.Close()
	}()
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	thresholdSvc := &threshold.Service{
		Q: threshold.NewDB(pool),
		Cache: &threshold.Cache{
			R:      redisClient,
			Prefix: cfg.QueuePrefix,
			TTL:    cfg.ThresholdCacheTTL,
		},
		Logger: logger,
	}
	pricingSvc := &pricing.Service{
		Q:        pricing.NewDB(pool),
		Pool:     pool,
		Currency: cfg.CurrencyCode,
		Logger:   logger,
	}
	qualitySvc := &quality.Service{
		Q:          quality.NewDB(pool),
		Pool:       pool,
		Thresholds: thresholdSvc,
		Pricer:     pricingSvc,
		Logger:     logger,
	}

	worker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueuePrefix,
		Kind:              quality.TaskReceptionRecompute,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		RetryBase:         cfg.QueueRetryBase,
		Handler: func(ctx context.Context, task queue.Task) error {
			var payload quality.RecomputeTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				logger.Error().Err(err).Msg("decode recompute payload")
				return nil
			}
			err := qualitySvc.Recompute(ctx, payload.ReceptionID)
			if errors.Is(err, quality.ErrReceptionNotFound) {
				// The reception was deleted between enqueue and pickup.
				return nil
			}
			if err != nil {
				logger.Error().Err(err).
					Str("reception_id", payload.ReceptionID.String()).
					Msg("recompute reception")
			}
			return err
		},
	}

	logger.Info().
		Str("kind", quality.TaskReceptionRecompute).
		Int("concurrency", cfg.QueueConcurrency).
		Msg("worker starting")
	if err := worker.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
	logger.Info().Msg("worker stopped")
}
