package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/acopio-api/internal/batch"
	"github.com/noah-isme/acopio-api/internal/config"
	"github.com/noah-isme/acopio-api/internal/health"
	"github.com/noah-isme/acopio-api/internal/obs"
	"github.com/noah-isme/acopio-api/internal/pricing"
	"github.com/noah-isme/acopio-api/internal/quality"
	"github.com/noah-isme/acopio-api/internal/queue"
	"github.com/noah-isme/acopio-api/internal/reception"
	"github.com/noah-isme/acopio-api/internal/threshold"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.OTELEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "acopio-api",
			Endpoint:      cfg.OTELEndpoint,
			SamplingRatio: cfg.OTELSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "acopio-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()
	enqueuer := queue.Enqueuer{
		R:           redisClient,
		Prefix:      cfg.QueuePrefix,
		DedupTTL:    cfg.QueueDedupTTL,
		MaxAttempts: cfg.QueueMaxAttempts,
	}

	thresholdSvc := &threshold.Service{
		Q: threshold.NewDB(pool),
		Cache: &threshold.Cache{
			R:      redisClient,
			Prefix: cfg.QueuePrefix,
			TTL:    cfg.ThresholdCacheTTL,
		},
		Enqueue: enqueuer,
		Logger:  logger,
	}
	pricingSvc := &pricing.Service{
		Q:        pricing.NewDB(pool),
		Pool:     pool,
		Currency: cfg.CurrencyCode,
		Enqueue:  enqueuer,
		Logger:   logger,
	}
	qualitySvc := &quality.Service{
		Q:          quality.NewDB(pool),
		Pool:       pool,
		Thresholds: thresholdSvc,
		Pricer:     pricingSvc,
		Logger:     logger,
	}
	receptionSvc := &reception.Service{Q: reception.NewDB(pool), Logger: logger}
	batchSvc := &batch.Service{
		Q:          batch.NewDB(pool),
		Pool:       pool,
		SackWeight: cfg.SackWeightKG,
		Logger:     logger,
	}

	receptionHandler := &reception.Handler{Svc: receptionSvc, Validate: validate, Logger: logger}
	qualityHandler := &quality.Handler{Svc: qualitySvc, Validate: validate, Logger: logger}
	pricingHandler := &pricing.Handler{Svc: pricingSvc, Validate: validate, Logger: logger}
	thresholdHandler := &threshold.Handler{Svc: thresholdSvc, Validate: validate, Logger: logger}
	batchHandler := &batch.Handler{Svc: batchSvc, Validate: validate, Logger: logger}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Checker: readinessChecker{db: pool, redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		receptionHandler.Routes(v)
		qualityHandler.Routes(v)
		pricingHandler.Routes(v)
		batchHandler.Routes(v)

		v.Route("/admin", func(admin chi.Router) {
			thresholdHandler.Routes(admin)
			pricingHandler.AdminRoutes(admin)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
