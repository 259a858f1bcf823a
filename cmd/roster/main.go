// roster is the account management API server.
//
// Configuration comes from ROSTER_* environment variables, optionally layered
// over a YAML file named by ROSTER_CONFIG_FILE. At minimum
// ROSTER_POSTGRES_URL must be set.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zuristack/roster/pkg/accounts"
	"github.com/zuristack/roster/pkg/api"
	"github.com/zuristack/roster/pkg/audit"
	"github.com/zuristack/roster/pkg/auth"
	"github.com/zuristack/roster/pkg/config"
	"github.com/zuristack/roster/pkg/middleware"
	"github.com/zuristack/roster/pkg/observability"
	"github.com/zuristack/roster/pkg/sso"
	"github.com/zuristack/roster/pkg/storage/postgres"
	"github.com/zuristack/roster/pkg/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("port", cfg.Server.Port).Info("starting roster")

	if path := os.Getenv("ROSTER_CONFIG_FILE"); path != "" {
		stop, err := config.Watch(path, logger)
		if err != nil {
			logger.WithError(err).Warn("config file watching disabled")
		} else {
			defer stop()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	db, err := postgres.Connect(ctx, postgres.ConnectionConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	postgres.StartPoolMetrics(ctx, db, metrics, 0)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		}
		pingCancel()
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("redis connected")
	}

	accountStore := postgres.NewAccountStore(db)
	tokenStore := postgres.NewCachedTokenStore(postgres.NewTokenStore(db), postgres.CachedTokenStoreConfig{
		Size:    cfg.Auth.TokenCacheSize,
		TTL:     cfg.Auth.TokenCacheTTL,
		Redis:   redisClient,
		Metrics: metrics,
		Logger:  logger,
	})

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	issuer := auth.NewIssuer(tokenStore, accountStore, hasher, cfg.Auth.TokenTTL, logger)
	policy := &auth.StrengthPolicy{MinLength: cfg.Auth.MinPasswordLength}
	service := accounts.NewService(accountStore, hasher, policy, logger, metrics)

	opts := api.Options{
		Accounts:     service,
		Issuer:       issuer,
		Logger:       logger,
		Metrics:      metrics,
		Audit:        audit.NewDBRecorder(db),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}

	if cfg.Avatars.Enabled {
		avatars, err := s3.NewAvatarStore(ctx, cfg.Avatars)
		if err != nil {
			log.Fatalf("Failed to initialize avatar storage: %v", err)
		}
		opts.Avatars = avatars
		logger.WithField("bucket", cfg.Avatars.Bucket).Info("avatar storage enabled")
	}

	if cfg.SSO.Enabled {
		provider, err := sso.NewProvider(ctx, cfg.SSO)
		if err != nil {
			log.Fatalf("Failed to initialize SSO provider: %v", err)
		}
		opts.SSOProvider = provider
		opts.SSOProvisioner = sso.NewProvisioner(accountStore, hasher, logger)
		logger.WithField("issuer", cfg.SSO.IssuerURL).Info("SSO enabled")
	}

	if cfg.RateLimit.Enabled {
		limits := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			WindowDuration:    cfg.RateLimit.Window,
		}
		if redisClient != nil {
			opts.RateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient, limits, logger).Handler
		} else {
			// Single-instance fallback when Redis is not configured.
			opts.RateLimit = middleware.NewRateLimitMiddleware(limits).Handler
		}
	}

	server := api.NewServer(opts)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server.Handler(), "roster-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.OnShutdown(func(ctx context.Context) error {
		cancel()
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	var group errgroup.Group
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(shutdown.Wait)

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
