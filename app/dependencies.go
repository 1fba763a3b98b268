package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/firmauth/config"
	"github.com/upb/firmauth/handlers"
	"github.com/upb/firmauth/middleware"
	"github.com/upb/firmauth/repositories"
	"github.com/upb/firmauth/repositories/postgres"
	"github.com/upb/firmauth/repositories/redisstore"
	"github.com/upb/firmauth/services/activity"
	authsvc "github.com/upb/firmauth/services/auth"
	"github.com/upb/firmauth/services/ratelimit"
	"github.com/upb/firmauth/tokens"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users      repositories.UserRepository
	Firms      repositories.FirmRepository
	APIKeys    repositories.APIKeyRepository
	TxManager  repositories.TransactionManager
	QuotaStore *redisstore.QuotaStore

	// Services
	Activity    *activity.Service
	Codec       *tokens.Codec
	Auth        *authsvc.Service
	RateLimiter *ratelimit.Service

	// HTTP
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
	AuthHandler         *handlers.AuthHandler
	HealthHandler       *handlers.HealthHandler
}

// NewDependencies opens PostgreSQL and Redis and wires every component on top of them
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := redisstore.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	deps, err := NewDependenciesFromClients(ctx, cfg, factory, client, logger)
	if err != nil {
		_ = client.Close()
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromClients wires components over already opened connections.
// NewDependencies calls it after dialing both stores.
func NewDependenciesFromClients(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, client *redis.Client, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
		Redis:       client,
	}

	if cfg.Database.InitSchema {
		if err := deps.DB.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("database schema initialized")
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHTTP()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Firms = repos.Firms
	d.APIKeys = repos.APIKeys
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.QuotaStore = redisstore.NewQuotaStore(d.Redis, d.Config.Redis.KeyPrefix, d.Logger)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	codec, err := tokens.NewCodec([]byte(d.Config.Auth.JWTSecret))
	if err != nil {
		return err
	}
	d.Codec = codec

	d.Activity = activity.NewService(d.Users, d.APIKeys, d.Logger, activity.Config{
		BufferSize:   d.Config.Activity.BufferSize,
		WorkerCount:  d.Config.Activity.Workers,
		WriteTimeout: d.Config.Activity.WriteTimeout,
	})
	if err := d.Activity.Start(); err != nil {
		return fmt.Errorf("failed to start activity recorder: %w", err)
	}

	d.Auth = authsvc.NewService(authsvc.Deps{
		Users:     d.Users,
		Firms:     d.Firms,
		APIKeys:   d.APIKeys,
		TxManager: d.TxManager,
		Verifier:  authsvc.NewBcryptVerifier(d.Config.Auth.BcryptCost),
		Codec:     d.Codec,
		Store:     d.QuotaStore,
		Activity:  d.Activity,
		Logger:    d.Logger,
		Config:    d.Config.Auth,
	})

	d.RateLimiter = ratelimit.NewService(d.QuotaStore, ratelimit.DefaultPolicySet(), d.Logger, ratelimit.Config{
		Enabled:        d.Config.RateLimit.Enabled,
		ConcurrencyTTL: d.Config.RateLimit.ConcurrencySafetyTTL,
	})

	if !d.Config.RateLimit.Enabled {
		d.Logger.Warn("rate limiting disabled")
	}
	return nil
}

func (d *Dependencies) initHTTP() {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, handlers.HandleServiceError, d.Logger)
	d.RateLimitMiddleware = middleware.NewRateLimitMiddleware(d.RateLimiter, handlers.HandleServiceError, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.Auth, d.RateLimiter, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.QuotaStore, d.Activity, d.Logger)
}

// Close gracefully shuts down all dependencies. Pending activity writes are
// drained before the database closes.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Activity != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Activity.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop activity recorder: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
