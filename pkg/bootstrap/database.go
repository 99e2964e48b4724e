package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/pkg/dbpool"
	"filterchain/pkg/health"
	"filterchain/pkg/migrations"
	"filterchain/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis returns nil when no Redis host is configured.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if !dc.Config.Database.Redis.Enabled() {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

// InitSQL connects to the first reachable candidate and, when enabled,
// migrates it.
func (dc *DatabaseConnector) InitSQL(ctx context.Context) (*dbpool.Pool, error) {
	pool, err := dbpool.New(dc.Config.Database, dc.Logger)
	if err != nil {
		return nil, err
	}

	err = retry.RetryWithCallback(ctx, retry.DefaultPolicy(), func() error {
		return pool.Connect(ctx)
	}, func(attempt int, err error, nextDelay time.Duration) {
		dc.Logger.Warnw("Database connect failed, retrying",
			"attempt", attempt,
			"error", err,
			"next_delay", nextDelay,
		)
	})
	if err != nil {
		return nil, err
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.Up(pool.DB(), pool.Driver(), dc.Config.Database.MigrationsPath); err != nil {
			pool.Close()
			return nil, err
		}
		dc.Logger.Info("Database migrations applied")
	}

	return pool, nil
}

func (dc *DatabaseConnector) RegisterHealth(registry *health.CheckerRegistry, pool *dbpool.Pool, rdb *redis.Client) {
	if pool != nil {
		registry.Register(health.NewSQLChecker(pool))
	}
	if rdb != nil {
		registry.RegisterOptional(health.NewRedisChecker(rdb))
	}
}

func (dc *DatabaseConnector) ShutdownDatabases(rdb *redis.Client, pool *dbpool.Pool) []error {
	var errs []error

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if pool != nil {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close error: %w", pool.Driver(), err))
		}
	}

	return errs
}
