package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"filterchain/internal/auth"
	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/pkg/bootstrap"
	"filterchain/pkg/dbpool"
	"filterchain/pkg/logging"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
)

const serviceName = models.ServiceTypeAuthFilter

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *dbpool.Pool
	rdb         *redis.Client
	traps       *auth.TrapList
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(serviceName, cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(); err != nil {
		return err
	}

	bootstrap.RegisterMetrics(a.Config.CircuitBreaker.Enabled)
	metrics.RegisterAuthMetrics()

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	hook, err := a.newHook(ctx, auth.NewTrapRepository(a.db, serviceName), a.customerRepository())
	if err != nil {
		return fmt.Errorf("failed to load trap list: %w", err)
	}
	a.InitStage(hook)
	a.Reload.On(models.EventTypeTrapListUpdated, a.traps)

	a.dbConnector.RegisterHealth(a.Health, a.db, a.rdb)
	a.InitHTTPServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis unavailable, customer cache disabled", "error", err)
		return nil
	}
	a.rdb = rdb
	return nil
}

// newHook loads the trap list once before the stage starts. Without it every
// trap number would be forwarded as a known customer, so a failure here
// aborts startup.
func (a *App) newHook(ctx context.Context, repo auth.TrapRepository, customers auth.CustomerRepository) (*auth.Hook, error) {
	traps := auth.NewTrapList(repo, a.Config.Database.TableCheckPeriodMs, a.Logger)
	if err := traps.Reload(ctx); err != nil {
		return nil, err
	}
	a.traps = traps
	return auth.NewHook(traps, customers, a.Logger), nil
}

func (a *App) customerRepository() auth.CustomerRepository {
	var customers auth.CustomerRepository = auth.NewCircuitBreakerRepository(
		auth.NewCustomerRepository(a.db, serviceName),
		a.Config.CircuitBreaker,
	)
	if a.rdb != nil {
		customers = auth.NewCachedCustomerRepository(customers, a.rdb, a.Config.Database.Redis.TTLSeconds, a.Logger)
	}
	return customers
}

// Run blocks until ctx is done or a component fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	a.Base.Run(gCtx, g)

	g.Go(func() error {
		return a.traps.Run(gCtx)
	})

	g.Go(func() error {
		return a.db.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, serviceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down auth filter")

	return a.Base.Shutdown(shutdownCtx, func(context.Context) []error {
		return a.dbConnector.ShutdownDatabases(a.rdb, a.db)
	})
}
