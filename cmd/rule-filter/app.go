package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/internal/rules"
	"filterchain/pkg/bootstrap"
	"filterchain/pkg/dbpool"
	"filterchain/pkg/logging"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
)

const serviceName = models.ServiceTypeRuleFilter

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *dbpool.Pool
	service     *rules.Service
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

	bootstrap.RegisterMetrics(false)
	metrics.RegisterRuleMetrics()

	db, err := a.dbConnector.InitSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	if err := a.initService(ctx, rules.NewRepository(a.db, serviceName)); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.InitStage(rules.NewHook(a.service))
	a.Reload.On(models.EventTypeFilterRulesUpdated, a.service)

	a.dbConnector.RegisterHealth(a.Health, a.db, nil)
	a.InitHTTPServer()
	return nil
}

// initService loads the rule set once; a stage without rules would forward
// everything, so a failed first load aborts startup.
func (a *App) initService(ctx context.Context, repo rules.Repository) error {
	svc, err := rules.NewService(repo, a.Config.Rules, a.Logger)
	if err != nil {
		return err
	}

	if err := svc.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load initial rules: %w", err)
	}

	a.service = svc
	return nil
}

// Run blocks until ctx is done or a component fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	a.Base.Run(gCtx, g)

	g.Go(func() error {
		return a.service.StartReloader(gCtx)
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
	a.Logger.InfowCtx(shutdownCtx, "Shutting down rule filter")

	return a.Base.Shutdown(shutdownCtx, func(context.Context) []error {
		return a.dbConnector.ShutdownDatabases(nil, a.db)
	})
}
