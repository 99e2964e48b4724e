package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"filterchain/internal/broker"
	"filterchain/internal/config"
	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/internal/reload"
	"filterchain/internal/stage"
	"filterchain/pkg/health"
	"filterchain/pkg/logging"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
	"filterchain/pkg/queue"
	"filterchain/pkg/tracing"
)

// Base is the part of a filter stage service that does not depend on its
// hook: publishers, receivers, the admission stage, the HTTP endpoints and
// config hot reload.
type Base struct {
	Service    string
	Config     *config.Config
	Logger     logger.Logger
	Limits     *stage.Limits
	Next       *broker.PublisherPool
	Result     *broker.PublisherPool
	Subscriber broker.Subscriber
	Stage      *stage.Stage
	Health     *health.CheckerRegistry
	Reload     *reload.Handler

	tracerProvider *tracing.TracerProvider
	server         *http.Server
	configEvents   broker.Subscriber
}

func NewBase(service string, cfg *config.Config, log logger.Logger) *Base {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(service)
	}
	return &Base{
		Service: service,
		Config:  cfg,
		Logger:  log,
		Limits:  stage.NewLimits(cfg.Discard),
		Health:  health.NewCheckerRegistry(),
		Reload:  reload.NewHandler(service, log),
	}
}

func (b *Base) InitTracing() error {
	tp, err := tracing.Init(b.Config.Tracing, b.Service)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	b.tracerProvider = tp
	return nil
}

func RegisterMetrics(circuitBreaker bool) {
	metrics.RegisterStageMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterDatabaseMetrics()
	if circuitBreaker {
		metrics.RegisterCircuitBreakerMetrics()
	}
}

func (b *Base) InitBroker() error {
	next, result, err := broker.NewPublishers(b.Service, b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create publishers: %w", err)
	}

	sub, err := broker.NewSubscriber(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	sub.SetServiceName(b.Service)

	b.Next = next
	b.Result = result
	b.Subscriber = sub

	if b.Config.Broker.Kafka.ConfigUpdateTopic != "" {
		b.configEvents = reload.NewSubscriber(b.Service, b.Config.Broker.Kafka, b.Logger)
	}
	return nil
}

// InitStage builds the admission stage around hook. It must follow
// InitBroker.
func (b *Base) InitStage(hook stage.Hook) {
	w := b.Config.Broker.Kafka.Receiver.Worker

	// a nil *PublisherPool would be a non-nil interface
	var next broker.Publisher
	if b.Next != nil {
		next = b.Next
	}

	b.Stage = stage.New(stage.Config{
		Name:         b.Service,
		Workers:      w.Num,
		QueueSize:    w.QueueSize,
		Mode:         queue.ParseMode(w.Mode),
		LockOSThread: w.LockOSThread,
	}, hook, b.Limits, next, b.Result, b.Logger)

	b.Health.Register(health.NewStageChecker(b.Service, b.Stage.Running))
	b.Reload.On(models.EventTypeLimitsUpdated, reload.ReloaderFunc(b.reloadLimits))
}

func (b *Base) InitHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", b.Health.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	b.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", b.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  b.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: b.Config.Server.WriteTimeoutSeconds * time.Second,
	}
}

// Start brings the outputs up before the stage so that nothing the stage
// publishes is lost.
func (b *Base) Start() error {
	if b.Next != nil {
		if err := b.Next.Start(); err != nil {
			return fmt.Errorf("failed to start next publishers: %w", err)
		}
	}
	if err := b.Result.Start(); err != nil {
		return fmt.Errorf("failed to start result publishers: %w", err)
	}
	return b.Stage.Start()
}

// Run starts the HTTP server, the receivers, the config topic consumer and
// the config file watcher on g.
func (b *Base) Run(ctx context.Context, g *errgroup.Group) {
	runCtx := logging.WithServiceName(ctx, b.Service)

	if b.server != nil {
		g.Go(func() error {
			b.Logger.InfowCtx(runCtx, "HTTP server starting", "port", b.Config.Server.Port)
			if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return b.Subscriber.SubscribeGroup(ctx, b.Stage.Push)
	})

	if b.configEvents != nil {
		g.Go(func() error {
			b.Logger.InfowCtx(runCtx, "Starting config update event consumer",
				"topic", b.Config.Broker.Kafka.ConfigUpdateTopic,
			)
			return b.configEvents.SubscribeGroup(ctx, b.Reload.Handle)
		})
	}

	g.Go(func() error {
		err := config.Watch(ctx, b.applyConfig, func(err error) {
			b.Logger.WarnwCtx(runCtx, "Ignoring invalid config change", "error", err)
		})
		if err != nil {
			b.Logger.WarnwCtx(runCtx, "Config file watch disabled", "error", err)
		}
		return nil
	})
}

func (b *Base) reloadLimits(ctx context.Context) error {
	cfg, err := config.Reload()
	if err != nil {
		return err
	}
	b.applyConfig(cfg)
	return nil
}

func (b *Base) applyConfig(cfg *config.Config) {
	b.Limits.Store(cfg.Discard)
	b.Logger.Infow("Discard limits updated",
		"timeout_ms", cfg.Discard.TimeoutMs,
		"queue_size", cfg.Discard.QueueSize,
		"enqueue_tps", cfg.Discard.EnqueueTPS,
		"dequeue_tps", cfg.Discard.DequeueTPS,
	)
}

// Shutdown stops the receivers, drains the stage, then flushes the result
// and next publishers, in that order.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error

	if b.Subscriber != nil {
		if err := b.Subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("subscriber close error: %w", err))
		}
	}
	if b.configEvents != nil {
		if err := b.configEvents.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config subscriber close error: %w", err))
		}
	}

	if b.Stage != nil {
		b.Stage.Stop()
	}

	if b.Result != nil {
		if err := b.Result.Close(); err != nil {
			errs = append(errs, fmt.Errorf("result publisher close error: %w", err))
		}
	}
	if b.Next != nil {
		if err := b.Next.Close(); err != nil {
			errs = append(errs, fmt.Errorf("next publisher close error: %w", err))
		}
	}

	if b.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
