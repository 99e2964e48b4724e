// Package stage wraps a filter hook with admission control: TPS limits,
// message age, a pool of bounded worker queues and result publishing.
package stage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"filterchain/internal/broker"
	"filterchain/internal/constants"
	"filterchain/internal/logger"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/logging"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
	"filterchain/pkg/queue"
	"filterchain/pkg/toggle"
	"filterchain/pkg/tps"
	"filterchain/pkg/tracing"
	"filterchain/pkg/worker"
)

// Hook is the business logic of a filter stage. It must publish the
// message through out, either as a result or to the next stage.
type Hook interface {
	Handle(ctx context.Context, out *Outlet, msg *models.FilterMessage) error
}

type HookFunc func(ctx context.Context, out *Outlet, msg *models.FilterMessage) error

func (f HookFunc) Handle(ctx context.Context, out *Outlet, msg *models.FilterMessage) error {
	return f(ctx, out, msg)
}

type Config struct {
	Name         string
	Workers      int
	QueueSize    int
	Mode         queue.Mode
	LockOSThread bool
}

type item struct {
	msg        *models.FilterMessage
	subject    string
	headers    []kafka.Header
	receivedAt time.Time
}

// member pushes with the bounded retry budget instead of failing on the
// first full queue.
type member struct {
	*worker.Worker[item]
}

func (m member) Push(it item) error {
	return m.TryEnqueue(it, worker.DefaultRetries)
}

type Stage struct {
	name   string
	hook   Hook
	limits *Limits
	in     *tps.Meter
	out    *tps.Meter
	next   broker.Publisher
	result broker.Publisher
	pool   *worker.Pool[item]
	now    func() time.Time
	logger logger.Logger

	running      atomic.Bool
	parseFailing toggle.Toggle
	inLog        rate.Sometimes
	outLog       rate.Sometimes
}

type Option func(*Stage)

// WithMeters replaces the ingress and egress meters.
func WithMeters(in, out *tps.Meter) Option {
	return func(s *Stage) {
		s.in = in
		s.out = out
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Stage) { s.now = now }
}

// New builds a stopped stage. next may be nil for the last stage in the
// chain; result is required.
func New(cfg Config, hook Hook, limits *Limits, next, result broker.Publisher, log logger.Logger, opts ...Option) *Stage {
	s := &Stage{
		name:   cfg.Name,
		hook:   hook,
		limits: limits,
		next:   next,
		result: result,
		pool:   worker.NewPool[item](),
		now:    time.Now,
		logger: log.With("stage", cfg.Name),
		inLog:  rate.Sometimes{Interval: constants.TPSLogInterval},
		outLog: rate.Sometimes{Interval: constants.TPSLogInterval},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.in == nil {
		s.in = tps.NewMeter(tps.WithClock(s.now))
	}
	if s.out == nil {
		s.out = tps.NewMeter(tps.WithClock(s.now))
	}

	workerOpts := []worker.Option{worker.WithMode(cfg.Mode)}
	if cfg.LockOSThread {
		workerOpts = append(workerOpts, worker.WithLockOSThread())
	}

	s.pool.Configure(cfg.Workers, cfg.QueueSize, func(ordinal, capacity int) worker.Member[item] {
		m := member{}
		m.Worker = worker.New[item](ordinal, capacity, func(it item) {
			s.process(ordinal, it)
			metrics.SetWorkerQueueSize(s.name, ordinal, m.Size())
		}, workerOpts...)
		return m
	})
	return s
}

func (s *Stage) Name() string {
	return s.name
}

func (s *Stage) Start() error {
	if err := s.pool.Start(); err != nil {
		s.pool.Stop()
		return fmt.Errorf("start stage %s: %w", s.name, err)
	}
	s.running.Store(true)
	s.logger.Infow("Stage started", "workers", s.pool.Len())
	return nil
}

// Stop closes every worker queue and returns once all queued messages have
// been handled.
func (s *Stage) Stop() {
	s.running.Store(false)
	s.pool.Stop()
	s.logger.Infow("Stage stopped")
}

// Push admits one received message. It returns queue.ErrClosed when the
// stage is not running; every other outcome, discards included, is nil.
func (s *Stage) Push(ctx context.Context, env broker.Envelope) error {
	receivedAt := env.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	msg, err := models.ParseFilterMessage(env.Payload)
	if err != nil {
		metrics.IncStageMessage(s.name, "parse_error")
		if s.parseFailing.TurnOn() {
			s.logger.Errorw("Failed to parse message",
				"error", err,
				"subject", env.Subject,
			)
		}
		return nil
	}
	if s.parseFailing.TurnOff() {
		s.logger.Infow("Message parsing recovered")
	}
	metrics.IncStageMessage(s.name, "received")

	it := item{msg: msg, subject: env.Subject, headers: env.Headers, receivedAt: receivedAt}

	current, limit := s.in.Current(), s.limits.IngressTPS()
	s.inLog.Do(func() {
		metrics.SetStageTPS(s.name, "in", current)
		s.logger.Infow("Ingress", "tps", current, "subject", env.Subject)
	})
	if current >= int(limit) {
		s.discard(ctx, it, models.DiscardEnqueueTPS, ratio(int64(current), limit))
		return nil
	}
	s.in.Add()

	err = s.pool.Dispatch(it)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, worker.ErrBusy):
		s.discard(ctx, it, models.DiscardQueueFull, ratio(minSize(s.pool.Sizes()), s.limits.QueueSize()))
		return nil
	case errors.Is(err, queue.ErrClosed):
		return queue.ErrClosed
	default:
		return fmt.Errorf("dispatch: %w", err)
	}
}

func (s *Stage) process(ordinal int, it item) {
	ctx, span := tracing.StartSpanFromHeaders(context.Background(), s.name+".process", it.headers)
	defer span.End()

	ctx = logging.WithWorker(ctx, ordinal)
	ctx = logging.WithMessageID(ctx, it.msg.MessageInfo.MessageID)

	metrics.ObserveMessageQueueWaitDuration(s.name, s.now().Sub(it.receivedAt))

	if s.discardEgress(ctx, it) || s.discardTimeout(ctx, it) {
		return
	}

	s.invoke(ctx, it)

	current := s.out.Add()
	s.outLog.Do(func() {
		metrics.SetStageTPS(s.name, "out", current)
		s.logger.Infow("Egress", "tps", current)
	})
}

func (s *Stage) discardEgress(ctx context.Context, it item) bool {
	current, limit := s.out.Current(), s.limits.EgressTPS()
	if current < int(limit) {
		return false
	}
	s.discard(ctx, it, models.DiscardDequeueTPS, ratio(int64(current), limit))
	return true
}

// discardTimeout measures age from the pipeline's first stage, not from
// this stage's receive time.
func (s *Stage) discardTimeout(ctx context.Context, it item) bool {
	elapsed := s.now().UnixMilli() - it.msg.ResultInfo.FilterStartTime
	limit := s.limits.MaxAgeMs()
	if elapsed < int64(limit) {
		return false
	}
	s.discard(ctx, it, models.DiscardTimeout, ratio(elapsed, limit))
	return true
}

func (s *Stage) invoke(ctx context.Context, it item) {
	out := &Outlet{stage: s, receivedAt: it.receivedAt}

	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			s.logger.ErrorwCtx(ctx, "Filter hook panicked", "error", err)
			s.fail(ctx, out, it.msg, err)
		}
	}()

	if err := s.hook.Handle(ctx, out, it.msg); err != nil {
		s.logger.ErrorwCtx(ctx, "Filter hook failed", "error", err)
		s.fail(ctx, out, it.msg, err)
		return
	}

	if !out.Published() {
		s.logger.WarnwCtx(ctx, "Filter hook did not publish the message")
	}
}

// fail publishes a system error result unless the hook already published.
func (s *Stage) fail(ctx context.Context, out *Outlet, msg *models.FilterMessage, cause error) {
	metrics.IncStageMessage(s.name, "error")
	if out.Published() {
		return
	}

	msg.ResultInfo.SpamPattern1 = truncate(cause.Error(), constants.DefaultTruncateLen)
	if err := out.ToResult(ctx, msg, models.SMPPResultHam, models.ResultCodeHamFail, apperrors.ReasonCode(cause)); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish error result", "error", err)
	}
}

func (s *Stage) discard(ctx context.Context, it item, reason int32, pattern string) {
	metrics.IncStageDiscard(s.name, models.ReasonName(reason))

	it.msg.ResultInfo.SpamPattern1 = pattern
	out := &Outlet{stage: s, receivedAt: it.receivedAt}
	if err := out.ToResult(ctx, it.msg, models.SMPPDiscard, models.ResultCodeHamFail, reason); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish discard result",
			"error", err,
			"reason", models.ReasonName(reason),
		)
		return
	}

	s.logger.DebugwCtx(ctx, "Message discarded",
		"reason", models.ReasonName(reason),
		"pattern", pattern,
		"subject", it.subject,
	)
}

func (s *Stage) Running() bool {
	return s.running.Load()
}

// QueueSizes reports the approximate depth of each worker queue.
func (s *Stage) QueueSizes() []int64 {
	return s.pool.Sizes()
}

func ratio(current int64, limit uint32) string {
	return strconv.FormatInt(current, 10) + "/" + strconv.FormatUint(uint64(limit), 10)
}

func minSize(sizes []int64) int64 {
	var least int64
	for i, size := range sizes {
		if i == 0 || size < least {
			least = size
		}
	}
	return least
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
