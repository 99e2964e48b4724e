package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"filterchain/internal/config"
	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/pkg/logging"
	"filterchain/pkg/metrics"
	"filterchain/pkg/queue"
	"filterchain/pkg/retry"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ReaderFactory func(cfg kafka.ReaderConfig) messageReader

func kafkaReaderFactory(cfg kafka.ReaderConfig) messageReader {
	return kafka.NewReader(cfg)
}

// KafkaSubscriber runs cfg.Num group members against one topic. Kafka
// assigns partitions across members, the same way a queue group shares
// subjects between subscribers.
type KafkaSubscriber struct {
	cfg         config.ReceiverConfig
	retry       config.RetryConfig
	newReader   ReaderFactory
	logger      logger.Logger
	serviceName string

	mu      sync.Mutex
	readers []messageReader
	wg      sync.WaitGroup
}

func NewKafkaSubscriber(cfg config.ReceiverConfig, retryCfg config.RetryConfig, log logger.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{
		cfg:         cfg,
		retry:       retryCfg,
		newReader:   kafkaReaderFactory,
		logger:      log,
		serviceName: "unknown",
	}
}

func (s *KafkaSubscriber) SetServiceName(name string) {
	s.serviceName = name
}

func (s *KafkaSubscriber) Group() string {
	return s.cfg.Group
}

// SubscribeGroup blocks until ctx is cancelled or every member has stopped.
// A member stops when the handler returns queue.ErrClosed.
func (s *KafkaSubscriber) SubscribeGroup(ctx context.Context, handler HandlerFunc) error {
	n := s.cfg.Num
	if n < 1 {
		n = 1
	}

	s.logger.Infow("Creating Kafka readers",
		"topic", s.cfg.Topic,
		"brokers", s.cfg.Brokers,
		"group", s.cfg.Group,
		"readers", n,
		"service_name", s.serviceName,
	)

	s.mu.Lock()
	for i := 0; i < n; i++ {
		r := s.newReader(kafka.ReaderConfig{
			Brokers:  s.cfg.Brokers,
			GroupID:  s.cfg.Group,
			Topic:    s.cfg.Topic,
			MinBytes: constants.KafkaMinBytes,
			MaxBytes: constants.KafkaMaxBytes,
			MaxWait:  constants.KafkaMaxWait,
		})
		s.readers = append(s.readers, r)
		s.wg.Add(1)
		go s.consume(ctx, i+1, r, handler)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *KafkaSubscriber) consume(ctx context.Context, ordinal int, r messageReader, handler HandlerFunc) {
	defer s.wg.Done()

	consumeCtx := logging.WithServiceName(ctx, s.serviceName)
	s.logger.InfowCtx(consumeCtx, "Started consuming",
		"topic", s.cfg.Topic,
		"reader", ordinal,
	)

	policy := retry.PolicyFromConfig(s.retry)
	fetchBackoff := retry.ExponentialBackoff(policy.InitialInterval, policy.MaxInterval, policy.Multiplier)

	for {
		start := time.Now()
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				reason := "reader closed"
				if ctx.Err() != nil {
					reason = "context canceled"
				}
				s.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", s.cfg.Topic,
					"reader", ordinal,
					"reason", reason,
				)
				return
			}
			delay := fetchBackoff.NextBackOff()
			if delay == backoff.Stop {
				delay = policy.MaxInterval
			}
			metrics.RetryAttemptsTotal.WithLabelValues(s.serviceName, s.cfg.Topic).Inc()
			s.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", s.cfg.Topic,
				"next_delay", delay,
			)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		fetchBackoff.Reset()

		metrics.ObserveKafkaReadDuration(s.serviceName, m.Topic, time.Since(start))
		metrics.IncKafkaMessagesRead(s.serviceName, m.Topic)
		metrics.ObserveKafkaMessageSize(s.serviceName, m.Topic, "in", len(m.Value))

		env := Envelope{
			Subject:    m.Topic,
			Key:        m.Key,
			Payload:    m.Value,
			Headers:    m.Headers,
			ReceivedAt: time.Now(),
			Partition:  m.Partition,
			Offset:     m.Offset,
		}

		if err := handler(consumeCtx, env); err != nil {
			if errors.Is(err, queue.ErrClosed) {
				// not committed, redelivered after the group rebalances
				s.logger.InfowCtx(consumeCtx, "Handler closed, stopping reader",
					"topic", s.cfg.Topic,
					"reader", ordinal,
				)
				return
			}
			s.logger.ErrorwCtx(consumeCtx, "Handler failed",
				"error", err,
				"topic", s.cfg.Topic,
				"offset", m.Offset,
			)
		}

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			s.logger.ErrorwCtx(consumeCtx, "Failed to commit message",
				"error", err,
				"topic", s.cfg.Topic,
			)
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	readers := s.readers
	s.readers = nil
	s.mu.Unlock()

	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader: %w", err))
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
