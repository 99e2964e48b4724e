package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"filterchain/internal/config"
	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/pkg/metrics"
	"filterchain/pkg/queue"
	"filterchain/pkg/toggle"
	"filterchain/pkg/tracing"
	"filterchain/pkg/worker"
)

var ErrPublisherClosed = errors.New("publisher closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher owns one writer and one queue drained by its own worker.
type KafkaPublisher struct {
	topic   string
	service string
	writer  messageWriter
	worker  *worker.Worker[kafka.Message]
	failing toggle.Toggle
	logger  logger.Logger
}

func newKafkaPublisher(ordinal int, service string, cfg config.PublisherConfig, w messageWriter, log logger.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		topic:   cfg.Topic,
		service: service,
		writer:  w,
		logger:  log.With("topic", cfg.Topic, "publisher", ordinal),
	}
	p.worker = worker.NewBatch[kafka.Message](ordinal, cfg.QueueSize, cfg.BatchSize, p.write)
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: tracing.InjectTraceContext(ctx, nil),
		Time:    time.Now(),
	}

	err := p.worker.Push(msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrClosed):
		return ErrPublisherClosed
	default:
		metrics.IncPublisherError(p.topic, "queue_full")
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
}

func (p *KafkaPublisher) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.KafkaWriteTimeout)
	defer cancel()

	start := time.Now()
	err := p.writer.WriteMessages(ctx, batch...)
	metrics.ObserveKafkaWriteDuration(p.service, p.topic, time.Since(start))

	if err != nil {
		metrics.IncPublisherError(p.topic, "write")
		if p.failing.TurnOn() {
			p.logger.Errorw("Failed to write kafka messages",
				"error", err,
				"batch", len(batch),
			)
		}
		return
	}

	if p.failing.TurnOff() {
		p.logger.Infow("Kafka writes recovered")
	}
	metrics.AddKafkaMessagesWritten(p.service, p.topic, len(batch))
	for _, m := range batch {
		metrics.ObserveKafkaMessageSize(p.service, p.topic, "out", len(m.Value))
	}
}

func (p *KafkaPublisher) Start() error {
	return p.worker.Start()
}

// Close flushes queued messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.worker.Stop()
	return p.writer.Close()
}

func (p *KafkaPublisher) Size() int64 {
	return p.worker.Size()
}

// PublisherPool spreads publishes round-robin over its members.
type PublisherPool struct {
	topic      string
	publishers []*KafkaPublisher
	next       atomic.Uint64
	closeOnce  sync.Once
	closeErr   error
}

type WriterFactory func(cfg config.PublisherConfig) messageWriter

func kafkaWriterFactory(cfg config.PublisherConfig) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		BatchSize:    cfg.BatchSize,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
}

func NewPublisherPool(service string, cfg config.PublisherConfig, log logger.Logger) *PublisherPool {
	return newPublisherPool(service, cfg, kafkaWriterFactory, log)
}

func newPublisherPool(service string, cfg config.PublisherConfig, newWriter WriterFactory, log logger.Logger) *PublisherPool {
	n := cfg.Num
	if n < 1 {
		n = 1
	}

	pool := &PublisherPool{topic: cfg.Topic}
	for i := 1; i <= n; i++ {
		pool.publishers = append(pool.publishers, newKafkaPublisher(i, service, cfg, newWriter(cfg), log))
	}
	return pool
}

func (pp *PublisherPool) Start() error {
	for _, p := range pp.publishers {
		if err := p.Start(); err != nil {
			return fmt.Errorf("start publisher for %s: %w", pp.topic, err)
		}
	}
	return nil
}

func (pp *PublisherPool) Publish(ctx context.Context, key string, payload []byte) error {
	i := pp.next.Add(1) - 1
	return pp.publishers[i%uint64(len(pp.publishers))].Publish(ctx, key, payload)
}

func (pp *PublisherPool) Close() error {
	pp.closeOnce.Do(func() {
		var errs []error
		for _, p := range pp.publishers {
			if err := p.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		pp.closeErr = errors.Join(errs...)
	})
	return pp.closeErr
}

func (pp *PublisherPool) Topic() string {
	return pp.topic
}

func (pp *PublisherPool) Sizes() []int64 {
	sizes := make([]int64, len(pp.publishers))
	for i, p := range pp.publishers {
		sizes[i] = p.Size()
	}
	return sizes
}
