package broker

import (
	"fmt"

	"filterchain/internal/config"
	"filterchain/internal/logger"
)

func NewSubscriber(cfg config.BrokerConfig, log logger.Logger) (Subscriber, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaSubscriber(cfg.Kafka.Receiver, cfg.Kafka.Retry, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NewPublishers builds the next-stage and result pools. next is nil when the
// stage is the last one in the chain.
func NewPublishers(service string, cfg config.BrokerConfig, log logger.Logger) (next, result *PublisherPool, err error) {
	switch cfg.Type {
	case "kafka":
	default:
		return nil, nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}

	if cfg.Kafka.Next.Topic != "" {
		next = NewPublisherPool(service, cfg.Kafka.Next, log)
	}
	result = NewPublisherPool(service, cfg.Kafka.Result, log)
	return next, result, nil
}
