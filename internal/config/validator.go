package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateDiscard(cfg.Discard); err != nil {
		errors = append(errors, err)
	}

	if err := validateRules(cfg.Rules); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	switch cfg.Type {
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if err := validateBrokerList("broker.kafka.receiver.brokers", cfg.Receiver.Brokers); err != nil {
		return err
	}

	if cfg.Receiver.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.receiver.topic",
			Message: "receiver topic is required",
		}
	}

	if cfg.Receiver.Group == "" {
		return &ValidationError{
			Field:   "broker.kafka.receiver.group",
			Message: "Kafka consumer group is required",
		}
	}

	if cfg.Receiver.Num < 1 {
		return &ValidationError{
			Field:   "broker.kafka.receiver.num",
			Message: "at least one receiver is required",
		}
	}

	if cfg.Receiver.Worker.Num < 1 {
		return &ValidationError{
			Field:   "broker.kafka.receiver.worker.num",
			Message: "at least one worker is required",
		}
	}

	if cfg.Receiver.Worker.QueueSize < 1 {
		return &ValidationError{
			Field:   "broker.kafka.receiver.worker.queue_size",
			Message: "queue_size must be positive",
		}
	}

	switch strings.ToLower(cfg.Receiver.Worker.Mode) {
	case "", "signaled", "spinning", "adaptive":
	default:
		return &ValidationError{
			Field:   "broker.kafka.receiver.worker.mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: signaled, spinning)", cfg.Receiver.Worker.Mode),
		}
	}

	if err := validatePublisher("broker.kafka.result", cfg.Result); err != nil {
		return err
	}

	// a terminal stage has no next topic
	if cfg.Next.Topic != "" {
		if err := validatePublisher("broker.kafka.next", cfg.Next); err != nil {
			return err
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validatePublisher(prefix string, cfg PublisherConfig) error {
	if err := validateBrokerList(prefix+".brokers", cfg.Brokers); err != nil {
		return err
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   prefix + ".topic",
			Message: "topic is required",
		}
	}

	if cfg.Num < 1 {
		return &ValidationError{
			Field:   prefix + ".num",
			Message: "at least one publisher is required",
		}
	}

	if cfg.QueueSize < 1 {
		return &ValidationError{
			Field:   prefix + ".queue_size",
			Message: "queue_size must be positive",
		}
	}

	return nil
}

func validateBrokerList(field string, brokers []string) error {
	if len(brokers) == 0 {
		return &ValidationError{
			Field:   field,
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "broker address cannot be empty",
			}
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	switch cfg.Driver {
	case "postgres", "mysql":
	default:
		return &ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unknown driver: %s (supported: postgres, mysql)", cfg.Driver),
		}
	}

	for i, db := range cfg.SQL {
		if db.URL == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("database.sql[%d].url", i),
				Message: "database URL cannot be empty",
			}
		}
	}

	if cfg.TableCheckPeriodMs < 0 {
		return &ValidationError{
			Field:   "database.table_check_period_ms",
			Message: "table check period must be non-negative",
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "database.redis.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

func validateDiscard(cfg DiscardConfig) error {
	if cfg.TimeoutMs == 0 {
		return &ValidationError{
			Field:   "discard.timeout_ms",
			Message: "timeout must be positive",
		}
	}

	if cfg.EnqueueTPS == 0 {
		return &ValidationError{
			Field:   "discard.enqueue_tps",
			Message: "enqueue TPS limit must be positive",
		}
	}

	if cfg.DequeueTPS == 0 {
		return &ValidationError{
			Field:   "discard.dequeue_tps",
			Message: "dequeue TPS limit must be positive",
		}
	}

	return nil
}

func validateRules(cfg RulesConfig) error {
	validOnError := map[string]bool{
		"allow": true, "deny": true, "error": true,
	}
	if cfg.Fallback.OnError != "" && !validOnError[strings.ToLower(cfg.Fallback.OnError)] {
		return &ValidationError{
			Field:   "rules.fallback.on_error",
			Message: fmt.Sprintf("invalid on_error value: %s (valid: allow, deny, error)", cfg.Fallback.OnError),
		}
	}

	if cfg.Reload.IntervalSeconds < 0 {
		return &ValidationError{
			Field:   "rules.reload.interval_seconds",
			Message: "reload interval must be non-negative",
		}
	}

	return nil
}
