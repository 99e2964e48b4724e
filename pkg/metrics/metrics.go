package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StageMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_messages_total",
			Help: "Total number of messages seen by a filter stage, by outcome (count)",
		},
		[]string{"stage", "outcome"},
	)

	StageDiscardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_discards_total",
			Help: "Total number of messages discarded by admission control (count)",
		},
		[]string{"stage", "reason"},
	)

	StageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stage_processing_duration_ms",
			Help:    "Time from receipt to publish for a filter stage in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"stage", "route"},
	)

	StageTPS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stage_tps",
			Help: "Messages per second over the last second (rate)",
		},
		[]string{"stage", "direction"},
	)

	WorkerQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_queue_size",
			Help: "Approximate number of messages queued on a worker (count)",
		},
		[]string{"stage", "worker"},
	)

	MessageQueueWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_queue_wait_duration_ms",
			Help:    "Duration messages wait in queue before processing in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"stage"},
	)

	PublisherErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_errors_total",
			Help: "Total number of failed publishes, including queue-full drops (count)",
		},
		[]string{"topic", "reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of filter rule evaluations (count)",
		},
		[]string{"rule_id", "rule_name", "result"},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "filter_active_rules",
			Help: "Number of active filter rules (count)",
		},
	)

	TrapListSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trap_list_size",
			Help: "Number of trapped destination numbers currently loaded (count)",
		},
	)

	TrapListReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trap_list_reloads_total",
			Help: "Total number of trap list refresh attempts (count)",
		},
		[]string{"status"},
	)

	CustomerCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customer_cache_requests_total",
			Help: "Total number of customer cache lookups (count)",
		},
		[]string{"result"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	DatabaseReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_reconnects_total",
			Help: "Total number of database reconnect attempts (count)",
		},
		[]string{"status"},
	)
)

func RegisterStageMetrics() {
	prometheus.MustRegister(StageMessagesTotal)
	prometheus.MustRegister(StageDiscardsTotal)
	prometheus.MustRegister(StageProcessingDuration)
	prometheus.MustRegister(StageTPS)
	prometheus.MustRegister(WorkerQueueSize)
	prometheus.MustRegister(MessageQueueWaitDuration)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterAuthMetrics() {
	prometheus.MustRegister(TrapListSize)
	prometheus.MustRegister(TrapListReloadsTotal)
	prometheus.MustRegister(CustomerCacheRequestsTotal)
}

func RegisterRuleMetrics() {
	prometheus.MustRegister(RuleEvaluationsTotal)
	prometheus.MustRegister(ActiveRules)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(PublisherErrorsTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterDatabaseMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(DatabaseReconnectsTotal)
}

func IncStageMessage(stage, outcome string) {
	StageMessagesTotal.WithLabelValues(stage, outcome).Inc()
}

func IncStageDiscard(stage, reason string) {
	StageDiscardsTotal.WithLabelValues(stage, reason).Inc()
}

func ObserveStageDuration(stage, route string, duration time.Duration) {
	StageProcessingDuration.WithLabelValues(stage, route).Observe(float64(duration.Milliseconds()))
}

func SetStageTPS(stage, direction string, tps int) {
	StageTPS.WithLabelValues(stage, direction).Set(float64(tps))
}

func SetWorkerQueueSize(stage string, worker int, size int64) {
	WorkerQueueSize.WithLabelValues(stage, fmt.Sprintf("%d", worker)).Set(float64(size))
}

func ObserveMessageQueueWaitDuration(stage string, duration time.Duration) {
	MessageQueueWaitDuration.WithLabelValues(stage).Observe(float64(duration.Milliseconds()))
}

func IncPublisherError(topic, reason string) {
	PublisherErrorsTotal.WithLabelValues(topic, reason).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func AddKafkaMessagesWritten(service, topic string, n int) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Add(float64(n))
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncRuleEvaluation(ruleID, ruleName, result string) {
	RuleEvaluationsTotal.WithLabelValues(ruleID, ruleName, result).Inc()
}

func SetActiveRules(count int) {
	ActiveRules.Set(float64(count))
}

func SetTrapListSize(size int) {
	TrapListSize.Set(float64(size))
}

func IncTrapListReload(status string) {
	TrapListReloadsTotal.WithLabelValues(status).Inc()
}

func IncCustomerCache(result string) {
	CustomerCacheRequestsTotal.WithLabelValues(result).Inc()
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseReconnect(status string) {
	DatabaseReconnectsTotal.WithLabelValues(status).Inc()
}
