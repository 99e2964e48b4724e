package config

import (
	"time"
)

type Config struct {
	SystemID       string               `mapstructure:"system_id"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Discard        DiscardConfig        `mapstructure:"discard"`
	Rules          RulesConfig          `mapstructure:"rules"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver             string      `mapstructure:"driver"` // "postgres" or "mysql"
	SQL                []SQLConfig `mapstructure:"sql"`
	Pool               PoolConfig  `mapstructure:"pool"`
	Redis              RedisConfig `mapstructure:"redis"`
	RunMigrations      bool        `mapstructure:"run_migrations"`
	MigrationsPath     string      `mapstructure:"migrations_path"`
	TableCheckPeriodMs int         `mapstructure:"table_check_period_ms"`
}

// SQLConfig is one candidate database. User and Password override whatever
// credentials the URL carries.
type SQLConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PoolConfig struct {
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers           []string        `mapstructure:"brokers"`
	Receiver          ReceiverConfig  `mapstructure:"receiver"`
	Next              PublisherConfig `mapstructure:"next"`
	Result            PublisherConfig `mapstructure:"result"`
	ConfigUpdateTopic string          `mapstructure:"config_update_topic"`
	Retry             RetryConfig     `mapstructure:"retry"`
}

type ReceiverConfig struct {
	Brokers []string     `mapstructure:"brokers"`
	Topic   string       `mapstructure:"topic"`
	Group   string       `mapstructure:"group"`
	Num     int          `mapstructure:"num"`
	Worker  WorkerConfig `mapstructure:"worker"`
}

type WorkerConfig struct {
	Num          int    `mapstructure:"num"`
	QueueSize    int    `mapstructure:"queue_size"`
	Mode         string `mapstructure:"mode"` // "signaled" or "spinning"
	LockOSThread bool   `mapstructure:"lock_os_thread"`
}

type PublisherConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Num       int      `mapstructure:"num"`
	QueueSize int      `mapstructure:"queue_size"`
	BatchSize int      `mapstructure:"batch_size"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DiscardConfig holds the admission limits. All four are hot-reloadable.
type DiscardConfig struct {
	TimeoutMs  uint32 `mapstructure:"timeout_ms"`
	QueueSize  uint32 `mapstructure:"queue_size"`
	EnqueueTPS uint32 `mapstructure:"enqueue_tps"`
	DequeueTPS uint32 `mapstructure:"dequeue_tps"`
}

type RulesConfig struct {
	Reload   ReloadConfig   `mapstructure:"reload"`
	Fallback FallbackConfig `mapstructure:"fallback"`
}

type FallbackConfig struct {
	OnError string `mapstructure:"on_error"` // "allow", "deny", "error" (default: "error")
}

type ReloadConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	JitterMaxMilliseconds int `mapstructure:"jitter_max_ms"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
