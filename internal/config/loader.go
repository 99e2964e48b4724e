package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	EnvConfigPath = "FILTERCHAIN_CONFIG_PATH"
	EnvDevLocal   = "FILTERCHAIN_DEV_LOCAL"

	ProdConfigName = "app.json"
	DevConfigName  = "dev.json"
)

var (
	ErrNoConfigPath = errors.New("no config file given and " + EnvConfigPath + " is not set")
	ErrNotLoaded    = errors.New("config file not loaded")
)

// mu guards the global viper instance, which is not safe for concurrent use.
var mu sync.Mutex

// ResolvePath picks the config file. An explicit path wins; otherwise the
// file is app.json (dev.json when FILTERCHAIN_DEV_LOCAL is set) inside the
// directory named by FILTERCHAIN_CONFIG_PATH.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	dir := os.Getenv(EnvConfigPath)
	if dir == "" {
		return "", ErrNoConfigPath
	}

	name := ProdConfigName
	if os.Getenv(EnvDevLocal) != "" {
		name = DevConfigName
	}
	return filepath.Join(dir, name), nil
}

func LoadConfig(configFile string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	viper.Reset()

	viper.SetConfigType(configType(configFile))
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return decode()
}

// Reload re-reads the file last opened by LoadConfig.
func Reload() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", viper.ConfigFileUsed(), err)
	}
	return decode()
}

// Watch re-reads the config file whenever it changes and hands every valid
// result to onChange. Invalid edits are reported through onError and ignored.
// It returns when ctx is done.
func Watch(ctx context.Context, onChange func(*Config), onError func(error)) error {
	mu.Lock()
	file := viper.ConfigFileUsed()
	mu.Unlock()
	if file == "" {
		return ErrNotLoaded
	}
	file = filepath.Clean(file)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer w.Close()

	// editors replace the file, so watch its directory
	if err := w.Add(filepath.Dir(file)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", file, err)
	}

	report := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != file || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Reload()
			if err != nil {
				report(err)
				continue
			}
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			report(fmt.Errorf("config watcher: %w", err))
		}
	}
}

func decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func configType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 10)
	viper.SetDefault("server.write_timeout_seconds", 10)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.table_check_period_ms", 1000)
	viper.SetDefault("database.pool.reconnect_interval", "1s")
	viper.SetDefault("database.redis.ttl_seconds", 60)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.receiver.num", 1)
	viper.SetDefault("broker.kafka.receiver.worker.num", 4)
	viper.SetDefault("broker.kafka.receiver.worker.queue_size", 1000)
	viper.SetDefault("broker.kafka.receiver.worker.mode", "signaled")
	viper.SetDefault("broker.kafka.next.num", 1)
	viper.SetDefault("broker.kafka.next.queue_size", 1000)
	viper.SetDefault("broker.kafka.next.batch_size", 100)
	viper.SetDefault("broker.kafka.result.num", 1)
	viper.SetDefault("broker.kafka.result.queue_size", 1000)
	viper.SetDefault("broker.kafka.result.batch_size", 100)
	viper.SetDefault("broker.kafka.retry.max_attempts", 3)
	viper.SetDefault("broker.kafka.retry.initial_interval", "100ms")
	viper.SetDefault("broker.kafka.retry.max_interval", "5s")
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)

	viper.SetDefault("discard.timeout_ms", 3000)
	viper.SetDefault("discard.queue_size", 1000)
	viper.SetDefault("discard.enqueue_tps", 1000)
	viper.SetDefault("discard.dequeue_tps", 1000)

	viper.SetDefault("rules.reload.interval_seconds", 30)
	viper.SetDefault("rules.reload.jitter_max_ms", 0)
	viper.SetDefault("rules.fallback.on_error", "error")
}

func bindEnvVariables() {
	viper.BindEnv("system_id", "SYSTEM_ID")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.receiver.topic", "BROKER_KAFKA_RECEIVER_TOPIC")
	viper.BindEnv("broker.kafka.receiver.group", "BROKER_KAFKA_RECEIVER_GROUP")
	viper.BindEnv("broker.kafka.next.topic", "BROKER_KAFKA_NEXT_TOPIC")
	viper.BindEnv("broker.kafka.result.topic", "BROKER_KAFKA_RESULT_TOPIC")
	viper.BindEnv("broker.kafka.config_update_topic", "BROKER_KAFKA_CONFIG_UPDATE_TOPIC")

	viper.BindEnv("database.driver", "DATABASE_DRIVER")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("discard.timeout_ms", "DISCARD_TIMEOUT_MS")
	viper.BindEnv("discard.queue_size", "DISCARD_QUEUE_SIZE")
	viper.BindEnv("discard.enqueue_tps", "DISCARD_ENQUEUE_TPS")
	viper.BindEnv("discard.dequeue_tps", "DISCARD_DEQUEUE_TPS")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := splitList(brokersEnv)
		if len(brokers) > 0 {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if urls := viper.GetString("DATABASE_SQL_URLS"); urls != "" {
		cfg.Database.SQL = cfg.Database.SQL[:0]
		for _, u := range splitList(urls) {
			cfg.Database.SQL = append(cfg.Database.SQL, SQLConfig{URL: u})
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	// receivers and publishers fall back to the shared broker list
	k := &cfg.Broker.Kafka
	if len(k.Receiver.Brokers) == 0 {
		k.Receiver.Brokers = k.Brokers
	}
	if len(k.Next.Brokers) == 0 {
		k.Next.Brokers = k.Brokers
	}
	if len(k.Result.Brokers) == 0 {
		k.Result.Brokers = k.Brokers
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
