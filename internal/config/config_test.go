package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
  "system_id": "auth-01",
  "server": {"port": 9090},
  "logging": {"level": "debug"},
  "database": {
    "driver": "mysql",
    "sql": [{"url": "tcp(db1:3306)/cnaps", "user": "u", "password": "p"}, {"url": "tcp(db2:3306)/cnaps"}]
  },
  "broker": {
    "type": "kafka",
    "kafka": {
      "brokers": ["k1:9092", "k2:9092"],
      "receiver": {"topic": "filter.auth", "group": "auth-filter", "num": 2,
        "worker": {"num": 8, "queue_size": 500, "mode": "spinning"}},
      "next": {"topic": "filter.rule", "num": 2},
      "result": {"topic": "filter.result"}
    }
  },
  "discard": {"timeout_ms": 2500, "enqueue_tps": 300}
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "app.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "auth-01", cfg.SystemID)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	require.Len(t, cfg.Database.SQL, 2)
	assert.Equal(t, "u", cfg.Database.SQL[0].User)
	assert.Equal(t, 1000, cfg.Database.TableCheckPeriodMs)
	assert.Equal(t, time.Second, cfg.Database.Pool.ReconnectInterval)

	k := cfg.Broker.Kafka
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, k.Receiver.Brokers)
	assert.Equal(t, k.Brokers, k.Next.Brokers)
	assert.Equal(t, k.Brokers, k.Result.Brokers)
	assert.Equal(t, 2, k.Receiver.Num)
	assert.Equal(t, 8, k.Receiver.Worker.Num)
	assert.Equal(t, "spinning", k.Receiver.Worker.Mode)
	assert.Equal(t, 1000, k.Result.QueueSize)

	assert.EqualValues(t, 2500, cfg.Discard.TimeoutMs)
	assert.EqualValues(t, 300, cfg.Discard.EnqueueTPS)
	assert.EqualValues(t, 1000, cfg.Discard.DequeueTPS)
	assert.EqualValues(t, 1000, cfg.Discard.QueueSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("DATABASE_SQL_URLS", "postgres://x/db,postgres://y/db")
	t.Setenv("DISCARD_DEQUEUE_TPS", "42")

	cfg, err := LoadConfig(writeConfig(t, "app.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Broker.Kafka.Brokers)
	require.Len(t, cfg.Database.SQL, 2)
	assert.Equal(t, "postgres://y/db", cfg.Database.SQL[1].URL)
	assert.EqualValues(t, 42, cfg.Discard.DequeueTPS)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "app.json", `{"broker": {"type": "nats"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.type")
}

func TestResolvePath(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/etc/filterchain")
		path, err := ResolvePath("/tmp/x.json")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/x.json", path)
	})

	t.Run("env directory", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/etc/filterchain")
		t.Setenv(EnvDevLocal, "")
		path, err := ResolvePath("")
		require.NoError(t, err)
		assert.Equal(t, "/etc/filterchain/app.json", path)
	})

	t.Run("dev local", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/etc/filterchain")
		t.Setenv(EnvDevLocal, "1")
		path, err := ResolvePath("")
		require.NoError(t, err)
		assert.Equal(t, "/etc/filterchain/dev.json", path)
	})

	t.Run("nothing set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		_, err := ResolvePath("")
		assert.ErrorIs(t, err, ErrNoConfigPath)
	})
}

func TestValidateStatic(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig(writeConfig(t, "app.json", validJSON))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, field: "server.port"},
		{name: "no receiver topic", mutate: func(c *Config) { c.Broker.Kafka.Receiver.Topic = "" }, field: "broker.kafka.receiver.topic"},
		{name: "no workers", mutate: func(c *Config) { c.Broker.Kafka.Receiver.Worker.Num = 0 }, field: "broker.kafka.receiver.worker.num"},
		{name: "bad mode", mutate: func(c *Config) { c.Broker.Kafka.Receiver.Worker.Mode = "busy" }, field: "broker.kafka.receiver.worker.mode"},
		{name: "no result topic", mutate: func(c *Config) { c.Broker.Kafka.Result.Topic = "" }, field: "broker.kafka.result.topic"},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, field: "database.driver"},
		{name: "empty db url", mutate: func(c *Config) { c.Database.SQL[1].URL = "" }, field: "database.sql[1].url"},
		{name: "zero timeout", mutate: func(c *Config) { c.Discard.TimeoutMs = 0 }, field: "discard.timeout_ms"},
		{name: "bad fallback", mutate: func(c *Config) { c.Rules.Fallback.OnError = "maybe" }, field: "rules.fallback.on_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("terminal stage without next", func(t *testing.T) {
		cfg := base()
		cfg.Broker.Kafka.Next = PublisherConfig{}
		assert.NoError(t, ValidateStatic(cfg))
	})
}

func TestLoadConfig_ShippedConfigs(t *testing.T) {
	for _, name := range []string{"auth-filter.json", "rule-filter.json"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(filepath.Join("..", "..", "configs", name))
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Broker.Kafka.Receiver.Brokers)
			assert.NotEmpty(t, cfg.Database.SQL)
			assert.Equal(t, "filter.config", cfg.Broker.Kafka.ConfigUpdateTopic)
		})
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	require.NoError(t, os.WriteFile(path, []byte(validJSON), 0o600))

	_, err := LoadConfig(path)
	require.NoError(t, err)

	changed := strings.Replace(validJSON, `"port": 9090`, `"port": 9191`, 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))

	cfg, err := Reload()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestWatch_NotLoaded(t *testing.T) {
	mu.Lock()
	viper.Reset()
	mu.Unlock()

	err := Watch(context.Background(), func(*Config) {}, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestWatch_ConcurrentWithReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	require.NoError(t, os.WriteFile(path, []byte(validJSON), 0o600))

	_, err := LoadConfig(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var port atomic.Int64
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- Watch(ctx, func(cfg *Config) {
			port.Store(int64(cfg.Server.Port))
		}, func(error) {})
	}()

	withPort := func(p int) []byte {
		return []byte(strings.Replace(validJSON, `"port": 9090`, fmt.Sprintf(`"port": %d`, p), 1))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			// a half-written file is a valid outcome here
			_, _ = Reload()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = os.WriteFile(path, withPort(9100+i), 0o600)
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()

	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, withPort(9300), 0o600)
		return port.Load() == 9300
	}, 5*time.Second, 50*time.Millisecond)

	cfg, err := Reload()
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Server.Port)

	cancel()
	select {
	case err := <-watchDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
