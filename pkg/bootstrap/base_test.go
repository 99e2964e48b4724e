package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/internal/stage"
	"filterchain/pkg/health"
	"filterchain/pkg/models"
)

func testConfig(next string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 18080, ReadTimeoutSeconds: 1, WriteTimeoutSeconds: 1},
		Broker: config.BrokerConfig{
			Type: "kafka",
			Kafka: config.KafkaConfig{
				Receiver: config.ReceiverConfig{
					Brokers: []string{"127.0.0.1:9"},
					Topic:   "in",
					Group:   "g",
					Num:     1,
					Worker:  config.WorkerConfig{Num: 2, QueueSize: 8},
				},
				Next:   config.PublisherConfig{Brokers: []string{"127.0.0.1:9"}, Topic: next, Num: 1, QueueSize: 8},
				Result: config.PublisherConfig{Brokers: []string{"127.0.0.1:9"}, Topic: "result", Num: 1, QueueSize: 8},
			},
		},
		Discard: config.DiscardConfig{TimeoutMs: 3000, QueueSize: 8, EnqueueTPS: 10, DequeueTPS: 10},
	}
}

func noop() stage.Hook {
	return stage.HookFunc(func(context.Context, *stage.Outlet, *models.FilterMessage) error { return nil })
}

func TestBase_TerminalStageLifecycle(t *testing.T) {
	b := NewBase("rule-filter", testConfig(""), logger.NopLogger())
	require.NoError(t, b.InitBroker())
	assert.Nil(t, b.Next)

	b.InitStage(noop())
	require.NoError(t, b.Start())
	assert.Equal(t, health.StatusHealthy, b.Health.Check(context.Background()).Status)

	require.NoError(t, b.Shutdown(context.Background(), nil))
	assert.False(t, b.Stage.Running())
	assert.Equal(t, health.StatusUnhealthy, b.Health.Check(context.Background()).Status)
}

func TestBase_WithNextStage(t *testing.T) {
	b := NewBase("auth-filter", testConfig("rules"), logger.NopLogger())
	require.NoError(t, b.InitBroker())
	require.NotNil(t, b.Next)
	assert.Equal(t, "rules", b.Next.Topic())

	b.InitStage(noop())
	require.NoError(t, b.Start())

	var extra bool
	require.NoError(t, b.Shutdown(context.Background(), func(context.Context) []error {
		extra = true
		return nil
	}))
	assert.True(t, extra)
}

func TestBase_ApplyConfigUpdatesLimits(t *testing.T) {
	b := NewBase("auth-filter", testConfig(""), logger.NopLogger())

	cfg := testConfig("")
	cfg.Discard.EnqueueTPS = 500
	cfg.Discard.TimeoutMs = 1500
	b.applyConfig(cfg)

	assert.EqualValues(t, 500, b.Limits.IngressTPS())
	assert.EqualValues(t, 1500, b.Limits.MaxAgeMs())
}

func TestBase_InitBrokerRejectsUnknownType(t *testing.T) {
	cfg := testConfig("")
	cfg.Broker.Type = "nats"

	b := NewBase("auth-filter", cfg, logger.NopLogger())
	assert.Error(t, b.InitBroker())
}
