package reload

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/broker"
	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/pkg/models"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls++
	return r.err
}

func envelope(t *testing.T, event models.ConfigUpdateEvent) broker.Envelope {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return broker.Envelope{Subject: "config.updates", Payload: payload}
}

func TestHandler_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		event     models.ConfigUpdateEvent
		wantRules int
		wantTraps int
	}{
		{
			name:      "rules event for this stage",
			event:     models.ConfigUpdateEvent{EventType: models.EventTypeFilterRulesUpdated, ServiceType: models.ServiceTypeRuleFilter, Action: models.ActionUpdate},
			wantRules: 1,
		},
		{
			name:      "broadcast event",
			event:     models.ConfigUpdateEvent{EventType: models.EventTypeTrapListUpdated, Action: models.ActionReload},
			wantTraps: 1,
		},
		{
			name:  "other stage",
			event: models.ConfigUpdateEvent{EventType: models.EventTypeFilterRulesUpdated, ServiceType: models.ServiceTypeAuthFilter},
		},
		{
			name:  "no reloader registered",
			event: models.ConfigUpdateEvent{EventType: models.EventTypeLimitsUpdated},
		},
		{
			name: "missing event type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, traps := &countingReloader{}, &countingReloader{}
			h := NewHandler(models.ServiceTypeRuleFilter, logger.NopLogger()).
				On(models.EventTypeFilterRulesUpdated, rules).
				On(models.EventTypeTrapListUpdated, traps)

			require.NoError(t, h.Handle(context.Background(), envelope(t, tt.event)))
			assert.Equal(t, tt.wantRules, rules.calls)
			assert.Equal(t, tt.wantTraps, traps.calls)
		})
	}
}

func TestHandler_BadPayloadAndFailedReloadAreSwallowed(t *testing.T) {
	r := &countingReloader{err: errors.New("db down")}
	h := NewHandler(models.ServiceTypeAuthFilter, logger.NopLogger()).On(models.EventTypeTrapListUpdated, r)

	assert.NoError(t, h.Handle(context.Background(), broker.Envelope{Payload: []byte("{")}))
	assert.NoError(t, h.Handle(context.Background(), envelope(t, models.ConfigUpdateEvent{EventType: models.EventTypeTrapListUpdated})))
	assert.Equal(t, 1, r.calls)
}

func TestReloaderFunc(t *testing.T) {
	called := false
	h := NewHandler("auth-filter", logger.NopLogger()).On(models.EventTypeLimitsUpdated, ReloaderFunc(func(context.Context) error {
		called = true
		return nil
	}))

	require.NoError(t, h.Handle(context.Background(), envelope(t, models.ConfigUpdateEvent{EventType: models.EventTypeLimitsUpdated})))
	assert.True(t, called)
}

func TestNewSubscriber_UniqueGroup(t *testing.T) {
	cfg := config.KafkaConfig{
		Receiver:          config.ReceiverConfig{Brokers: []string{"kafka:9092"}},
		ConfigUpdateTopic: "config-updates",
	}

	a := NewSubscriber("auth-filter", cfg, logger.NopLogger())
	b := NewSubscriber("auth-filter", cfg, logger.NopLogger())

	assert.True(t, strings.HasPrefix(a.Group(), "auth-filter-config-"))
	assert.NotEqual(t, a.Group(), b.Group())
}
