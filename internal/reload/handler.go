// Package reload applies config update events published on the shared
// config topic to the running stage.
package reload

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"filterchain/internal/broker"
	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/pkg/models"
)

type Reloader interface {
	Reload(ctx context.Context) error
}

type ReloaderFunc func(ctx context.Context) error

func (f ReloaderFunc) Reload(ctx context.Context) error {
	return f(ctx)
}

type Handler struct {
	service   string
	reloaders map[string]Reloader
	logger    logger.Logger
}

func NewHandler(service string, log logger.Logger) *Handler {
	return &Handler{
		service:   service,
		reloaders: make(map[string]Reloader),
		logger:    log,
	}
}

// On registers the reloader for one event type. A later call replaces the
// earlier one.
func (h *Handler) On(eventType string, r Reloader) *Handler {
	h.reloaders[eventType] = r
	return h
}

// Handle never fails the subscription: a bad event is logged and skipped.
func (h *Handler) Handle(ctx context.Context, env broker.Envelope) error {
	var event models.ConfigUpdateEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		h.logger.Warnw("Failed to parse config update event", "error", err, "offset", env.Offset)
		return nil
	}

	if event.EventType == "" {
		h.logger.Warnw("Config event missing event_type", "offset", env.Offset)
		return nil
	}

	if !event.AppliesTo(h.service) {
		return nil
	}

	r, ok := h.reloaders[event.EventType]
	if !ok {
		return nil
	}

	h.logger.Infow("Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"rule_id", event.RuleID,
		"changed_by", event.ChangedBy,
	)

	if err := r.Reload(ctx); err != nil {
		h.logger.Errorw("Failed to reload after config update",
			"event_type", event.EventType,
			"error", err,
		)
		return nil
	}

	h.logger.Infow("Reloaded after config update", "event_type", event.EventType, "action", event.Action)
	return nil
}

// NewSubscriber reads the config topic. Every instance joins its own group
// so that each of them sees every event.
func NewSubscriber(service string, cfg config.KafkaConfig, log logger.Logger) *broker.KafkaSubscriber {
	brokers := cfg.Brokers
	if len(brokers) == 0 {
		brokers = cfg.Receiver.Brokers
	}

	sub := broker.NewKafkaSubscriber(config.ReceiverConfig{
		Brokers: brokers,
		Topic:   cfg.ConfigUpdateTopic,
		Group:   service + "-config-" + uuid.NewString(),
		Num:     1,
	}, cfg.Retry, log)
	sub.SetServiceName(service)
	return sub
}
