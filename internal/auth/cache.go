package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
	"filterchain/pkg/toggle"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedCustomerRepository keeps found customers in Redis. Misses are not
// cached, and a Redis outage falls through to the wrapped repository.
type CachedCustomerRepository struct {
	repo    CustomerRepository
	client  redisClient
	ttl     time.Duration
	failing toggle.Toggle
	logger  logger.Logger
}

func NewCachedCustomerRepository(repo CustomerRepository, client redisClient, ttlSeconds int, log logger.Logger) *CachedCustomerRepository {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultTTLSeconds
	}
	return &CachedCustomerRepository{
		repo:   repo,
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log,
	}
}

func (r *CachedCustomerRepository) FindByMdn(ctx context.Context, mdn string) (*models.CustomerInfo, error) {
	key := constants.CacheKeyPrefixCustomer + mdn

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c models.CustomerInfo
		if jsonErr := json.Unmarshal(data, &c); jsonErr == nil {
			metrics.IncCustomerCache("hit")
			r.recovered()
			return &c, nil
		}
		metrics.IncCustomerCache("corrupt")
	case errors.Is(err, redis.Nil):
		metrics.IncCustomerCache("miss")
		r.recovered()
	default:
		metrics.IncCustomerCache("error")
		if r.failing.TurnOn() {
			r.logger.Warnw("Customer cache unavailable", "error", err)
		}
	}

	c, err := r.repo.FindByMdn(ctx, mdn)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(c); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil && r.failing.TurnOn() {
			r.logger.Warnw("Customer cache unavailable", "error", err)
		}
	}
	return c, nil
}

func (r *CachedCustomerRepository) recovered() {
	if r.failing.TurnOff() {
		r.logger.Infow("Customer cache recovered")
	}
}
