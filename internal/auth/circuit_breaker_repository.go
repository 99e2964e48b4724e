package auth

import (
	"context"
	"fmt"

	"filterchain/internal/config"
	"filterchain/pkg/circuitbreaker"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/models"
)

type CircuitBreakerRepository struct {
	repo CustomerRepository
	cb   *circuitbreaker.Wrapper
}

// NewCircuitBreakerRepository returns repo unchanged in behaviour when the
// breaker is disabled. Unknown customers do not count as failures.
func NewCircuitBreakerRepository(repo CustomerRepository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	cbConfig := circuitbreaker.FromConfig("customer-db", cfg)
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || apperrors.IsNotFound(err)
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) FindByMdn(ctx context.Context, mdn string) (*models.CustomerInfo, error) {
	if r.cb == nil {
		return r.repo.FindByMdn(ctx, mdn)
	}

	c, err := circuitbreaker.Call(ctx, r.cb, func() (*models.CustomerInfo, error) {
		return r.repo.FindByMdn(ctx, mdn)
	})
	if err != nil {
		if r.cb.IsOpen() {
			return nil, apperrors.ErrUnavailable.WithCause(fmt.Errorf("circuit breaker is open for customer-db: %w", err))
		}
		return nil, err
	}
	return c, nil
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
