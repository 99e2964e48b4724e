package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/models"
)

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	repo := &fakeCustomerRepo{customers: map[string]models.CustomerInfo{"0101": {CustomerID: "c-1"}}}
	cb := NewCircuitBreakerRepository(repo, config.CircuitBreakerConfig{})

	c, err := cb.FindByMdn(context.Background(), "0101")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.CustomerID)
	assert.Equal(t, "disabled", cb.State())
}

func TestCircuitBreakerRepository_OpensOnDatabaseErrors(t *testing.T) {
	repo := &fakeCustomerRepo{err: apperrors.Wrap(errors.New("i/o timeout"), apperrors.ErrDatabase)}
	cb := NewCircuitBreakerRepository(repo, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := cb.FindByMdn(context.Background(), "0101")
		require.Error(t, err)
	}
	assert.Equal(t, "open", cb.State())

	_, err := cb.FindByMdn(context.Background(), "0101")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, models.SystemDBError, apperrors.ReasonCode(err))
	assert.Equal(t, 2, repo.calls)
}

func TestCircuitBreakerRepository_NotFoundDoesNotTrip(t *testing.T) {
	repo := &fakeCustomerRepo{}
	cb := NewCircuitBreakerRepository(repo, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})

	for i := 0; i < 5; i++ {
		_, err := cb.FindByMdn(context.Background(), "0999")
		assert.True(t, apperrors.IsNotFound(err))
	}
	assert.Equal(t, "closed", cb.State())
}
