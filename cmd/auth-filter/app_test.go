package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/pkg/models"
)

type trapRepo struct {
	checksum string
	numbers  []string
	err      error
}

func (r *trapRepo) Checksum(context.Context) (string, error) {
	return r.checksum, r.err
}

func (r *trapRepo) LoadNumbers(context.Context) ([]string, error) {
	return r.numbers, r.err
}

type customerRepo struct{}

func (customerRepo) FindByMdn(context.Context, string) (*models.CustomerInfo, error) {
	return &models.CustomerInfo{}, nil
}

func TestNewHook_LoadsTrapList(t *testing.T) {
	app := NewApp(&config.Config{}, logger.NopLogger())

	hook, err := app.newHook(context.Background(), &trapRepo{checksum: "c1", numbers: []string{"0101"}}, customerRepo{})
	require.NoError(t, err)
	assert.NotNil(t, hook)
	require.NotNil(t, app.traps)
	assert.True(t, app.traps.Contains("0101"))
}

func TestNewHook_TrapListFailureAbortsStartup(t *testing.T) {
	app := NewApp(&config.Config{}, logger.NopLogger())
	dbErr := errors.New("connection refused")

	hook, err := app.newHook(context.Background(), &trapRepo{err: dbErr}, customerRepo{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, hook)
	assert.Nil(t, app.traps)
}
