package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/internal/rules"
)

type ruleRepo struct {
	rules []rules.Rule
	err   error
}

func (r *ruleRepo) GetActiveRules(context.Context) ([]rules.Rule, error) {
	return r.rules, r.err
}

func TestInitService_LoadsRules(t *testing.T) {
	app := NewApp(&config.Config{}, logger.NopLogger())
	repo := &ruleRepo{rules: []rules.Rule{
		{ID: "r1", Name: "casino", Expression: `content.contains("casino")`, Enabled: true},
	}}

	require.NoError(t, app.initService(context.Background(), repo))
	require.NotNil(t, app.service)
}

func TestInitService_RuleLoadFailureAbortsStartup(t *testing.T) {
	app := NewApp(&config.Config{}, logger.NopLogger())
	dbErr := errors.New("connection refused")

	err := app.initService(context.Background(), &ruleRepo{err: dbErr})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, app.service)
}
