//go:build integration

package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/internal/testinfra"
)

func TestSQLRepository_Postgres(t *testing.T) {
	pool := testinfra.Postgres(t)
	testinfra.Exec(t, pool.DB(),
		`INSERT INTO filter_rules (name, expression, priority, enabled) VALUES ('low', 'content.contains("loan")', 1, true)`,
		`INSERT INTO filter_rules (name, expression, priority, enabled) VALUES ('high', 'source.startsWith("070")', 10, true)`,
		`INSERT INTO filter_rules (name, expression, priority, enabled) VALUES ('off', 'true', 100, false)`,
	)
	ctx := context.Background()

	repo := NewRepository(pool, "rule-filter")
	rules, err := repo.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "high", rules[0].Name)
	assert.Equal(t, "low", rules[1].Name)
	assert.NotEmpty(t, rules[0].ID)

	svc, err := NewService(repo, config.RulesConfig{}, logger.NopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.Reload(ctx))

	v, err := svc.Evaluate(ctx, message("cheap loan"))
	require.NoError(t, err)
	assert.Equal(t, "high", v.Rule.Name)
}
