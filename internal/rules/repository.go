package rules

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"filterchain/pkg/dbpool"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/metrics"
)

type Repository interface {
	GetActiveRules(ctx context.Context) ([]Rule, error)
}

// DB is the part of dbpool.Pool the repository uses.
type DB interface {
	DB() *sql.DB
	Driver() string
	MarkBroken(err error)
}

type SQLRepository struct {
	db      DB
	service string
}

func NewRepository(db DB, service string) *SQLRepository {
	return &SQLRepository{db: db, service: service}
}

const activeRulesQuery = `
	SELECT id, name, expression, priority, enabled, created_at, updated_at
	FROM filter_rules
	WHERE enabled = ?
	ORDER BY priority DESC, created_at ASC
`

func (r *SQLRepository) GetActiveRules(ctx context.Context) ([]Rule, error) {
	conn := r.db.DB()
	if conn == nil {
		return nil, apperrors.ErrUnavailable.WithMessage("database not connected")
	}

	start := time.Now()
	rows, err := conn.QueryContext(ctx, dbpool.Rebind(r.db.Driver(), activeRulesQuery), true)
	if err != nil {
		metrics.IncDatabaseQuery(r.service, r.db.Driver(), "active_rules", "error")
		if ctx.Err() == nil {
			r.db.MarkBroken(err)
		}
		return nil, apperrors.Wrap(fmt.Errorf("failed to query rules: %w", err), apperrors.ErrDatabase)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Expression,
			&rule.Priority,
			&rule.Enabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, apperrors.Wrap(fmt.Errorf("failed to scan rule: %w", err), apperrors.ErrDatabase)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("rows iteration error: %w", err), apperrors.ErrDatabase)
	}

	metrics.IncDatabaseQuery(r.service, r.db.Driver(), "active_rules", "success")
	metrics.ObserveDatabaseQueryDuration(r.service, r.db.Driver(), "active_rules", time.Since(start))
	return rules, nil
}
