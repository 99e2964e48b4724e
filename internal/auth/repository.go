package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filterchain/internal/constants"
	"filterchain/pkg/dbpool"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
)

// DB is the part of dbpool.Pool the repositories use.
type DB interface {
	DB() *sql.DB
	Driver() string
	MarkBroken(err error)
}

type CustomerRepository interface {
	FindByMdn(ctx context.Context, mdn string) (*models.CustomerInfo, error)
}

type TrapRepository interface {
	// Checksum changes whenever the trap table does.
	Checksum(ctx context.Context) (string, error)
	LoadNumbers(ctx context.Context) ([]string, error)
}

const customerQuery = `
	SELECT c.customer_id, c.mdn, c.service_type, c.spam_block,
	       CASE WHEN t.mdn IS NULL THEN 0 ELSE 1 END AS trace_flag
	FROM customers c
	LEFT JOIN trace_customers t ON t.mdn = c.mdn
	WHERE c.mdn = ?
`

type SQLCustomerRepository struct {
	db      DB
	service string
}

func NewCustomerRepository(db DB, service string) *SQLCustomerRepository {
	return &SQLCustomerRepository{db: db, service: service}
}

func (r *SQLCustomerRepository) FindByMdn(ctx context.Context, mdn string) (*models.CustomerInfo, error) {
	conn := r.db.DB()
	if conn == nil {
		return nil, apperrors.ErrUnavailable.WithMessage("database not connected")
	}

	start := time.Now()
	var c models.CustomerInfo
	err := conn.QueryRowContext(ctx, dbpool.Rebind(r.db.Driver(), customerQuery), mdn).Scan(
		&c.CustomerID,
		&c.Mdn,
		&c.ServiceType,
		&c.SpamBlock,
		&c.TraceFlag,
	)
	metrics.ObserveDatabaseQueryDuration(r.service, r.db.Driver(), "find_customer", time.Since(start))

	switch {
	case err == nil:
		metrics.IncDatabaseQuery(r.service, r.db.Driver(), "find_customer", "success")
		return &c, nil
	case errors.Is(err, sql.ErrNoRows):
		metrics.IncDatabaseQuery(r.service, r.db.Driver(), "find_customer", "not_found")
		return nil, apperrors.ErrNotFound.WithMessage("not found destinationMdn: " + mdn)
	default:
		metrics.IncDatabaseQuery(r.service, r.db.Driver(), "find_customer", "error")
		if ctx.Err() == nil {
			r.db.MarkBroken(err)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabase)
	}
}

const (
	trapNumbersQuery = `SELECT mdn FROM trap_customers`

	mysqlTrapChecksum    = `CHECKSUM TABLE trap_customers`
	postgresTrapChecksum = `SELECT COALESCE(md5(string_agg(mdn, ',' ORDER BY mdn)), '') FROM trap_customers`
)

type SQLTrapRepository struct {
	db      DB
	service string
}

func NewTrapRepository(db DB, service string) *SQLTrapRepository {
	return &SQLTrapRepository{db: db, service: service}
}

func (r *SQLTrapRepository) Checksum(ctx context.Context) (string, error) {
	conn := r.db.DB()
	if conn == nil {
		return "", apperrors.ErrUnavailable.WithMessage("database not connected")
	}

	var (
		sum string
		err error
	)
	switch r.db.Driver() {
	case constants.DriverMySQL:
		var table string
		var checksum sql.NullInt64
		err = conn.QueryRowContext(ctx, mysqlTrapChecksum).Scan(&table, &checksum)
		sum = fmt.Sprint(checksum.Int64)
	default:
		err = conn.QueryRowContext(ctx, postgresTrapChecksum).Scan(&sum)
	}
	if err != nil {
		metrics.IncDatabaseQuery(r.service, r.db.Driver(), "trap_checksum", "error")
		return "", apperrors.Wrap(err, apperrors.ErrDatabase)
	}

	metrics.IncDatabaseQuery(r.service, r.db.Driver(), "trap_checksum", "success")
	return sum, nil
}

func (r *SQLTrapRepository) LoadNumbers(ctx context.Context) ([]string, error) {
	conn := r.db.DB()
	if conn == nil {
		return nil, apperrors.ErrUnavailable.WithMessage("database not connected")
	}

	start := time.Now()
	rows, err := conn.QueryContext(ctx, trapNumbersQuery)
	if err != nil {
		metrics.IncDatabaseQuery(r.service, r.db.Driver(), "trap_numbers", "error")
		return nil, apperrors.Wrap(fmt.Errorf("failed to query trap numbers: %w", err), apperrors.ErrDatabase)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var mdn string
		if err := rows.Scan(&mdn); err != nil {
			return nil, apperrors.Wrap(fmt.Errorf("failed to scan trap number: %w", err), apperrors.ErrDatabase)
		}
		numbers = append(numbers, mdn)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("rows iteration error: %w", err), apperrors.ErrDatabase)
	}

	metrics.IncDatabaseQuery(r.service, r.db.Driver(), "trap_numbers", "success")
	metrics.ObserveDatabaseQueryDuration(r.service, r.db.Driver(), "trap_numbers", time.Since(start))
	return numbers, nil
}
