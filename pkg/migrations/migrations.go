// Package migrations applies the SQL schema shipped under migrations/<driver>.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"filterchain/internal/constants"
)

// Up migrates db to the latest version found in dir/<driver>. An up-to-date
// schema is not an error.
func Up(db *sql.DB, driver, dir string) error {
	instance, err := databaseDriver(db, driver)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(filepath.Join(dir, driver))
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(path), driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func databaseDriver(db *sql.DB, driver string) (database.Driver, error) {
	switch driver {
	case constants.DriverPostgres:
		d, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres driver: %w", err)
		}
		return d, nil
	case constants.DriverMySQL:
		d, err := mysql.WithInstance(db, &mysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql driver: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown driver: %s", driver)
	}
}
