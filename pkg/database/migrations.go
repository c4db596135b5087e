package database

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for the migration connection
	"go.uber.org/zap"
)

// Migrate applies pending schema migrations from migrationsPath against the
// database at connStr. It opens its own short-lived database/sql connection;
// the pgx pool never sees a half-migrated schema. Safe to call on every
// startup.
func Migrate(connStr, migrationsPath string, logger *zap.Logger) error {
	log := logger.Named("migrations")

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close() //nolint:errcheck

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		if srcErr, _ := m.Close(); srcErr != nil {
			log.Warn("Failed to close migration source", zap.Error(srcErr))
		}
	}()

	switch err := m.Up(); err {
	case nil:
		version, _, _ := m.Version()
		log.Info("Applied migrations", zap.Uint("version", version))
		return nil
	case migrate.ErrNoChange:
		log.Info("Schema up-to-date")
		return nil
	default:
		return fmt.Errorf("failed to run migrations: %w", err)
	}
}
