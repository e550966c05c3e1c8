package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"evalhub/internal/platform/config"
	"evalhub/migrations"
)

// Migrate applies the embedded migrations for the configured driver.
func Migrate(ctx context.Context, cfg config.Config) error {
	switch cfg.DatabaseDriver {
	case "postgres":
		return migratePostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return MigrateSQLite(ctx, cfg.SQLitePath)
	}
	return fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
}

func migratePostgres(ctx context.Context, databaseURL string) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrations.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	return up(src, "pgx5", driver)
}

func MigrateSQLite(ctx context.Context, path string) error {
	sqlDB, err := OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	driver, err := sqlitemigrate.WithInstance(sqlDB, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrations.SQLite, "sqlite")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	return up(src, "sqlite", driver)
}

func up(src source.Driver, databaseName string, driver database.Driver) error {
	m, err := migrate.NewWithInstance("iofs", src, databaseName, driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations failed: %w", err)
	}
	return nil
}
