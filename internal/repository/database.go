package repository

import (
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"rmscall/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

// driverName приводит имя драйвера из конфигурации к имени database/sql
func driverName(driver string) (string, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Open подключается к базе журнала загрузок с повторными попытками
func Open(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	name, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	dsn := cfg.GetDSN()
	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect(name, dsn)
		if err == nil {
			break
		}
		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		if i+1 < maxAttempts {
			time.Sleep(delay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
	}

	switch name {
	case "sqlite3":
		// sqlite допускает одного писателя, а :memory: живет в рамках одного соединения
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return db, nil
}

// Migrate применяет встроенные миграции для драйвера базы
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations/"+db.DriverName())
	if err != nil {
		return fmt.Errorf("failed to open migrations source: %w", err)
	}

	var m *migrate.Migrate
	switch db.DriverName() {
	case "sqlite3":
		driver, derr := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create sqlite migrate driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	case "postgres":
		driver, derr := migratepg.WithInstance(db.DB, &migratepg.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create postgres migrate driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	case "mysql":
		driver, derr := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create mysql migrate driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", driver)
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close() не вызываем: он закрыл бы общий *sql.DB

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
