package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks the gorm driver for cfg. SQLite is the default so a fresh
// checkout runs without a database server.
func Dialector(cfg Config, dsn string) (gorm.Dialector, error) {
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL_MAIN is required for driver %q", DriverPostgres)
		}
		return postgres.Open(dsn), nil
	case DriverSQLite, "":
		if dsn == "" {
			dsn = cfg.DatabasePath
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
}

// Open connects with the shared gorm settings and tunes the pool.
func Open(cfg Config, dsn string) (*gorm.DB, error) {
	dialector, err := Dialector(cfg, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(cfg.GormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.DatabaseDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm: %w", err)
	}
	if cfg.DatabaseDriver == DriverPostgres {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenMemory opens a private in-memory SQLite database named name and migrates
// it. Used for throwaway backtests and tests.
func OpenMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate in-memory database: %w", err)
	}
	return db, nil
}
