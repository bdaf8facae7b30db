package database

import (
	"strings"
	"time"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Connect opens postgres for postgres:// DSNs and the pure-Go SQLite driver otherwise.
func Connect(dsn string) (*gorm.DB, error) {
	return Open(dsn, logger.Default.LogMode(logger.Warn))
}

func Open(dsn string, gormLogger logger.Interface) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  gormLogger,
		NowFunc: Now,
	}

	if IsPostgres(dsn) {
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection turns lock errors into queueing.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Now is the clock used for every persisted timestamp: UTC at postgres precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
