package database

import (
	"fmt"
	"strings"

	"broadcast-console/internal/config"
	"broadcast-console/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB is set by InitGorm.
var GormDB *gorm.DB

// InitGorm opens the configured database, migrates it and stores the
// handle in GormDB. It exits the process on failure.
func InitGorm(cfg *config.Config, log zerolog.Logger) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to connect to database")
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	if err := Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run auto-migration")
	}
	log.Info().Msg("database migration completed")

	GormDB = db
}

// Open connects without migrating.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.DBLogLevel)),
	}

	switch strings.ToLower(cfg.DBDriver) {
	case "postgres", "postgresql":
		return gorm.Open(postgres.Open(PostgresDSN(cfg)), gormCfg)
	case "sqlite", "sqlite3", "":
		return gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// OpenSQLite opens path with the SQLite driver regardless of DB_DRIVER.
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// PostgresDSN builds a key=value DSN from cfg.
func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

// Migrate creates or updates the console tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Setting{},
		&models.DispatchRecord{},
	)
}

func gormLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent", "off":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
