package main

import (
	"context"

	"broadcast-console/internal/config"
	"broadcast-console/internal/database"
	"broadcast-console/internal/logging"
)

// Copies the console's SQLite data (DB_PATH) into the PostgreSQL database
// described by DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME.
func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// 1. Connect to SQLite (Source)
	sqliteDB, err := database.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to connect to SQLite")
	}
	log.Info().Str("path", cfg.DBPath).Msg("connected to SQLite")

	// 2. Connect to PostgreSQL (Destination)
	pgCfg := *cfg
	pgCfg.DBDriver = "postgres"
	database.InitGorm(&pgCfg, log)

	log.Info().Msg("starting data migration")
	counts, err := database.CopyConsoleData(ctx, sqliteDB, database.GormDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	if err := database.SyncSequences(ctx, database.GormDB, log); err != nil {
		log.Warn().Err(err).Msg("run sync_sequences again before starting the console")
	}

	log.Info().Interface("rows", counts).Msg("migration completed")
}
