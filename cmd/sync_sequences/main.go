package main

import (
	"context"

	"broadcast-console/internal/config"
	"broadcast-console/internal/database"
	"broadcast-console/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	database.InitGorm(cfg, log)

	log.Info().Msg("syncing PostgreSQL sequences")
	if err := database.SyncSequences(context.Background(), database.GormDB, log); err != nil {
		log.Fatal().Err(err).Msg("sequence sync incomplete")
	}
	log.Info().Msg("done")
}
