package database

import (
	"context"
	"fmt"

	"broadcast-console/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequencedTables have a serial id column whose sequence must be bumped
// after rows are copied in with explicit ids.
var SequencedTables = []string{"dispatch_records"}

// CopyConsoleData copies settings and dispatch history from src into dst.
// Rows already present in dst are left untouched. It returns the number of
// rows read per table.
func CopyConsoleData(ctx context.Context, src, dst *gorm.DB, log zerolog.Logger) (map[string]int, error) {
	counts := map[string]int{}

	var settings []models.Setting
	if err := copyTable(ctx, src, dst, "settings", &settings, log); err != nil {
		return counts, err
	}
	counts["settings"] = len(settings)

	var records []models.DispatchRecord
	if err := copyTable(ctx, src, dst, "dispatch_records", &records, log); err != nil {
		return counts, err
	}
	counts["dispatch_records"] = len(records)

	return counts, nil
}

// rows is a pointer to a slice of models.
func copyTable(ctx context.Context, src, dst *gorm.DB, table string, rows interface{}, log zerolog.Logger) error {
	log.Info().Str("table", table).Msg("migrating table")

	if err := src.WithContext(ctx).Find(rows).Error; err != nil {
		return fmt.Errorf("reading %s: %w", table, err)
	}

	err := dst.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", table, err)
	}
	log.Info().Str("table", table).Msg("table migrated")
	return nil
}

// SyncSequences moves each PostgreSQL serial past the highest copied id.
func SyncSequences(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	var failed int
	for _, table := range SequencedTables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.WithContext(ctx).Exec(query).Error; err != nil {
			log.Error().Err(err).Str("table", table).Msg("error syncing sequence")
			failed++
			continue
		}
		log.Info().Str("table", table).Msg("sequence synced")
	}
	if failed > 0 {
		return fmt.Errorf("%d sequence(s) failed to sync", failed)
	}
	return nil
}
