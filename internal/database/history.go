package database

import (
	"context"

	"broadcast-console/internal/models"
	pkgmodels "broadcast-console/pkg/models"

	"gorm.io/gorm"
)

// HistoryStore appends accepted dispatches and lists the latest ones.
type HistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RecordDispatch appends one accepted dispatch.
func (h *HistoryStore) RecordDispatch(ctx context.Context, s pkgmodels.DispatchSummary) error {
	rec := models.DispatchRecord{
		Session:    s.Session,
		TemplateID: s.TemplateID,
		Channel:    string(s.Channel),
		Count:      s.Count,
		SentAt:     s.SentAt,
	}
	return h.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns up to limit records, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]models.DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.DispatchRecord
	err := h.db.WithContext(ctx).Order("sent_at DESC, id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.DispatchRecord{}
	}
	return records, nil
}
