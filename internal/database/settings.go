package database

import (
	"context"
	"errors"

	"broadcast-console/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const adminTokenKey = "admin_token"

// SettingsStore keeps console settings, including the admin bearer token
// that the browser dashboard used to hold in local storage.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns "" when the key is absent.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Set inserts or overwrites key.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

func (s *SettingsStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{}).Error
}

// Token returns the stored admin token, or "".
func (s *SettingsStore) Token(ctx context.Context) (string, error) {
	return s.Get(ctx, adminTokenKey)
}

func (s *SettingsStore) SetToken(ctx context.Context, token string) error {
	return s.Set(ctx, adminTokenKey, token)
}

func (s *SettingsStore) ClearToken(ctx context.Context) error {
	return s.Delete(ctx, adminTokenKey)
}
