package models

import (
	"time"
)

// Setting is a key/value pair kept by the console between restarts
// (the admin bearer token lives here).
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// DispatchRecord is a batch the server accepted for hand-off
type DispatchRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Session    string    `gorm:"type:varchar(64);index" json:"session"`
	TemplateID int       `gorm:"index" json:"template_id"`
	Channel    string    `gorm:"type:varchar(20)" json:"channel"`
	Count      int       `json:"count"`
	SentAt     time.Time `gorm:"index" json:"sent_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DispatchRecord) TableName() string {
	return "dispatch_records"
}
