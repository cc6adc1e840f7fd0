package models

import "time"

// AppConfig stores service-wide key/value settings, such as applied data migrations.
type AppConfig struct {
	Key         string    `gorm:"size:128;primaryKey"`
	Value       string    `gorm:"type:text"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
