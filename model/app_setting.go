package model

import (
	"time"

	"gorm.io/gorm"
)

// Well-known setting keys consumed by the AI services
const (
	SettingOpenAIAPIKey      = "openai_api_key"
	SettingOpenAIAdminAPIKey = "openai_admin_api_key"
	SettingOpenAIModel       = "openai_model"
)

// AppSetting represents application-wide configuration settings stored as
// key-value pairs. Encrypted values are AES-256-GCM sealed before storage.
type AppSetting struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Key         string         `gorm:"uniqueIndex;not null" json:"key"`
	Value       string         `gorm:"type:text;not null" json:"value"`
	IsEncrypted bool           `gorm:"default:false" json:"is_encrypted"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"type:varchar(50)" json:"category"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}
