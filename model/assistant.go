package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Assistant is the local record of a remote conversational agent. It is
// considered ready only once its tool configuration references the project's
// vector store, which provisioning guarantees before the row is written.
type Assistant struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ProjectID         uint           `gorm:"not null;uniqueIndex" json:"project_id"`
	OpenAIAssistantID string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"openai_assistant_id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	Model             string         `gorm:"type:varchar(100);not null" json:"model"`
	Instructions      string         `gorm:"type:text" json:"instructions"`
	Configuration     datatypes.JSON `gorm:"type:jsonb" json:"configuration,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Assistant
func (Assistant) TableName() string {
	return "assistants"
}
