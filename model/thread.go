package model

import (
	"time"

	"gorm.io/gorm"
)

// Thread is a conversation within a project, mirroring a remote thread.
// A thread can only exist for a project that already has an assistant.
type Thread struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ProjectID      uint   `gorm:"not null;index" json:"project_id"`
	AssistantID    uint   `gorm:"not null;index" json:"assistant_id"`
	CreatedByID    uint   `gorm:"not null;index" json:"created_by_id"`
	OpenAIThreadID string `gorm:"type:varchar(100);uniqueIndex;not null" json:"openai_thread_id"`
	Title          string `gorm:"type:varchar(255)" json:"title"`

	PromptTokens     int `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int `gorm:"default:0" json:"completion_tokens"`
	TotalTokens      int `gorm:"default:0" json:"total_tokens"`

	MessageCount  int        `gorm:"default:0" json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Project   Project   `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	Assistant Assistant `gorm:"foreignKey:AssistantID" json:"assistant,omitempty"`
	CreatedBy User      `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Messages  []Message `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for Thread
func (Thread) TableName() string {
	return "threads"
}
