package model

import (
	"time"

	"gorm.io/gorm"
)

// MessageRole represents the role of the message author
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single turn in a thread. OpenAIMessageID is globally unique
// and is the dedupe key when reconciling remote state after a run completes.
type Message struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	ThreadID        uint        `gorm:"not null;index" json:"thread_id"`
	UserID          *uint       `gorm:"index" json:"user_id,omitempty"` // Nil for assistant-authored messages
	Role            MessageRole `gorm:"type:varchar(20);not null" json:"role"`
	Content         string      `gorm:"type:text;not null" json:"content"`
	OpenAIMessageID string      `gorm:"column:openai_message_id;type:varchar(100);uniqueIndex;not null" json:"openai_message_id"`
	RunID           string      `gorm:"type:varchar(100);index" json:"run_id,omitempty"`

	PromptTokens     int `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int `gorm:"default:0" json:"completion_tokens"`
	TotalTokens      int `gorm:"default:0" json:"total_tokens"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Thread Thread `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"-"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}
