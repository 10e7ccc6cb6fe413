package model

import (
	"time"
)

// ActivityType represents the type of user activity
type ActivityType string

const (
	ActivityTypeProjectCreate ActivityType = "project_create"
	ActivityTypeThreadCreate  ActivityType = "thread_create"
	ActivityTypeMessageSend   ActivityType = "message_send"
	ActivityTypeFileUpload    ActivityType = "file_upload"
	ActivityTypeFileDelete    ActivityType = "file_delete"
)

// UserActivity records who did what. Thread-creation entries back the
// "my threads" listing scope.
type UserActivity struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UserID       uint         `gorm:"not null;index:idx_user_activity" json:"user_id"`
	ActivityType ActivityType `gorm:"type:varchar(50);not null;index:idx_activity_type" json:"activity_type"`
	ResourceType string       `gorm:"type:varchar(50)" json:"resource_type"` // e.g. "project", "thread", "file"
	ResourceID   uint         `gorm:"index" json:"resource_id"`
	Metadata     string       `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time    `gorm:"index:idx_created_at" json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for UserActivity
func (UserActivity) TableName() string {
	return "user_activities"
}
