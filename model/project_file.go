package model

import (
	"time"

	"gorm.io/gorm"
)

// ProjectFile holds metadata for a document attached to a project's
// knowledge base. Deleting a row triggers best-effort remote cleanup; the
// local delete is never blocked by a remote failure.
type ProjectFile struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	ProjectID        uint   `gorm:"not null;index" json:"project_id"`
	UploadedByID     uint   `gorm:"not null;index" json:"uploaded_by_id"`
	OpenAIFileID     string `gorm:"type:varchar(100);uniqueIndex;not null" json:"openai_file_id"`
	Name             string `gorm:"type:varchar(512);not null" json:"name"`
	Size             int64  `gorm:"not null" json:"size"`
	MimeType         string `gorm:"type:varchar(100)" json:"mime_type"`
	StorageKey       string `gorm:"type:varchar(512)" json:"storage_key,omitempty"` // Archival copy in object storage, empty when archival is disabled
	StorageURL       string `gorm:"type:varchar(1024)" json:"storage_url,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Project    Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	UploadedBy User    `gorm:"foreignKey:UploadedByID" json:"uploaded_by,omitempty"`
}

// TableName specifies the table name for ProjectFile
func (ProjectFile) TableName() string {
	return "project_files"
}
