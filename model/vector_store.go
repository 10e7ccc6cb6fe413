package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VectorStore is the local record of a remote knowledge base. A row is only
// ever created after the remote object exists; one store per project.
type VectorStore struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	ProjectID           uint           `gorm:"not null;uniqueIndex" json:"project_id"`
	OpenAIVectorStoreID string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"openai_vector_store_id"`
	Name                string         `gorm:"type:varchar(255);not null" json:"name"`
	Configuration       datatypes.JSON `gorm:"type:jsonb" json:"configuration,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for VectorStore
func (VectorStore) TableName() string {
	return "vector_stores"
}
