package model

import (
	"time"

	"gorm.io/gorm"
)

// ProjectStatus represents the lifecycle status of a project
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

// Project represents a collaboration workspace. AI features are unavailable
// until both VectorStoreID and AssistantID are set by the provisioning flow.
type Project struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Description   string         `gorm:"type:text" json:"description"`
	Status        ProjectStatus  `gorm:"type:varchar(20);default:'active';index" json:"status"`
	CreatedByID   uint           `gorm:"not null;index" json:"created_by_id"`
	VectorStoreID *uint          `gorm:"index" json:"vector_store_id"`
	AssistantID   *uint          `gorm:"index" json:"assistant_id"`

	// Cumulative provider-reported usage across all threads
	PromptTokens     int `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int `gorm:"default:0" json:"completion_tokens"`
	TotalTokens      int `gorm:"default:0" json:"total_tokens"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	CreatedBy   User            `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	VectorStore *VectorStore    `gorm:"foreignKey:VectorStoreID" json:"vector_store,omitempty"`
	Assistant   *Assistant      `gorm:"foreignKey:AssistantID" json:"assistant,omitempty"`
	Members     []ProjectMember `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Threads     []Thread        `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"threads,omitempty"`
	Files       []ProjectFile   `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "projects"
}

// AIReady returns true once provisioning has linked both remote resources
func (p *Project) AIReady() bool {
	return p.VectorStoreID != nil && p.AssistantID != nil
}

// AcceptsMessages returns true if the project status allows new threads/messages
func (p *Project) AcceptsMessages() bool {
	return p.Status == ProjectStatusActive
}

// ProjectMember grants a user access to a project's threads and files
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_project_user" json:"project_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_project_user" json:"user_id"`
	AddedByID uint      `json:"added_by_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Project Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	User    User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// TableName specifies the table name for ProjectMember
func (ProjectMember) TableName() string {
	return "project_members"
}
