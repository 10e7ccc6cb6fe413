package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/collabhub/api/model"
	"gorm.io/gorm"
)

// ErrProjectNotFound indicates the project does not exist
var ErrProjectNotFound = errors.New("project not found")

// ProjectService manages project lifecycle and membership. AI provisioning
// is delegated to AISetupService and kicked off in the background so project
// creation responds immediately.
type ProjectService struct {
	db      *gorm.DB
	aiSetup *AISetupService
}

// NewProjectService creates a new project service
func NewProjectService(db *gorm.DB, aiSetup *AISetupService) *ProjectService {
	return &ProjectService{db: db, aiSetup: aiSetup}
}

// CreateProjectRequest holds input for project creation
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

// CreateProject creates a project, adds the creator as a member and starts
// AI provisioning in the background
func (s *ProjectService) CreateProject(ctx context.Context, userID uint, req CreateProjectRequest) (*model.Project, error) {
	project := &model.Project{
		Name:        req.Name,
		Description: req.Description,
		Status:      model.ProjectStatusActive,
		CreatedByID: userID,
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	if err := tx.Create(project).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	member := &model.ProjectMember{
		ProjectID: project.ID,
		UserID:    userID,
		AddedByID: userID,
	}
	if err := tx.Create(member).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to add creator as member: %w", err)
	}
	activity := &model.UserActivity{
		UserID:       userID,
		ActivityType: model.ActivityTypeProjectCreate,
		ResourceType: "project",
		ResourceID:   project.ID,
	}
	if err := tx.Create(activity).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.aiSetup != nil {
		s.aiSetup.SetupProjectAIAsync(project.ID)
	}

	log.Printf("ProjectService: Created project %d (%s)", project.ID, project.Name)
	return project, nil
}

// GetProject returns a project with its AI resources and members preloaded
func (s *ProjectService) GetProject(ctx context.Context, projectID uint) (*model.Project, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).
		Preload("VectorStore").
		Preload("Assistant").
		Preload("Members.User").
		First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &project, nil
}

// ListProjectsForUser returns every project the user created or is a member
// of, newest first
func (s *ProjectService) ListProjectsForUser(ctx context.Context, userID uint) ([]model.Project, error) {
	var projects []model.Project
	if err := s.db.WithContext(ctx).
		Distinct("projects.*").
		Joins("LEFT JOIN project_members ON project_members.project_id = projects.id").
		Where("projects.created_by_id = ? OR project_members.user_id = ?", userID, userID).
		Order("projects.created_at DESC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectRequest holds updatable project fields
type UpdateProjectRequest struct {
	Name        *string              `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string              `json:"description" validate:"omitempty,max=5000"`
	Status      *model.ProjectStatus `json:"status" validate:"omitempty,oneof=active completed archived"`
}

// UpdateProject applies partial updates to a project
func (s *ProjectService) UpdateProject(ctx context.Context, projectID uint, req UpdateProjectRequest) (*model.Project, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		return s.GetProject(ctx, projectID)
	}

	result := s.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ?", projectID).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update project: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrProjectNotFound
	}

	return s.GetProject(ctx, projectID)
}

// DeleteProject tears down the project's AI resources and removes the
// project. Remote teardown runs first so a failure there leaves the project
// intact for a retry.
func (s *ProjectService) DeleteProject(ctx context.Context, projectID uint) error {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to fetch project: %w", err)
	}

	if s.aiSetup != nil {
		if err := s.aiSetup.TeardownProjectAI(ctx, project.ID); err != nil {
			return fmt.Errorf("failed to tear down AI resources: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).Select("Members", "Threads", "Files").Delete(&project).Error; err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	log.Printf("ProjectService: Deleted project %d", project.ID)
	return nil
}

// AddMember grants a user access to a project
func (s *ProjectService) AddMember(ctx context.Context, projectID, userID, addedByID uint) (*model.ProjectMember, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	member := &model.ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		AddedByID: addedByID,
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return member, nil
}

// RemoveMember revokes a user's project access. The creator cannot be
// removed.
func (s *ProjectService) RemoveMember(ctx context.Context, projectID, userID uint) error {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return ErrProjectNotFound
	}
	if project.CreatedByID == userID {
		return fmt.Errorf("cannot remove the project creator")
	}

	result := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&model.ProjectMember{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// AIStatus describes how far a project's AI provisioning has progressed
type AIStatus struct {
	ProjectID      uint `json:"project_id"`
	VectorStoreSet bool `json:"vector_store_set"`
	AssistantSet   bool `json:"assistant_set"`
	Ready          bool `json:"ready"`
}

// GetAIStatus reports the provisioning state from local records only, no
// remote calls
func (s *ProjectService) GetAIStatus(ctx context.Context, projectID uint) (*AIStatus, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	return &AIStatus{
		ProjectID:      project.ID,
		VectorStoreSet: project.VectorStoreID != nil,
		AssistantSet:   project.AssistantID != nil,
		Ready:          project.AIReady(),
	}, nil
}
