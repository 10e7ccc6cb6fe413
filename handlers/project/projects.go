package project

import (
	"errors"
	"strconv"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services"
	"github.com/collabhub/api/utils/middleware"
	"github.com/collabhub/api/utils/response"
	"github.com/collabhub/api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ProjectHandler handles project-related requests
type ProjectHandler struct {
	db             *gorm.DB
	validator      *validation.Validator
	projectService *services.ProjectService
	aiSetupService *services.AISetupService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(db *gorm.DB, projectService *services.ProjectService, aiSetupService *services.AISetupService) *ProjectHandler {
	return &ProjectHandler{
		db:             db,
		validator:      validation.NewValidator(),
		projectService: projectService,
		aiSetupService: aiSetupService,
	}
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// requireAccess loads the project and checks the user may see it
func (h *ProjectHandler) requireAccess(c *fiber.Ctx, projectID uint) (*model.User, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, response.Unauthorized(c, "Authentication required")
	}
	if user.Role == model.UserRoleAdmin {
		return user, nil
	}

	var count int64
	if err := h.db.Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, user.ID).
		Count(&count).Error; err != nil {
		return nil, response.InternalServerError(c, "Failed to check access")
	}
	if count == 0 {
		var project model.Project
		if err := h.db.Select("created_by_id").First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, response.NotFound(c, "Project not found")
			}
			return nil, response.InternalServerError(c, "Failed to fetch project")
		}
		if project.CreatedByID != user.ID {
			return nil, response.Forbidden(c, "You do not have access to this project")
		}
	}
	return user, nil
}

// CreateProject handles POST /api/v1/projects
func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req services.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	project, err := h.projectService.CreateProject(c.Context(), user.ID, req)
	if err != nil {
		return response.InternalServerError(c, "Failed to create project")
	}

	return response.Created(c, project)
}

// ListProjects handles GET /api/v1/projects
func (h *ProjectHandler) ListProjects(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	projects, err := h.projectService.ListProjectsForUser(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list projects")
	}

	return response.Success(c, projects)
}

// GetProject handles GET /api/v1/projects/:id
func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	project, err := h.projectService.GetProject(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.InternalServerError(c, "Failed to fetch project")
	}

	return response.Success(c, fiber.Map{
		"project":  project,
		"ai_ready": project.AIReady(),
	})
}

// UpdateProject handles PUT /api/v1/projects/:id
func (h *ProjectHandler) UpdateProject(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	var req services.UpdateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	project, err := h.projectService.UpdateProject(c.Context(), projectID, req)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.InternalServerError(c, "Failed to update project")
	}

	return response.Success(c, project)
}

// DeleteProject handles DELETE /api/v1/projects/:id
func (h *ProjectHandler) DeleteProject(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}

	user, accessErr := h.requireAccess(c, projectID)
	if accessErr != nil {
		return accessErr
	}

	// Only the creator or an admin may delete
	var project model.Project
	if err := h.db.Select("created_by_id").First(&project, projectID).Error; err != nil {
		return response.NotFound(c, "Project not found")
	}
	if user.Role != model.UserRoleAdmin && project.CreatedByID != user.ID {
		return response.Forbidden(c, "Only the project creator can delete it")
	}

	if err := h.projectService.DeleteProject(c.Context(), projectID); err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.InternalServerError(c, "Failed to delete project")
	}

	return response.SuccessWithMessage(c, "Project deleted", nil)
}

// AddMemberRequest represents the request body for adding a project member
type AddMemberRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

// AddMember handles POST /api/v1/projects/:id/members
func (h *ProjectHandler) AddMember(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}

	user, accessErr := h.requireAccess(c, projectID)
	if accessErr != nil {
		return accessErr
	}

	var req AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	member, err := h.projectService.AddMember(c.Context(), projectID, req.UserID, user.ID)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	return response.Created(c, member)
}

// RemoveMember handles DELETE /api/v1/projects/:id/members/:userId
func (h *ProjectHandler) RemoveMember(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	userID, err := parseID(c, "userId")
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	if err := h.projectService.RemoveMember(c.Context(), projectID, userID); err != nil {
		return response.BadRequest(c, err.Error())
	}

	return response.SuccessWithMessage(c, "Member removed", nil)
}

// GetAIStatus handles GET /api/v1/projects/:id/ai/status
func (h *ProjectHandler) GetAIStatus(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	status, err := h.projectService.GetAIStatus(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.InternalServerError(c, "Failed to fetch AI status")
	}

	// Remote verification only once both resources are linked
	if status.Ready {
		report, err := h.aiSetupService.VerifyAssistantVectorStoreConnection(c.Context(), projectID)
		if err == nil {
			return response.Success(c, fiber.Map{
				"status":       status,
				"verification": report,
			})
		}
	}

	return response.Success(c, fiber.Map{"status": status})
}

// SetupAI handles POST /api/v1/projects/:id/ai/setup
func (h *ProjectHandler) SetupAI(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	result, err := h.aiSetupService.SetupProjectAI(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			return response.ServiceUnavailable(c, "AI provider is not configured")
		}
		return response.InternalServerError(c, "AI setup failed: "+err.Error())
	}

	return response.Success(c, result)
}
