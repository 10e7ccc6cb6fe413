package thread

import (
	"errors"
	"strconv"

	"github.com/collabhub/api/services"
	"github.com/collabhub/api/utils/middleware"
	"github.com/collabhub/api/utils/response"
	"github.com/collabhub/api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ThreadHandler handles conversation thread requests
type ThreadHandler struct {
	db           *gorm.DB
	validator    *validation.Validator
	conversation *services.ConversationService
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(db *gorm.DB, conversation *services.ConversationService) *ThreadHandler {
	return &ThreadHandler{
		db:           db,
		validator:    validation.NewValidator(),
		conversation: conversation,
	}
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// mapServiceError converts known service errors into HTTP responses
func mapServiceError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrThreadNotFound):
		return response.NotFound(c, "Thread not found")
	case errors.Is(err, services.ErrProjectNotFound):
		return response.NotFound(c, "Project not found")
	case errors.Is(err, services.ErrAccessDenied):
		return response.Forbidden(c, "You do not have access to this thread")
	case errors.Is(err, services.ErrProjectNotActive):
		return response.Conflict(c, "Project is archived or completed")
	case errors.Is(err, services.ErrAINotReady):
		return response.ServiceUnavailable(c, "Project AI is still being set up")
	case errors.Is(err, services.ErrNotConfigured):
		return response.ServiceUnavailable(c, "AI provider is not configured")
	default:
		return response.InternalServerError(c, fallback)
	}
}

// CreateThreadRequest represents the request body for creating a thread
type CreateThreadRequest struct {
	Title string `json:"title" validate:"omitempty,max=255"`
}

// CreateThread handles POST /api/v1/projects/:id/threads
func (h *ThreadHandler) CreateThread(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}

	var req CreateThreadRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	thread, err := h.conversation.CreateThread(c.Context(), projectID, user.ID, req.Title)
	if err != nil {
		return mapServiceError(c, err, "Failed to create thread")
	}

	return response.Created(c, thread)
}

// ListThreads handles GET /api/v1/projects/:id/threads
func (h *ThreadHandler) ListThreads(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}

	mineOnly := c.Query("mine") == "true"

	threads, err := h.conversation.ListThreads(c.Context(), projectID, user.ID, mineOnly)
	if err != nil {
		return mapServiceError(c, err, "Failed to list threads")
	}

	return response.Success(c, threads)
}

// GetThread handles GET /api/v1/threads/:id
func (h *ThreadHandler) GetThread(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	threadID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid thread ID")
	}

	thread, err := h.conversation.GetThread(c.Context(), threadID, user.ID)
	if err != nil {
		return mapServiceError(c, err, "Failed to fetch thread")
	}

	return response.Success(c, thread)
}

// RenameThreadRequest represents the request body for renaming a thread
type RenameThreadRequest struct {
	Title string `json:"title" validate:"required,min=1,max=255"`
}

// RenameThread handles PUT /api/v1/threads/:id
func (h *ThreadHandler) RenameThread(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	threadID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid thread ID")
	}

	var req RenameThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	thread, err := h.conversation.RenameThread(c.Context(), threadID, user.ID, req.Title)
	if err != nil {
		return mapServiceError(c, err, "Failed to rename thread")
	}

	return response.Success(c, thread)
}

// DeleteThread handles DELETE /api/v1/threads/:id
func (h *ThreadHandler) DeleteThread(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	threadID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid thread ID")
	}

	if err := h.conversation.DeleteThread(c.Context(), threadID, user.ID); err != nil {
		return mapServiceError(c, err, "Failed to delete thread")
	}

	return response.SuccessWithMessage(c, "Thread deleted", nil)
}

// ListMessages handles GET /api/v1/threads/:id/messages
func (h *ThreadHandler) ListMessages(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	threadID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid thread ID")
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)

	messages, total, err := h.conversation.ListMessages(c.Context(), threadID, user.ID, page, limit)
	if err != nil {
		return mapServiceError(c, err, "Failed to fetch messages")
	}

	return response.Paginated(c, messages, response.CalculatePagination(page, limit, total))
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=32000"`
}

// SendMessage handles POST /api/v1/threads/:id/messages
func (h *ThreadHandler) SendMessage(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	threadID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid thread ID")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.conversation.SendMessage(c.Context(), threadID, user.ID, req.Content)
	if err != nil {
		return mapServiceError(c, err, "Failed to send message")
	}

	return response.Created(c, result)
}

// GetRunStatus handles GET /api/v1/threads/:id/runs/:runId
func (h *ThreadHandler) GetRunStatus(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	threadID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid thread ID")
	}

	runID := c.Params("runId")
	if runID == "" {
		return response.BadRequest(c, "Run ID is required")
	}

	result, err := h.conversation.CheckRunStatus(c.Context(), threadID, runID, user.ID)
	if err != nil {
		return mapServiceError(c, err, "Failed to check run status")
	}

	return response.Success(c, result)
}
