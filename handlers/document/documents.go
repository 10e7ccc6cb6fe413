package document

import (
	"errors"
	"io"
	"strconv"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services"
	"github.com/collabhub/api/utils/middleware"
	"github.com/collabhub/api/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MaxUploadFiles caps how many files one multipart request may carry
const MaxUploadFiles = 10

// DocumentHandler handles project file requests
type DocumentHandler struct {
	db          *gorm.DB
	fileService *services.FileService
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(db *gorm.DB, fileService *services.FileService) *DocumentHandler {
	return &DocumentHandler{
		db:          db,
		fileService: fileService,
	}
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// requireAccess checks project membership for the current user
func (h *DocumentHandler) requireAccess(c *fiber.Ctx, projectID uint) (*model.User, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, response.Unauthorized(c, "Authentication required")
	}
	if user.Role == model.UserRoleAdmin {
		return user, nil
	}

	var project model.Project
	if err := h.db.Select("id", "created_by_id").First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NotFound(c, "Project not found")
		}
		return nil, response.InternalServerError(c, "Failed to fetch project")
	}
	if project.CreatedByID == user.ID {
		return user, nil
	}

	var count int64
	if err := h.db.Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, user.ID).
		Count(&count).Error; err != nil {
		return nil, response.InternalServerError(c, "Failed to check access")
	}
	if count == 0 {
		return nil, response.Forbidden(c, "You do not have access to this project")
	}
	return user, nil
}

// UploadFiles handles POST /api/v1/projects/:id/files/upload. One file hits
// the single-file path; several go through a batch attach.
func (h *DocumentHandler) UploadFiles(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}

	user, accessErr := h.requireAccess(c, projectID)
	if accessErr != nil {
		return accessErr
	}

	form, err := c.MultipartForm()
	if err != nil {
		return response.BadRequest(c, "Expected multipart form data")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return response.BadRequest(c, "No files provided")
	}
	if len(headers) > MaxUploadFiles {
		return response.BadRequest(c, "Too many files in one request")
	}

	uploads := make([]services.FileUpload, 0, len(headers))
	seen := make(map[string]bool, len(headers))
	for _, header := range headers {
		if seen[header.Filename] {
			return response.BadRequest(c, "Duplicate file name in upload: "+header.Filename)
		}
		seen[header.Filename] = true

		f, err := header.Open()
		if err != nil {
			return response.BadRequest(c, "Failed to read uploaded file "+header.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return response.BadRequest(c, "Failed to read uploaded file "+header.Filename)
		}
		uploads = append(uploads, services.FileUpload{Name: header.Filename, Content: data})
	}

	if len(uploads) == 1 {
		record, err := h.fileService.UploadFile(c.Context(), projectID, user.ID, uploads[0].Name, uploads[0].Content)
		if err != nil {
			return h.mapFileError(c, err)
		}
		return response.Created(c, fiber.Map{"files": []interface{}{record}})
	}

	records, uploadErrs := h.fileService.UploadBatch(c.Context(), projectID, user.ID, uploads)
	if len(records) == 0 && len(uploadErrs) > 0 {
		return h.mapFileError(c, uploadErrs[0])
	}

	errMessages := make([]string, 0, len(uploadErrs))
	for _, e := range uploadErrs {
		errMessages = append(errMessages, e.Error())
	}

	return response.Created(c, fiber.Map{
		"files":  records,
		"errors": errMessages,
	})
}

// ListFiles handles GET /api/v1/projects/:id/files
func (h *DocumentHandler) ListFiles(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	files, err := h.fileService.ListFiles(c.Context(), projectID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list files")
	}

	return response.Success(c, files)
}

// GetIngestionStatus handles GET /api/v1/projects/:id/files/status
func (h *DocumentHandler) GetIngestionStatus(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	status, err := h.fileService.GetIngestionStatus(c.Context(), projectID)
	if err != nil {
		return h.mapFileError(c, err)
	}

	return response.Success(c, status)
}

// DeleteFile handles DELETE /api/v1/projects/:id/files/:fileId
func (h *DocumentHandler) DeleteFile(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	fileID, err := parseID(c, "fileId")
	if err != nil {
		return response.BadRequest(c, "Invalid file ID")
	}

	user, accessErr := h.requireAccess(c, projectID)
	if accessErr != nil {
		return accessErr
	}

	if err := h.fileService.DeleteFile(c.Context(), projectID, fileID, user.ID); err != nil {
		if errors.Is(err, services.ErrFileNotFound) {
			return response.NotFound(c, "File not found")
		}
		return response.InternalServerError(c, "Failed to delete file")
	}

	return response.SuccessWithMessage(c, "File deleted", nil)
}

// DownloadFile handles GET /api/v1/projects/:id/files/:fileId/download
func (h *DocumentHandler) DownloadFile(c *fiber.Ctx) error {
	projectID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid project ID")
	}
	fileID, err := parseID(c, "fileId")
	if err != nil {
		return response.BadRequest(c, "Invalid file ID")
	}
	if _, err := h.requireAccess(c, projectID); err != nil {
		return err
	}

	file, content, err := h.fileService.DownloadFile(c.Context(), projectID, fileID)
	if err != nil {
		if errors.Is(err, services.ErrFileNotFound) {
			return response.NotFound(c, "File not found")
		}
		return response.NotFound(c, "No archived copy available for this file")
	}

	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+file.Name+`"`)
	return c.Send(content)
}

func (h *DocumentHandler) mapFileError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrAINotReady):
		return response.ServiceUnavailable(c, "Project AI is still being set up")
	case errors.Is(err, services.ErrNotConfigured):
		return response.ServiceUnavailable(c, "AI provider is not configured")
	default:
		return response.BadRequest(c, err.Error())
	}
}
