package admin

import (
	"errors"

	"github.com/collabhub/api/services"
	"github.com/collabhub/api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// SettingsHandler exposes application settings to administrators. Secret
// values are written through the settings service so they are encrypted at
// rest, and never echoed back unmasked.
type SettingsHandler struct {
	settings *services.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// ListSettings handles GET /api/v1/admin/settings
func (h *SettingsHandler) ListSettings(c *fiber.Ctx) error {
	settings, err := h.settings.List(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}
	return response.Success(c, settings)
}

// GetSetting handles GET /api/v1/admin/settings/:key. Secret values come
// back masked.
func (h *SettingsHandler) GetSetting(c *fiber.Ctx) error {
	key := c.Params("key")

	settings, err := h.settings.List(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}

	for _, setting := range settings {
		if setting.Key == key {
			return response.Success(c, setting)
		}
	}
	return response.NotFound(c, "Setting not found")
}

// UpsertSettingRequest represents the request body for saving a setting
type UpsertSettingRequest struct {
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
}

// UpsertSetting handles PUT /api/v1/admin/settings/:key
func (h *SettingsHandler) UpsertSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.BadRequest(c, "Setting key is required")
	}

	var req UpsertSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.settings.Set(c.Context(), key, req.Value, req.Secret); err != nil {
		return response.InternalServerError(c, "Failed to save setting")
	}

	return response.SuccessWithMessage(c, "Setting saved", fiber.Map{"key": key})
}

// DeleteSetting handles DELETE /api/v1/admin/settings/:key
func (h *SettingsHandler) DeleteSetting(c *fiber.Ctx) error {
	key := c.Params("key")

	if err := h.settings.Delete(c.Context(), key); err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			return response.NotFound(c, "Setting not found")
		}
		return response.InternalServerError(c, "Failed to delete setting")
	}

	return response.SuccessWithMessage(c, "Setting deleted", nil)
}
