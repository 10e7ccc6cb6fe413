package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/utils/crypto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotConfigured indicates a required setting has no value in the database
// or the environment
var ErrNotConfigured = errors.New("setting is not configured")

// DefaultAssistantModel is used when no model override is configured
const DefaultAssistantModel = "gpt-4o-mini"

// SettingsService manages application-wide settings. Secret values are
// encrypted at rest and fall back to environment variables when the database
// holds nothing, so fresh deployments work before an admin saves anything.
type SettingsService struct {
	db *gorm.DB
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Get returns the decrypted value of a setting
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	var setting model.AppSetting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotConfigured
		}
		return "", fmt.Errorf("failed to load setting %s: %w", key, err)
	}

	if setting.Value == "" {
		return "", ErrNotConfigured
	}

	if setting.IsEncrypted {
		plain, err := crypto.OpenValueFromStorage(setting.Value)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt setting %s: %w", key, err)
		}
		return plain, nil
	}

	return setting.Value, nil
}

// Set stores a setting, encrypting it when secret is true. Existing values
// are overwritten.
func (s *SettingsService) Set(ctx context.Context, key, value string, secret bool) error {
	stored := value
	if secret && value != "" {
		sealed, err := crypto.SealValueForStorage(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt setting %s: %w", key, err)
		}
		stored = sealed
	}

	setting := model.AppSetting{
		Key:         key,
		Value:       stored,
		IsEncrypted: secret,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "is_encrypted", "updated_at"}),
		}).
		Create(&setting).Error; err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}

	return nil
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *SettingsService) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&model.AppSetting{}).Error; err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// List returns all settings with secret values masked
func (s *SettingsService) List(ctx context.Context) ([]model.AppSetting, error) {
	var settings []model.AppSetting
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	for i := range settings {
		if settings[i].IsEncrypted && settings[i].Value != "" {
			settings[i].Value = "********"
		}
	}

	return settings, nil
}

// GetOpenAIAPIKey returns the API key used for assistant operations,
// preferring the stored setting and falling back to OPENAI_API_KEY
func (s *SettingsService) GetOpenAIAPIKey(ctx context.Context) (string, error) {
	key, err := s.Get(ctx, model.SettingOpenAIAPIKey)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotConfigured) {
		return "", err
	}

	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		return envKey, nil
	}

	return "", ErrNotConfigured
}

// GetOpenAIAdminAPIKey returns the elevated key used for account-level
// cleanup, falling back to the regular key when none is configured
func (s *SettingsService) GetOpenAIAdminAPIKey(ctx context.Context) (string, error) {
	key, err := s.Get(ctx, model.SettingOpenAIAdminAPIKey)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotConfigured) {
		return "", err
	}

	return s.GetOpenAIAPIKey(ctx)
}

// GetOpenAIModel returns the configured assistant model, falling back to
// OPENAI_MODEL and then the default
func (s *SettingsService) GetOpenAIModel(ctx context.Context) string {
	modelName, err := s.Get(ctx, model.SettingOpenAIModel)
	if err == nil && modelName != "" {
		return modelName
	}

	if envModel := os.Getenv("OPENAI_MODEL"); envModel != "" {
		return envModel
	}

	return DefaultAssistantModel
}
