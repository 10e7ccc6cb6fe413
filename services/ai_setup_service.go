package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services/openai"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAINotReady indicates a project has not finished AI provisioning
var ErrAINotReady = errors.New("project AI resources are not provisioned")

// AISetupService provisions and tears down the remote AI resources backing a
// project: one vector store and one assistant bound to it. Provisioning runs
// as two independently committed steps so a partial failure keeps its
// progress and a retry resumes where it stopped.
type AISetupService struct {
	db       *gorm.DB
	settings *SettingsService

	// ClientFactory builds the API client for a given key. Tests point it
	// at a local fake server.
	ClientFactory func(apiKey string) *openai.Client
}

// NewAISetupService creates a new AI setup service
func NewAISetupService(db *gorm.DB, settings *SettingsService) *AISetupService {
	return &AISetupService{
		db:       db,
		settings: settings,
		ClientFactory: func(apiKey string) *openai.Client {
			return openai.NewClient(openai.Config{APIKey: apiKey})
		},
	}
}

// SetupResult reports what a provisioning pass created
type SetupResult struct {
	ProjectID          uint `json:"project_id"`
	VectorStoreCreated bool `json:"vector_store_created"`
	AssistantCreated   bool `json:"assistant_created"`
}

func (s *AISetupService) client(ctx context.Context) (*openai.Client, error) {
	apiKey, err := s.settings.GetOpenAIAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.ClientFactory(apiKey), nil
}

// SetupProjectAI provisions the vector store and assistant for a project.
// Steps already completed on a previous attempt are skipped, so the call is
// safe to retry after any failure.
func (s *AISetupService) SetupProjectAI(ctx context.Context, projectID uint) (*SetupResult, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project not found")
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	result := &SetupResult{ProjectID: project.ID}

	// Step 1: vector store
	if project.VectorStoreID == nil {
		storeID, err := s.provisionVectorStore(ctx, client, &project)
		if err != nil {
			return result, fmt.Errorf("vector store setup failed: %w", err)
		}
		project.VectorStoreID = &storeID
		result.VectorStoreCreated = true
		log.Printf("AISetupService: Created vector store for project %d", project.ID)
	}

	// Step 2: assistant bound to the store
	if project.AssistantID == nil {
		var store model.VectorStore
		if err := s.db.WithContext(ctx).First(&store, *project.VectorStoreID).Error; err != nil {
			return result, fmt.Errorf("failed to load vector store record: %w", err)
		}

		if _, err := s.provisionAssistant(ctx, client, &project, &store); err != nil {
			return result, fmt.Errorf("assistant setup failed: %w", err)
		}
		result.AssistantCreated = true
		log.Printf("AISetupService: Created assistant for project %d", project.ID)
	}

	return result, nil
}

// SetupProjectAIAsync starts provisioning in the background. Failures are
// logged; the project stays in the not-ready state and a later retry can
// finish the remaining steps.
func (s *AISetupService) SetupProjectAIAsync(projectID uint) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if _, err := s.SetupProjectAI(ctx, projectID); err != nil {
			log.Printf("AISetupService: Background setup failed for project %d: %v", projectID, err)
		}
	}()
}

// provisionVectorStore creates the remote store and commits the local row and
// project link in one transaction, returning the local row ID
func (s *AISetupService) provisionVectorStore(ctx context.Context, client *openai.Client, project *model.Project) (uint, error) {
	remote, err := client.CreateVectorStore(ctx, openai.CreateVectorStoreRequest{
		Name: fmt.Sprintf("project-%d-%s", project.ID, project.Name),
		Metadata: map[string]string{
			"project_id": fmt.Sprintf("%d", project.ID),
		},
	})
	if err != nil {
		return 0, err
	}

	configJSON, _ := json.Marshal(map[string]interface{}{
		"status":     remote.Status,
		"created_at": remote.CreatedAt,
	})

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	store := &model.VectorStore{
		ProjectID:           project.ID,
		OpenAIVectorStoreID: remote.ID,
		Name:                remote.Name,
		Configuration:       datatypes.JSON(configJSON),
	}
	if err := tx.Create(store).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to create vector store record: %w", err)
	}

	if err := tx.Model(&model.Project{}).Where("id = ?", project.ID).
		Update("vector_store_id", store.ID).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to link vector store to project: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return store.ID, nil
}

// provisionAssistant creates the remote assistant bound to the project's
// vector store and commits the local row and project link in one transaction
func (s *AISetupService) provisionAssistant(ctx context.Context, client *openai.Client, project *model.Project, store *model.VectorStore) (uint, error) {
	modelName := s.settings.GetOpenAIModel(ctx)
	instructions := assistantInstructions(project)

	remote, err := client.CreateAssistant(ctx, openai.CreateAssistantRequest{
		Name:          fmt.Sprintf("project-%d-assistant", project.ID),
		Model:         modelName,
		Instructions:  instructions,
		VectorStoreID: store.OpenAIVectorStoreID,
	})
	if err != nil {
		return 0, err
	}

	configJSON, _ := json.Marshal(map[string]interface{}{
		"vector_store_id": store.OpenAIVectorStoreID,
		"tools":           []string{"file_search"},
	})

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	assistant := &model.Assistant{
		ProjectID:         project.ID,
		OpenAIAssistantID: remote.ID,
		Name:              remote.Name,
		Model:             remote.Model,
		Instructions:      remote.Instructions,
		Configuration:     datatypes.JSON(configJSON),
	}
	if err := tx.Create(assistant).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to create assistant record: %w", err)
	}

	if err := tx.Model(&model.Project{}).Where("id = ?", project.ID).
		Update("assistant_id", assistant.ID).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to link assistant to project: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return assistant.ID, nil
}

func assistantInstructions(project *model.Project) string {
	instructions := fmt.Sprintf(
		"You are the AI assistant for the project %q. Answer questions using the project's uploaded documents. Cite the relevant file when possible and say so when the documents do not cover a question.",
		project.Name,
	)
	if project.Description != "" {
		instructions += fmt.Sprintf(" Project description: %s", project.Description)
	}
	return instructions
}

// ConnectionReport describes the state of the assistant to vector store
// binding for a project
type ConnectionReport struct {
	ProjectID         uint   `json:"project_id"`
	VectorStoreExists bool   `json:"vector_store_exists"`
	AssistantExists   bool   `json:"assistant_exists"`
	Connected         bool   `json:"connected"`
	Detail            string `json:"detail,omitempty"`
}

// VerifyAssistantVectorStoreConnection checks that both remote resources
// still exist and that the assistant's file_search tool is bound to the
// project's vector store
func (s *AISetupService) VerifyAssistantVectorStoreConnection(ctx context.Context, projectID uint) (*ConnectionReport, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).
		Preload("VectorStore").Preload("Assistant").
		First(&project, projectID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	report := &ConnectionReport{ProjectID: project.ID}

	if !project.AIReady() || project.VectorStore == nil || project.Assistant == nil {
		report.Detail = "project AI resources are not provisioned"
		return report, nil
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := client.RetrieveVectorStore(ctx, project.VectorStore.OpenAIVectorStoreID); err != nil {
		if !openai.IsNotFound(err) {
			return nil, fmt.Errorf("failed to check vector store: %w", err)
		}
		report.Detail = "vector store missing on remote"
		return report, nil
	}
	report.VectorStoreExists = true

	assistant, err := client.RetrieveAssistant(ctx, project.Assistant.OpenAIAssistantID)
	if err != nil {
		if !openai.IsNotFound(err) {
			return nil, fmt.Errorf("failed to check assistant: %w", err)
		}
		report.Detail = "assistant missing on remote"
		return report, nil
	}
	report.AssistantExists = true

	for _, storeID := range assistant.VectorStoreIDs {
		if storeID == project.VectorStore.OpenAIVectorStoreID {
			report.Connected = true
			return report, nil
		}
	}

	report.Detail = "assistant is not bound to the project vector store"
	return report, nil
}

// DeleteAssistant tears down a project's assistant. Returns true when
// something was deleted and (false, nil) when no assistant was linked, so
// repeated teardown calls are harmless. A remote 404 is treated as already
// deleted and local cleanup proceeds.
func (s *AISetupService) DeleteAssistant(ctx context.Context, projectID uint) (bool, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).Preload("Assistant").First(&project, projectID).Error; err != nil {
		return false, fmt.Errorf("failed to fetch project: %w", err)
	}

	if project.AssistantID == nil || project.Assistant == nil {
		return false, nil
	}

	client, err := s.client(ctx)
	if err != nil {
		return false, err
	}

	if err := client.DeleteAssistant(ctx, project.Assistant.OpenAIAssistantID); err != nil && !openai.IsNotFound(err) {
		return false, fmt.Errorf("failed to delete remote assistant: %w", err)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	if err := tx.Model(&model.Project{}).Where("id = ?", project.ID).
		Update("assistant_id", nil).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("failed to unlink assistant: %w", err)
	}
	if err := tx.Delete(&model.Assistant{}, *project.AssistantID).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("failed to delete assistant record: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("AISetupService: Deleted assistant for project %d", project.ID)
	return true, nil
}

// DeleteVectorStore tears down a project's vector store with the same
// idempotent semantics as DeleteAssistant
func (s *AISetupService) DeleteVectorStore(ctx context.Context, projectID uint) (bool, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).Preload("VectorStore").First(&project, projectID).Error; err != nil {
		return false, fmt.Errorf("failed to fetch project: %w", err)
	}

	if project.VectorStoreID == nil || project.VectorStore == nil {
		return false, nil
	}

	client, err := s.client(ctx)
	if err != nil {
		return false, err
	}

	if err := client.DeleteVectorStore(ctx, project.VectorStore.OpenAIVectorStoreID); err != nil && !openai.IsNotFound(err) {
		return false, fmt.Errorf("failed to delete remote vector store: %w", err)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	if err := tx.Model(&model.Project{}).Where("id = ?", project.ID).
		Update("vector_store_id", nil).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("failed to unlink vector store: %w", err)
	}
	if err := tx.Delete(&model.VectorStore{}, *project.VectorStoreID).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("failed to delete vector store record: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("AISetupService: Deleted vector store for project %d", project.ID)
	return true, nil
}

// TeardownProjectAI removes both AI resources. The assistant goes first so
// no assistant is ever left pointing at a deleted store.
func (s *AISetupService) TeardownProjectAI(ctx context.Context, projectID uint) error {
	if _, err := s.DeleteAssistant(ctx, projectID); err != nil {
		return err
	}
	if _, err := s.DeleteVectorStore(ctx, projectID); err != nil {
		return err
	}
	return nil
}
