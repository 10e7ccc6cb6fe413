package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/collabhub/api/database"
	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services/openai"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// newTestDB opens a fresh in-memory sqlite database with the full schema.
// Each test gets its own named database so state never leaks between tests.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the shared-cache database alive and avoids
	// sqlite write contention under transactions
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role model.UserRole) *model.User {
	t.Helper()

	user := &model.User{
		Email:    email,
		Name:     "Test User",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestProject(t *testing.T, db *gorm.DB, creatorID uint, status model.ProjectStatus) *model.Project {
	t.Helper()

	project := &model.Project{
		Name:        "Test Project",
		Description: "A project used in tests",
		Status:      status,
		CreatedByID: creatorID,
	}
	require.NoError(t, db.Create(project).Error)
	require.NoError(t, db.Create(&model.ProjectMember{
		ProjectID: project.ID,
		UserID:    creatorID,
		AddedByID: creatorID,
	}).Error)
	return project
}

// provisionTestProject wires remote-mirror rows and project links directly so
// tests that only need an AI-ready project skip the provisioning flow
func provisionTestProject(t *testing.T, db *gorm.DB, project *model.Project, storeID, assistantID string) (*model.VectorStore, *model.Assistant) {
	t.Helper()

	store := &model.VectorStore{
		ProjectID:           project.ID,
		OpenAIVectorStoreID: storeID,
		Name:                "test-store",
	}
	require.NoError(t, db.Create(store).Error)

	assistant := &model.Assistant{
		ProjectID:         project.ID,
		OpenAIAssistantID: assistantID,
		Name:              "test-assistant",
		Model:             "gpt-4o-mini",
		Instructions:      "answer from the project documents",
	}
	require.NoError(t, db.Create(assistant).Error)

	require.NoError(t, db.Model(project).Updates(map[string]interface{}{
		"vector_store_id": store.ID,
		"assistant_id":    assistant.ID,
	}).Error)

	project.VectorStoreID = &store.ID
	project.AssistantID = &assistant.ID
	return store, assistant
}

func openaiUsage(prompt, completion, total int) openai.RunUsage {
	return openai.RunUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}
