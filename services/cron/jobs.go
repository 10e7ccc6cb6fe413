package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services"
)

// RetryIncompleteProvisioning finds active projects whose background AI
// setup never finished and runs the remaining steps. Setup is resumable, so
// a project with only a vector store just gets its assistant.
func (m *CronManager) RetryIncompleteProvisioning() {
	const jobName = "retry_incomplete_provisioning"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := m.settings.GetOpenAIAPIKey(ctx); err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			m.logJobComplete(jobName, "skipped, no API key configured")
			return
		}
		m.logJobError(jobName, err)
		return
	}

	var projects []model.Project
	if err := m.db.WithContext(ctx).
		Where("status = ? AND (vector_store_id IS NULL OR assistant_id IS NULL)", model.ProjectStatusActive).
		Where("created_at < ?", time.Now().Add(-5*time.Minute)).
		Limit(20).
		Find(&projects).Error; err != nil {
		m.logJobError(jobName, err)
		return
	}

	if len(projects) == 0 {
		m.logJobComplete(jobName, "no incomplete projects")
		return
	}

	completed := 0
	failed := 0
	for _, project := range projects {
		if _, err := m.aiSetup.SetupProjectAI(ctx, project.ID); err != nil {
			failed++
			continue
		}
		completed++
	}

	m.logJobComplete(jobName, fmt.Sprintf("retried %d projects (%d ok, %d failed)", len(projects), completed, failed))
}

// VerifyAIBindings spot-checks that provisioned projects still have their
// assistant bound to their vector store on the remote side
func (m *CronManager) VerifyAIBindings() {
	const jobName = "verify_ai_bindings"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := m.settings.GetOpenAIAPIKey(ctx); err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			m.logJobComplete(jobName, "skipped, no API key configured")
			return
		}
		m.logJobError(jobName, err)
		return
	}

	var projects []model.Project
	if err := m.db.WithContext(ctx).
		Where("status = ? AND vector_store_id IS NOT NULL AND assistant_id IS NOT NULL", model.ProjectStatusActive).
		Limit(50).
		Find(&projects).Error; err != nil {
		m.logJobError(jobName, err)
		return
	}

	broken := 0
	for _, project := range projects {
		report, err := m.aiSetup.VerifyAssistantVectorStoreConnection(ctx, project.ID)
		if err != nil {
			m.logJobError(jobName, fmt.Errorf("project %d: %w", project.ID, err))
			return
		}
		if !report.Connected {
			broken++
			// log only; repair is an operator action
			m.logJobError(jobName, fmt.Errorf("project %d binding broken: %s", project.ID, report.Detail))
		}
	}

	m.logJobComplete(jobName, fmt.Sprintf("checked %d projects, %d broken bindings", len(projects), broken))
}

// CleanupOldData prunes cron logs older than 30 days and activity entries
// older than 90 days
func (m *CronManager) CleanupOldData() {
	const jobName = "cleanup_old_data"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logCutoff := time.Now().AddDate(0, 0, -30)
	logResult := m.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", logCutoff).
		Delete(&model.CronJobLog{})
	if logResult.Error != nil {
		m.logJobError(jobName, logResult.Error)
		return
	}

	activityCutoff := time.Now().AddDate(0, 0, -90)
	activityResult := m.db.WithContext(ctx).
		Where("created_at < ?", activityCutoff).
		Delete(&model.UserActivity{})
	if activityResult.Error != nil {
		m.logJobError(jobName, activityResult.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("pruned %d cron logs, %d activity entries",
		logResult.RowsAffected, activityResult.RowsAffected))
}
