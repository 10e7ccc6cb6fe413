package cron

import (
	"log"
	"time"

	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// CronManager schedules the background reconciliation jobs that keep local
// AI records and remote resources in sync
type CronManager struct {
	cron     *cron.Cron
	db       *gorm.DB
	aiSetup  *services.AISetupService
	settings *services.SettingsService
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, aiSetup *services.AISetupService, settings *services.SettingsService) *CronManager {
	return &CronManager{
		cron:     cron.New(cron.WithSeconds()),
		db:       db,
		aiSetup:  aiSetup,
		settings: settings,
	}
}

// Start registers and starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()
	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

func (m *CronManager) registerJobs() error {
	// Every 10 minutes: retry provisioning for projects that never finished
	_, err := m.cron.AddFunc("0 */10 * * * *", func() {
		m.logJobStart("retry_incomplete_provisioning")
		m.RetryIncompleteProvisioning()
	})
	if err != nil {
		return err
	}

	// Every 6 hours: verify assistant to vector store bindings
	_, err = m.cron.AddFunc("0 0 */6 * * *", func() {
		m.logJobStart("verify_ai_bindings")
		m.VerifyAIBindings()
	})
	if err != nil {
		return err
	}

	// Daily at 3 AM: prune old cron logs and activity entries
	_, err = m.cron.AddFunc("0 0 3 * * *", func() {
		m.logJobStart("cleanup_old_data")
		m.CleanupOldData()
	})
	if err != nil {
		return err
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

func (m *CronManager) logJobStart(jobName string) {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: time.Now(),
	}
	m.db.Create(&cronLog)
}

func (m *CronManager) logJobComplete(jobName string, message string) {
	log.Printf("[CRON] Completed job: %s - %s", jobName, message)

	m.db.Model(&model.CronJobLog{}).
		Where("job_name = ? AND status = ?", jobName, "running").
		Order("started_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"status":       "completed",
			"completed_at": time.Now(),
			"message":      message,
		})
}

func (m *CronManager) logJobError(jobName string, err error) {
	log.Printf("[CRON] Error in job: %s - %v", jobName, err)

	m.db.Model(&model.CronJobLog{}).
		Where("job_name = ? AND status = ?", jobName, "running").
		Order("started_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"status":       "failed",
			"completed_at": time.Now(),
			"error_msg":    err.Error(),
		})
}
