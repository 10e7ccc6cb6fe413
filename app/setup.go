package app

import (
	"fmt"
	"log"
	"os"

	"github.com/collabhub/api/api"
	"github.com/collabhub/api/config"
	"github.com/collabhub/api/database"
	"github.com/collabhub/api/router"
	"github.com/collabhub/api/services"
	"github.com/collabhub/api/services/cron"
)

func SetupAndRunServer() error {
	if err := config.LoadENV(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	store, err := database.StartGORM()
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Reconciliation cron keeps local and remote AI state in sync
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" {
		db := store.GetDB()
		settingsService := services.NewSettingsService(db)
		aiSetupService := services.NewAISetupService(db, settingsService)
		cronManager = cron.NewCronManager(db, aiSetupService, settingsService)
		if err := cronManager.Start(); err != nil {
			log.Printf("Warning: Failed to start cron jobs: %v", err)
		}
	}

	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		store.Close()
	}()

	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	router.SetupRoutes(app, store)

	return server.Run()
}
