package router

import (
	"log"
	"os"
	"time"

	"github.com/collabhub/api/database"
	"github.com/collabhub/api/handlers"
	admin_handlers "github.com/collabhub/api/handlers/admin"
	document_handlers "github.com/collabhub/api/handlers/document"
	project_handlers "github.com/collabhub/api/handlers/project"
	thread_handlers "github.com/collabhub/api/handlers/thread"
	"github.com/collabhub/api/model"
	"github.com/collabhub/api/services"
	"github.com/collabhub/api/services/storage"
	"github.com/collabhub/api/utils/auth"
	"github.com/collabhub/api/utils/cache"
	"github.com/collabhub/api/utils/middleware"
	"github.com/gofiber/fiber/v2"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "collabhub-api"
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: jwtSecret,
		Expiry: 24 * time.Hour,
		Issuer: jwtIssuer,
	})

	db := store.GetDB()

	// Redis backs the per-user chat rate limit; the API works without it
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Chat rate limiting will be disabled.", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)
	chatLimiter := middleware.NewChatRateLimiter(redisCache, 30, time.Minute)

	// Archival storage is optional; without credentials uploads still work,
	// only the download endpoint loses its source
	var archiveClient *storage.Client
	if os.Getenv("STORAGE_ACCESS_KEY") != "" {
		archiveClient, err = storage.NewClient(storage.Config{
			AccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey: os.Getenv("STORAGE_SECRET_KEY"),
			Bucket:    os.Getenv("STORAGE_BUCKET"),
			Region:    os.Getenv("STORAGE_REGION"),
			Endpoint:  os.Getenv("STORAGE_ENDPOINT"),
		})
		if err != nil {
			log.Printf("Warning: Failed to initialize object storage: %v. File archival will be disabled.", err)
		}
	}

	settingsService := services.NewSettingsService(db)
	aiSetupService := services.NewAISetupService(db, settingsService)
	projectService := services.NewProjectService(db, aiSetupService)
	fileService := services.NewFileService(db, settingsService, archiveClient)
	conversationService := services.NewConversationService(db, settingsService)

	projectHandler := project_handlers.NewProjectHandler(db, projectService, aiSetupService)
	threadHandler := thread_handlers.NewThreadHandler(db, conversationService)
	documentHandler := document_handlers.NewDocumentHandler(db, fileService)
	settingsHandler := admin_handlers.NewSettingsHandler(settingsService)

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,
		RateLimitWindow:   1 * time.Minute,
	})

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error {
		return handlers.HandleCheckHealth(c, store)
	})

	api := app.Group("/api/v1")

	// Projects (all protected)
	projects := api.Group("/projects", authMiddleware.Required())
	projects.Post("/", projectHandler.CreateProject)
	projects.Get("/", projectHandler.ListProjects)
	projects.Get("/:id", projectHandler.GetProject)
	projects.Put("/:id", projectHandler.UpdateProject)
	projects.Delete("/:id", projectHandler.DeleteProject)
	projects.Post("/:id/members", projectHandler.AddMember)
	projects.Delete("/:id/members/:userId", projectHandler.RemoveMember)

	// AI provisioning
	projects.Get("/:id/ai/status", projectHandler.GetAIStatus)
	projects.Post("/:id/ai/setup", projectHandler.SetupAI)

	// Threads nested under projects
	projects.Post("/:id/threads", threadHandler.CreateThread)
	projects.Get("/:id/threads", threadHandler.ListThreads)

	// Project files
	projects.Post("/:id/files/upload", documentHandler.UploadFiles)
	projects.Get("/:id/files", documentHandler.ListFiles)
	projects.Get("/:id/files/status", documentHandler.GetIngestionStatus)
	projects.Delete("/:id/files/:fileId", documentHandler.DeleteFile)
	projects.Get("/:id/files/:fileId/download", documentHandler.DownloadFile)

	// Threads (top-level)
	threads := api.Group("/threads", authMiddleware.Required())
	threads.Get("/:id", threadHandler.GetThread)
	threads.Put("/:id", threadHandler.RenameThread)
	threads.Delete("/:id", threadHandler.DeleteThread)
	threads.Get("/:id/messages", threadHandler.ListMessages)
	threads.Post("/:id/messages", chatLimiter.Limit(), threadHandler.SendMessage)
	threads.Get("/:id/runs/:runId", threadHandler.GetRunStatus)

	// Admin settings
	admin := api.Group("/admin", authMiddleware.Required(), middleware.RequireRole(model.UserRoleAdmin))
	admin.Get("/settings", settingsHandler.ListSettings)
	admin.Get("/settings/:key", settingsHandler.GetSetting)
	admin.Put("/settings/:key", settingsHandler.UpsertSetting)
	admin.Delete("/settings/:key", settingsHandler.DeleteSetting)
}
