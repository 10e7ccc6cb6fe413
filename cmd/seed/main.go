package main

import (
	"log"
	"os"

	"github.com/collabhub/api/database"
	"github.com/collabhub/api/model"
	"github.com/joho/godotenv"
	"gorm.io/gorm/clause"
)

// Seeds the users table with an admin identity so externally issued admin
// tokens resolve to a local principal. Controlled by ADMIN_EMAIL.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	store, err := database.StartGORM()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	db := store.GetDB()
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		log.Println("ADMIN_EMAIL not set, skipping admin user creation")
		return
	}

	adminName := os.Getenv("ADMIN_NAME")
	if adminName == "" {
		adminName = "Administrator"
	}

	admin := model.User{
		Email:    adminEmail,
		Name:     adminName,
		Role:     model.UserRoleAdmin,
		IsActive: true,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "is_active"}),
	}).Create(&admin).Error; err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	log.Printf("Seeded admin user %s (id %d)", admin.Email, admin.ID)
}
