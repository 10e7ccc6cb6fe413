package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadENV loads environment variables from .env when not running in production
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration (tokens are issued by the external auth service;
	// the shared secret is only used to validate them)
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL string
	// Settings encryption (key material for encrypted app settings)
	SETTINGS_ENCRYPTION_KEY string
	// Object storage for archival copies of uploaded documents
	STORAGE_BUCKET   string
	STORAGE_REGION   string
	STORAGE_ENDPOINT string
	// Fallback OpenAI credentials when no app setting is stored
	OPENAI_API_KEY string
	OPENAI_MODEL   string
}

func Get() (*EnvironmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// Crypto
		SETTINGS_ENCRYPTION_KEY: os.Getenv("SETTINGS_ENCRYPTION_KEY"),
		// Object storage
		STORAGE_BUCKET:   os.Getenv("STORAGE_BUCKET"),
		STORAGE_REGION:   os.Getenv("STORAGE_REGION"),
		STORAGE_ENDPOINT: os.Getenv("STORAGE_ENDPOINT"),
		// OpenAI fallbacks
		OPENAI_API_KEY: os.Getenv("OPENAI_API_KEY"),
		OPENAI_MODEL:   os.Getenv("OPENAI_MODEL"),
	}

	return envVariables, nil
}
