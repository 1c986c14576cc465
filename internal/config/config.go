package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	S3       S3Config
	Analysis AnalysisConfig
	JWT      JWTConfig
	Cleanup  CleanupConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// MongoDBConfig holds MongoDB connection details
type MongoDBConfig struct {
	URI        string
	Username   string
	Password   string
	Host       string
	Port       string
	Database   string
	Collection string
	AuthSource string // Database to authenticate against (default: admin)
}

// S3Config holds S3 connection details
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for S3-compatible services like MinIO
}

// AnalysisConfig holds the external analysis service details
type AnalysisConfig struct {
	URL            string
	TimeoutSeconds int
	CallbackURL    string // URL the worker posts completion callbacks to
}

// JWTConfig holds JWT signing configuration
type JWTConfig struct {
	Secret string
}

// CleanupConfig holds the failed-report sweeper configuration
type CleanupConfig struct {
	Enabled  bool
	Schedule string // cron expression
	DaysOld  int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		MongoDB: MongoDBConfig{
			URI:        getEnv("MONGODB_URI", ""),
			Username:   getEnv("MONGODB_USERNAME", ""),
			Password:   getEnv("MONGODB_PASSWORD", ""),
			Host:       getEnv("MONGODB_HOST", "localhost"),
			Port:       getEnv("MONGODB_PORT", "27017"),
			Database:   getEnv("MONGODB_DATABASE", "reports"),
			Collection: getEnv("MONGODB_COLLECTION", "reports"),
			AuthSource: getEnv("MONGODB_AUTH_SOURCE", "admin"),
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Optional for MinIO/custom S3
		},
		Analysis: AnalysisConfig{
			URL:            getEnv("ANALYSIS_SERVICE_URL", ""),
			TimeoutSeconds: getEnvInt("ANALYSIS_SERVICE_TIMEOUT", 30),
			CallbackURL:    getEnv("ANALYSIS_CALLBACK_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Cleanup: CleanupConfig{
			Enabled:  getEnvBool("CLEANUP_ENABLED", true),
			Schedule: getEnv("CLEANUP_SCHEDULE", "0 3 * * *"),
			DaysOld:  getEnvInt("CLEANUP_DAYS_OLD", 7),
		},
	}

	// Validate required fields
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required")
	}
	if cfg.S3.AccessKeyID == "" {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID is required")
	}
	if cfg.S3.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3_SECRET_ACCESS_KEY is required")
	}
	if cfg.Analysis.URL == "" {
		return nil, fmt.Errorf("ANALYSIS_SERVICE_URL is required")
	}
	if cfg.Cleanup.DaysOld <= 0 {
		return nil, fmt.Errorf("CLEANUP_DAYS_OLD must be positive")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
