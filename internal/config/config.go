// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the trainer service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	TrainingDrainWait time.Duration // Max time to wait for in-flight training tasks on shutdown

	DatabaseURL   string // Postgres job store; empty selects the in-memory store
	DataDir       string // Root directory for the filesystem blob store
	MaxUploadSize int64  // Upper bound for dataset uploads in bytes

	TrainerImage string // Container image the docker runner executes per job

	CallbackURL string // Default webhook destination for jobs without their own
	CallbackKey string // HMAC key for signing default webhook deliveries
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		TrainingDrainWait: GetDurationEnv("TRAINING_DRAIN_WAIT", 30*time.Second),
		DatabaseURL:       GetEnv("DATABASE_URL", ""),
		DataDir:           GetEnv("DATA_DIR", "/var/lib/trainer"),
		MaxUploadSize:     GetInt64Env("MAX_UPLOAD_SIZE", 512<<20),
		TrainerImage:      GetEnv("TRAINER_IMAGE", "model-trainer:latest"),
		CallbackURL:       GetEnv("CALLBACK_URL", ""),
		CallbackKey:       GetSecretFile(GetEnv("CALLBACK_KEY_FILE", "")),
	}
}
