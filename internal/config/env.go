package config

import (
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv populates the process environment from a local .env file when
// one exists. Variables already set in the environment win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// applyEnvOverrides lets secrets and connection strings come from the
// environment instead of the YAML file.
func applyEnvOverrides(cfg *AppConfig, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("BRIEFLY_JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_REDIS_URL")); v != "" {
		cfg.Redis.URL = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_AI_API_KEY")); v != "" {
		cfg.AI.APIKey = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_ADMIN_EMAIL")); v != "" {
		cfg.Admin.Email = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_ADMIN_PASSWORD")); v != "" {
		cfg.Admin.Password = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_MONGO_URI")); v != "" {
		cfg.History.MongoURI = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_S3_ACCESS_KEY_ID")); v != "" {
		cfg.Export.AccessKeyID = v
	}
	if v := strings.TrimSpace(getenv("BRIEFLY_S3_SECRET_ACCESS_KEY")); v != "" {
		cfg.Export.SecretAccessKey = v
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
}
