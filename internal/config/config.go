package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port          string
	DatabaseURL   string
	SessionSecret string
	CORSOrigins   []string
	UploadAPIURL  string
	UploadAPIKey  string
}

// Load reads a .env file if present, then the environment, and performs
// minimal validation.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          fallback(os.Getenv("PORT"), "8080"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SessionSecret: strings.TrimSpace(os.Getenv("SESSION_JWT_SECRET")),
		CORSOrigins:   parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "http://localhost:3000")),
		UploadAPIURL:  fallback(os.Getenv("UPLOAD_API_URL"), "https://api.imgbb.com/1/upload"),
		UploadAPIKey:  strings.TrimSpace(os.Getenv("UPLOAD_API_KEY")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_JWT_SECRET is required")
	}
	if cfg.UploadAPIKey == "" {
		return Config{}, errors.New("UPLOAD_API_KEY is required")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf("0.0.0.0:%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
