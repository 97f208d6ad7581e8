package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the development API server
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Seed     SeedConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds token and cookie configuration
type AuthConfig struct {
	JWTSecret         string // empty = random per process
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	AccessCookieName  string
	RefreshCookieName string
	CookieSecure      bool
}

// SeedConfig describes a user created on startup when it does not exist yet
type SeedConfig struct {
	Username    string
	Password    string
	Name        string
	Email       string
	AccountName string
	Role        string
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	accessTTL, err := durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
			CORSOrigins: splitList(envOr("CORS_ORIGINS", "http://localhost:5173")),
		},
		Database: DatabaseConfig{
			URL: envOr("DATABASE_URL", "gresst-dev.sqlite"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL:    accessTTL,
			RefreshTokenTTL:   refreshTTL,
			AccessCookieName:  envOr("ACCESS_COOKIE_NAME", "gresst_access_token"),
			RefreshCookieName: envOr("REFRESH_COOKIE_NAME", "gresst_refresh_token"),
			CookieSecure:      os.Getenv("COOKIE_SECURE") == "true",
		},
		Seed: SeedConfig{
			Username:    os.Getenv("SEED_USER_USERNAME"),
			Password:    os.Getenv("SEED_USER_PASSWORD"),
			Name:        envOr("SEED_USER_NAME", "Dev User"),
			Email:       os.Getenv("SEED_USER_EMAIL"),
			AccountName: envOr("SEED_USER_ACCOUNT", "Dev Account"),
			Role:        envOr("SEED_USER_ROLE", "admin"),
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
	}, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
