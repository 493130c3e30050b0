package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Shopfloor server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Attachment AttachmentConfig
	Production ProductionConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
}

// AttachmentConfig configures the remote blob store that holds task files.
type AttachmentConfig struct {
	BaseURL        string
	APIKey         string
	Folder         string
	UploadTimeout  time.Duration
	MaxUploadBytes int64
}

type ProductionConfig struct {
	JobIDMaxAttempts int
	// AdminOwnJobs restricts admin-tier job listings to jobs they created.
	AdminOwnJobs bool
}

type LogConfig struct {
	Level slog.Level
	File  string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SHOPFLOOR_PORT", 8080),
			Env:                envString("SHOPFLOOR_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Attachment: AttachmentConfig{
			BaseURL:        os.Getenv("ATTACHMENT_BASE_URL"),
			APIKey:         os.Getenv("ATTACHMENT_API_KEY"),
			Folder:         envString("ATTACHMENT_FOLDER", "factory/tasks"),
			UploadTimeout:  envDuration("UPLOAD_TIMEOUT", 30*time.Second),
			MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 25<<20)),
		},
		Production: ProductionConfig{
			JobIDMaxAttempts: envInt("JOB_ID_MAX_ATTEMPTS", 10),
			AdminOwnJobs:     envBool("VISIBILITY_ADMIN_OWN_JOBS", false),
		},
		Log: LogConfig{
			Level: envLevel("LOG_LEVEL", slog.LevelInfo),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with SHOPFLOOR_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when SHOPFLOOR_ENV is production")
	}

	if c.Attachment.BaseURL == "" {
		return fmt.Errorf("ATTACHMENT_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Attachment.BaseURL, "http://") && !strings.HasPrefix(c.Attachment.BaseURL, "https://") {
		return fmt.Errorf("ATTACHMENT_BASE_URL must start with http:// or https://, got %q", c.Attachment.BaseURL)
	}
	if c.Attachment.UploadTimeout <= 0 {
		return fmt.Errorf("UPLOAD_TIMEOUT must be positive, got %s", c.Attachment.UploadTimeout)
	}
	if c.Attachment.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Attachment.MaxUploadBytes)
	}

	if c.Production.JobIDMaxAttempts < 1 {
		return fmt.Errorf("JOB_ID_MAX_ATTEMPTS must be at least 1, got %d", c.Production.JobIDMaxAttempts)
	}

	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.Server.RateLimitPerMinute)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return l
}
