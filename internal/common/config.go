package common

import (
	"os"
	"strconv"
	"time"

	"github.com/formflow/formflow/constants"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Upload    UploadConfig
	Normalize NormalizeConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds session store configuration. When DSN is set the
// Postgres store is used; otherwise SQLite at Path.
type DatabaseConfig struct {
	DSN             string
	Path            string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// LLMConfig holds external-model configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
}

// UploadConfig holds per-session file storage configuration
type UploadConfig struct {
	Root        string
	MaxUploadMB int64
	MaxMemoryMB int64
}

// NormalizeConfig holds document rasterization configuration
type NormalizeConfig struct {
	DPI          int
	PdftoppmPath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
			AllowedOrigins:  []string{getEnv("ALLOWED_ORIGIN", "*")},
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			Path:            getEnv("DB_PATH", "./data/form_sessions.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLAMA_BASE_URL", "https://api.llama.com/compat/v1"),
			Model:       getEnv("LLAMA_MODEL", "Llama-4-Maverick-17B-128E-Instruct-FP8"),
			APIKey:      getEnv("LLAMA_API_KEY", ""),
			Temperature: getEnvAsFloat32("LLAMA_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLAMA_TIMEOUT", 90*time.Second),
			MaxRetries:  getEnvAsInt("LLAMA_MAX_RETRIES", 1),
		},
		Upload: UploadConfig{
			Root:        getEnv("UPLOAD_ROOT", "./uploads"),
			MaxUploadMB: int64(getEnvAsInt("MAX_UPLOAD_MB", 32)),
			MaxMemoryMB: int64(getEnvAsInt("MAX_MEMORY_MB", 16)),
		},
		Normalize: NormalizeConfig{
			DPI:          getEnvAsInt("RENDER_DPI", constants.DefaultDPI),
			PdftoppmPath: getEnv("PDFTOPPM_PATH", "pdftoppm"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Database.DSN == "" && c.Database.Path == "" {
		return NewAppError("CONFIG_ERROR", "one of DB_URL or DB_PATH is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLAMA_API_KEY is required", ErrInvalidInput)
	}
	if c.Upload.Root == "" {
		return NewAppError("CONFIG_ERROR", "UPLOAD_ROOT is required", ErrInvalidInput)
	}
	return nil
}
