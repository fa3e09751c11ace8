package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	App      AppConfig
	Log      LogConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Driver      string // "postgres" or "memory"
	Host        string
	Port        int
	Username    string
	Password    string
	DBName      string
	SSLMode     string
	TestDBName  string // Separate database for testing
	LockTimeout time.Duration
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	JWTSecret   string
	CSRFEnabled bool
}

// StorageConfig says where uploaded slips and contract documents live
type StorageConfig struct {
	Driver       string // "local" or "s3"
	Root         string // local directory the public prefix is served from
	PublicPrefix string
	S3Bucket     string
}

// AppConfig holds behaviour switches
type AppConfig struct {
	Env          string
	Debug        bool
	Locale       string
	Timezone     string
	BaseURL      string
	ContractFont string // UTF-8 TrueType font for contract PDFs
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// Location resolves the configured timezone, falling back to UTC
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", "postgres"),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvAsInt("DB_PORT", 5432),
			Username:    getEnv("DB_USERNAME", "postgres"),
			Password:    getEnv("DB_PASSWORD", "password"),
			DBName:      getEnv("DB_NAME", "landrent"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			TestDBName:  getEnv("TEST_DB_NAME", "landrent_test"),
			LockTimeout: getEnvAsDuration("DB_LOCK_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-here"),
			CSRFEnabled: getEnvAsBool("CSRF_ENABLED", false),
		},
		Storage: StorageConfig{
			Driver:       getEnv("STORAGE_DRIVER", "local"),
			Root:         getEnv("STORAGE_ROOT", "./public"),
			PublicPrefix: getEnv("STORAGE_PUBLIC_PREFIX", "/storage/uploads"),
			S3Bucket:     getEnv("S3_ASSETS_BUCKET", ""),
		},
		App: AppConfig{
			Env:          getEnv("APP_ENV", "development"),
			Debug:        getEnvAsBool("APP_DEBUG", false),
			Locale:       getEnv("APP_LOCALE", "th"),
			Timezone:     getEnv("APP_TIMEZONE", "Asia/Bangkok"),
			BaseURL:      getEnv("APP_BASE_URL", "http://localhost:8080"),
			ContractFont: getEnv("CONTRACT_FONT_PATH", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
