package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	OTP      OTPConfig
	SMTP     SMTPConfig
	Storage  StorageConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration (OTP store)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	// Secret signs the session JWT carried in the `token` cookie
	Secret string
	// IdleTimeout is the inactivity window after which a session is invalid
	IdleTimeout time.Duration
	// CookieSecure marks the session cookie Secure (disable for local dev)
	CookieSecure bool
	Issuer       string
}

// OTPConfig holds one-time-code configuration
type OTPConfig struct {
	// TTL is how long an issued code stays valid
	TTL time.Duration
	// RequireRegistrationOTP gates account creation behind email verification
	RequireRegistrationOTP bool
}

// SMTPConfig holds outbound mail configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// StorageConfig holds S3/MinIO configuration for avatar images
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	// MaxAvatarBytes caps the decoded avatar payload size
	MaxAvatarBytes int64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tinytulsi_mart"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", ""),
			IdleTimeout:  getDurationEnv("SESSION_IDLE_TIMEOUT", 15*time.Minute),
			CookieSecure: getBoolEnv("SESSION_COOKIE_SECURE", true),
			Issuer:       getEnv("SESSION_ISSUER", "tinytulsi-mart"),
		},
		OTP: OTPConfig{
			TTL:                    getDurationEnv("OTP_TTL", 5*time.Minute),
			RequireRegistrationOTP: getBoolEnv("OTP_REQUIRE_REGISTRATION", false),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getIntEnv("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@tinytulsimart.com"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:          getEnv("STORAGE_BUCKET", "avatars"),
			UseSSL:          getBoolEnv("STORAGE_USE_SSL", false),
			MaxAvatarBytes:  getInt64Env("STORAGE_MAX_AVATAR_BYTES", 2*1024*1024),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
