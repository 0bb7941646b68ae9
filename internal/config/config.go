package config

import (
	"os"
	"strconv"
)

type Config struct {
	DB      DBConfig
	Storage StorageConfig
	MinIO   MinIOConfig
	JWT     JWTConfig
	Server  ServerConfig
	Sentry  SentryConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// StorageConfig selects the file backend. "local" keeps uploads under Root
// on the server's own disk; "minio" stores the same object keys in a
// bucket.
type StorageConfig struct {
	Backend string
	Root    string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret string
}

type ServerConfig struct {
	Port string
	// PublicBaseURL is the externally visible origin used when building
	// file URLs handed back to clients.
	PublicBaseURL string
}

type SentryConfig struct {
	DSN         string
	Environment string
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tarhbox"),
			Password: getEnv("DB_PASSWORD", "tarhbox_secret"),
			Name:     getEnv("DB_NAME", "tarhbox"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "local"),
			Root:    getEnv("STORAGE_ROOT", "uploads"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "tarhbox"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "tarhbox_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "tarhbox"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		Server: ServerConfig{
			Port:          getEnv("SERVER_PORT", "8000"),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8000"),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("APP_ENV", "dev"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
