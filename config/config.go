package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort        string
	DatabaseURL       string
	LogLevel          string
	UploadDir         string
	MaxUploadMB       int
	StagingTTLMinutes int
}

// GetStagingTTL returns how long a parsed upload is held between the upload
// and configure steps before the cleanup job discards it
func (c *Config) GetStagingTTL() time.Duration {
	return time.Duration(c.StagingTTLMinutes) * time.Minute
}

// GetMaxUploadBytes returns the upload size limit in bytes
func (c *Config) GetMaxUploadBytes() int {
	return c.MaxUploadMB * 1024 * 1024
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads/backgrounds"),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 10),
		StagingTTLMinutes: getEnvInt("STAGING_TTL_MINUTES", 30),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return n
}
