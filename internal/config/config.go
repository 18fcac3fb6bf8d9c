package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"carbon-scribe/verification-engine/internal/verification/methodology"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Storage      StorageConfig      `json:"storage"`
	Verification VerificationConfig `json:"verification"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// StorageConfig configures the evidence store. An empty bucket selects the in-memory store.
type StorageConfig struct {
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
	Prefix   string `json:"prefix"`
}

// VerificationConfig configures methodology handlers, the evidence pipeline and expiry
type VerificationConfig struct {
	VWBA               methodology.VWBAPolicy `json:"vwba"`
	MaxConcurrentFiles int                    `json:"max_concurrent_files"`
	ArchiveAttempts    int                    `json:"archive_attempts"`
	ArchiveRetryDelay  time.Duration          `json:"archive_retry_delay"`
	Validity           time.Duration          `json:"validity"`
	ExpirySchedule     string                 `json:"expiry_schedule"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "carbonscribe_verification",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			Prefix: "evidence",
		},
		Verification: VerificationConfig{
			VWBA:               methodology.DefaultVWBAPolicy(),
			MaxConcurrentFiles: 8,
			ArchiveAttempts:    3,
			ArchiveRetryDelay:  200 * time.Millisecond,
			Validity:           365 * 24 * time.Hour,
			ExpirySchedule:     "0 * * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file, a .env file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

func overrideWithEnv(config *Config) error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if err := envInt("SERVER_PORT", &config.Server.Port); err != nil {
		return err
	}

	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if err := envInt("DATABASE_PORT", &config.Database.Port); err != nil {
		return err
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		config.Database.SSLMode = sslMode
	}

	if bucket := os.Getenv("EVIDENCE_S3_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if region := os.Getenv("EVIDENCE_S3_REGION"); region != "" {
		config.Storage.Region = region
	}
	if endpoint := os.Getenv("EVIDENCE_S3_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if prefix := os.Getenv("EVIDENCE_S3_PREFIX"); prefix != "" {
		config.Storage.Prefix = prefix
	}

	v := &config.Verification
	if err := envFloat("VERIFICATION_VWBA_MIN_CONFIDENCE", &v.VWBA.MinimumConfidence); err != nil {
		return err
	}
	if err := envFloat("VERIFICATION_VWBA_MAX_UNCERTAINTY", &v.VWBA.MaxUncertainty); err != nil {
		return err
	}
	if err := envFloat("VERIFICATION_VWBA_MIN_PERIOD_DAYS", &v.VWBA.MinPeriodDays); err != nil {
		return err
	}
	if err := envInt("VERIFICATION_MAX_CONCURRENT_FILES", &v.MaxConcurrentFiles); err != nil {
		return err
	}
	if err := envInt("VERIFICATION_ARCHIVE_ATTEMPTS", &v.ArchiveAttempts); err != nil {
		return err
	}
	if err := envDuration("VERIFICATION_ARCHIVE_RETRY_DELAY", &v.ArchiveRetryDelay); err != nil {
		return err
	}
	if err := envDuration("VERIFICATION_VALIDITY", &v.Validity); err != nil {
		return err
	}
	if schedule := os.Getenv("VERIFICATION_EXPIRY_SCHEDULE"); schedule != "" {
		v.ExpirySchedule = schedule
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	return nil
}

func envFloat(key string, dst *float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
