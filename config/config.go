package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// EnvTest is the APP_ENV value used by the test suite.
const EnvTest = "test"

// Config holds application configuration loaded from environment.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Mailing  MailingConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	PublicURL          string // frontend origin used in emailed links
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/larpcal?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int // 0 keeps the pgx default
}

// RedisConfig holds Redis connection settings. Redis is optional; an empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret             string
	ExpireHours        int
	ResetExpireMinutes int
}

// AWSConfig holds AWS credentials and the image bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ImagesBucket    string
}

// MailingConfig holds Brevo settings.
type MailingConfig struct {
	APIKey      string
	BaseURL     string
	SenderEmail string
	SenderName  string
	AdminListID int64 // platform newsletter list
	FolderID    int64 // parent folder for organization lists; 0 = first remote folder
}

// AuthConfig holds password hashing settings.
type AuthConfig struct {
	BcryptCost int
}

// IsTest reports whether the process runs under the test environment.
func (c *Config) IsTest() bool { return c.Env == EnvTest }

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
// With APP_ENV=test, .env.test is read instead of .env.
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	if env == EnvTest {
		_ = godotenv.Load(".env.test")
	} else {
		_ = godotenv.Load()
	}

	bcryptCost := getEnvInt("BCRYPT_WORK_FACTOR", 13)
	if env == EnvTest {
		bcryptCost = bcrypt.MinCost
	}

	cfg := &Config{
		Env: env,
		Server: ServerConfig{
			Port:               getEnv("PORT", "3001"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_URL", "http://localhost:5173"),
			PublicURL:          getEnv("PUBLIC_URL", getEnv("CORS_URL", "http://localhost:5173")),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "larpcal"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:             os.Getenv("SECRET_KEY"),
			ExpireHours:        getEnvInt("JWT_EXPIRE_HOURS", 24*7),
			ResetExpireMinutes: getEnvInt("PASSWORD_RESET_EXPIRE_MINUTES", 10),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			ImagesBucket:    os.Getenv("BUCKET_NAME"),
		},
		Mailing: MailingConfig{
			APIKey:      os.Getenv("BREVO_API_KEY"),
			BaseURL:     getEnv("BREVO_BASE_URL", "https://api.brevo.com/v3"),
			SenderEmail: getEnv("BREVO_SENDER_EMAIL", "noreply@larpcal.com"),
			SenderName:  getEnv("BREVO_SENDER_NAME", "LARPCal"),
			AdminListID: getEnvInt64("BREVO_ADMIN_LIST_ID", 0),
			FolderID:    getEnvInt64("BREVO_FOLDER_ID", 0),
		},
		Auth: AuthConfig{
			BcryptCost: bcryptCost,
		},
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("SECRET_KEY must be set")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
