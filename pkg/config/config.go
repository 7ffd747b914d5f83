package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Upload    UploadConfig
	Image     ImageConfig
	RateLimit RateLimitConfig
	Usage     UsageConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
}

type ServerConfig struct {
	Port         string
	Env          string // "development" or "production"
	StaticDir    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type ImageConfig struct {
	MaxBytes int
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type UsageConfig struct {
	CostPer1KTokens float64
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LoggerConfig struct {
	Level string
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for Docker/K8s.
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "150"))
	openaiTimeout, _ := strconv.Atoi(getEnv("OPENAI_TIMEOUT_SECONDS", "120"))
	uploadMaxBytes, _ := strconv.ParseInt(getEnv("UPLOAD_MAX_BYTES", "20971520"), 10, 64) // 20 MB
	imageMaxBytes, _ := strconv.Atoi(getEnv("IMAGE_MAX_BYTES", "15728640"))               // 15 MB
	rateLimitMax, _ := strconv.Atoi(getEnv("RATE_LIMIT_MAX", "5"))
	rateLimitWindow, _ := strconv.Atoi(getEnv("RATE_LIMIT_WINDOW_MINUTES", "15"))
	costPer1K, _ := strconv.ParseFloat(getEnv("COST_PER_1K_TOKENS", "0.002"), 64)
	dbEnabled := getEnv("DB_ENABLED", "false") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "3000"),
			Env:          getEnv("APP_ENV", "development"),
			StaticDir:    getEnv("STATIC_DIR", "web/dist"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout: time.Duration(openaiTimeout) * time.Second,
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "uploads"),
			MaxBytes: uploadMaxBytes,
		},
		Image: ImageConfig{
			MaxBytes: imageMaxBytes,
		},
		RateLimit: RateLimitConfig{
			Max:    rateLimitMax,
			Window: time.Duration(rateLimitWindow) * time.Minute,
		},
		Usage: UsageConfig{
			CostPer1KTokens: costPer1K,
		},
		Database: DatabaseConfig{
			Enabled:  dbEnabled,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "receiptlens"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
