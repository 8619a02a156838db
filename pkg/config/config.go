package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	JWT      JWTConfig
	GigaChat GigaChatConfig
	Telegram TelegramConfig
	Dialog   DialogConfig
	Logger   LoggerConfig
}

// LoggerConfig controls the global zap logger. Format is "json" or "console".
type LoggerConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// StorageConfig selects the backend for expense records and user accounts.
// Driver is one of "postgres", "sqlite" or "mongo".
type StorageConfig struct {
	Driver     string
	SQLitePath string
	MongoURI   string
	MongoDB    string
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

type TelegramConfig struct {
	BotToken     string
	AllowedUsers []int64
	PollTimeout  int
}

// DialogConfig is the policy consumed by the clarification engine.
type DialogConfig struct {
	HighConfidenceThreshold float64
	LowConfidenceThreshold  float64
	MaxClarificationTurns   int
	SessionIdleTimeout      time.Duration
	SweepInterval           time.Duration
	ExtractionTimeout       time.Duration
	CommitTimeout           time.Duration
	DedupWindow             time.Duration
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root.
	// A missing file is fine: plain environment variables are used then.
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	refreshExp, _ := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"
	pollTimeout, _ := strconv.Atoi(getEnv("TELEGRAM_POLL_TIMEOUT", "60"))

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "finman"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:        int32(getInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getInt("DB_MIN_CONNS", 0)),
			MaxConnIdleTime: getDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
			SQLitePath: getEnv("SQLITE_PATH", "finman.db"),
			MongoURI:   getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:    getEnv("MONGO_DB_NAME", "Finman"),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Telegram: TelegramConfig{
			BotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			AllowedUsers: parseIDList(getEnv("TELEGRAM_ALLOWED_USERS", "")),
			PollTimeout:  pollTimeout,
		},
		Dialog: DialogConfig{
			HighConfidenceThreshold: getFloat("DIALOG_HIGH_CONFIDENCE", 0.85),
			LowConfidenceThreshold:  getFloat("DIALOG_LOW_CONFIDENCE", 0.3),
			MaxClarificationTurns:   getInt("DIALOG_MAX_TURNS", 3),
			SessionIdleTimeout:      getDuration("DIALOG_SESSION_IDLE_TIMEOUT", 30*time.Minute),
			SweepInterval:           getDuration("DIALOG_SWEEP_INTERVAL", time.Minute),
			ExtractionTimeout:       getDuration("DIALOG_EXTRACTION_TIMEOUT", 30*time.Second),
			CommitTimeout:           getDuration("DIALOG_COMMIT_TIMEOUT", 10*time.Second),
			DedupWindow:             getDuration("DIALOG_DEDUP_WINDOW", 10*time.Minute),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}
	if err := cfg.Dialog.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var ErrInvalidDialogConfig = errors.New("invalid dialog config")

// Validate rejects policies the clarification engine cannot run with.
func (d *DialogConfig) Validate() error {
	switch {
	case d.LowConfidenceThreshold < 0 || d.HighConfidenceThreshold > 1:
		return fmt.Errorf("%w: thresholds must lie in [0,1]", ErrInvalidDialogConfig)
	case d.LowConfidenceThreshold >= d.HighConfidenceThreshold:
		return fmt.Errorf("%w: DIALOG_LOW_CONFIDENCE (%.2f) must be below DIALOG_HIGH_CONFIDENCE (%.2f)",
			ErrInvalidDialogConfig, d.LowConfidenceThreshold, d.HighConfidenceThreshold)
	case d.MaxClarificationTurns < 1:
		return fmt.Errorf("%w: DIALOG_MAX_TURNS must be at least 1, got %d", ErrInvalidDialogConfig, d.MaxClarificationTurns)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// getDuration accepts Go duration strings ("90s", "30m").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
