package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ConfigurationError сообщает об отсутствующей или некорректной переменной окружения.
// Приложение не стартует при такой ошибке.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL      string
	DBConnectTimeout time.Duration
	JWTSecretKey     string
	TokenTTL         time.Duration
	SessionTimeout   time.Duration
	ServerPort       int
	LogLevel         slog.Level

	CORSAllowedOrigins []string
	ReconcileInterval  time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	required := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"JWT_SECRET_KEY", &cfg.JWTSecretKey},
		{"R2_ACCOUNT_ID", &cfg.R2AccountID},
		{"R2_ACCESS_KEY_ID", &cfg.R2AccessKeyID},
		{"R2_SECRET_ACCESS_KEY", &cfg.R2SecretAccessKey},
		{"R2_BUCKET_NAME", &cfg.R2BucketName},
		{"R2_PUBLIC_BASE_URL", &cfg.R2PublicBaseURL},
	}
	for _, r := range required {
		v := strings.TrimSpace(os.Getenv(r.key))
		if v == "" {
			return nil, &ConfigurationError{Key: r.key, Reason: "environment variable is not set"}
		}
		*r.dst = v
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	cfg.ServerPort, err = strconv.Atoi(portStr)
	if err != nil {
		return nil, &ConfigurationError{Key: "SERVER_PORT", Reason: fmt.Sprintf("is not a number: %v", err)}
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, &ConfigurationError{Key: "SERVER_PORT", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", cfg.ServerPort)}
	}

	if cfg.SessionTimeout, err = durationFromEnv("SESSION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = durationFromEnv("RECONCILE_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DBConnectTimeout, err = durationFromEnv("DB_CONNECT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTimeout <= 0 {
		return nil, &ConfigurationError{Key: "SESSION_TIMEOUT", Reason: "must be positive"}
	}

	cfg.LogLevel = slog.LevelInfo
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, &ConfigurationError{Key: "LOG_LEVEL", Reason: fmt.Sprintf("is invalid: %v", err)}
		}
	}

	cfg.CORSAllowedOrigins = []string{"*"}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = cfg.CORSAllowedOrigins[:0]
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("is not a valid duration: %v", err)}
	}
	if d < 0 {
		return 0, &ConfigurationError{Key: key, Reason: "must not be negative"}
	}
	return d, nil
}
