package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DSN       string `validate:"required"`
	JWTSecret string `validate:"required,min=8"`
	AppPort   string `validate:"required,numeric"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	DOBaseURL      string  `validate:"required,url"`
	DOMaxRetries   int     `validate:"min=1,max=10"`
	DORateLimitRPS float64 `validate:"gte=0"`

	// SweepInterval of zero disables the background reconciliation sweep.
	SweepInterval time.Duration `validate:"gte=0"`

	AdminEmail    string `validate:"required,email"`
	AdminPassword string `validate:"required,min=8"`
}

// Load reads .env (when present) and the process environment.
// The returned bool reports whether a .env file was found.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg := Config{
		DSN:           os.Getenv("MYSQL_DSN"),
		JWTSecret:     getenv("JWT_SECRET", "dev-secret-only"),
		AppPort:       getenv("APP_PORT", "8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "console"),
		DOBaseURL:     getenv("DO_API_URL", "https://api.digitalocean.com/v2"),
		AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", "adminpassword123"),
	}

	var err error
	if cfg.DOMaxRetries, err = getint("DO_MAX_RETRIES", 3); err != nil {
		return cfg, dotenv, err
	}
	if cfg.DORateLimitRPS, err = getfloat("DO_RATE_LIMIT_RPS", 10); err != nil {
		return cfg, dotenv, err
	}
	if cfg.SweepInterval, err = getduration("SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return cfg, dotenv, err
	}

	return cfg, dotenv, cfg.Validate()
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getfloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
