package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	StorageInMemory = "in-memory"
	StoragePostgres = "postgres"
)

// Config - настройки сервиса, читаются из окружения.
type Config struct {
	Addr              string
	Storage           string
	DatabaseURL       string
	SessionTTL        time.Duration
	StoreTimeout      time.Duration
	LikeMaxRetries    int
	BcryptCost        int
	LogLevel          string
	LogJSON           bool
	CookieSecure      bool
	DashboardCacheTTL time.Duration
}

// Load подхватывает .env (если есть) и читает переменные окружения.
func Load() (Config, error) {
	// .env необязателен, переменные могут прийти из системы
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv строит конфигурацию из произвольного источника переменных.
func FromEnv(lookup func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := lookup(k); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Addr:        get("ADDR", ":8080"),
		Storage:     get("STORAGE", StorageInMemory),
		DatabaseURL: get("DATABASE_URL", ""),
		LogLevel:    get("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.SessionTTL, err = duration(get("SESSION_TTL", "1h")); err != nil {
		return Config{}, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.StoreTimeout, err = duration(get("STORE_TIMEOUT", "3s")); err != nil {
		return Config{}, fmt.Errorf("STORE_TIMEOUT: %w", err)
	}
	if cfg.DashboardCacheTTL, err = duration(get("DASHBOARD_CACHE_TTL", "5s")); err != nil {
		return Config{}, fmt.Errorf("DASHBOARD_CACHE_TTL: %w", err)
	}
	if cfg.LikeMaxRetries, err = strconv.Atoi(get("LIKE_MAX_RETRIES", "3")); err != nil || cfg.LikeMaxRetries < 0 {
		return Config{}, fmt.Errorf("LIKE_MAX_RETRIES: invalid value %q", lookup("LIKE_MAX_RETRIES"))
	}
	if cfg.BcryptCost, err = strconv.Atoi(get("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost))); err != nil ||
		cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("BCRYPT_COST: invalid value %q", lookup("BCRYPT_COST"))
	}
	if cfg.LogJSON, err = strconv.ParseBool(get("LOG_JSON", "false")); err != nil {
		return Config{}, fmt.Errorf("LOG_JSON: %w", err)
	}
	if cfg.CookieSecure, err = strconv.ParseBool(get("COOKIE_SECURE", "true")); err != nil {
		return Config{}, fmt.Errorf("COOKIE_SECURE: %w", err)
	}

	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be positive")
	}
	switch cfg.Storage {
	case StorageInMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set for postgres storage")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
	return cfg, nil
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
