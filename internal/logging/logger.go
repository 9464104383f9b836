// Package logging настраивает структурированный логгер на log/slog.
//
// Логгер создается один раз в main и передается в сервисы явно.
// Токены сессий в лог не пишутся, только признак их наличия:
//
//	logger.Info("auth", "token_present", token != "")
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config описывает вывод логгера. Нулевое значение - Info в stderr текстом.
type Config struct {
	Level   string
	JSON    bool
	Service string
	Output  io.Writer
}

// New создает логгер по конфигурации.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(h)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

// ParseLevel понимает debug, info, warn(ing), error. Остальное - info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard возвращает логгер, который ничего не пишет. Удобен в тестах.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
