// Пакет config — загрузка и валидация конфигурации tmpshare
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации tmpshare.
type Config struct {
	// Корень хранилища: файлы и sidecar-записи
	DataDir string
	// Корень задан явно (TS_DATA_DIR или -data-dir)
	DataDirSet bool
	// Адрес HTTP-сервера
	Address string
	// Порт HTTP-сервера
	Port int
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Возраст записей для фоновой очистки, в сутках
	RetentionDays int
	// Интервал фоновой очистки (0 — отключена)
	CleanupInterval time.Duration
	// URL JWKS endpoint (пустой — аутентификация отключена)
	JWKSUrl string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя вершины графа текущего приложения в topologymetrics
	ServiceID string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// AuthEnabled сообщает, настроена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// ListenAddr возвращает адрес для net.Listen.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// TS_DATA_DIR — корень хранилища (по умолчанию текущая директория)
	cfg.DataDir = getEnvDefault("TS_DATA_DIR", ".")
	cfg.DataDirSet = os.Getenv("TS_DATA_DIR") != ""

	// TS_ADDRESS — адрес HTTP-сервера (по умолчанию 127.0.0.1)
	cfg.Address = getEnvDefault("TS_ADDRESS", "127.0.0.1")

	// TS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("TS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("TS_PORT: %w", err)
	}
	if err := ValidatePort(cfg.Port); err != nil {
		return nil, fmt.Errorf("TS_PORT: %w", err)
	}

	// TS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 1 GB)
	cfg.MaxFileSize, err = getEnvInt64("TS_MAX_FILE_SIZE", 1073741824)
	if err != nil {
		return nil, fmt.Errorf("TS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("TS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// TS_RETENTION_DAYS — возраст записей для фоновой очистки (по умолчанию 7)
	cfg.RetentionDays, err = getEnvInt("TS_RETENTION_DAYS", 7)
	if err != nil {
		return nil, fmt.Errorf("TS_RETENTION_DAYS: %w", err)
	}
	if cfg.RetentionDays < 0 {
		return nil, fmt.Errorf("TS_RETENTION_DAYS: значение не может быть отрицательным")
	}

	// TS_CLEANUP_INTERVAL — интервал фоновой очистки (по умолчанию отключена)
	cfg.CleanupInterval, err = getEnvDuration("TS_CLEANUP_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("TS_CLEANUP_INTERVAL: %w", err)
	}
	if cfg.CleanupInterval < 0 {
		return nil, fmt.Errorf("TS_CLEANUP_INTERVAL: значение не может быть отрицательным")
	}

	// TS_JWKS_URL — JWKS endpoint (опционально)
	cfg.JWKSUrl = getEnvDefault("TS_JWKS_URL", "")
	if cfg.JWKSUrl != "" {
		u, err := url.Parse(cfg.JWKSUrl)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("TS_JWKS_URL: некорректный URL %q", cfg.JWKSUrl)
		}
	}

	// TS_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("TS_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// TS_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("TS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// TS_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("TS_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_JWT_LEEWAY: %w", err)
	}

	// TS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("TS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// TS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("TS_DEPHEALTH_GROUP", "tmpshare")

	// TS_SERVICE_ID — имя вершины графа в topologymetrics
	cfg.ServiceID = getEnvDefault("TS_SERVICE_ID", "tmpshare")

	// TS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TS_LOG_LEVEL: %w", err)
	}

	// TS_LOG_FORMAT — формат логов (по умолчанию text)
	cfg.LogFormat = getEnvDefault("TS_LOG_FORMAT", "text")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// TS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("TS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// ValidatePort проверяет диапазон порта.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("значение %d вне допустимого диапазона 1-65535", port)
	}
	return nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// Логи пишутся в w: stdout для сервера, stderr для команд CLI,
// чтобы не смешиваться с их выводом.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
