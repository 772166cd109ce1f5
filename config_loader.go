package apiclient

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix префикс переменных окружения для LoadConfig
const EnvPrefix = "APICLIENT_"

// LoadConfig загружает данные конфигурации из нескольких источников по приоритету:
// 1. Переменные окружения APICLIENT_* (высший приоритет)
// 2. YAML файл path (если задан и существует)
// 3. Значения по умолчанию
//
// Внедряемые зависимости (Transport, Logger, Credentials и т.д.) заполняются вызывающим кодом.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := loadConfigDefaults(k); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// APICLIENT_RATE_LIMIT_PER_SECOND -> rate_limit_per_second,
	// APICLIENT_HEADERS__X-API-KEY -> headers.x-api-key
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.RateLimitPerSecond < 1 {
		return Config{}, NewConfigurationError("rate_limit_per_second", cfg.RateLimitPerSecond, "must be at least 1")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"base_url":              "",
		"timeout":               DefaultTimeout.String(),
		"rate_limit_per_second": DefaultRateLimitPerSecond,
		"metrics_enabled":       true,
		"metrics_backend":       string(MetricsBackendPrometheus),
		"tracing_enabled":       false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
