// Package config loads service configuration from an optional config.yaml
// overlaid with TRADEWIND_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Providers  []ProviderConfig `koanf:"providers"`
	Routing    RoutingConfig    `koanf:"routing"`
	Tools      ToolsConfig      `koanf:"tools"`
	Storage    StorageConfig    `koanf:"storage"`
	Chat       ChatConfig       `koanf:"chat"`
	Validation ValidationConfig `koanf:"validation"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type ProviderConfig struct {
	Name    string `koanf:"name"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type RoutingConfig struct {
	Mode      string `koanf:"mode"` // "auto" or a provider name
	Primary   string `koanf:"primary"`
	Secondary string `koanf:"secondary"`
}

type ToolsConfig struct {
	// Services maps a service name to its JSON-RPC endpoint URL.
	Services         map[string]string `koanf:"services"`
	CallTimeout      string            `koanf:"call_timeout"`
	DiscoveryTimeout string            `koanf:"discovery_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
	// RetentionDays drops sessions untouched for this many days; 0 keeps
	// everything.
	RetentionDays int `koanf:"retention_days"`
}

type ChatConfig struct {
	SystemPrompt string `koanf:"system_prompt"`
	HistoryLimit int    `koanf:"history_limit"`
	TokenBudget  int    `koanf:"token_budget"`
}

type ValidationConfig struct {
	Enabled bool `koanf:"enabled"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml when present, overlays environment variables, and
// applies defaults. Provider API keys support ${VAR} substitution.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit file path, for tests.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is fine, env vars may carry everything.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("TRADEWIND_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TRADEWIND_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 3000)
	}
	if !k.Exists("routing.mode") {
		k.Set("routing.mode", "auto")
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "tradewind.db")
	}
	if !k.Exists("validation.enabled") {
		k.Set("validation.enabled", true)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
