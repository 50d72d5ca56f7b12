// Package config loads gateway configuration from a YAML file and
// GATEWAY_-prefixed environment variables, env taking precedence.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Storage   StorageConfig    `koanf:"storage"`
	Providers []ProviderConfig `koanf:"providers"`
	Routing   RoutingConfig    `koanf:"routing"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type ProviderConfig struct {
	Name    string `koanf:"name"`
	Type    string `koanf:"type"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type RoutingConfig struct {
	Rules           []RoutingRule `koanf:"rules"`
	DefaultProvider string        `koanf:"default_provider"`
}

type RoutingRule struct {
	ModelPrefix string `koanf:"model_prefix"`
	ModelExact  string `koanf:"model_exact"`
	Provider    string `koanf:"provider"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (when it exists) and then applies environment
// overrides. GATEWAY_SERVER__PORT=9090 maps to server.port.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Allow ${VAR} references for secrets so the file can stay checked in.
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
