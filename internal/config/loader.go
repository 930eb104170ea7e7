package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PublicConfigFile is the default config file name.
const PublicConfigFile = "promptlane.yaml"

// Load loads the configuration file, falling back to defaults when none is
// found. An explicit configPath must exist; the search paths need not.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	var configFilePath string
	if configPath != "" {
		configFilePath = configPath
	} else {
		searchPaths := []string{
			PublicConfigFile,
			"promptlane.yml",
		}
		if home, err := os.UserHomeDir(); err == nil {
			searchPaths = append(searchPaths,
				filepath.Join(home, ".config", "promptlane", "promptlane.yaml"),
				filepath.Join(home, ".config", "promptlane", "promptlane.yml"),
			)
		}
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				configFilePath = p
				break
			}
		}
	}

	if configFilePath == "" {
		resolveAPIKey(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Upstream.MaxConcurrentBatches <= 0 {
		cfg.Upstream.MaxConcurrentBatches = 8
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.LogDir == "" {
		cfg.Storage.LogDir = "logs"
	}

	resolveAPIKey(cfg)
	return cfg, nil
}

// resolveAPIKey fills the fallback API key from the environment when the
// file has none. Missing keys are not an error here; the gateway rejects
// batches when no key is configured anywhere.
func resolveAPIKey(cfg *Config) {
	if cfg.Upstream.APIKey != "" {
		return
	}
	if cfg.Upstream.APIKeyEnv != "" {
		if value := os.Getenv(cfg.Upstream.APIKeyEnv); value != "" {
			cfg.Upstream.APIKey = value
			return
		}
	}
	if value := os.Getenv("OPENAI_API_KEY"); value != "" {
		cfg.Upstream.APIKey = value
	}
}
