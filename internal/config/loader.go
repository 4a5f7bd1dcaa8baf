package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, layering it over the defaults.
// A missing file is not an error: the defaults are returned as-is so the
// control plane can start unconfigured (e.g. in tests).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.BrokerClientDefaultAsyncPollIntervalSeconds <= 0 {
		return fmt.Errorf("brokerClientDefaultAsyncPollIntervalSeconds must be positive, got %d", cfg.BrokerClientDefaultAsyncPollIntervalSeconds)
	}
	if cfg.BrokerClientMaxAsyncPollDurationMinutes <= 0 {
		return fmt.Errorf("brokerClientMaxAsyncPollDurationMinutes must be positive, got %d", cfg.BrokerClientMaxAsyncPollDurationMinutes)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	return nil
}
