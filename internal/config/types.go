// Package config holds the maestro configuration: broker endpoint settings,
// async polling tuning, and the generic YAML entity storage used for record
// snapshots.
package config

import "time"

// BrokerConfig describes the broker endpoint the control plane talks to.
type BrokerConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// RequestTimeoutSeconds bounds each individual broker HTTP call.
	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds,omitempty"`
}

// Config is the full maestro configuration as loaded from YAML.
type Config struct {
	Broker BrokerConfig `yaml:"broker"`

	// BrokerClientDefaultAsyncPollIntervalSeconds is the delay between two
	// last-operation polls for one pending operation.
	BrokerClientDefaultAsyncPollIntervalSeconds int `yaml:"brokerClientDefaultAsyncPollIntervalSeconds,omitempty"`

	// BrokerClientMaxAsyncPollDurationMinutes bounds how long a pending
	// operation may be polled before it is marked failed.
	BrokerClientMaxAsyncPollDurationMinutes int `yaml:"brokerClientMaxAsyncPollDurationMinutes,omitempty"`

	// DataDir is where record snapshots are written. Empty means in-memory
	// operation without snapshots.
	DataDir string `yaml:"dataDir,omitempty"`

	// Workers is the size of the deferred-task worker pool.
	Workers int `yaml:"workers,omitempty"`

	LogLevel string `yaml:"logLevel,omitempty"`
}

// Default returns the configuration used when no file or field is provided.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			RequestTimeoutSeconds: 60,
		},
		BrokerClientDefaultAsyncPollIntervalSeconds: 60,
		BrokerClientMaxAsyncPollDurationMinutes:     10080, // one week
		Workers:  4,
		LogLevel: "info",
	}
}

// PollInterval returns the configured poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.BrokerClientDefaultAsyncPollIntervalSeconds) * time.Second
}

// MaxPollDuration returns the configured maximum poll duration as a duration.
func (c Config) MaxPollDuration() time.Duration {
	return time.Duration(c.BrokerClientMaxAsyncPollDurationMinutes) * time.Minute
}

// RequestTimeout returns the broker request timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Broker.RequestTimeoutSeconds) * time.Second
}
