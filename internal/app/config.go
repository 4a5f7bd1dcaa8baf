package app

// Config holds the startup options for a maestro process, as opposed to the
// runtime configuration file managed by the config package.
type Config struct {
	// ConfigPath is the path of the YAML configuration file. A missing file
	// is not an error; defaults apply.
	ConfigPath string

	// Debug enables verbose logging across the application.
	Debug bool

	// Silent suppresses all log output. Used by tests and scripting.
	Silent bool
}

// NewConfig creates an application configuration from command line settings.
func NewConfig(configPath string, debug, silent bool) *Config {
	return &Config{
		ConfigPath: configPath,
		Debug:      debug,
		Silent:     silent,
	}
}
