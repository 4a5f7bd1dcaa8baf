// Package logging provides a structured logging system for maestro with
// unified log handling and level filtering.
//
// This package implements a logging system built on Go's standard slog
// package, providing consistent logging behavior with structured output.
//
// # Architecture
//
// The logging system is built around these core concepts:
//
// ## Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// ## Structured Logging
// All log entries include:
//   - Timestamp with nanosecond precision
//   - Log level (Debug, Info, Warn, Error)
//   - Subsystem identifier for categorization
//   - Message content with optional formatting
//   - Optional error information
//
// # Usage Examples
//
// ## Initialization
//
//	import "maestro/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.Init(logging.LevelInfo, os.Stdout)
//
//	// Log messages
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("Broker", "Broker responded asynchronously")
//	logging.Error("Store", err, "Failed to persist snapshot")
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Actions**: Lifecycle orchestration
//   - **Jobs**: Deferred task execution and polling
//   - **Locks**: Operation lock acquisition and release
//   - **Events**: Audit event recording
//   - **OrphanMitigation**: Best-effort broker-side cleanup
//
// # Thread Safety
//
// The logging system is fully thread-safe:
//   - Safe concurrent logging from multiple goroutines
//   - No data races in configuration
package logging
