package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"maestro/internal/config"
	"maestro/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs maestro. It encapsulates the configuration manager and the wired
// services required for the control plane's lifecycle.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, wire services
//  2. Execution phase: run the worker pool until shutdown
type Application struct {
	config   *Config
	manager  *config.Manager
	services *Services
}

// NewApplication creates and initializes a new application instance with the
// provided configuration. It configures logging, loads the runtime
// configuration file, and wires the store, broker client, task queue, and
// orchestrators.
func NewApplication(cfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}

	manager, err := config.NewManager(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
	}

	appLogLevel := logging.ParseLevel(manager.Get().LogLevel)
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	logging.Init(appLogLevel, logOutput)
	logging.Info("Bootstrap", "Loaded configuration from %s", cfg.ConfigPath)

	services, err := InitializeServices(manager)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		manager:  manager,
		services: services,
	}, nil
}

// Run executes the application until ctx is cancelled. It starts the
// configuration watcher and the deferred-task worker pool, resumes polling
// for any operations that were in flight at the last shutdown, and blocks
// until the workers have drained.
func (a *Application) Run(ctx context.Context) error {
	if err := a.manager.Watch(ctx); err != nil {
		logging.Warn("Bootstrap", "Configuration hot reload unavailable: %v", err)
	}

	a.services.Queue.Start(ctx)
	a.services.ResumePendingOperations()

	logging.Info("Bootstrap", "maestro is running with %d workers", a.manager.Get().Workers)
	<-ctx.Done()
	return a.services.Queue.Wait()
}
