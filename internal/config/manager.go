package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"maestro/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the live configuration and re-reads it when the file on
// disk changes. Pollers read the interval and deadline settings through the
// Manager on every invocation, so operators can tune them while operations
// are in flight.
type Manager struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewManager loads the configuration at path and returns a manager holding
// it. Use Watch to pick up later file changes.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, path: path}, nil
}

// NewStaticManager wraps a fixed configuration, for tests and embedded use.
func NewStaticManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Get returns the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch re-reads the configuration whenever the file changes, until ctx is
// cancelled. Reload failures keep the previous configuration.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return fmt.Errorf("no config path to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(m.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				m.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("Config", "Config watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		logging.Error("Config", err, "Failed to reload configuration, keeping previous values")
		return
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	logging.Info("Config", "Reloaded configuration from %s (poll interval %s, max poll duration %s)",
		m.path, cfg.PollInterval(), cfg.MaxPollDuration())
}
