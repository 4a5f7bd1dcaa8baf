package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"maestro/pkg/logging"
)

// Storage provides generic YAML file storage for record snapshots, one
// subdirectory per entity type and one file per record.
type Storage struct {
	mu      sync.RWMutex
	dataDir string
}

// NewStorage creates a Storage rooted at dataDir.
func NewStorage(dataDir string) *Storage {
	return &Storage{dataDir: dataDir}
}

// Save stores data for the given entity type and name.
func (s *Storage) Save(entityType string, name string, data []byte) error {
	if entityType == "" {
		return fmt.Errorf("entityType cannot be empty")
	}
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	targetDir := filepath.Join(s.dataDir, entityType)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", targetDir, err)
	}

	filePath := filepath.Join(targetDir, s.sanitizeFilename(name)+".yaml")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}

	logging.Debug("Storage", "Saved %s/%s to %s", entityType, name, filePath)
	return nil
}

// Load retrieves data for the given entity type and name.
func (s *Storage) Load(entityType string, name string) ([]byte, error) {
	if entityType == "" {
		return nil, fmt.Errorf("entityType cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := filepath.Join(s.dataDir, entityType, s.sanitizeFilename(name)+".yaml")
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("entity %s/%s not found", entityType, name)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return data, nil
}

// Delete removes the file for the given entity type and name. Deleting a
// record that was never saved is not an error.
func (s *Storage) Delete(entityType string, name string) error {
	if entityType == "" {
		return fmt.Errorf("entityType cannot be empty")
	}
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := filepath.Join(s.dataDir, entityType, s.sanitizeFilename(name)+".yaml")
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove file %s: %w", filePath, err)
	}

	logging.Debug("Storage", "Deleted %s/%s", entityType, name)
	return nil
}

// List returns the names of all stored records for the given entity type.
func (s *Storage) List(entityType string) ([]string, error) {
	if entityType == "" {
		return nil, fmt.Errorf("entityType cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dataDir, entityType))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	return names, nil
}

// sanitizeFilename keeps record names from escaping the entity directory.
func (s *Storage) sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(name)
}
