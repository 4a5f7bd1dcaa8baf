package store

import (
	"fmt"

	"maestro/internal/config"
	"maestro/internal/model"
	"maestro/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	entityInstances     = "serviceinstances"
	entityPlans         = "serviceplans"
	entityBindings      = "bindings"
	entityRouteBindings = "routebindings"
)

// snapshotter mirrors record mutations into YAML files. Snapshot failures
// are logged and never fail the mutation: the in-memory tables stay the
// source of truth for a running process.
type snapshotter struct {
	storage *config.Storage
}

// EnableSnapshots turns on YAML snapshot persistence backed by the given
// storage. Call before any records are written.
func (s *Store) EnableSnapshots(storage *config.Storage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = &snapshotter{storage: storage}
}

// LoadSnapshots restores all persisted records into the store. Individual
// malformed files are skipped with a warning so one bad record cannot keep
// the control plane from starting.
func (s *Store) LoadSnapshots() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots == nil {
		return fmt.Errorf("snapshots not enabled")
	}

	loaded := 0
	loaded += loadEntity(s.snapshots.storage, entityInstances, func(instance *model.ServiceInstance) {
		s.instances[instance.GUID] = instance
	})
	loaded += loadEntity(s.snapshots.storage, entityPlans, func(plan *model.ServicePlan) {
		s.plans[plan.GUID] = plan
	})
	loaded += loadEntity(s.snapshots.storage, entityBindings, func(binding *model.Binding) {
		s.bindings[binding.GUID] = binding
	})
	loaded += loadEntity(s.snapshots.storage, entityRouteBindings, func(rb *model.RouteBinding) {
		s.routeBindings[rb.GUID] = rb
	})

	logging.Info("Store", "Restored %d records from snapshots", loaded)
	return nil
}

func loadEntity[T any](storage *config.Storage, entityType string, insert func(*T)) int {
	names, err := storage.List(entityType)
	if err != nil {
		logging.Warn("Store", "Failed to list %s snapshots: %v", entityType, err)
		return 0
	}

	count := 0
	for _, name := range names {
		data, err := storage.Load(entityType, name)
		if err != nil {
			logging.Warn("Store", "Failed to load %s/%s: %v", entityType, name, err)
			continue
		}
		record := new(T)
		if err := yaml.Unmarshal(data, record); err != nil {
			logging.Warn("Store", "Skipping malformed snapshot %s/%s: %v", entityType, name, err)
			continue
		}
		insert(record)
		count++
	}
	return count
}

func (s *Store) snapshotInstance(instance *model.ServiceInstance) {
	s.writeSnapshot(entityInstances, instance.GUID, instance)
}

func (s *Store) snapshotPlan(plan *model.ServicePlan) {
	s.writeSnapshot(entityPlans, plan.GUID, plan)
}

func (s *Store) snapshotBinding(binding *model.Binding) {
	s.writeSnapshot(entityBindings, binding.GUID, binding)
}

func (s *Store) snapshotRouteBinding(rb *model.RouteBinding) {
	s.writeSnapshot(entityRouteBindings, rb.GUID, rb)
}

func (s *Store) writeSnapshot(entityType, name string, record any) {
	if s.snapshots == nil {
		return
	}
	data, err := yaml.Marshal(record)
	if err != nil {
		logging.Error("Store", err, "Failed to marshal snapshot %s/%s", entityType, name)
		return
	}
	if err := s.snapshots.storage.Save(entityType, name, data); err != nil {
		logging.Error("Store", err, "Failed to write snapshot %s/%s", entityType, name)
	}
}

func (s *Store) dropSnapshot(entityType, name string) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.storage.Delete(entityType, name); err != nil {
		logging.Error("Store", err, "Failed to delete snapshot %s/%s", entityType, name)
	}
}
