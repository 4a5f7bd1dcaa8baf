// Package store is the persistence layer: per-entity tables behind a single
// lock, with partial updates expressed as mutator functions applied under
// that lock. Records can optionally be snapshotted to YAML files so a
// restarted control plane resumes from the last persisted state.
package store

import (
	"errors"
	"fmt"
	"sync"

	"maestro/internal/clock"
	"maestro/internal/model"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// ErrNotFound is returned when a record does not exist. Orchestrators treat
// it as "already purged" in most paths.
var ErrNotFound = errors.New("record not found")

// Store holds all control-plane records.
type Store struct {
	mu            sync.RWMutex
	instances     map[string]*model.ServiceInstance
	plans         map[string]*model.ServicePlan
	bindings      map[string]*model.Binding
	routeBindings map[string]*model.RouteBinding
	shares        map[string]map[string]bool // instance guid -> space guids
	events        []model.AuditEvent

	snapshots *snapshotter
	clock     clock.Clock
}

// New creates an empty in-memory store.
func New(clk clock.Clock) *Store {
	return &Store{
		instances:     make(map[string]*model.ServiceInstance),
		plans:         make(map[string]*model.ServicePlan),
		bindings:      make(map[string]*model.Binding),
		routeBindings: make(map[string]*model.RouteBinding),
		shares:        make(map[string]map[string]bool),
		clock:         clk,
	}
}

// Instance returns a copy of the instance with the given guid.
func (s *Store) Instance(guid string) (*model.ServiceInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instances[guid]
	if !ok {
		return nil, fmt.Errorf("service instance %s: %w", guid, ErrNotFound)
	}
	return cloneInstance(instance), nil
}

// Instances returns copies of all instances.
func (s *Store) Instances() []model.ServiceInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.ServiceInstance, 0, len(s.instances))
	for _, instance := range s.instances {
		result = append(result, *cloneInstance(instance))
	}
	return result
}

// SaveInstance inserts or replaces an instance record.
func (s *Store) SaveInstance(instance *model.ServiceInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneInstance(instance)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now()
	}
	stored.UpdatedAt = s.clock.Now()
	s.instances[stored.GUID] = stored
	s.snapshotInstance(stored)
	return nil
}

// UpdateInstance applies a partial update to the instance under the store
// lock. The mutator sees the live record; returning an error discards the
// change.
func (s *Store) UpdateInstance(guid string, mutate func(*model.ServiceInstance) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, ok := s.instances[guid]
	if !ok {
		return fmt.Errorf("service instance %s: %w", guid, ErrNotFound)
	}

	updated := cloneInstance(instance)
	if err := mutate(updated); err != nil {
		return err
	}
	updated.UpdatedAt = s.clock.Now()
	s.instances[guid] = updated
	s.snapshotInstance(updated)
	return nil
}

// DeleteInstance removes the instance record along with its share entries.
func (s *Store) DeleteInstance(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[guid]; !ok {
		return fmt.Errorf("service instance %s: %w", guid, ErrNotFound)
	}
	delete(s.instances, guid)
	delete(s.shares, guid)
	s.dropSnapshot(entityInstances, guid)
	return nil
}

// Plan returns a copy of the service plan with the given guid.
func (s *Store) Plan(guid string) (*model.ServicePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[guid]
	if !ok {
		return nil, fmt.Errorf("service plan %s: %w", guid, ErrNotFound)
	}
	cloned := *plan
	return &cloned, nil
}

// SavePlan inserts or replaces a plan record.
func (s *Store) SavePlan(plan *model.ServicePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *plan
	s.plans[cloned.GUID] = &cloned
	s.snapshotPlan(&cloned)
	return nil
}

// Binding returns a copy of the binding or service key with the given guid.
func (s *Store) Binding(guid string) (*model.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, ok := s.bindings[guid]
	if !ok {
		return nil, fmt.Errorf("binding %s: %w", guid, ErrNotFound)
	}
	return cloneBinding(binding), nil
}

// Bindings returns copies of all binding and service key records.
func (s *Store) Bindings() []model.Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Binding, 0, len(s.bindings))
	for _, binding := range s.bindings {
		result = append(result, *cloneBinding(binding))
	}
	return result
}

// SaveBinding inserts or replaces a binding record.
func (s *Store) SaveBinding(binding *model.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneBinding(binding)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now()
	}
	stored.UpdatedAt = s.clock.Now()
	s.bindings[stored.GUID] = stored
	s.snapshotBinding(stored)
	return nil
}

// UpdateBinding applies a partial update to a binding under the store lock.
func (s *Store) UpdateBinding(guid string, mutate func(*model.Binding) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[guid]
	if !ok {
		return fmt.Errorf("binding %s: %w", guid, ErrNotFound)
	}

	updated := cloneBinding(binding)
	if err := mutate(updated); err != nil {
		return err
	}
	updated.UpdatedAt = s.clock.Now()
	s.bindings[guid] = updated
	s.snapshotBinding(updated)
	return nil
}

// DeleteBinding removes a binding record.
func (s *Store) DeleteBinding(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bindings[guid]; !ok {
		return fmt.Errorf("binding %s: %w", guid, ErrNotFound)
	}
	delete(s.bindings, guid)
	s.dropSnapshot(entityBindings, guid)
	return nil
}

// BindingsForInstance returns copies of all bindings of the given kind that
// belong to the instance.
func (s *Store) BindingsForInstance(instanceGUID string, kind model.BindingKind) []model.Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Binding
	for _, binding := range s.bindings {
		if binding.ServiceInstanceGUID == instanceGUID && binding.Kind == kind {
			result = append(result, *cloneBinding(binding))
		}
	}
	return result
}

// RouteBindingsForInstance returns copies of all route bindings on the
// instance.
func (s *Store) RouteBindingsForInstance(instanceGUID string) []model.RouteBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RouteBinding
	for _, rb := range s.routeBindings {
		if rb.ServiceInstanceGUID == instanceGUID {
			result = append(result, *rb)
		}
	}
	return result
}

// SaveRouteBinding inserts or replaces a route binding record.
func (s *Store) SaveRouteBinding(rb *model.RouteBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *rb
	if cloned.CreatedAt.IsZero() {
		cloned.CreatedAt = s.clock.Now()
	}
	s.routeBindings[cloned.GUID] = &cloned
	s.snapshotRouteBinding(&cloned)
	return nil
}

// DeleteRouteBinding removes a route binding record.
func (s *Store) DeleteRouteBinding(guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routeBindings[guid]; !ok {
		return fmt.Errorf("route binding %s: %w", guid, ErrNotFound)
	}
	delete(s.routeBindings, guid)
	s.dropSnapshot(entityRouteBindings, guid)
	return nil
}

// SharedSpaces returns the guids of every space the instance is shared into.
func (s *Store) SharedSpaces(instanceGUID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for spaceGUID := range s.shares[instanceGUID] {
		result = append(result, spaceGUID)
	}
	return result
}

// AddShare records that the instance is shared into the space.
func (s *Store) AddShare(instanceGUID, spaceGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[instanceGUID]; !ok {
		return fmt.Errorf("service instance %s: %w", instanceGUID, ErrNotFound)
	}
	if s.shares[instanceGUID] == nil {
		s.shares[instanceGUID] = make(map[string]bool)
	}
	s.shares[instanceGUID][spaceGUID] = true
	return nil
}

// RemoveShare removes a share entry.
func (s *Store) RemoveShare(instanceGUID, spaceGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.shares[instanceGUID][spaceGUID] {
		return fmt.Errorf("share of %s into space %s: %w", instanceGUID, spaceGUID, ErrNotFound)
	}
	delete(s.shares[instanceGUID], spaceGUID)
	return nil
}

// AppendEvent appends an audit event row.
func (s *Store) AppendEvent(event model.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all recorded audit events, oldest first.
func (s *Store) Events() []model.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.AuditEvent, len(s.events))
	copy(result, s.events)
	return result
}

// InstanceByGUID satisfies the broker client's directory interface.
func (s *Store) InstanceByGUID(guid string) (*model.ServiceInstance, error) {
	return s.Instance(guid)
}

// PlanByGUID satisfies the broker client's directory interface.
func (s *Store) PlanByGUID(guid string) (*model.ServicePlan, error) {
	return s.Plan(guid)
}

func cloneInstance(instance *model.ServiceInstance) *model.ServiceInstance {
	cloned := *instance
	if instance.Tags != nil {
		cloned.Tags = append([]string(nil), instance.Tags...)
	}
	if instance.LastOperation != nil {
		op := *instance.LastOperation
		cloned.LastOperation = &op
	}
	if instance.MaintenanceInfo != nil {
		mi := *instance.MaintenanceInfo
		cloned.MaintenanceInfo = &mi
	}
	return &cloned
}

func cloneBinding(binding *model.Binding) *model.Binding {
	cloned := *binding
	if binding.VolumeMounts != nil {
		cloned.VolumeMounts = append([]domain.VolumeMount(nil), binding.VolumeMounts...)
	}
	if binding.LastOperation != nil {
		op := *binding.LastOperation
		cloned.LastOperation = &op
	}
	return &cloned
}
