package locks

import (
	"errors"
	"fmt"
	"time"

	"maestro/internal/clock"
	"maestro/internal/jobs"
	"maestro/internal/model"
	"maestro/internal/store"
	"maestro/pkg/logging"
)

// ErrResourceLocked is returned when a lock acquisition finds an existing
// non-terminal operation on the resource.
var ErrResourceLocked = errors.New("another operation for this resource is in progress")

// ErrAsyncOperationInProgress signals that the owning service instance has an
// operation in flight and dependent resources must not be mutated.
var ErrAsyncOperationInProgress = errors.New("an operation for the service instance is in progress")

// Locker hands out per-resource mutual-exclusion guards. The lock marker is
// the resource's own last_operation record: a non-terminal state blocks every
// other acquisition until it resolves.
type Locker struct {
	store *store.Store
	clock clock.Clock
	queue jobs.Enqueuer
}

// NewLocker creates a Locker over the given store.
func NewLocker(st *store.Store, clk clock.Clock, queue jobs.Enqueuer) *Locker {
	return &Locker{store: st, clock: clk, queue: queue}
}

// LockInstance acquires exclusive mutation rights on a service instance by
// persisting an in-progress operation of the given type. The returned guard
// remembers the prior operation for rollback. Exactly one of Complete,
// CompleteAndDelete, or DeferToPoller must be called on success paths;
// AbortAndRestore is a no-op once any of them has run, so it is safe to
// defer unconditionally.
func (l *Locker) LockInstance(guid string, opType model.OperationType) (*InstanceGuard, error) {
	guard := &InstanceGuard{locker: l, guid: guid}

	err := l.store.UpdateInstance(guid, func(si *model.ServiceInstance) error {
		if si.LastOperation.InProgress() {
			return ErrResourceLocked
		}
		guard.prior = si.LastOperation
		si.LastOperation = l.newOperation(opType)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		// Raced delete; nothing left to guard.
		guard.resolved = true
		guard.missing = true
		return guard, nil
	}
	if err != nil {
		return nil, err
	}
	return guard, nil
}

// LockBinding is the binding and service key counterpart of LockInstance.
func (l *Locker) LockBinding(guid string, opType model.OperationType) (*BindingGuard, error) {
	guard := &BindingGuard{locker: l, guid: guid}

	err := l.store.UpdateBinding(guid, func(b *model.Binding) error {
		if b.LastOperation.InProgress() {
			return ErrResourceLocked
		}
		guard.prior = b.LastOperation
		b.LastOperation = l.newOperation(opType)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		guard.resolved = true
		guard.missing = true
		return guard, nil
	}
	if err != nil {
		return nil, err
	}
	return guard, nil
}

// CheckInstanceNotLocked verifies that the instance owning a dependent
// resource has no operation in flight.
func (l *Locker) CheckInstanceNotLocked(instanceGUID string) error {
	instance, err := l.store.Instance(instanceGUID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("service instance %s not found", instanceGUID)
	}
	if err != nil {
		return err
	}
	if instance.OperationInProgress() {
		return ErrAsyncOperationInProgress
	}
	return nil
}

func (l *Locker) newOperation(opType model.OperationType) *model.LastOperation {
	now := l.clock.Now()
	return &model.LastOperation{
		Type:      opType,
		State:     model.StateInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InstanceGuard is the transaction-scoped handle returned by LockInstance.
type InstanceGuard struct {
	locker   *Locker
	guid     string
	prior    *model.LastOperation
	missing  bool
	resolved bool
}

// Missing reports whether the resource was already gone at acquisition time,
// in which case every guard operation is a no-op.
func (g *InstanceGuard) Missing() bool {
	return g.missing
}

// Complete resolves the lock synchronously, marking the operation succeeded.
func (g *InstanceGuard) Complete() error {
	if g.consume() {
		return nil
	}
	return g.locker.store.UpdateInstance(g.guid, func(si *model.ServiceInstance) error {
		si.LastOperation.State = model.StateSucceeded
		si.LastOperation.UpdatedAt = g.locker.clock.Now()
		return nil
	})
}

// CompleteAndDelete resolves the lock by destroying the resource record.
func (g *InstanceGuard) CompleteAndDelete() error {
	if g.consume() {
		return nil
	}
	err := g.locker.store.DeleteInstance(g.guid)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// DeferToPoller leaves the operation in progress, records the broker-provided
// operation token, and schedules the follow-up task. The non-terminal state
// itself keeps the resource locked until the poller resolves it.
func (g *InstanceGuard) DeferToPoller(brokerOperation string, task jobs.Task, runAt time.Time) error {
	if g.consume() {
		return nil
	}
	err := g.locker.store.UpdateInstance(g.guid, func(si *model.ServiceInstance) error {
		si.LastOperation.BrokerProvidedOperation = brokerOperation
		si.LastOperation.UpdatedAt = g.locker.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}
	g.locker.queue.Enqueue(task, runAt)
	return nil
}

// AbortAndRestore reverts the resource to its pre-lock operation state. It
// does nothing if the guard was already resolved, so failure paths can defer
// it unconditionally. The failed attempt's operation record is intentionally
// discarded; a never-confirmed create is marked failed instead, since there
// is no prior state to return to.
func (g *InstanceGuard) AbortAndRestore() {
	if g.consume() {
		return
	}
	err := g.locker.store.UpdateInstance(g.guid, func(si *model.ServiceInstance) error {
		if g.prior != nil {
			si.LastOperation = g.prior
		} else {
			si.LastOperation.State = model.StateFailed
			si.LastOperation.UpdatedAt = g.locker.clock.Now()
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Locks", err, "Failed to restore operation state for service instance %s", g.guid)
	}
}

// NeedsUnlock reports whether the guard is still unresolved.
func (g *InstanceGuard) NeedsUnlock() bool {
	return !g.resolved
}

func (g *InstanceGuard) consume() bool {
	if g.resolved {
		return true
	}
	g.resolved = true
	return false
}

// BindingGuard is the transaction-scoped handle returned by LockBinding.
type BindingGuard struct {
	locker   *Locker
	guid     string
	prior    *model.LastOperation
	missing  bool
	resolved bool
}

func (g *BindingGuard) Missing() bool {
	return g.missing
}

// Complete resolves the lock synchronously, marking the operation succeeded.
func (g *BindingGuard) Complete() error {
	if g.consume() {
		return nil
	}
	return g.locker.store.UpdateBinding(g.guid, func(b *model.Binding) error {
		b.LastOperation.State = model.StateSucceeded
		b.LastOperation.UpdatedAt = g.locker.clock.Now()
		return nil
	})
}

// CompleteAndDelete resolves the lock by destroying the resource record.
func (g *BindingGuard) CompleteAndDelete() error {
	if g.consume() {
		return nil
	}
	err := g.locker.store.DeleteBinding(g.guid)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// DeferToPoller leaves the operation in progress with the broker-provided
// token and schedules the follow-up task.
func (g *BindingGuard) DeferToPoller(brokerOperation string, task jobs.Task, runAt time.Time) error {
	if g.consume() {
		return nil
	}
	err := g.locker.store.UpdateBinding(g.guid, func(b *model.Binding) error {
		b.LastOperation.BrokerProvidedOperation = brokerOperation
		b.LastOperation.UpdatedAt = g.locker.clock.Now()
		return nil
	})
	if err != nil {
		return err
	}
	g.locker.queue.Enqueue(task, runAt)
	return nil
}

// AbortAndRestore reverts the resource to its pre-lock operation state.
func (g *BindingGuard) AbortAndRestore() {
	if g.consume() {
		return
	}
	err := g.locker.store.UpdateBinding(g.guid, func(b *model.Binding) error {
		if g.prior != nil {
			b.LastOperation = g.prior
		} else {
			b.LastOperation.State = model.StateFailed
			b.LastOperation.UpdatedAt = g.locker.clock.Now()
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Locks", err, "Failed to restore operation state for %s", g.guid)
	}
}

// NeedsUnlock reports whether the guard is still unresolved.
func (g *BindingGuard) NeedsUnlock() bool {
	return !g.resolved
}

func (g *BindingGuard) consume() bool {
	if g.resolved {
		return true
	}
	g.resolved = true
	return false
}
