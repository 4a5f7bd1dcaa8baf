package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/internal/store"
	"maestro/pkg/logging"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// instanceTimeoutDescription is recorded when polling exhausts the configured
// maximum duration. The verb names the operation that timed out.
func instanceTimeoutDescription(opType model.OperationType) string {
	verb := "provision"
	switch opType {
	case model.OperationUpdate:
		verb = "update"
	case model.OperationDelete:
		verb = "deprovision"
	}
	return fmt.Sprintf("Service Broker failed to %s within the required time.", verb)
}

// ProposedChanges carries the attribute changes an update deferred until the
// broker confirms the operation. They are applied only on a successful
// terminal state.
type ProposedChanges struct {
	ServicePlanGUID string
	MaintenanceInfo *domain.MaintenanceInfo
}

// InstanceStateFetch polls the broker for the last-operation state of a
// pending service instance operation, the instance-side counterpart of
// BindingStateFetch.
type InstanceStateFetch struct {
	InstanceGUID string
	Deadline     time.Time
	RequestAttrs map[string]any
	Proposed     *ProposedChanges

	deps Deps
}

// NewInstanceStateFetch builds a poller task for the given instance.
func NewInstanceStateFetch(instanceGUID string, requestAttrs map[string]any, proposed *ProposedChanges, deps Deps) *InstanceStateFetch {
	return &InstanceStateFetch{
		InstanceGUID: instanceGUID,
		Deadline:     deps.Clock.Now().Add(deps.Config.Get().MaxPollDuration()),
		RequestAttrs: requestAttrs,
		Proposed:     proposed,
		deps:         deps,
	}
}

// Name implements Task.
func (t *InstanceStateFetch) Name() string {
	return fmt.Sprintf("instance-state-fetch/%s", t.InstanceGUID)
}

// Run implements Task.
func (t *InstanceStateFetch) Run(ctx context.Context) error {
	instance, err := t.deps.Store.Instance(t.InstanceGUID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if instance.LastOperation.Terminal() {
		return nil
	}

	result, err := t.deps.Broker.FetchInstanceLastOperation(ctx, instance)
	if err != nil {
		logging.Error("Jobs", err, "Error fetching the service instance operation state for %s", instance.GUID)
		return t.retryOrTimeout(instance)
	}

	var finished bool
	switch instance.LastOperation.Type {
	case model.OperationCreate:
		finished = t.processCreate(ctx, instance, result)
	case model.OperationUpdate:
		finished = t.processUpdate(instance, result)
	case model.OperationDelete:
		finished = t.processDelete(instance, result)
	}

	if finished {
		return nil
	}
	return t.retryOrTimeout(instance)
}

func (t *InstanceStateFetch) processCreate(ctx context.Context, instance *model.ServiceInstance, result osb.LastOperationResult) bool {
	if result.State == model.StateSucceeded {
		details, err := t.deps.Broker.FetchInstance(ctx, instance)
		if err != nil {
			logging.Error("Jobs", err, "Error fetching the service instance details for %s", instance.GUID)
			t.setFailedAndMitigate(ctx, instance)
			return true
		}

		err = t.deps.Store.UpdateInstance(instance.GUID, func(si *model.ServiceInstance) error {
			if details.DashboardURL != "" {
				si.DashboardURL = details.DashboardURL
			}
			si.LastOperation.State = model.StateSucceeded
			si.LastOperation.Description = result.Description
			return nil
		})
		if err != nil {
			logging.Error("Jobs", err, "Failed to persist service instance %s after successful provision", instance.GUID)
			return true
		}

		t.deps.Events.RecordInstanceEvent("create", instance, t.RequestAttrs)
		return true
	}

	t.persistOperation(instance, result)
	return result.State == model.StateFailed
}

func (t *InstanceStateFetch) processUpdate(instance *model.ServiceInstance, result osb.LastOperationResult) bool {
	if result.State == model.StateSucceeded {
		err := t.deps.Store.UpdateInstance(instance.GUID, func(si *model.ServiceInstance) error {
			t.applyProposedChanges(si)
			si.LastOperation.State = model.StateSucceeded
			si.LastOperation.Description = result.Description
			return nil
		})
		if err != nil {
			logging.Error("Jobs", err, "Failed to persist service instance %s after successful update", instance.GUID)
			return true
		}

		t.deps.Events.RecordInstanceEvent("update", instance, t.RequestAttrs)
		return true
	}

	t.persistOperation(instance, result)
	return result.State == model.StateFailed
}

func (t *InstanceStateFetch) processDelete(instance *model.ServiceInstance, result osb.LastOperationResult) bool {
	if result.Gone || result.State == model.StateSucceeded {
		if err := t.deps.Store.DeleteInstance(instance.GUID); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Error("Jobs", err, "Failed to destroy service instance %s after broker deprovision", instance.GUID)
			return true
		}
		t.deps.Events.RecordInstanceEvent("delete", instance, t.RequestAttrs)
		return true
	}

	t.persistOperation(instance, result)
	return result.State == model.StateFailed
}

// applyProposedChanges applies the plan and maintenance info changes that
// were deferred until broker confirmation.
func (t *InstanceStateFetch) applyProposedChanges(si *model.ServiceInstance) {
	if t.Proposed == nil {
		return
	}
	if t.Proposed.ServicePlanGUID != "" {
		si.ServicePlanGUID = t.Proposed.ServicePlanGUID
	}
	if t.Proposed.MaintenanceInfo != nil {
		mi := *t.Proposed.MaintenanceInfo
		si.MaintenanceInfo = &mi
	}
}

func (t *InstanceStateFetch) persistOperation(instance *model.ServiceInstance, result osb.LastOperationResult) {
	err := t.deps.Store.UpdateInstance(instance.GUID, func(si *model.ServiceInstance) error {
		si.LastOperation.State = result.State
		si.LastOperation.Description = result.Description
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Jobs", err, "Failed to persist operation state for service instance %s", instance.GUID)
	}
}

func (t *InstanceStateFetch) setFailedAndMitigate(ctx context.Context, instance *model.ServiceInstance) {
	err := t.deps.Store.UpdateInstance(instance.GUID, func(si *model.ServiceInstance) error {
		si.LastOperation.State = model.StateFailed
		si.LastOperation.Description = "A valid service instance could not be fetched from the service broker."
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Jobs", err, "Failed to mark service instance %s as failed", instance.GUID)
	}
	t.deps.Mitigator.AttemptDeprovision(ctx, instance)
}

func (t *InstanceStateFetch) retryOrTimeout(instance *model.ServiceInstance) error {
	interval := t.deps.Config.Get().PollInterval()
	now := t.deps.Clock.Now()

	if now.Add(interval).After(t.Deadline) {
		err := t.deps.Store.UpdateInstance(instance.GUID, func(si *model.ServiceInstance) error {
			si.LastOperation.State = model.StateFailed
			si.LastOperation.Description = instanceTimeoutDescription(si.LastOperation.Type)
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to record poll timeout for %s: %w", instance.GUID, err)
		}
		return nil
	}

	t.deps.Enqueuer.Enqueue(t, now.Add(interval))
	return nil
}
