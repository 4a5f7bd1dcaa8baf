package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"maestro/internal/jobs"
	"maestro/internal/model"

	"github.com/google/uuid"
)

// InstanceCreate provisions new service instances, synchronously or
// asynchronously depending on the broker's answer.
type InstanceCreate struct {
	deps Deps
}

// NewInstanceCreate creates the provision orchestrator.
func NewInstanceCreate(deps Deps) *InstanceCreate {
	return &InstanceCreate{deps: deps}
}

// Create persists the instance record and drives the broker provision. On an
// asynchronous broker answer the record is left in progress and a poller task
// takes over; the call returns without waiting for completion.
func (a *InstanceCreate) Create(ctx context.Context, instance *model.ServiceInstance, parameters json.RawMessage, requestAttrs map[string]any, acceptsIncomplete bool) error {
	if instance.GUID == "" {
		instance.GUID = uuid.NewString()
	}
	if err := a.deps.Store.SaveInstance(instance); err != nil {
		return fmt.Errorf("failed to persist service instance %s: %w", instance.GUID, err)
	}

	if !instance.Managed() {
		a.deps.Events.RecordInstanceEvent("create", instance, requestAttrs)
		return nil
	}

	plan, err := a.deps.Store.Plan(instance.ServicePlanGUID)
	if err != nil {
		return fmt.Errorf("service plan %s: %w", instance.ServicePlanGUID, err)
	}

	guard, err := a.deps.Locker.LockInstance(instance.GUID, model.OperationCreate)
	if err != nil {
		return err
	}
	defer guard.AbortAndRestore()

	result, err := a.deps.Broker.Provision(ctx, instance, plan, parameters, acceptsIncomplete)
	if err != nil {
		return fmt.Errorf("provision of service instance %s failed: %w", instance.Name, err)
	}

	if result.Async {
		a.deps.Events.RecordInstanceEvent("start_create", instance, requestAttrs)
		task := jobs.NewInstanceStateFetch(instance.GUID, requestAttrs, nil, a.deps.pollerDeps())
		return guard.DeferToPoller(result.Operation, task, a.deps.firstPollAt())
	}

	if result.DashboardURL != "" {
		err = a.deps.Store.UpdateInstance(instance.GUID, func(si *model.ServiceInstance) error {
			si.DashboardURL = result.DashboardURL
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := guard.Complete(); err != nil {
		return err
	}
	a.deps.Events.RecordInstanceEvent("create", instance, requestAttrs)
	return nil
}
