package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"maestro/internal/jobs"
	"maestro/internal/locks"
	"maestro/internal/model"
	"maestro/internal/store"
	"maestro/pkg/logging"
)

// InstanceDelete deletes service instances together with their dependent
// bindings, keys, shares, and route bindings. Each instance in a batch is
// processed independently; child failures block only their own parent.
type InstanceDelete struct {
	deps          Deps
	bindingDelete *BindingDelete
	routeDelete   *RouteBindingDelete
	unshare       *Unshare
}

// NewInstanceDelete creates the cascading delete orchestrator.
func NewInstanceDelete(deps Deps) *InstanceDelete {
	return &InstanceDelete{
		deps:          deps,
		bindingDelete: NewBindingDelete(deps),
		routeDelete:   NewRouteBindingDelete(deps),
		unshare:       NewUnshare(deps),
	}
}

// Delete processes each instance in turn and returns the accumulated errors
// and warnings. A failure on one instance never blocks its siblings. The
// acceptsIncomplete flag is forwarded to every broker call in the cascade.
func (a *InstanceDelete) Delete(ctx context.Context, instances []*model.ServiceInstance, requestAttrs map[string]any, acceptsIncomplete bool) (errs []error, warnings []string) {
	for _, instance := range instances {
		instWarnings, err := a.deleteOne(ctx, instance, requestAttrs, acceptsIncomplete)
		warnings = append(warnings, instWarnings...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs, warnings
}

// DeleteAsJob runs the batch delete on the task queue and returns a handle
// the caller can poll for completion, warnings, and the aggregated error.
func (a *InstanceDelete) DeleteAsJob(instances []*model.ServiceInstance, requestAttrs map[string]any, acceptsIncomplete bool) *jobs.PollableJob {
	job := jobs.NewPollableJob()
	a.deps.Queue.Enqueue(&instanceDeleteTask{
		action:            a,
		job:               job,
		instances:         instances,
		requestAttrs:      requestAttrs,
		acceptsIncomplete: acceptsIncomplete,
	}, a.deps.Clock.Now())
	return job
}

// instanceDeleteTask adapts a batch delete to the task queue, reporting its
// outcome through the attached pollable job.
type instanceDeleteTask struct {
	action            *InstanceDelete
	job               *jobs.PollableJob
	instances         []*model.ServiceInstance
	requestAttrs      map[string]any
	acceptsIncomplete bool
}

func (t *instanceDeleteTask) Name() string {
	return "service-instance-delete"
}

func (t *instanceDeleteTask) Run(ctx context.Context) error {
	errs, warnings := t.action.Delete(ctx, t.instances, t.requestAttrs, t.acceptsIncomplete)
	for _, warning := range warnings {
		t.job.AddWarning(warning)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		t.job.Fail(err)
		return err
	}
	t.job.Complete()
	return nil
}

func (a *InstanceDelete) deleteOne(ctx context.Context, instance *model.ServiceInstance, requestAttrs map[string]any, acceptsIncomplete bool) ([]string, error) {
	if instance.OperationInProgress() {
		if instance.LastOperation.Type == model.OperationCreate {
			// An unconfirmed create has nothing user-visible to preserve:
			// finish it off rather than blocking the delete.
			return nil, a.forceDeletePendingCreate(ctx, instance, requestAttrs)
		}
		return nil, fmt.Errorf("deletion of service instance %s blocked: %w", instance.Name, locks.ErrAsyncOperationInProgress)
	}

	var childErrs []error
	var warnings []string

	for _, kind := range []model.BindingKind{model.KindAppBinding, model.KindServiceKey} {
		for _, binding := range a.deps.Store.BindingsForInstance(instance.GUID, kind) {
			b := binding
			w, err := a.bindingDelete.Delete(ctx, &b, requestAttrs, acceptsIncomplete)
			warnings = append(warnings, w...)
			if err != nil {
				childErrs = append(childErrs, err)
				continue
			}
			// An unbind the broker accepted asynchronously leaves the record
			// pending. The parent must not be deprovisioned until the child
			// is confirmed gone.
			if remaining, err := a.deps.Store.Binding(b.GUID); err == nil && remaining.OperationInProgress() {
				childErrs = append(childErrs, a.bindingDelete.describeLockError(&b, locks.ErrResourceLocked))
			}
		}
	}

	for _, spaceGUID := range a.deps.Store.SharedSpaces(instance.GUID) {
		if err := a.unshare.Unshare(instance.GUID, spaceGUID, requestAttrs); err != nil {
			childErrs = append(childErrs, err)
		}
	}

	for _, rb := range a.deps.Store.RouteBindingsForInstance(instance.GUID) {
		r := rb
		if err := a.routeDelete.Delete(ctx, &r); err != nil {
			childErrs = append(childErrs, err)
		}
	}

	if len(childErrs) > 0 {
		return warnings, recursiveDeleteError(instance, childErrs)
	}

	return warnings, a.deprovision(ctx, instance, requestAttrs, acceptsIncomplete)
}

// forceDeletePendingCreate finishes off an instance whose provision was never
// confirmed: best-effort synchronous deprovision, then destroy the record.
func (a *InstanceDelete) forceDeletePendingCreate(ctx context.Context, instance *model.ServiceInstance, requestAttrs map[string]any) error {
	if instance.Managed() {
		if _, err := a.deps.Broker.Deprovision(ctx, instance, false); err != nil {
			logging.Error("Actions", err, "Best-effort deprovision of unconfirmed service instance %s failed", instance.GUID)
		}
	}
	if err := a.deps.Store.DeleteInstance(instance.GUID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	a.deps.Events.RecordInstanceEvent("delete", instance, requestAttrs)
	return nil
}

func (a *InstanceDelete) deprovision(ctx context.Context, instance *model.ServiceInstance, requestAttrs map[string]any, acceptsIncomplete bool) error {
	if !instance.Managed() {
		if err := a.deps.Store.DeleteInstance(instance.GUID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		a.deps.Events.RecordInstanceEvent("delete", instance, requestAttrs)
		return nil
	}

	guard, err := a.deps.Locker.LockInstance(instance.GUID, model.OperationDelete)
	if err != nil {
		return fmt.Errorf("deletion of service instance %s blocked: %w", instance.Name, err)
	}
	if guard.Missing() {
		return nil
	}
	defer guard.AbortAndRestore()

	result, err := a.deps.Broker.Deprovision(ctx, instance, acceptsIncomplete)
	if err != nil {
		return fmt.Errorf("deprovision of service instance %s failed: %w", instance.Name, err)
	}

	if result.Async {
		a.deps.Events.RecordInstanceEvent("start_delete", instance, requestAttrs)
		task := jobs.NewInstanceStateFetch(instance.GUID, requestAttrs, nil, a.deps.pollerDeps())
		return guard.DeferToPoller(result.Operation, task, a.deps.firstPollAt())
	}

	if err := guard.CompleteAndDelete(); err != nil {
		return err
	}
	a.deps.Events.RecordInstanceEvent("delete", instance, requestAttrs)
	return nil
}

// recursiveDeleteError aggregates every child failure into one error, each
// child message on its own line. The parent instance is left untouched.
func recursiveDeleteError(instance *model.ServiceInstance, childErrs []error) error {
	messages := make([]string, len(childErrs))
	for i, err := range childErrs {
		messages[i] = err.Error()
	}
	return fmt.Errorf("deletion of service instance %s failed because one or more associated resources could not be deleted:\n%s",
		instance.Name, strings.Join(messages, "\n"))
}
