package actions

import (
	"context"
	"fmt"

	"maestro/internal/jobs"
	"maestro/internal/model"
)

// asyncUnbindWarning is attached to a successful delete when the broker
// answered asynchronously although the caller did not permit it. The unbind
// may or may not have completed broker-side.
const asyncUnbindWarning = "The service broker responded asynchronously to the unbind request, but the accepts_incomplete query parameter was false or not given."

// BindingDelete deletes service bindings and service keys, synchronously or
// via the poller when the broker answers asynchronously.
type BindingDelete struct {
	deps Deps
}

// NewBindingDelete creates the unbind orchestrator.
func NewBindingDelete(deps Deps) *BindingDelete {
	return &BindingDelete{deps: deps}
}

// Delete drives one binding or key delete. The returned warnings are advisory
// and accompany a nil error; any non-nil error means the delete did not take
// effect locally.
func (a *BindingDelete) Delete(ctx context.Context, binding *model.Binding, requestAttrs map[string]any, acceptsIncomplete bool) (warnings []string, err error) {
	if err := a.deps.Locker.CheckInstanceNotLocked(binding.ServiceInstanceGUID); err != nil {
		return nil, err
	}

	guard, err := a.deps.Locker.LockBinding(binding.GUID, model.OperationDelete)
	if err != nil {
		return nil, a.describeLockError(binding, err)
	}
	if guard.Missing() {
		return nil, nil
	}
	defer guard.AbortAndRestore()

	result, err := a.deps.Broker.Unbind(ctx, binding, acceptsIncomplete)
	if err != nil {
		return nil, fmt.Errorf("deletion of %s %s failed: %w", binding.Kind.ShortName(), binding.GUID, err)
	}

	if result.Async {
		if !acceptsIncomplete {
			warnings = append(warnings, asyncUnbindWarning)
		}
		a.deps.Events.RecordBindingEvent("start_delete", binding, requestAttrs)
		task := jobs.NewBindingStateFetch(binding.GUID, requestAttrs, a.deps.pollerDeps())
		if err := guard.DeferToPoller(result.Operation, task, a.deps.firstPollAt()); err != nil {
			return nil, err
		}
		return warnings, nil
	}

	if err := guard.CompleteAndDelete(); err != nil {
		return nil, err
	}
	a.deps.Events.RecordBindingEvent("delete", binding, requestAttrs)
	return warnings, nil
}

// describeLockError names the specific resource pair so batch callers can
// report which child blocked a cascading delete.
func (a *BindingDelete) describeLockError(binding *model.Binding, err error) error {
	if binding.Kind == model.KindAppBinding {
		return fmt.Errorf("an operation for the service binding between app %s and service instance %s is in progress: %w", binding.AppGUID, binding.ServiceInstanceGUID, err)
	}
	return fmt.Errorf("an operation for the service key %s is in progress: %w", binding.Name, err)
}
