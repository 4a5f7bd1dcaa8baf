package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"maestro/internal/jobs"
	"maestro/internal/model"
	"maestro/internal/osb"

	"github.com/google/uuid"
)

// BindingCreate creates service bindings and service keys. The two kinds
// share one flow; only the broker call and the persisted field set differ.
type BindingCreate struct {
	deps Deps
}

// NewBindingCreate creates the bind orchestrator.
func NewBindingCreate(deps Deps) *BindingCreate {
	return &BindingCreate{deps: deps}
}

// Create persists the binding record and drives the broker bind. The owning
// instance must not have an operation in flight. An asynchronous broker
// answer is only acceptable when the offering supports fetching bindings
// back, since completing the create requires a detail fetch; otherwise the
// create is failed and broker-side cleanup is attempted.
func (a *BindingCreate) Create(ctx context.Context, binding *model.Binding, parameters json.RawMessage, requestAttrs map[string]any, acceptsIncomplete bool) error {
	if err := a.deps.Locker.CheckInstanceNotLocked(binding.ServiceInstanceGUID); err != nil {
		return err
	}

	instance, err := a.deps.Store.Instance(binding.ServiceInstanceGUID)
	if err != nil {
		return err
	}

	if binding.GUID == "" {
		binding.GUID = uuid.NewString()
	}
	if err := a.deps.Store.SaveBinding(binding); err != nil {
		return fmt.Errorf("failed to persist %s %s: %w", binding.Kind.ShortName(), binding.GUID, err)
	}

	guard, err := a.deps.Locker.LockBinding(binding.GUID, model.OperationCreate)
	if err != nil {
		return err
	}
	defer guard.AbortAndRestore()

	result, err := a.brokerCreate(ctx, binding, parameters, acceptsIncomplete)
	if err != nil {
		return fmt.Errorf("creation of %s %s failed: %w", binding.Kind.ShortName(), binding.GUID, err)
	}

	if result.Async {
		if !instance.BindingsRetrievable {
			a.deps.Mitigator.AttemptUnbind(ctx, binding)
			return fmt.Errorf("the service broker responded asynchronously to the %s request, but the service does not support fetching %s details", binding.Kind.ShortName(), binding.Kind.ShortName())
		}
		a.deps.Events.RecordBindingEvent("start_create", binding, requestAttrs)
		task := jobs.NewBindingStateFetch(binding.GUID, requestAttrs, a.deps.pollerDeps())
		return guard.DeferToPoller(result.Operation, task, a.deps.firstPollAt())
	}

	err = a.deps.Store.UpdateBinding(binding.GUID, func(b *model.Binding) error {
		b.Credentials = result.Details.Credentials
		if b.Kind.HasDrainAndMounts() {
			b.SyslogDrainURL = result.Details.SyslogDrainURL
			b.VolumeMounts = result.Details.VolumeMounts
		}
		return nil
	})
	if err != nil {
		a.deps.Mitigator.AttemptUnbind(ctx, binding)
		return err
	}

	if err := guard.Complete(); err != nil {
		return err
	}
	a.deps.Events.RecordBindingEvent("create", binding, requestAttrs)
	return nil
}

func (a *BindingCreate) brokerCreate(ctx context.Context, binding *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (osb.BindResult, error) {
	if binding.Kind == model.KindServiceKey {
		return a.deps.Broker.CreateServiceKey(ctx, binding, parameters, acceptsIncomplete)
	}
	return a.deps.Broker.Bind(ctx, binding, parameters, acceptsIncomplete)
}
