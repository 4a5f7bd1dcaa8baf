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
)

// timeoutDescription is recorded when polling exhausts the configured
// maximum duration without the broker reaching a terminal state.
const timeoutDescription = "Service Broker failed to bind within the required time."

// BindingStateFetch polls the broker for the last-operation state of a
// pending binding or service key and drives the local record to a terminal
// state. The task carries only the resource identity and the absolute
// deadline; the poll interval is read fresh from configuration on every
// invocation.
type BindingStateFetch struct {
	BindingGUID  string
	Deadline     time.Time
	RequestAttrs map[string]any

	deps Deps
}

// NewBindingStateFetch builds a poller task for the given binding. The
// deadline is fixed at creation time from the configured maximum poll
// duration.
func NewBindingStateFetch(bindingGUID string, requestAttrs map[string]any, deps Deps) *BindingStateFetch {
	return &BindingStateFetch{
		BindingGUID:  bindingGUID,
		Deadline:     deps.Clock.Now().Add(deps.Config.Get().MaxPollDuration()),
		RequestAttrs: requestAttrs,
		deps:         deps,
	}
}

// Name implements Task.
func (t *BindingStateFetch) Name() string {
	return fmt.Sprintf("binding-state-fetch/%s", t.BindingGUID)
}

// Run implements Task. Each invocation performs exactly one poll; all
// retrying is delegated to re-enqueueing.
func (t *BindingStateFetch) Run(ctx context.Context) error {
	binding, err := t.deps.Store.Binding(t.BindingGUID)
	if errors.Is(err, store.ErrNotFound) {
		// Assume the record was purged; nothing left to poll.
		return nil
	}
	if err != nil {
		return err
	}
	if binding.LastOperation.Terminal() {
		// Already resolved by an earlier invocation.
		return nil
	}

	result, err := t.deps.Broker.FetchBindingLastOperation(ctx, binding)
	if err != nil {
		// Broker unreachable or misbehaving: transient, try again next
		// interval without touching persisted state.
		logging.Error("Jobs", err, "Error fetching the %s operation state for %s", binding.Kind.ShortName(), binding.GUID)
		return t.retryOrTimeout(binding)
	}

	var finished bool
	switch binding.LastOperation.Type {
	case model.OperationCreate:
		finished = t.processCreate(ctx, binding, result)
	case model.OperationDelete:
		finished = t.processDelete(binding, result)
	default:
		return fmt.Errorf("unexpected operation type %q on %s %s", binding.LastOperation.Type, binding.Kind.ShortName(), binding.GUID)
	}

	if finished {
		return nil
	}
	return t.retryOrTimeout(binding)
}

func (t *BindingStateFetch) processCreate(ctx context.Context, binding *model.Binding, result osb.LastOperationResult) bool {
	if result.State == model.StateSucceeded {
		details, err := t.deps.Broker.FetchBinding(ctx, binding)
		if err != nil {
			logging.Error("Jobs", err, "Error fetching the %s details for %s", binding.Kind.ShortName(), binding.GUID)
			t.setFailedAndMitigate(ctx, binding)
			return true
		}

		err = t.deps.Store.UpdateBinding(binding.GUID, func(b *model.Binding) error {
			b.Credentials = details.Credentials
			if b.Kind.HasDrainAndMounts() {
				b.SyslogDrainURL = details.SyslogDrainURL
				b.VolumeMounts = details.VolumeMounts
			}
			b.LastOperation.State = model.StateSucceeded
			b.LastOperation.Description = result.Description
			return nil
		})
		if err != nil {
			logging.Error("Jobs", err, "Failed to persist %s %s after successful create", binding.Kind.ShortName(), binding.GUID)
			return true
		}

		t.deps.Events.RecordBindingEvent("create", binding, t.RequestAttrs)
		return true
	}

	t.persistOperation(binding, result)
	return result.State == model.StateFailed
}

func (t *BindingStateFetch) processDelete(binding *model.Binding, result osb.LastOperationResult) bool {
	if result.Gone || result.State == model.StateSucceeded {
		if err := t.deps.Store.DeleteBinding(binding.GUID); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Error("Jobs", err, "Failed to destroy %s %s after broker delete", binding.Kind.ShortName(), binding.GUID)
			return true
		}
		t.deps.Events.RecordBindingEvent("delete", binding, t.RequestAttrs)
		return true
	}

	t.persistOperation(binding, result)
	return result.State == model.StateFailed
}

func (t *BindingStateFetch) persistOperation(binding *model.Binding, result osb.LastOperationResult) {
	err := t.deps.Store.UpdateBinding(binding.GUID, func(b *model.Binding) error {
		b.LastOperation.State = result.State
		b.LastOperation.Description = result.Description
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Jobs", err, "Failed to persist operation state for %s %s", binding.Kind.ShortName(), binding.GUID)
	}
}

// setFailedAndMitigate marks the create failed and attempts best-effort
// cleanup of the broker-side resource, which may well exist even though we
// could not confirm it.
func (t *BindingStateFetch) setFailedAndMitigate(ctx context.Context, binding *model.Binding) {
	err := t.deps.Store.UpdateBinding(binding.GUID, func(b *model.Binding) error {
		b.LastOperation.State = model.StateFailed
		b.LastOperation.Description = fmt.Sprintf("A valid %s could not be fetched from the service broker.", b.Kind.ShortName())
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Error("Jobs", err, "Failed to mark %s %s as failed", binding.Kind.ShortName(), binding.GUID)
	}
	t.deps.Mitigator.AttemptUnbind(ctx, binding)
}

// retryOrTimeout re-enqueues the task one poll interval out, unless that
// would overshoot the deadline, in which case the operation is marked failed
// and polling stops for good.
func (t *BindingStateFetch) retryOrTimeout(binding *model.Binding) error {
	interval := t.deps.Config.Get().PollInterval()
	now := t.deps.Clock.Now()

	if now.Add(interval).After(t.Deadline) {
		err := t.deps.Store.UpdateBinding(binding.GUID, func(b *model.Binding) error {
			b.LastOperation.State = model.StateFailed
			b.LastOperation.Description = timeoutDescription
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to record poll timeout for %s: %w", binding.GUID, err)
		}
		return nil
	}

	t.deps.Enqueuer.Enqueue(t, now.Add(interval))
	return nil
}
