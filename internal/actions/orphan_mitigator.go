package actions

import (
	"context"

	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/pkg/logging"
)

// Mitigator issues best-effort compensating deletes for broker-side resources
// whose creation could not be confirmed locally. Every call is fire-and-forget:
// failures are logged and never propagated, and no retry is scheduled.
type Mitigator struct {
	broker osb.Client
}

// NewMitigator creates a Mitigator over the given broker client.
func NewMitigator(broker osb.Client) *Mitigator {
	return &Mitigator{broker: broker}
}

// AttemptUnbind asks the broker to delete a binding or service key whose
// create was accepted but never confirmed.
func (m *Mitigator) AttemptUnbind(ctx context.Context, binding *model.Binding) {
	logging.Info("OrphanMitigation", "Attempting broker-side cleanup of %s %s", binding.Kind.ShortName(), binding.GUID)
	if _, err := m.broker.Unbind(ctx, binding, false); err != nil {
		logging.Error("OrphanMitigation", err, "Unable to delete orphaned %s %s", binding.Kind.ShortName(), binding.GUID)
	}
}

// AttemptDeprovision asks the broker to delete a service instance whose
// provision was accepted but never confirmed.
func (m *Mitigator) AttemptDeprovision(ctx context.Context, instance *model.ServiceInstance) {
	logging.Info("OrphanMitigation", "Attempting broker-side cleanup of service instance %s", instance.GUID)
	if _, err := m.broker.Deprovision(ctx, instance, false); err != nil {
		logging.Error("OrphanMitigation", err, "Unable to deprovision orphaned service instance %s", instance.GUID)
	}
}
