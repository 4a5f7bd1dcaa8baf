package jobs

import (
	"context"

	"maestro/internal/clock"
	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/internal/store"
)

// OrphanMitigator is the compensating action invoked when a broker-side
// create can no longer be confirmed locally. Implementations are best-effort
// and never return errors.
type OrphanMitigator interface {
	AttemptUnbind(ctx context.Context, binding *model.Binding)
	AttemptDeprovision(ctx context.Context, instance *model.ServiceInstance)
}

// Deps bundles the collaborators the state-fetch tasks need. Everything is
// injected; tasks hold no ambient state beyond resource identity and
// deadline.
type Deps struct {
	Store     *store.Store
	Broker    osb.Client
	Events    *events.Recorder
	Config    *config.Manager
	Clock     clock.Clock
	Enqueuer  Enqueuer
	Mitigator OrphanMitigator
}
