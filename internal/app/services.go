package app

import (
	"fmt"

	"maestro/internal/actions"
	"maestro/internal/clock"
	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/jobs"
	"maestro/internal/locks"
	"maestro/internal/osb"
	"maestro/internal/store"
	"maestro/pkg/logging"
)

// Services bundles every wired component of the control plane. The
// orchestrators are exposed so an API layer or CLI command can drive
// lifecycle operations directly.
type Services struct {
	Manager *config.Manager
	Store   *store.Store
	Broker  osb.Client
	Queue   *jobs.Queue
	Locker  *locks.Locker
	Events  *events.Recorder

	InstanceCreate *actions.InstanceCreate
	InstanceUpdate *actions.InstanceUpdate
	InstanceDelete *actions.InstanceDelete
	BindingCreate  *actions.BindingCreate
	BindingDelete  *actions.BindingDelete
	RouteDelete    *actions.RouteBindingDelete
	Unshare        *actions.Unshare

	deps actions.Deps
}

// InitializeServices wires the store, broker client, task queue, and
// orchestrators from the given configuration manager.
func InitializeServices(manager *config.Manager) (*Services, error) {
	cfg := manager.Get()
	clk := clock.System{}

	st := store.New(clk)
	if cfg.DataDir != "" {
		st.EnableSnapshots(config.NewStorage(cfg.DataDir))
		if err := st.LoadSnapshots(); err != nil {
			return nil, fmt.Errorf("failed to restore snapshots from %s: %w", cfg.DataDir, err)
		}
	}

	if cfg.Broker.URL == "" {
		return nil, fmt.Errorf("broker.url is not configured")
	}
	broker, err := osb.NewHTTPClient(cfg.Broker.URL, cfg.Broker.Username, cfg.Broker.Password, cfg.RequestTimeout(), st)
	if err != nil {
		return nil, err
	}

	queue := jobs.NewQueue(cfg.Workers, clk)
	locker := locks.NewLocker(st, clk, queue)
	recorder := events.NewRecorder(st, clk)

	deps := actions.Deps{
		Store:     st,
		Broker:    broker,
		Locker:    locker,
		Events:    recorder,
		Config:    manager,
		Clock:     clk,
		Queue:     queue,
		Mitigator: actions.NewMitigator(broker),
	}

	return &Services{
		Manager:        manager,
		Store:          st,
		Broker:         broker,
		Queue:          queue,
		Locker:         locker,
		Events:         recorder,
		InstanceCreate: actions.NewInstanceCreate(deps),
		InstanceUpdate: actions.NewInstanceUpdate(deps),
		InstanceDelete: actions.NewInstanceDelete(deps),
		BindingCreate:  actions.NewBindingCreate(deps),
		BindingDelete:  actions.NewBindingDelete(deps),
		RouteDelete:    actions.NewRouteBindingDelete(deps),
		Unshare:        actions.NewUnshare(deps),
		deps:           deps,
	}, nil
}

// ResumePendingOperations re-registers poller tasks for every record that
// was left with an in-progress operation by a previous process. Call after
// the queue has started.
func (s *Services) ResumePendingOperations() {
	jobDeps := jobs.Deps{
		Store:     s.deps.Store,
		Broker:    s.deps.Broker,
		Events:    s.deps.Events,
		Config:    s.deps.Config,
		Clock:     s.deps.Clock,
		Enqueuer:  s.deps.Queue,
		Mitigator: s.deps.Mitigator,
	}

	resumed := 0
	for _, instance := range s.Store.Instances() {
		if !instance.OperationInProgress() {
			continue
		}
		task := jobs.NewInstanceStateFetch(instance.GUID, nil, nil, jobDeps)
		s.Queue.Enqueue(task, s.deps.Clock.Now())
		resumed++
	}
	for _, binding := range s.Store.Bindings() {
		if !binding.OperationInProgress() {
			continue
		}
		task := jobs.NewBindingStateFetch(binding.GUID, nil, jobDeps)
		s.Queue.Enqueue(task, s.deps.Clock.Now())
		resumed++
	}

	if resumed > 0 {
		logging.Info("Bootstrap", "Resumed polling for %d pending operations", resumed)
	}
}
