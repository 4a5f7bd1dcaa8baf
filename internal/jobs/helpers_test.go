package jobs_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"maestro/internal/clock"
	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/jobs"
	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/internal/store"
)

// fakeBroker is a scripted osb.Client. Last-operation polls are served from
// the lastOps queue; the final entry repeats once the queue is drained.
type fakeBroker struct {
	mu sync.Mutex

	lastOps    []osb.LastOperationResult
	lastOpErr  error
	pollCount  int
	details    osb.BindingDetails
	detailsErr error

	instanceDetails    osb.InstanceDetails
	instanceDetailsErr error

	unbound       []string
	deprovisioned []string
}

func (f *fakeBroker) Provision(ctx context.Context, instance *model.ServiceInstance, plan *model.ServicePlan, parameters json.RawMessage, acceptsIncomplete bool) (osb.ProvisionResult, error) {
	return osb.ProvisionResult{}, nil
}

func (f *fakeBroker) Deprovision(ctx context.Context, instance *model.ServiceInstance, acceptsIncomplete bool) (osb.DeprovisionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deprovisioned = append(f.deprovisioned, instance.GUID)
	return osb.DeprovisionResult{}, nil
}

func (f *fakeBroker) Update(ctx context.Context, req osb.UpdateRequest) (osb.UpdateResult, error) {
	return osb.UpdateResult{}, nil
}

func (f *fakeBroker) Bind(ctx context.Context, binding *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (osb.BindResult, error) {
	return osb.BindResult{}, nil
}

func (f *fakeBroker) Unbind(ctx context.Context, binding *model.Binding, acceptsIncomplete bool) (osb.UnbindResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbound = append(f.unbound, binding.GUID)
	return osb.UnbindResult{}, nil
}

func (f *fakeBroker) UnbindRoute(ctx context.Context, routeBinding *model.RouteBinding) error {
	return nil
}

func (f *fakeBroker) CreateServiceKey(ctx context.Context, key *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (osb.BindResult, error) {
	return osb.BindResult{}, nil
}

func (f *fakeBroker) FetchInstanceLastOperation(ctx context.Context, instance *model.ServiceInstance) (osb.LastOperationResult, error) {
	return f.nextLastOp()
}

func (f *fakeBroker) FetchBindingLastOperation(ctx context.Context, binding *model.Binding) (osb.LastOperationResult, error) {
	return f.nextLastOp()
}

func (f *fakeBroker) FetchInstance(ctx context.Context, instance *model.ServiceInstance) (osb.InstanceDetails, error) {
	return f.instanceDetails, f.instanceDetailsErr
}

func (f *fakeBroker) FetchBinding(ctx context.Context, binding *model.Binding) (osb.BindingDetails, error) {
	return f.details, f.detailsErr
}

func (f *fakeBroker) nextLastOp() (osb.LastOperationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCount++
	if f.lastOpErr != nil {
		return osb.LastOperationResult{}, f.lastOpErr
	}
	if len(f.lastOps) == 0 {
		return osb.LastOperationResult{State: model.StateInProgress}, nil
	}
	result := f.lastOps[0]
	if len(f.lastOps) > 1 {
		f.lastOps = f.lastOps[1:]
	}
	return result, nil
}

func (f *fakeBroker) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount
}

// fakeEnqueuer records task registrations instead of running them.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []jobs.Task
	times []time.Time
}

func (f *fakeEnqueuer) Enqueue(task jobs.Task, runAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	f.times = append(f.times, runAt)
}

func (f *fakeEnqueuer) pop() (jobs.Task, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return nil, time.Time{}, false
	}
	task, runAt := f.tasks[0], f.times[0]
	f.tasks = f.tasks[1:]
	f.times = f.times[1:]
	return task, runAt, true
}

// fakeMitigator records which resources were handed to orphan mitigation.
type fakeMitigator struct {
	mu        sync.Mutex
	unbinds   []string
	deprovide []string
}

func (f *fakeMitigator) AttemptUnbind(ctx context.Context, binding *model.Binding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbinds = append(f.unbinds, binding.GUID)
}

func (f *fakeMitigator) AttemptDeprovision(ctx context.Context, instance *model.ServiceInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deprovide = append(f.deprovide, instance.GUID)
}

type testEnv struct {
	store     *store.Store
	broker    *fakeBroker
	clock     *clock.Fake
	enqueuer  *fakeEnqueuer
	mitigator *fakeMitigator
	deps      jobs.Deps
}

// newTestEnv wires jobs.Deps with a 5 second poll interval and a 1 minute
// maximum poll duration.
func newTestEnv() *testEnv {
	clk := clock.NewFake(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC))
	st := store.New(clk)
	broker := &fakeBroker{}
	enqueuer := &fakeEnqueuer{}
	mitigator := &fakeMitigator{}

	cfg := config.Default()
	cfg.BrokerClientDefaultAsyncPollIntervalSeconds = 5
	cfg.BrokerClientMaxAsyncPollDurationMinutes = 1

	return &testEnv{
		store:     st,
		broker:    broker,
		clock:     clk,
		enqueuer:  enqueuer,
		mitigator: mitigator,
		deps: jobs.Deps{
			Store:     st,
			Broker:    broker,
			Events:    events.NewRecorder(st, clk),
			Config:    config.NewStaticManager(cfg),
			Clock:     clk,
			Enqueuer:  enqueuer,
			Mitigator: mitigator,
		},
	}
}

func (e *testEnv) saveBinding(kind model.BindingKind, opType model.OperationType) *model.Binding {
	binding := &model.Binding{
		GUID:                "binding-1",
		Kind:                kind,
		Name:                "db-credentials",
		ServiceInstanceGUID: "instance-1",
		AppGUID:             "app-1",
		LastOperation: &model.LastOperation{
			Type:  opType,
			State: model.StateInProgress,
		},
	}
	if err := e.store.SaveBinding(binding); err != nil {
		panic(err)
	}
	return binding
}

func (e *testEnv) saveInstance(opType model.OperationType) *model.ServiceInstance {
	instance := &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		SpaceGUID:       "space-1",
		ServicePlanGUID: "plan-1",
		LastOperation: &model.LastOperation{
			Type:  opType,
			State: model.StateInProgress,
		},
	}
	if err := e.store.SaveInstance(instance); err != nil {
		panic(err)
	}
	return instance
}
