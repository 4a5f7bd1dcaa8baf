package actions_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"maestro/internal/actions"
	"maestro/internal/clock"
	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/jobs"
	"maestro/internal/locks"
	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/internal/store"
)

type brokerCall struct {
	resourceGUID      string
	acceptsIncomplete bool
}

// fakeBroker is a scripted osb.Client that records every mutating call.
type fakeBroker struct {
	mu sync.Mutex

	provisionResult osb.ProvisionResult
	provisionErr    error
	provisions      []brokerCall
	provisionParams []json.RawMessage

	deprovisionResult osb.DeprovisionResult
	deprovisionErr    error
	deprovisions      []brokerCall

	updateResult osb.UpdateResult
	updateErr    error
	updates      []osb.UpdateRequest

	bindResult osb.BindResult
	bindErr    error
	binds      []brokerCall

	unbindResult osb.UnbindResult
	unbindErr    error
	unbinds      []brokerCall

	routeUnbinds []string
	routeErr     error

	lastOp   osb.LastOperationResult
	details  osb.BindingDetails
	instData osb.InstanceDetails
}

func (f *fakeBroker) Provision(ctx context.Context, instance *model.ServiceInstance, plan *model.ServicePlan, parameters json.RawMessage, acceptsIncomplete bool) (osb.ProvisionResult, error) {
	f.mu.Lock()
	f.provisions = append(f.provisions, brokerCall{instance.GUID, acceptsIncomplete})
	f.provisionParams = append(f.provisionParams, parameters)
	f.mu.Unlock()
	return f.provisionResult, f.provisionErr
}

func (f *fakeBroker) Deprovision(ctx context.Context, instance *model.ServiceInstance, acceptsIncomplete bool) (osb.DeprovisionResult, error) {
	f.mu.Lock()
	f.deprovisions = append(f.deprovisions, brokerCall{instance.GUID, acceptsIncomplete})
	f.mu.Unlock()
	return f.deprovisionResult, f.deprovisionErr
}

func (f *fakeBroker) Update(ctx context.Context, req osb.UpdateRequest) (osb.UpdateResult, error) {
	f.mu.Lock()
	f.updates = append(f.updates, req)
	f.mu.Unlock()
	return f.updateResult, f.updateErr
}

func (f *fakeBroker) Bind(ctx context.Context, binding *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (osb.BindResult, error) {
	f.mu.Lock()
	f.binds = append(f.binds, brokerCall{binding.GUID, acceptsIncomplete})
	f.mu.Unlock()
	return f.bindResult, f.bindErr
}

func (f *fakeBroker) Unbind(ctx context.Context, binding *model.Binding, acceptsIncomplete bool) (osb.UnbindResult, error) {
	f.mu.Lock()
	f.unbinds = append(f.unbinds, brokerCall{binding.GUID, acceptsIncomplete})
	f.mu.Unlock()
	return f.unbindResult, f.unbindErr
}

func (f *fakeBroker) UnbindRoute(ctx context.Context, routeBinding *model.RouteBinding) error {
	f.mu.Lock()
	f.routeUnbinds = append(f.routeUnbinds, routeBinding.GUID)
	f.mu.Unlock()
	return f.routeErr
}

func (f *fakeBroker) CreateServiceKey(ctx context.Context, key *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (osb.BindResult, error) {
	f.mu.Lock()
	f.binds = append(f.binds, brokerCall{key.GUID, acceptsIncomplete})
	f.mu.Unlock()
	return f.bindResult, f.bindErr
}

func (f *fakeBroker) FetchInstanceLastOperation(ctx context.Context, instance *model.ServiceInstance) (osb.LastOperationResult, error) {
	return f.lastOp, nil
}

func (f *fakeBroker) FetchBindingLastOperation(ctx context.Context, binding *model.Binding) (osb.LastOperationResult, error) {
	return f.lastOp, nil
}

func (f *fakeBroker) FetchInstance(ctx context.Context, instance *model.ServiceInstance) (osb.InstanceDetails, error) {
	return f.instData, nil
}

func (f *fakeBroker) FetchBinding(ctx context.Context, binding *model.Binding) (osb.BindingDetails, error) {
	return f.details, nil
}

// fakeEnqueuer records task registrations instead of running them.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []jobs.Task
}

func (f *fakeEnqueuer) Enqueue(task jobs.Task, runAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
}

func (f *fakeEnqueuer) pop() jobs.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return nil
	}
	task := f.tasks[0]
	f.tasks = f.tasks[1:]
	return task
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

type testEnv struct {
	store    *store.Store
	broker   *fakeBroker
	clock    *clock.Fake
	enqueuer *fakeEnqueuer
	deps     actions.Deps
}

func newTestEnv() *testEnv {
	clk := clock.NewFake(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC))
	st := store.New(clk)
	broker := &fakeBroker{}
	enqueuer := &fakeEnqueuer{}

	cfg := config.Default()
	cfg.BrokerClientDefaultAsyncPollIntervalSeconds = 5
	cfg.BrokerClientMaxAsyncPollDurationMinutes = 1

	queue := enqueuer
	return &testEnv{
		store:    st,
		broker:   broker,
		clock:    clk,
		enqueuer: enqueuer,
		deps: actions.Deps{
			Store:     st,
			Broker:    broker,
			Locker:    locks.NewLocker(st, clk, queue),
			Events:    events.NewRecorder(st, clk),
			Config:    config.NewStaticManager(cfg),
			Clock:     clk,
			Queue:     queue,
			Mitigator: actions.NewMitigator(broker),
		},
	}
}

func (e *testEnv) savePlan(guid string) {
	err := e.store.SavePlan(&model.ServicePlan{
		GUID:                    guid,
		Name:                    "standard",
		BrokerProvidedID:        "broker-" + guid,
		ServiceBrokerProvidedID: "svc-1",
	})
	if err != nil {
		panic(err)
	}
}

func (e *testEnv) saveInstance(op *model.LastOperation) *model.ServiceInstance {
	e.savePlan("plan-1")
	instance := &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		SpaceGUID:       "space-1",
		ServicePlanGUID: "plan-1",
		LastOperation:   op,
	}
	if err := e.store.SaveInstance(instance); err != nil {
		panic(err)
	}
	return instance
}

func (e *testEnv) saveBinding(kind model.BindingKind, op *model.LastOperation) *model.Binding {
	binding := &model.Binding{
		GUID:                "binding-1",
		Kind:                kind,
		Name:                "db-credentials",
		ServiceInstanceGUID: "instance-1",
		AppGUID:             "app-1",
		LastOperation:       op,
	}
	if err := e.store.SaveBinding(binding); err != nil {
		panic(err)
	}
	return binding
}

func eventTypes(st *store.Store) []string {
	var types []string
	for _, event := range st.Events() {
		types = append(types, event.Type)
	}
	return types
}
