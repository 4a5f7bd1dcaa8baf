package jobs_test

import (
	"context"
	"errors"
	"testing"

	"maestro/internal/jobs"
	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/internal/store"

	"github.com/pivotal-cf/brokerapi/v12/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStateFetch_CreateSucceededFetchesDashboard(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(model.OperationCreate)
	env.broker.lastOps = []osb.LastOperationResult{{State: model.StateSucceeded}}
	env.broker.instanceDetails = osb.InstanceDetails{DashboardURL: "https://dash.example.com"}

	task := jobs.NewInstanceStateFetch("instance-1", nil, nil, env.deps)
	require.NoError(t, task.Run(context.Background()))

	instance, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateSucceeded, instance.LastOperation.State)
	assert.Equal(t, "https://dash.example.com", instance.DashboardURL)

	events := env.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "audit.service_instance.create", events[0].Type)
}

func TestInstanceStateFetch_CreateDetailFetchFailureDeprovisions(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(model.OperationCreate)
	env.broker.lastOps = []osb.LastOperationResult{{State: model.StateSucceeded}}
	env.broker.instanceDetailsErr = errors.New("bad payload")

	task := jobs.NewInstanceStateFetch("instance-1", nil, nil, env.deps)
	require.NoError(t, task.Run(context.Background()))

	instance, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, instance.LastOperation.State)
	assert.Equal(t, []string{"instance-1"}, env.mitigator.deprovide)
}

func TestInstanceStateFetch_UpdateSucceededAppliesProposedChanges(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(model.OperationUpdate)
	env.broker.lastOps = []osb.LastOperationResult{{State: model.StateSucceeded}}

	proposed := &jobs.ProposedChanges{
		ServicePlanGUID: "plan-2",
		MaintenanceInfo: &domain.MaintenanceInfo{Version: "2.0.0"},
	}
	task := jobs.NewInstanceStateFetch("instance-1", nil, proposed, env.deps)
	require.NoError(t, task.Run(context.Background()))

	instance, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateSucceeded, instance.LastOperation.State)
	assert.Equal(t, "plan-2", instance.ServicePlanGUID)
	require.NotNil(t, instance.MaintenanceInfo)
	assert.Equal(t, "2.0.0", instance.MaintenanceInfo.Version)
}

func TestInstanceStateFetch_UpdateFailedKeepsPlan(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(model.OperationUpdate)
	env.broker.lastOps = []osb.LastOperationResult{{State: model.StateFailed, Description: "quota exceeded"}}

	proposed := &jobs.ProposedChanges{ServicePlanGUID: "plan-2"}
	task := jobs.NewInstanceStateFetch("instance-1", nil, proposed, env.deps)
	require.NoError(t, task.Run(context.Background()))

	instance, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, instance.LastOperation.State)
	assert.Equal(t, "quota exceeded", instance.LastOperation.Description)
	assert.Equal(t, "plan-1", instance.ServicePlanGUID)

	_, _, ok := env.enqueuer.pop()
	assert.False(t, ok)
}

func TestInstanceStateFetch_DeleteSucceededRemovesRecord(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(model.OperationDelete)
	env.broker.lastOps = []osb.LastOperationResult{{State: model.StateSucceeded}}

	task := jobs.NewInstanceStateFetch("instance-1", nil, nil, env.deps)
	require.NoError(t, task.Run(context.Background()))

	_, err := env.store.Instance("instance-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	events := env.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "audit.service_instance.delete", events[0].Type)
}

// pollUntilDone drives an instance poller, advancing the fake clock to each
// re-enqueue time, until the task stops rescheduling itself.
func pollUntilDone(t *testing.T, env *testEnv) {
	t.Helper()
	var task jobs.Task = jobs.NewInstanceStateFetch("instance-1", nil, nil, env.deps)
	for i := 0; i < 100; i++ {
		require.NoError(t, task.Run(context.Background()))
		next, runAt, ok := env.enqueuer.pop()
		if !ok {
			return
		}
		env.clock.Advance(runAt.Sub(env.clock.Now()))
		task = next
	}
	t.Fatal("poller never reached its deadline")
}

func TestInstanceStateFetch_DeadlineNamesTimedOutOperation(t *testing.T) {
	descriptions := map[model.OperationType]string{
		model.OperationCreate: "Service Broker failed to provision within the required time.",
		model.OperationUpdate: "Service Broker failed to update within the required time.",
		model.OperationDelete: "Service Broker failed to deprovision within the required time.",
	}

	for opType, description := range descriptions {
		t.Run(string(opType), func(t *testing.T) {
			env := newTestEnv()
			env.saveInstance(opType)

			pollUntilDone(t, env)

			instance, err := env.store.Instance("instance-1")
			require.NoError(t, err)
			assert.Equal(t, model.StateFailed, instance.LastOperation.State)
			assert.Equal(t, description, instance.LastOperation.Description)
		})
	}
}
