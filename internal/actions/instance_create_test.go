package actions_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"maestro/internal/actions"
	"maestro/internal/model"
	"maestro/internal/osb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceCreate_SynchronousSuccess(t *testing.T) {
	env := newTestEnv()
	env.savePlan("plan-1")
	env.broker.provisionResult = osb.ProvisionResult{DashboardURL: "https://dash.example.com"}

	create := actions.NewInstanceCreate(env.deps)
	err := create.Create(context.Background(), &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		SpaceGUID:       "space-1",
		ServicePlanGUID: "plan-1",
	}, nil, nil, false)
	require.NoError(t, err)

	stored, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.OperationCreate, stored.LastOperation.Type)
	assert.Equal(t, model.StateSucceeded, stored.LastOperation.State)
	assert.Equal(t, "https://dash.example.com", stored.DashboardURL)
	assert.Contains(t, eventTypes(env.store), "audit.service_instance.create")
	assert.Equal(t, 0, env.enqueuer.count())
}

func TestInstanceCreate_ForwardsArbitraryParameters(t *testing.T) {
	env := newTestEnv()
	env.savePlan("plan-1")

	params := json.RawMessage(`{"size":"large","replicas":3}`)
	create := actions.NewInstanceCreate(env.deps)
	err := create.Create(context.Background(), &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		SpaceGUID:       "space-1",
		ServicePlanGUID: "plan-1",
	}, params, nil, false)
	require.NoError(t, err)

	require.Len(t, env.broker.provisionParams, 1)
	assert.JSONEq(t, string(params), string(env.broker.provisionParams[0]))
}

func TestInstanceCreate_UserProvidedSkipsBroker(t *testing.T) {
	env := newTestEnv()

	create := actions.NewInstanceCreate(env.deps)
	err := create.Create(context.Background(), &model.ServiceInstance{
		GUID:         "instance-1",
		Name:         "legacy-db",
		SpaceGUID:    "space-1",
		UserProvided: true,
	}, nil, nil, false)
	require.NoError(t, err)

	assert.Empty(t, env.broker.provisions)
	assert.Contains(t, eventTypes(env.store), "audit.user_provided_service_instance.create")
}

func TestInstanceCreate_AsyncDefersToPoller(t *testing.T) {
	env := newTestEnv()
	env.savePlan("plan-1")
	env.broker.provisionResult = osb.ProvisionResult{Async: true, Operation: "op-7"}

	create := actions.NewInstanceCreate(env.deps)
	err := create.Create(context.Background(), &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		SpaceGUID:       "space-1",
		ServicePlanGUID: "plan-1",
	}, nil, nil, true)
	require.NoError(t, err)

	stored, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.OperationCreate, stored.LastOperation.Type)
	assert.Equal(t, model.StateInProgress, stored.LastOperation.State)
	assert.Equal(t, "op-7", stored.LastOperation.BrokerProvidedOperation)
	assert.Equal(t, 1, env.enqueuer.count())
	assert.Contains(t, eventTypes(env.store), "audit.service_instance.start_create")
}

func TestInstanceCreate_BrokerErrorMarksFailed(t *testing.T) {
	env := newTestEnv()
	env.savePlan("plan-1")
	env.broker.provisionErr = errors.New("quota exceeded")

	create := actions.NewInstanceCreate(env.deps)
	err := create.Create(context.Background(), &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		SpaceGUID:       "space-1",
		ServicePlanGUID: "plan-1",
	}, nil, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	// The record stays around with a failed create so the caller can inspect it.
	stored, err := env.store.Instance("instance-1")
	require.NoError(t, err)
	assert.Equal(t, model.OperationCreate, stored.LastOperation.Type)
	assert.Equal(t, model.StateFailed, stored.LastOperation.State)
}

func TestInstanceCreate_UnknownPlanFails(t *testing.T) {
	env := newTestEnv()

	create := actions.NewInstanceCreate(env.deps)
	err := create.Create(context.Background(), &model.ServiceInstance{
		GUID:            "instance-1",
		Name:            "my-db",
		ServicePlanGUID: "plan-missing",
	}, nil, nil, false)
	require.Error(t, err)
	assert.Empty(t, env.broker.provisions)
}
