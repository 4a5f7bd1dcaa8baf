package actions_test

import (
	"context"
	"testing"

	"maestro/internal/actions"
	"maestro/internal/locks"
	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingDelete_SynchronousRemovesRecord(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(nil)
	binding := env.saveBinding(model.KindAppBinding, nil)

	del := actions.NewBindingDelete(env.deps)
	warnings, err := del.Delete(context.Background(), binding, nil, true)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = env.store.Binding("binding-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, eventTypes(env.store), "audit.service_binding.delete")
}

func TestBindingDelete_AsyncWithoutAcceptsIncompleteWarns(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(nil)
	key := env.saveBinding(model.KindServiceKey, nil)
	env.broker.unbindResult = osb.UnbindResult{Async: true, Operation: "op-3"}

	del := actions.NewBindingDelete(env.deps)
	warnings, err := del.Delete(context.Background(), key, nil, false)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, "The service broker responded asynchronously to the unbind request, but the accepts_incomplete query parameter was false or not given.", warnings[0])

	stored, err := env.store.Binding("binding-1")
	require.NoError(t, err)
	assert.Equal(t, model.OperationDelete, stored.LastOperation.Type)
	assert.Equal(t, model.StateInProgress, stored.LastOperation.State)
	assert.Equal(t, "op-3", stored.LastOperation.BrokerProvidedOperation)
	assert.Equal(t, 1, env.enqueuer.count())
}

func TestBindingDelete_AsyncWithAcceptsIncompleteNoWarning(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(nil)
	binding := env.saveBinding(model.KindAppBinding, nil)
	env.broker.unbindResult = osb.UnbindResult{Async: true, Operation: "op-3"}

	del := actions.NewBindingDelete(env.deps)
	warnings, err := del.Delete(context.Background(), binding, nil, true)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Contains(t, eventTypes(env.store), "audit.service_binding.start_delete")
}

func TestBindingDelete_InstanceOperationBlocks(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(&model.LastOperation{
		Type:  model.OperationUpdate,
		State: model.StateInProgress,
	})
	binding := env.saveBinding(model.KindAppBinding, nil)

	del := actions.NewBindingDelete(env.deps)
	_, err := del.Delete(context.Background(), binding, nil, true)
	assert.ErrorIs(t, err, locks.ErrAsyncOperationInProgress)
}

func TestBindingDelete_PendingOperationNamesResource(t *testing.T) {
	env := newTestEnv()
	env.saveInstance(nil)
	binding := env.saveBinding(model.KindAppBinding, &model.LastOperation{
		Type:  model.OperationDelete,
		State: model.StateInProgress,
	})

	del := actions.NewBindingDelete(env.deps)
	_, err := del.Delete(context.Background(), binding, nil, true)
	require.ErrorIs(t, err, locks.ErrResourceLocked)
	assert.Contains(t, err.Error(), "app-1")
	assert.Contains(t, err.Error(), "instance-1")
}
