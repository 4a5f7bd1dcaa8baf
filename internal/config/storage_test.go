package config_test

import (
	"testing"

	"maestro/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SaveLoadDelete(t *testing.T) {
	storage := config.NewStorage(t.TempDir())

	require.NoError(t, storage.Save("serviceinstances", "instance-1", []byte("guid: instance-1")))

	data, err := storage.Load("serviceinstances", "instance-1")
	require.NoError(t, err)
	assert.Equal(t, "guid: instance-1", string(data))

	require.NoError(t, storage.Delete("serviceinstances", "instance-1"))
	_, err = storage.Load("serviceinstances", "instance-1")
	assert.Error(t, err)

	// Deleting an absent record is not an error.
	assert.NoError(t, storage.Delete("serviceinstances", "instance-1"))
}

func TestStorage_ListReturnsSavedNames(t *testing.T) {
	storage := config.NewStorage(t.TempDir())

	names, err := storage.List("bindings")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, storage.Save("bindings", "binding-1", []byte("a: 1")))
	require.NoError(t, storage.Save("bindings", "binding-2", []byte("a: 2")))

	names, err = storage.List("bindings")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"binding-1", "binding-2"}, names)
}

func TestStorage_SanitizesRecordNames(t *testing.T) {
	storage := config.NewStorage(t.TempDir())

	require.NoError(t, storage.Save("bindings", "../escape", []byte("a: 1")))

	names, err := storage.List("bindings")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.NotContains(t, names[0], "..")
}

func TestStorage_RejectsEmptyArguments(t *testing.T) {
	storage := config.NewStorage(t.TempDir())

	assert.Error(t, storage.Save("", "name", nil))
	assert.Error(t, storage.Save("type", "", nil))
	_, err := storage.Load("", "name")
	assert.Error(t, err)
	_, err = storage.List("")
	assert.Error(t, err)
}
