package location

import (
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

func TestNamingRegistry_DefineLookupRemove(t *testing.T) {
	withNamingRegistries(t, func(t *testing.T, r NamingRegistry) {
		definition, err := r.Define("mesos-c1", ClusterSpec("c1", "mesos-c1"), map[string]string{"zone": "a"})
		require.NoError(t, err)
		assert.NotEmpty(t, definition.Id)

		found, err := r.Lookup("mesos-c1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, definition.Id, found.Id)
		assert.Equal(t, `mesos:c1:(name="mesos-c1")`, found.Spec)
		assert.Equal(t, "a", found.Flag("zone"))

		require.NoError(t, r.Remove(definition.Id))
		found, err = r.Lookup("mesos-c1")
		require.NoError(t, err)
		assert.Nil(t, found)

		assert.NoError(t, r.Remove(definition.Id))
	})
}

func TestNamingRegistry_DuplicateName(t *testing.T) {
	withNamingRegistries(t, func(t *testing.T, r NamingRegistry) {
		_, err := r.Define("mesos-c1", ClusterSpec("c1", "mesos-c1"), nil)
		require.NoError(t, err)

		_, err = r.Define("mesos-c1", ClusterSpec("c2", "mesos-c1"), nil)
		var duplicate *coorderrors.ErrDuplicateLocation
		require.True(t, errors.As(err, &duplicate))
		assert.Equal(t, "mesos-c1", duplicate.Name)
		assert.Equal(t, ClusterSpec("c1", "mesos-c1"), duplicate.ExistingSpec)
	})
}

func TestNamingRegistry_RemoveThenDefineAgain(t *testing.T) {
	withNamingRegistries(t, func(t *testing.T, r NamingRegistry) {
		definition, err := r.Define("mesos-c1", ClusterSpec("c1", "mesos-c1"), nil)
		require.NoError(t, err)
		require.NoError(t, r.Remove(definition.Id))

		again, err := r.Define("mesos-c1", ClusterSpec("c1", "mesos-c1"), nil)
		require.NoError(t, err)
		assert.NotEqual(t, definition.Id, again.Id)
	})
}

func TestNamingRegistry_ResolveUsesClusterResolver(t *testing.T) {
	withNamingRegistries(t, func(t *testing.T, r NamingRegistry) {
		definition, err := r.Define("mesos-c1", ClusterSpec("c1", "mesos-c1"), nil)
		require.NoError(t, err)

		_, err = r.Resolve(definition)
		var notFound *coorderrors.ErrNotFound
		assert.True(t, errors.As(err, &notFound))

		r.RegisterResolver("c1", func(d *Definition) (Location, error) {
			return NewClusterLocation(d, "c1", nil), nil
		})
		r.RegisterResolver("c2", func(d *Definition) (Location, error) {
			return nil, errors.New("wrong resolver")
		})

		loc, err := r.Resolve(definition)
		require.NoError(t, err)
		assert.Equal(t, "mesos-c1", loc.GetName())
		assert.Equal(t, "c1", loc.GetClusterId())

		r.UnregisterResolver("c1")
		_, err = r.Resolve(definition)
		assert.Error(t, err)
	})
}

func TestManager(t *testing.T) {
	reg, err := registry.NewRegistry()
	require.NoError(t, err)
	manager := NewManager(reg)
	loc := NewClusterLocation(&Definition{Id: "d1", Name: "mesos-c1", Spec: ClusterSpec("c1", "mesos-c1")}, "c1", nil)

	assert.False(t, manager.IsManaged(loc))
	require.NoError(t, manager.Manage(loc))
	assert.True(t, manager.IsManaged(loc))
	assert.Len(t, manager.Managed(), 1)

	require.NoError(t, manager.Unmanage(loc))
	assert.False(t, manager.IsManaged(loc))
	assert.False(t, reg.IsManaged(loc.GetId()))

	err = manager.Unmanage(loc)
	var notFound *coorderrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func withNamingRegistries(t *testing.T, action func(t *testing.T, r NamingRegistry)) {
	t.Run("memory", func(t *testing.T) {
		r, err := NewMemoryNamingRegistry()
		require.NoError(t, err)
		action(t, r)
	})
	t.Run("redis", func(t *testing.T) {
		server, err := miniredis.Run()
		require.NoError(t, err)
		defer server.Close()
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		defer client.Close()
		action(t, NewRedisNamingRegistry(client))
	})
}
