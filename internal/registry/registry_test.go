package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	id            string
	name          string
	kind          Kind
	clusterId     string
	applicationId string
}

func (e *testEntity) GetId() string            { return e.id }
func (e *testEntity) GetName() string          { return e.name }
func (e *testEntity) GetKind() Kind            { return e.kind }
func (e *testEntity) GetClusterId() string     { return e.clusterId }
func (e *testEntity) GetApplicationId() string { return e.applicationId }

func task(id, name, clusterId string) *testEntity {
	return &testEntity{id: id, name: name, kind: KindTask, clusterId: clusterId}
}

func TestManage_GetAndUnmanage(t *testing.T) {
	r := newRegistry(t)
	entity := task("t1", "web-1", "c1")

	require.NoError(t, r.Manage(entity, ""))
	assert.True(t, r.IsManaged("t1"))
	got, ok := r.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, entity, got)

	assert.True(t, r.Unmanage("t1"))
	assert.False(t, r.IsManaged("t1"))
	assert.False(t, r.Unmanage("t1"))
}

func TestManage_RejectsEntityWithoutId(t *testing.T) {
	r := newRegistry(t)
	assert.Error(t, r.Manage(task("", "web-1", "c1"), ""))
	assert.Error(t, r.Manage(nil, ""))
}

func TestFindByName_MatchesKindAndCluster(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Manage(task("t1", "web-1", "c1"), ""))
	require.NoError(t, r.Manage(task("t2", "web-1", "c2"), ""))
	require.NoError(t, r.Manage(&testEntity{id: "f1", name: "web-2", kind: KindFramework, clusterId: "c1"}, ""))

	found, ok := r.FindByName("c1", KindTask, "web-1")
	assert.True(t, ok)
	assert.Equal(t, "t1", found.GetId())

	_, ok = r.FindByName("c1", KindTask, "web-2")
	assert.False(t, ok)
}

func TestSameClusterAndOfKind(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Manage(task("t1", "web-1", "c1"), ""))
	require.NoError(t, r.Manage(task("t2", "web-2", "c1"), ""))
	require.NoError(t, r.Manage(&testEntity{id: "f1", name: "marathon", kind: KindFramework, clusterId: "c1"}, ""))
	require.NoError(t, r.Manage(task("t3", "web-3", "c2"), ""))
	require.NoError(t, r.Manage(&testEntity{id: "a1", name: "app", kind: KindApplication}, ""))

	assert.Len(t, r.SameCluster("c1"), 3)
	assert.Len(t, r.OfKind("c1", KindTask), 2)
	assert.Len(t, r.OfKind("c1", KindFramework), 1)
	assert.Len(t, r.SameCluster(""), 0)
}

func TestGroup_Membership(t *testing.T) {
	r := newRegistry(t)
	group := r.NewGroup("Mesos Tasks")
	other := r.NewGroup("Other")
	entity := task("t1", "web-1", "c1")

	require.NoError(t, group.AddMember(entity))
	assert.True(t, group.HasMember(entity))
	assert.Equal(t, 1, group.Size())
	assert.Equal(t, 0, other.Size())

	assert.False(t, other.RemoveMember(entity))
	assert.True(t, group.RemoveMember(entity))
	assert.False(t, group.RemoveMember(entity))
	assert.False(t, group.HasMember(entity))
	assert.True(t, r.IsManaged("t1"))
}

func TestGroup_ConcurrentMembership(t *testing.T) {
	r := newRegistry(t)
	group := r.NewGroup("Mesos Tasks")

	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, group.AddMember(task(fmt.Sprintf("t%d", i), fmt.Sprintf("web-%d", i), "c1")))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, group.Size())
}

func newRegistry(t *testing.T) *Registry {
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}
