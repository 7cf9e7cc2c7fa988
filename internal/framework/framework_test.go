package framework

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

type stubFramework struct {
	*Base
}

func (s *stubFramework) Start(*coordcontext.Context, []location.Location) error { return nil }
func (s *stubFramework) Stop(*coordcontext.Context) error                       { return nil }

func TestFactory_Create(t *testing.T) {
	factory := NewFactory()
	factory.Register("stub", func(spec Spec, deps Dependencies) (Framework, error) {
		return &stubFramework{Base: NewBase(spec, deps.ClusterId, nil)}, nil
	})
	factory.Register("broken", func(spec Spec, deps Dependencies) (Framework, error) {
		return nil, errors.New("boom")
	})
	assert.Equal(t, []string{"broken", "stub"}, factory.Kinds())

	fw, err := factory.Create(Spec{Kind: "stub", Url: "http://stub:8080"}, Dependencies{ClusterId: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "stub", fw.GetName())
	assert.Equal(t, "c1", fw.GetClusterId())
	assert.Equal(t, registry.KindFramework, fw.GetKind())
	assert.Equal(t, "http://stub:8080", fw.Url())
	assert.False(t, fw.Supports(&Workload{Id: "w"}))

	_, err = factory.Create(Spec{Kind: "broken"}, Dependencies{})
	assert.Error(t, err)

	_, err = factory.Create(Spec{Kind: "chronos"}, Dependencies{})
	assert.Error(t, err)
}

func TestBase_PublishedValues(t *testing.T) {
	base := NewBase(Spec{Kind: "stub", Name: "primary"}, "c1", nil)
	assert.Equal(t, "primary", base.GetName())
	assert.Equal(t, "", base.FrameworkId())
	assert.False(t, base.IsUp())

	base.SetFrameworkId("fw-7")
	base.SetUp(true)
	base.SetVersion("1.4.2")

	assert.Equal(t, "fw-7", base.FrameworkId())
	assert.True(t, base.IsUp())
	assert.Equal(t, "1.4.2", base.Version())
}

func TestRequireCapabilities(t *testing.T) {
	supports := RequireCapabilities("docker")
	assert.True(t, supports(&Workload{Capabilities: []string{"ssh", "docker"}}))
	assert.False(t, supports(&Workload{Capabilities: []string{"ssh"}}))
	assert.False(t, supports(&Workload{}))

	base := NewBase(Spec{Kind: "stub"}, "c1", supports)
	assert.False(t, base.Supports(nil))
	assert.True(t, base.Supports(&Workload{Capabilities: []string{"docker"}}))
}

func TestTaskCluster(t *testing.T) {
	r, err := registry.NewRegistry()
	require.NoError(t, err)
	owner := &stubFramework{Base: NewBase(Spec{Kind: "stub"}, "c1", nil)}
	cluster := NewTaskCluster(owner, r, 2)

	first, err := cluster.AddNode(task.Spec{Name: "a", ClusterId: "c1"})
	require.NoError(t, err)
	assert.True(t, first.IsManaged())
	assert.Equal(t, owner, first.Owner())
	assert.True(t, cluster.HasMember(first))

	_, err = cluster.AddNode(task.Spec{Name: "b", ClusterId: "c1"})
	require.NoError(t, err)

	_, err = cluster.AddNode(task.Spec{Name: "c", ClusterId: "c1"})
	var noCapacity *coorderrors.ErrNoCapacity
	assert.True(t, errors.As(err, &noCapacity))
	assert.Equal(t, 2, cluster.Size())

	assert.True(t, cluster.RemoveMember(first))
	assert.False(t, cluster.RemoveMember(first))
	assert.Len(t, cluster.Members(), 1)
	assert.True(t, r.IsManaged(first.GetId()))
}
