package task

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

type fakeFramework struct {
	submitErr error
	killErr   error
	submitted []string
	killed    []string
}

func (f *fakeFramework) GetId() string            { return "f1" }
func (f *fakeFramework) GetName() string          { return "marathon" }
func (f *fakeFramework) GetKind() registry.Kind   { return registry.KindFramework }
func (f *fakeFramework) GetClusterId() string     { return "c1" }
func (f *fakeFramework) GetApplicationId() string { return "" }
func (f *fakeFramework) FrameworkId() string      { return "fw-7" }

func (f *fakeFramework) SubmitTask(_ *coordcontext.Context, task *Task) error {
	f.submitted = append(f.submitted, task.GetName())
	return f.submitErr
}

func (f *fakeFramework) KillTask(_ *coordcontext.Context, task *Task) error {
	f.killed = append(f.killed, task.GetName())
	return f.killErr
}

func TestParseState(t *testing.T) {
	tests := map[string]State{
		"TASK_STAGING":  StateStaging,
		"TASK_STARTING": StateStaging,
		"TASK_RUNNING":  StateRunning,
		"TASK_FINISHED": StateFinished,
		"TASK_FAILED":   StateFailed,
		"TASK_ERROR":    StateFailed,
		"TASK_KILLED":   StateKilled,
		"TASK_LOST":     StateLost,
		"task_running":  StateRunning,
		"TASK_UNKNOWN":  StateUnknown,
		"":              StateUnknown,
	}
	for in, expected := range tests {
		assert.Equal(t, expected, ParseState(in), in)
	}
	assert.True(t, StateLost.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
}

func TestStart_DiscoveredTask(t *testing.T) {
	framework := &fakeFramework{}
	task := New(Spec{Name: "web-1", RemoteId: "t1", ClusterId: "c1", State: StateRunning, Owner: framework})
	parent := clusterLocation()

	loc, err := task.Start(coordcontext.Background(), parent)
	require.NoError(t, err)

	assert.Equal(t, "web-1", loc.GetName())
	assert.Equal(t, parent, loc.Parent())
	assert.Equal(t, `mesos:c1:(name="mesos-c1")/task:web-1`, loc.Spec())
	assert.Equal(t, StateRunning, task.State())
	assert.Empty(t, framework.submitted)

	again, err := task.Start(coordcontext.Background(), parent)
	require.NoError(t, err)
	assert.Same(t, loc, again)
}

func TestStart_ManagedTaskIsSubmitted(t *testing.T) {
	framework := &fakeFramework{}
	task := New(Spec{Name: "db-1", ClusterId: "c1", Owner: framework, Managed: true, Requirements: &Requirements{ImageName: "postgres", ImageTag: "14"}})

	loc, err := task.Start(coordcontext.Background(), clusterLocation())
	require.NoError(t, err)
	assert.NotNil(t, loc)
	assert.Equal(t, []string{"db-1"}, framework.submitted)
	assert.Equal(t, StateStaging, task.State())
	assert.Equal(t, "postgres:14", task.Requirements().Image())
}

func TestStart_SubmissionFailure(t *testing.T) {
	framework := &fakeFramework{submitErr: errors.New("marathon unavailable")}
	task := New(Spec{Name: "db-1", ClusterId: "c1", Owner: framework, Managed: true})

	_, err := task.Start(coordcontext.Background(), clusterLocation())
	assert.Error(t, err)
	assert.Nil(t, task.Location())
}

func TestStart_ManagedWithoutSubmitter(t *testing.T) {
	task := New(Spec{Name: "db-1", ClusterId: "c1", Managed: true})
	_, err := task.Start(coordcontext.Background(), clusterLocation())
	assert.Error(t, err)
}

func TestStart_NilLocation(t *testing.T) {
	task := New(Spec{Name: "web-1"})
	_, err := task.Start(coordcontext.Background(), nil)
	assert.Error(t, err)
}

func TestStop_ClosesLocationAndKills(t *testing.T) {
	framework := &fakeFramework{}
	task := New(Spec{Name: "db-1", ClusterId: "c1", Owner: framework, Managed: true})
	loc, err := task.Start(coordcontext.Background(), clusterLocation())
	require.NoError(t, err)

	require.NoError(t, task.Stop(coordcontext.Background()))
	assert.True(t, loc.IsClosed())
	assert.Nil(t, task.Location())
	assert.Equal(t, []string{"db-1"}, framework.killed)
	assert.Equal(t, StateKilled, task.State())
}

func TestStop_DiscoveredTaskIsNotKilled(t *testing.T) {
	framework := &fakeFramework{}
	task := New(Spec{Name: "web-1", ClusterId: "c1", Owner: framework, State: StateRunning})
	_, err := task.Start(coordcontext.Background(), clusterLocation())
	require.NoError(t, err)

	require.NoError(t, task.Stop(coordcontext.Background()))
	assert.Empty(t, framework.killed)
	assert.Equal(t, StateRunning, task.State())
}

func clusterLocation() location.Location {
	return location.NewClusterLocation(&location.Definition{
		Id:   "d1",
		Name: "mesos-c1",
		Spec: location.ClusterSpec("c1", "mesos-c1"),
	}, "c1", nil)
}
