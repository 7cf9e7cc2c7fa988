package task

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

// Owner is the framework a task was scheduled by.
type Owner interface {
	registry.Entity
	// FrameworkId is the id the Mesos master assigned to the framework, or "" if it is not yet known.
	FrameworkId() string
}

// Submitter is implemented by frameworks that can create and destroy tasks on request.
type Submitter interface {
	SubmitTask(ctx *coordcontext.Context, task *Task) error
	KillTask(ctx *coordcontext.Context, task *Task) error
}

// Requirements of a task provisioned through a framework location.
type Requirements struct {
	Cpus         float64
	MemoryMb     int64
	Command      string
	Args         []string
	ImageName    string
	ImageTag     string
	OpenPorts    []int
	DirectPorts  []int
	PortBindings map[int]int
	Environment  map[string]string
}

func (r *Requirements) Image() string {
	if r.ImageTag == "" {
		return r.ImageName
	}
	return fmt.Sprintf("%s:%s", r.ImageName, r.ImageTag)
}

type Spec struct {
	Name          string
	RemoteId      string
	ClusterId     string
	ApplicationId string
	State         State
	Owner         Owner
	// Managed is true for tasks provisioned through a framework location rather than discovered.
	Managed      bool
	Requirements *Requirements
}

// Task mirrors a single task known to the Mesos master.
type Task struct {
	id            string
	name          string
	clusterId     string
	applicationId string
	owner         Owner
	managed       bool
	requirements  *Requirements

	mu       sync.Mutex
	remoteId string
	state    State
	location *Location
}

func New(spec Spec) *Task {
	state := spec.State
	if state == "" {
		state = StateUnknown
	}
	return &Task{
		id:            util.NewEntityId(),
		name:          spec.Name,
		clusterId:     spec.ClusterId,
		applicationId: spec.ApplicationId,
		owner:         spec.Owner,
		managed:       spec.Managed,
		requirements:  spec.Requirements,
		remoteId:      spec.RemoteId,
		state:         state,
	}
}

func (t *Task) GetId() string {
	return t.id
}

func (t *Task) GetName() string {
	return t.name
}

func (t *Task) GetKind() registry.Kind {
	return registry.KindTask
}

func (t *Task) GetClusterId() string {
	return t.clusterId
}

func (t *Task) GetApplicationId() string {
	return t.applicationId
}

// Owner returns the framework the task belongs to, or nil if it could not be resolved.
func (t *Task) Owner() Owner {
	return t.owner
}

func (t *Task) IsManaged() bool {
	return t.managed
}

func (t *Task) Requirements() *Requirements {
	return t.requirements
}

func (t *Task) RemoteId() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteId
}

func (t *Task) SetRemoteId(remoteId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteId = remoteId
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) SetState(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

// Location returns the task scoped location created by Start, or nil if the task has not been started.
func (t *Task) Location() *Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

// Start binds the task to parent. Managed tasks are submitted to their owning framework first.
func (t *Task) Start(ctx *coordcontext.Context, parent location.Location) (*Location, error) {
	if parent == nil {
		return nil, errors.Errorf("cannot start task %s without a location", t.name)
	}
	t.mu.Lock()
	if t.location != nil {
		existing := t.location
		t.mu.Unlock()
		return existing, nil
	}
	t.mu.Unlock()

	if t.managed {
		submitter, ok := t.owner.(Submitter)
		if !ok {
			return nil, errors.Errorf("task %s is managed but its framework cannot submit tasks", t.name)
		}
		if err := submitter.SubmitTask(ctx, t); err != nil {
			return nil, errors.WithMessagef(err, "error submitting task %s", t.name)
		}
		t.SetState(StateStaging)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.location == nil {
		t.location = newLocation(t, parent)
	}
	ctx.Log.Debugf("Started task %s at %s", t.name, parent.GetName())
	return t.location, nil
}

// Stop releases the task location. Managed tasks are also killed through their owning framework.
func (t *Task) Stop(ctx *coordcontext.Context) error {
	t.mu.Lock()
	loc := t.location
	t.location = nil
	t.mu.Unlock()

	if loc != nil {
		loc.Close()
	}

	if t.managed {
		if submitter, ok := t.owner.(Submitter); ok {
			if err := submitter.KillTask(ctx, t); err != nil {
				return errors.WithMessagef(err, "error killing task %s", t.name)
			}
		}
		t.SetState(StateKilled)
	}
	return nil
}

func (t *Task) String() string {
	return fmt.Sprintf("task %s (%s)", t.name, t.State())
}
