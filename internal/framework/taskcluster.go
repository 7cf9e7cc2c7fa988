package framework

import (
	"sync"

	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

// TaskCluster is the member set of tasks a framework provisioned.
type TaskCluster struct {
	owner    task.Owner
	group    *registry.Group
	registry *registry.Registry
	maxSize  int

	// serialises the size check and insert in AddNode
	mu sync.Mutex
}

func NewTaskCluster(owner task.Owner, r *registry.Registry, maxSize int) *TaskCluster {
	return &TaskCluster{
		owner:    owner,
		group:    r.NewGroup(owner.GetName() + " Tasks"),
		registry: r,
		maxSize:  maxSize,
	}
}

// AddNode creates a managed task from spec and adds it to the cluster. Returns coorderrors.ErrNoCapacity if the
// cluster is full.
func (c *TaskCluster) AddNode(spec task.Spec) (*task.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxSize > 0 && c.group.Size() >= c.maxSize {
		return nil, &coorderrors.ErrNoCapacity{Framework: c.owner.GetName(), Message: "task cluster is at its maximum size"}
	}
	spec.Owner = c.owner
	spec.Managed = true
	t := task.New(spec)
	if err := c.group.AddMember(t); err != nil {
		return nil, err
	}
	return t, nil
}

// RemoveMember removes the task from the cluster, leaving it managed by the registry. Returns false if it was not
// a member.
func (c *TaskCluster) RemoveMember(t *task.Task) bool {
	return c.group.RemoveMember(t)
}

func (c *TaskCluster) HasMember(t *task.Task) bool {
	return c.group.HasMember(t)
}

func (c *TaskCluster) Members() []*task.Task {
	members := c.group.Members()
	tasks := make([]*task.Task, 0, len(members))
	for _, member := range members {
		if t, ok := member.(*task.Task); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func (c *TaskCluster) Size() int {
	return c.group.Size()
}
