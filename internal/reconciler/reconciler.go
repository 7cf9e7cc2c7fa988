// Package reconciler materializes tasks the Mesos master reports as running but the coordinator does not
// yet track.
package reconciler

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/metrics"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/mesos"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

// TaskLister is the part of the master the reconciler polls.
type TaskLister interface {
	Tasks(ctx *coordcontext.Context) ([]mesos.TaskRecord, error)
}

// TaskReconciler diffs the master's task list against the tracked tasks of one cluster.
// Tasks are identified by name only: a record whose name is already tracked is skipped, whatever its id.
type TaskReconciler struct {
	clusterId  string
	master     TaskLister
	registry   *registry.Registry
	tasks      *registry.Group
	frameworks *registry.Group
	location   func() location.Location

	// serialises reconciliation cycles, so that two overlapping cycles cannot both create the same task
	mu sync.Mutex
}

func NewTaskReconciler(
	clusterId string,
	master TaskLister,
	r *registry.Registry,
	tasks *registry.Group,
	frameworks *registry.Group,
	currentLocation func() location.Location,
) *TaskReconciler {
	return &TaskReconciler{
		clusterId:  clusterId,
		master:     master,
		registry:   r,
		tasks:      tasks,
		frameworks: frameworks,
		location:   currentLocation,
	}
}

// ScanTasks runs one reconciliation cycle, logging and counting any failure.
func (r *TaskReconciler) ScanTasks() {
	ctx := coordcontext.WithLogField(coordcontext.Background(), "cluster", r.clusterId)
	if _, err := r.Reconcile(ctx); err != nil {
		metrics.PollFailures.WithLabelValues(r.clusterId, "tasks").Inc()
		ctx.Log.Warnf("Task scan failed, no update this cycle: %v", err)
	}
}

// Reconcile runs one reconciliation cycle and returns the tasks it created.
// A failure to fetch the task list produces no update. Failing to start a created task is logged but does not
// fail the cycle; the task stays tracked.
func (r *TaskReconciler) Reconcile(ctx *coordcontext.Context) ([]*task.Task, error) {
	records, err := r.master.Tasks(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "error fetching tasks from master")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := []*task.Task{}
	for _, record := range records {
		if !record.IsRunning() {
			continue
		}
		if r.isTracked(record.Name) {
			continue
		}

		owner := r.frameworkFor(record.FrameworkId)
		if owner == nil {
			ctx.Log.Debugf("Framework %s of task %s is not tracked", record.FrameworkId, record.Name)
		}
		t := task.New(task.Spec{
			Name:      record.Name,
			RemoteId:  record.Id,
			ClusterId: r.clusterId,
			State:     task.ParseState(record.State),
			Owner:     owner,
		})
		if err := r.tasks.AddMember(t); err != nil {
			ctx.Log.WithError(err).Errorf("Error registering task %s", record.Name)
			continue
		}
		created = append(created, t)
		metrics.TasksDiscovered.WithLabelValues(r.clusterId).Inc()
		ctx.Log.Infof("Discovered running task %s (%s)", record.Name, record.Id)

		loc := r.location()
		if loc == nil {
			ctx.Log.Warnf("Not starting task %s, cluster has no location", record.Name)
			continue
		}
		if _, err := t.Start(ctx, loc); err != nil {
			ctx.Log.WithError(err).Warnf("Error starting task %s", record.Name)
		}
	}
	return created, nil
}

// isTracked is true if any task of the cluster, discovered or provisioned, has the given name.
func (r *TaskReconciler) isTracked(name string) bool {
	if _, ok := r.tasks.FindByName(name); ok {
		return true
	}
	_, ok := r.registry.FindByName(r.clusterId, registry.KindTask, name)
	return ok
}

func (r *TaskReconciler) frameworkFor(frameworkId string) task.Owner {
	if frameworkId == "" {
		return nil
	}
	for _, member := range r.frameworks.Members() {
		if owner, ok := member.(task.Owner); ok && owner.FrameworkId() == frameworkId {
			return owner
		}
	}
	return nil
}
