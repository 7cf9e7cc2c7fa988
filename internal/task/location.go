package task

import (
	"fmt"
	"sync/atomic"

	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

// Location is the task scoped location handed to whoever obtained the task.
type Location struct {
	id     string
	task   *Task
	parent location.Location
	closed int32
}

func newLocation(task *Task, parent location.Location) *Location {
	return &Location{
		id:     util.NewEntityId(),
		task:   task,
		parent: parent,
	}
}

func (l *Location) GetId() string {
	return l.id
}

func (l *Location) GetName() string {
	return l.task.GetName()
}

func (l *Location) GetKind() registry.Kind {
	return registry.KindLocation
}

func (l *Location) GetClusterId() string {
	return l.task.GetClusterId()
}

func (l *Location) GetApplicationId() string {
	return l.task.GetApplicationId()
}

func (l *Location) Spec() string {
	return fmt.Sprintf("%s/task:%s", l.parent.Spec(), l.task.GetName())
}

func (l *Location) Task() *Task {
	return l.task
}

func (l *Location) Parent() location.Location {
	return l.parent
}

// Close marks the location closed. Returns false if it was already closed.
func (l *Location) Close() bool {
	return atomic.CompareAndSwapInt32(&l.closed, 0, 1)
}

func (l *Location) IsClosed() bool {
	return atomic.LoadInt32(&l.closed) == 1
}
