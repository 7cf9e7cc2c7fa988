package marathon

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
	"github.com/spf13/cast"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/common/metrics"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/framework"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

const (
	DefaultCpus     = 0.25
	DefaultMemoryMb = 256
	DefaultImageTag = "latest"
)

// Keys understood in ObtainRequest.Flags and Workload.ProvisioningProperties.
const (
	FlagCpus         = "cpus"
	FlagMemory       = "memory"
	FlagCommand      = "command"
	FlagArgs         = "args"
	FlagImageName    = "imageName"
	FlagImageTag     = "imageTag"
	FlagOpenPorts    = "openPorts"
	FlagDirectPorts  = "directPorts"
	FlagEnvironment  = "env"
	PropertyMinCores = "minCores"
	PropertyMinRam   = "minRam"
)

// ObtainRequest asks a Marathon location for a task on behalf of Caller.
type ObtainRequest struct {
	Caller *framework.Workload
	Flags  map[string]interface{}
}

// Location is the provisioning gate of a Marathon framework.
// Obtain and Release share a read lock and run concurrently; Close and framework Stop take the write lock
// and so wait for every in-flight Obtain and Release to finish.
type Location struct {
	id        string
	framework *Framework
	registry  *registry.Registry
	lock      sync.RWMutex
}

func newLocation(f *Framework, r *registry.Registry) *Location {
	return &Location{
		id:        util.NewEntityId(),
		framework: f,
		registry:  r,
	}
}

func (l *Location) GetId() string {
	return l.id
}

func (l *Location) GetName() string {
	return l.framework.GetName()
}

func (l *Location) GetKind() registry.Kind {
	return registry.KindLocation
}

func (l *Location) GetClusterId() string {
	return l.framework.GetClusterId()
}

func (l *Location) GetApplicationId() string {
	return ""
}

func (l *Location) Spec() string {
	return fmt.Sprintf(`marathon:%s:(url="%s")`, l.framework.GetClusterId(), l.framework.Url())
}

// WriteLock excludes every Obtain and Release while held.
func (l *Location) WriteLock() sync.Locker {
	return &l.lock
}

// Obtain provisions a new task for the caller of request and starts it, returning the task's location.
func (l *Location) Obtain(ctx *coordcontext.Context, request *ObtainRequest) (loc *task.Location, err error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	defer func() { l.recordRequest("obtain", err) }()

	if request == nil || request.Caller == nil {
		return nil, errors.WithStack(&coorderrors.ErrInvalidState{
			Component: "marathon location " + l.GetName(),
			Action:    "obtain",
			Message:   "request has no caller entity",
		})
	}
	caller := request.Caller
	if !l.framework.Supports(caller) {
		return nil, errors.WithStack(&coorderrors.ErrUnsupportedWorkload{
			Workload:  caller.String(),
			Framework: l.framework.GetName(),
		})
	}

	requirements, err := requirementsFor(caller, l.flags(request.Flags))
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid provisioning flags for %s", caller)
	}
	name := taskName(caller)
	ctx.Log.Infof("Requesting task %s on Marathon framework %s", name, l.framework.GetName())
	ctx.Log.Debugf("Requirements of task %s: %s", name, litter.Sdump(requirements))

	t, err := l.framework.TaskCluster().AddNode(task.Spec{
		Name:          name,
		ClusterId:     l.framework.GetClusterId(),
		ApplicationId: caller.ApplicationId,
		State:         task.StateStaging,
		Requirements:  requirements,
	})
	if err != nil || t == nil {
		var noCapacity *coorderrors.ErrNoCapacity
		if errors.As(err, &noCapacity) {
			return nil, errors.WithStack(err)
		}
		message := "task creation produced no member"
		if err != nil {
			message = err.Error()
		}
		return nil, errors.WithStack(&coorderrors.ErrNoCapacity{Framework: l.framework.GetName(), Message: message})
	}

	loc, err = t.Start(ctx, l)
	if err != nil {
		// A conflict means the application predates this request and is not ours to delete
		if !isConflict(err) {
			if killErr := l.framework.KillTask(ctx, t); killErr != nil {
				ctx.Log.WithError(killErr).Warnf("Error removing Marathon application of failed task %s", name)
			}
		}
		l.framework.TaskCluster().RemoveMember(t)
		l.registry.Unmanage(t.GetId())
		return nil, errors.WithMessagef(err, "error starting task %s for %s", name, caller)
	}
	ctx.Log.Infof("Started task %s for %s", name, caller)
	return loc, nil
}

// Release stops the task behind loc and forgets it. Only fatal errors are returned; anything else is logged.
func (l *Location) Release(ctx *coordcontext.Context, loc *task.Location) (err error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	defer func() { l.recordRequest("release", err) }()

	if loc == nil {
		return errors.WithStack(&coorderrors.ErrInvalidState{
			Component: "marathon location " + l.GetName(),
			Action:    "release",
			Message:   "no task location given",
		})
	}
	t := loc.Task()
	defer l.registry.Unmanage(t.GetId())

	if !l.framework.TaskCluster().RemoveMember(t) {
		ctx.Log.Warnf("Request to release %s, but this task is not part of framework %s", t.GetName(), l.framework.GetName())
	}

	loc.Close()
	if err := t.Stop(ctx); err != nil {
		if coorderrors.IsFatal(err) {
			return err
		}
		ctx.Log.WithError(err).Warnf("Error stopping task %s while releasing it", t.GetName())
	}
	return nil
}

// Close stops the owning framework once every in-flight Obtain and Release has finished.
func (l *Location) Close(ctx *coordcontext.Context) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	ctx.Log.Infof("Closing Marathon location %s", l.GetName())
	if err := l.framework.stop(ctx); err != nil {
		ctx.Log.WithError(err).Errorf("Error closing Marathon location %s", l.GetName())
		return errors.WithMessagef(err, "error closing marathon location %s", l.GetName())
	}
	return nil
}

func (l *Location) String() string {
	return "marathon location " + l.GetName()
}

func (l *Location) recordRequest(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.ProvisioningRequests.WithLabelValues(l.framework.GetName(), operation, result).Inc()
}

// flags overlays the request flags on the flags configured for the framework.
func (l *Location) flags(requested map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	for k, v := range l.framework.Flags() {
		merged[k] = v
	}
	for k, v := range requested {
		merged[k] = v
	}
	return merged
}

func taskName(caller *framework.Workload) string {
	if caller.PlanId != "" {
		return strings.ToLower(caller.PlanId)
	}
	return strings.ToLower(caller.Id)
}

func requirementsFor(caller *framework.Workload, flags map[string]interface{}) (*task.Requirements, error) {
	if flags == nil {
		flags = map[string]interface{}{}
	}
	properties := caller.ProvisioningProperties
	if properties == nil {
		properties = map[string]interface{}{}
	}

	cpus, err := firstFloat(caller.MinCores, properties[PropertyMinCores], caller.Cpus, flags[FlagCpus], DefaultCpus)
	if err != nil {
		return nil, errors.WithMessage(err, "cpus")
	}
	memory, err := firstFloat(float64(caller.MinRamMb), properties[PropertyMinRam], float64(caller.MemoryMb), flags[FlagMemory], DefaultMemoryMb)
	if err != nil {
		return nil, errors.WithMessage(err, "memory")
	}

	requirements := &task.Requirements{
		Cpus:         cpus,
		MemoryMb:     int64(memory),
		Command:      firstString(caller.Command, cast.ToString(flags[FlagCommand])),
		Args:         caller.Args,
		ImageName:    firstString(caller.ImageName, cast.ToString(flags[FlagImageName])),
		ImageTag:     firstString(caller.ImageTag, cast.ToString(flags[FlagImageTag]), DefaultImageTag),
		OpenPorts:    caller.OpenPorts,
		DirectPorts:  caller.DirectPorts,
		PortBindings: caller.PortBindings,
		Environment:  map[string]string{},
	}
	if len(requirements.Args) == 0 && flags[FlagArgs] != nil {
		requirements.Args = cast.ToStringSlice(flags[FlagArgs])
	}
	if len(requirements.OpenPorts) == 0 && flags[FlagOpenPorts] != nil {
		if requirements.OpenPorts, err = cast.ToIntSliceE(flags[FlagOpenPorts]); err != nil {
			return nil, errors.WithMessage(err, FlagOpenPorts)
		}
	}
	if len(requirements.DirectPorts) == 0 && flags[FlagDirectPorts] != nil {
		if requirements.DirectPorts, err = cast.ToIntSliceE(flags[FlagDirectPorts]); err != nil {
			return nil, errors.WithMessage(err, FlagDirectPorts)
		}
	}
	for k, v := range cast.ToStringMapString(flags[FlagEnvironment]) {
		requirements.Environment[k] = v
	}
	for k, v := range caller.Environment {
		requirements.Environment[k] = v
	}
	return requirements, nil
}

// firstFloat returns the first of values that is set and positive.
func firstFloat(values ...interface{}) (float64, error) {
	for _, value := range values {
		if value == nil {
			continue
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		if f > 0 {
			return f, nil
		}
	}
	return 0, nil
}

func firstString(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
