// Package marathon implements the Marathon framework and its location, through which workloads obtain
// Marathon-run containers.
package marathon

import (
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	commontask "github.com/armadaproject/mesoscoordinator/internal/common/task"
	"github.com/armadaproject/mesoscoordinator/internal/framework"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

const (
	Kind = "marathon"

	// Capability a workload must carry to be run by Marathon.
	DockerCapability = "docker"

	defaultSubmitAttempts = 3
	defaultSubmitDelay    = time.Second
	sensorStopTimeout     = 5 * time.Second
)

// Register adds the Marathon constructor to factory.
func Register(factory *framework.Factory) {
	factory.Register(Kind, func(spec framework.Spec, deps framework.Dependencies) (framework.Framework, error) {
		return New(spec, deps)
	})
}

type Framework struct {
	*framework.Base
	client   *Client
	deps     framework.Dependencies
	tasks    *framework.TaskCluster
	location *Location

	submitAttempts uint
	submitDelay    time.Duration

	mu           sync.Mutex
	started      bool
	sensors      *commontask.BackgroundTaskManager
	applications []string
}

func New(spec framework.Spec, deps framework.Dependencies) (*Framework, error) {
	if spec.Url == "" {
		return nil, errors.New("marathon framework requires a url")
	}
	if deps.Registry == nil {
		return nil, errors.New("marathon framework requires a registry")
	}
	f := &Framework{
		Base:           framework.NewBase(spec, deps.ClusterId, framework.RequireCapabilities(DockerCapability)),
		client:         NewClient(spec.Url, deps.HttpClient),
		deps:           deps,
		submitAttempts: defaultSubmitAttempts,
		submitDelay:    defaultSubmitDelay,
		applications:   []string{},
	}
	f.tasks = framework.NewTaskCluster(f, deps.Registry, spec.MaxTasks)
	f.location = newLocation(f, deps.Registry)
	return f, nil
}

func (f *Framework) TaskCluster() *framework.TaskCluster {
	return f.tasks
}

// Location returns the provisioning location owned by this framework.
func (f *Framework) Location() *Location {
	return f.location
}

// Applications returns the ids of the Marathon applications seen by the last poll.
func (f *Framework) Applications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.applications...)
}

func (f *Framework) IsStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *Framework) Start(ctx *coordcontext.Context, _ []location.Location) error {
	f.SetUp(false)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.started = true
	f.connectSensors()
	ctx.Log.Infof("Started Marathon framework %s at %s", f.GetName(), f.Url())
	return nil
}

// Stop waits for in-flight obtain and release requests against the framework location before stopping.
func (f *Framework) Stop(ctx *coordcontext.Context) error {
	lock := f.location.WriteLock()
	lock.Lock()
	defer lock.Unlock()
	return f.stop(ctx)
}

func (f *Framework) stop(ctx *coordcontext.Context) error {
	f.mu.Lock()
	sensors := f.sensors
	f.sensors = nil
	f.started = false
	f.mu.Unlock()

	if sensors != nil && sensors.StopAll(sensorStopTimeout) {
		ctx.Log.Warnf("Timed out waiting for Marathon framework %s sensors to stop", f.GetName())
	}
	f.SetUp(false)
	ctx.Log.Infof("Stopped Marathon framework %s", f.GetName())
	return nil
}

func (f *Framework) connectSensors() {
	sensors := commontask.NewBackgroundTaskManager(f.deps.Clock)
	ctx := coordcontext.WithLogField(coordcontext.Background(), "framework", f.GetName())
	sensors.Register(func() { f.pollApplications(ctx) }, f.deps.PollInterval, "marathon_applications")
	sensors.Register(func() { f.pollInfo(ctx) }, f.deps.PollInterval, "marathon_info")
	sensors.Register(func() { f.pollPing(ctx) }, f.deps.PollInterval, "marathon_ping")
	f.sensors = sensors
}

func (f *Framework) pollApplications(ctx *coordcontext.Context) {
	apps, err := f.client.Apps(ctx)
	if err != nil {
		ctx.Log.Debugf("Error polling Marathon applications: %v", err)
		apps = []string{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applications = apps
}

func (f *Framework) pollInfo(ctx *coordcontext.Context) {
	info, err := f.client.Info(ctx)
	if err != nil {
		ctx.Log.Debugf("Error polling Marathon info: %v", err)
		info = &Info{}
	}
	f.SetFrameworkId(info.FrameworkId)
	f.SetVersion(info.Version)
}

func (f *Framework) pollPing(ctx *coordcontext.Context) {
	up, err := f.client.Ping(ctx)
	if err != nil {
		ctx.Log.Debugf("Error pinging Marathon: %v", err)
	}
	f.SetUp(up)
}

// StartApplication submits a single container application to Marathon, retrying transient failures.
// A failed attempt may still have created the application, so a conflict on a later attempt counts as success.
func (f *Framework) StartApplication(ctx *coordcontext.Context, app *Application) error {
	attempted := false
	return retry.Do(
		func() error {
			err := f.client.CreateApplication(ctx, app)
			if attempted && isConflict(err) {
				ctx.Log.Infof("Marathon application %s was created by an earlier attempt", app.Id)
				return nil
			}
			attempted = true
			return err
		},
		retry.Attempts(f.submitAttempts),
		retry.Delay(f.submitDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.Warnf("Attempt %d to create Marathon application %s failed: %v", n+1, app.Id, err)
		}),
	)
}

func (f *Framework) SubmitTask(ctx *coordcontext.Context, t *task.Task) error {
	app := applicationFor(t)
	if err := f.StartApplication(ctx, app); err != nil {
		return err
	}
	t.SetRemoteId(app.Id)
	return nil
}

// KillTask destroys the Marathon application behind t. An interrupted delete is fatal, since the application
// may still be running and nothing will retry it.
func (f *Framework) KillTask(ctx *coordcontext.Context, t *task.Task) error {
	id := t.RemoteId()
	if id == "" {
		id = applicationId(t.GetName())
	}
	if err := f.client.DeleteApplication(ctx, id); err != nil {
		if ctx.Err() != nil {
			return coorderrors.NewFatal(errors.WithMessagef(err, "delete of marathon application %s interrupted", id))
		}
		return err
	}
	return nil
}

func applicationFor(t *task.Task) *Application {
	app := &Application{
		Id:          applicationId(t.GetName()),
		Environment: map[string]string{},
	}
	reqs := t.Requirements()
	if reqs == nil {
		return app
	}
	app.Command = reqs.Command
	app.Args = reqs.Args
	app.ImageName = reqs.ImageName
	app.ImageVersion = reqs.ImageTag
	app.Cpus = reqs.Cpus
	app.MemoryMb = reqs.MemoryMb
	for k, v := range reqs.Environment {
		app.Environment[k] = v
	}
	for _, port := range reqs.OpenPorts {
		app.PortMappings = append(app.PortMappings, PortMapping{ContainerPort: port})
	}
	for _, port := range reqs.DirectPorts {
		app.PortMappings = append(app.PortMappings, PortMapping{ContainerPort: port, HostPort: port})
	}
	containerPorts := maps.Keys(reqs.PortBindings)
	slices.Sort(containerPorts)
	for _, container := range containerPorts {
		app.PortMappings = append(app.PortMappings, PortMapping{ContainerPort: container, HostPort: reqs.PortBindings[container]})
	}
	return app
}

func applicationId(taskName string) string {
	return "/" + strings.TrimPrefix(strings.ToLower(taskName), "/")
}

func isRetryable(err error) bool {
	var requestError *RequestError
	if errors.As(err, &requestError) {
		return requestError.Retryable()
	}
	return true
}

// isConflict is true if Marathon rejected the request because the application already exists.
func isConflict(err error) bool {
	var requestError *RequestError
	return errors.As(err, &requestError) && requestError.Conflict()
}
