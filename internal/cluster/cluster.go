// Package cluster coordinates the lifecycle of a Mesos cluster: its dynamic location, its frameworks, and the
// polls that keep its view of the master current.
package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/healthmonitor"
	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
	commontask "github.com/armadaproject/mesoscoordinator/internal/common/task"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/framework"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/mesos"
	"github.com/armadaproject/mesoscoordinator/internal/reconciler"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

type State string

const (
	Uninitialized State = "uninitialized"
	Starting      State = "starting"
	Running       State = "running"
	Stopping      State = "stopping"
	Stopped       State = "stopped"
)

const (
	frameworksGroupName = "Mesos Frameworks"
	tasksGroupName      = "Mesos Tasks"
)

type Config struct {
	// Id and the location name parts end up in the location spec, so may not contain its delimiters
	Id        string `validate:"required,excludesall=:"`
	MasterUrl string `validate:"required,url"`
	// Id of the application the cluster itself belongs to; never stopped by the cluster
	ApplicationId string
	// LocationName, if set, is used as is. Otherwise the name is built from prefix, cluster id and suffix.
	LocationName   string           `validate:"excludesall=\""`
	LocationPrefix string           `validate:"excludesall=\""`
	LocationSuffix string           `validate:"excludesall=\""`
	Frameworks     []framework.Spec `validate:"dive"`

	HealthPollInterval        time.Duration `validate:"required"`
	ScanInterval              time.Duration `validate:"required"`
	FrameworkPollInterval     time.Duration `validate:"required"`
	ApplicationRescanInterval time.Duration `validate:"required"`
	HttpClient                httpclient.Config
}

// Dependencies are the process wide collaborators a cluster is built with.
type Dependencies struct {
	Registry   *registry.Registry
	Naming     location.NamingRegistry
	Locations  *location.Manager
	Reload     *location.ReloadNotifier
	Frameworks *framework.Factory
	Clock      clock.Clock
	// Master defaults to an HTTP client for Config.MasterUrl
	Master mesos.MasterClient
}

type Info struct {
	ClusterName  string
	ClusterId    string
	MesosVersion string
}

type Cluster struct {
	id           string
	config       Config
	deps         Dependencies
	master       mesos.MasterClient
	frameworks   *registry.Group
	tasks        *registry.Group
	reconciler   *reconciler.TaskReconciler
	health       *healthmonitor.ManualHealthMonitor
	applications *cache.Cache

	// mu guards the lifecycle state and the location attributes. It is never held while calling out.
	mu            sync.Mutex
	state         State
	location      *location.ClusterLocation
	definition    *location.Definition
	locationName  string
	listenerToken string
	sensors       *commontask.BackgroundTaskManager

	// statusMu guards the values published by sensors.
	statusMu     sync.RWMutex
	up           bool
	info         Info
	locationSpec string
}

func NewCluster(config Config, deps Dependencies) (*Cluster, error) {
	if config.Id == "" {
		return nil, errors.New("cluster id must be set")
	}
	if deps.Registry == nil || deps.Naming == nil || deps.Locations == nil || deps.Reload == nil || deps.Frameworks == nil {
		return nil, errors.Errorf("cluster %s is missing dependencies", config.Id)
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	master := deps.Master
	if master == nil {
		master = mesos.NewClient(config.MasterUrl, config.HttpClient)
	}

	c := &Cluster{
		id:           util.NewEntityId(),
		config:       config,
		deps:         deps,
		master:       master,
		frameworks:   deps.Registry.NewGroup(frameworksGroupName),
		tasks:        deps.Registry.NewGroup(tasksGroupName),
		health:       healthmonitor.NewManualHealthMonitor(),
		applications: cache.New(3*config.ApplicationRescanInterval, config.ApplicationRescanInterval),
		state:        Uninitialized,
	}
	c.reconciler = reconciler.NewTaskReconciler(config.Id, master, deps.Registry, c.tasks, c.frameworks, c.DynamicLocation)

	deps.Naming.RegisterResolver(config.Id, c.resolveLocation)

	for _, spec := range config.Frameworks {
		fw, err := deps.Frameworks.Create(spec, framework.Dependencies{
			ClusterId:    config.Id,
			Registry:     deps.Registry,
			Clock:        deps.Clock,
			PollInterval: config.FrameworkPollInterval,
			HttpClient:   config.HttpClient,
		})
		if err != nil {
			deps.Naming.UnregisterResolver(config.Id)
			return nil, err
		}
		if err := c.frameworks.AddMember(fw); err != nil {
			deps.Naming.UnregisterResolver(config.Id)
			return nil, err
		}
	}
	return c, nil
}

func (c *Cluster) GetId() string {
	return c.id
}

func (c *Cluster) GetName() string {
	return c.config.Id
}

func (c *Cluster) GetKind() registry.Kind {
	return registry.KindCluster
}

func (c *Cluster) GetClusterId() string {
	return c.config.Id
}

func (c *Cluster) GetApplicationId() string {
	return c.config.ApplicationId
}

func (c *Cluster) MasterUrl() string {
	return c.config.MasterUrl
}

func (c *Cluster) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cluster) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Cluster) IsUp() bool {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.up
}

func (c *Cluster) setUp(up bool) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.up = up
}

// Info returns the cluster name, id and version last reported by the master.
func (c *Cluster) Info() Info {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.info
}

func (c *Cluster) LocationSpec() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.locationSpec
}

func (c *Cluster) setLocationSpec(spec string) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.locationSpec = spec
}

// DynamicLocation returns the location created by the last start, or nil if there is none.
func (c *Cluster) DynamicLocation() location.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.location == nil {
		return nil
	}
	return c.location
}

func (c *Cluster) LocationName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locationName
}

// IsLocationAvailable is true if the cluster has a location and it is managed.
func (c *Cluster) IsLocationAvailable() bool {
	c.mu.Lock()
	loc := c.location
	c.mu.Unlock()
	return loc != nil && c.deps.Locations.IsManaged(loc)
}

func (c *Cluster) Frameworks() []framework.Framework {
	members := c.frameworks.Members()
	result := make([]framework.Framework, 0, len(members))
	for _, member := range members {
		if fw, ok := member.(framework.Framework); ok {
			result = append(result, fw)
		}
	}
	return result
}

// Tasks returns every task of the cluster, discovered or provisioned through a framework.
func (c *Cluster) Tasks() []*task.Task {
	entities := c.deps.Registry.OfKind(c.config.Id, registry.KindTask)
	result := make([]*task.Task, 0, len(entities))
	for _, entity := range entities {
		if t, ok := entity.(*task.Task); ok {
			result = append(result, t)
		}
	}
	return result
}

// Check implements health.Checker.
func (c *Cluster) Check() error {
	healthy, reason, err := c.health.IsHealthy()
	if err != nil {
		return err
	}
	if !healthy {
		return errors.Errorf("cluster %s is not up: %s", c.config.Id, reason)
	}
	return nil
}

func (c *Cluster) String() string {
	return fmt.Sprintf("cluster %s", c.config.Id)
}

func (c *Cluster) logContext(ctx *coordcontext.Context) *coordcontext.Context {
	return coordcontext.WithLogField(ctx, "cluster", c.config.Id)
}
