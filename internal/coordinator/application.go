// Package coordinator wires the clusters configured for this process to the shared registry, naming registry and
// framework implementations, and serves their health and metrics.
package coordinator

import (
	"strconv"
	"sync"

	"github.com/go-redis/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/mesoscoordinator/internal/cluster"
	"github.com/armadaproject/mesoscoordinator/internal/common"
	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/health"
	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/coordinator/configuration"
	"github.com/armadaproject/mesoscoordinator/internal/framework"
	"github.com/armadaproject/mesoscoordinator/internal/framework/marathon"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

const bytesPerMb = 1024 * 1024

type Coordinator struct {
	config    configuration.CoordinatorConfiguration
	registry  *registry.Registry
	naming    location.NamingRegistry
	locations *location.Manager
	reload    *location.ReloadNotifier
	clusters  []*cluster.Cluster
	health    *health.MultiChecker

	wg           *sync.WaitGroup
	shutdownOnce sync.Once
	closers      []func()
}

// StartUp builds every configured cluster, starts them and begins serving metrics and health.
// A cluster that fails to start is logged and left stopped; the others keep running.
func StartUp(config configuration.CoordinatorConfiguration) (*Coordinator, error) {
	naming, closeNaming, err := NewNamingRegistry(config.Naming)
	if err != nil {
		return nil, err
	}
	c, err := New(config, naming, framework.NewFactory(), clock.RealClock{})
	if err != nil {
		closeNaming()
		return nil, err
	}
	c.closers = append(c.closers, closeNaming)

	if err := c.Start(coordcontext.Background()); err != nil {
		log.WithError(err).Error("Some clusters failed to start")
	}
	if config.MetricsPort != 0 {
		c.closers = append(c.closers, common.ServeMetrics(config.MetricsPort, c.health))
	}
	return c, nil
}

// NewNamingRegistry builds the naming registry described by config. The returned function releases it.
func NewNamingRegistry(config configuration.NamingConfiguration) (location.NamingRegistry, func(), error) {
	switch config.Type {
	case configuration.MemoryNaming, "":
		naming, err := location.NewMemoryNamingRegistry()
		return naming, func() {}, err
	case configuration.RedisNaming:
		if config.Redis == nil {
			return nil, nil, errors.New("naming registry of type redis requires a redis configuration")
		}
		db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		return location.NewRedisNamingRegistry(db), func() {
			util.CloseResource("naming registry redis client", db)
		}, nil
	default:
		return nil, nil, errors.Errorf("unknown naming registry type %q", config.Type)
	}
}

// New builds the clusters of config without starting them. Marathon is always registered with factory.
func New(config configuration.CoordinatorConfiguration, naming location.NamingRegistry, factory *framework.Factory, clk clock.Clock) (*Coordinator, error) {
	r, err := registry.NewRegistry()
	if err != nil {
		return nil, err
	}
	marathon.Register(factory)

	c := &Coordinator{
		config:    config,
		registry:  r,
		naming:    naming,
		locations: location.NewManager(r),
		reload:    location.NewReloadNotifier(),
		health:    health.NewMultiChecker(),
		wg:        &sync.WaitGroup{},
	}
	for _, clusterConfig := range config.Clusters {
		clusterConfig = withDefaults(clusterConfig, config)
		cl, err := cluster.NewCluster(clusterConfig, cluster.Dependencies{
			Registry:   r,
			Naming:     naming,
			Locations:  c.locations,
			Reload:     c.reload,
			Frameworks: factory,
			Clock:      clk,
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "error creating cluster %s", clusterConfig.Id)
		}
		c.clusters = append(c.clusters, cl)
		c.health.Add(cl)
	}
	c.wg.Add(1)
	return c, nil
}

// withDefaults fills in the http client of a cluster and the task defaults of its frameworks from the process wide
// configuration.
func withDefaults(clusterConfig cluster.Config, config configuration.CoordinatorConfiguration) cluster.Config {
	if clusterConfig.HttpClient == (httpclient.Config{}) {
		clusterConfig.HttpClient = config.HttpClient
	}
	if clusterConfig.HttpClient == (httpclient.Config{}) {
		clusterConfig.HttpClient = httpclient.DefaultConfig()
	}

	frameworks := make([]framework.Spec, 0, len(clusterConfig.Frameworks))
	for _, spec := range clusterConfig.Frameworks {
		flags := map[string]string{}
		if !config.TaskDefaults.Cpu.IsZero() {
			flags[marathon.FlagCpus] = strconv.FormatFloat(config.TaskDefaults.Cpu.AsApproximateFloat64(), 'f', -1, 64)
		}
		if !config.TaskDefaults.Memory.IsZero() {
			flags[marathon.FlagMemory] = strconv.FormatInt(config.TaskDefaults.Memory.Value()/bytesPerMb, 10)
		}
		for k, v := range spec.Flags {
			flags[k] = v
		}
		spec.Flags = flags
		frameworks = append(frameworks, spec)
	}
	clusterConfig.Frameworks = frameworks
	return clusterConfig
}

// Start starts every cluster in turn, returning the errors of those that failed.
func (c *Coordinator) Start(ctx *coordcontext.Context) error {
	var result *multierror.Error
	for _, cl := range c.clusters {
		report, err := cl.Start(ctx, nil)
		if err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "error starting cluster %s", cl.GetClusterId()))
			continue
		}
		if report.HasErrors() {
			log.WithError(report.FrameworkErrors).Warnf("Cluster %s started with failed frameworks", cl.GetClusterId())
		}
	}
	return result.ErrorOrNil()
}

// Stop stops every running cluster in parallel and returns their reports, keyed by cluster id.
func (c *Coordinator) Stop(ctx *coordcontext.Context) map[string]*cluster.StopReport {
	reports := map[string]*cluster.StopReport{}
	var mu sync.Mutex
	g, groupCtx := coordcontext.ErrGroup(ctx)
	for _, cl := range c.clusters {
		cl := cl
		if cl.State() != cluster.Running {
			continue
		}
		g.Go(func() error {
			report, err := cl.Stop(groupCtx, c.config.StopTimeout)
			if err != nil {
				log.WithError(err).Warnf("Error stopping cluster %s", cl.GetClusterId())
				return nil
			}
			if report.HasWarnings() {
				log.WithError(report.Err()).Warnf("Cluster %s %s", cl.GetClusterId(), report)
			}
			mu.Lock()
			defer mu.Unlock()
			reports[cl.GetClusterId()] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// Reloaded tells every location listener that the configuration was reloaded.
func (c *Coordinator) Reloaded() {
	c.reload.Reloaded()
}

func (c *Coordinator) Clusters() []*cluster.Cluster {
	return append([]*cluster.Cluster{}, c.clusters...)
}

func (c *Coordinator) Registry() *registry.Registry {
	return c.registry
}

// Check implements health.Checker. It fails while any cluster is not up.
func (c *Coordinator) Check() error {
	return c.health.Check()
}

// Shutdown stops every cluster and releases the resources of the coordinator. Only the first call has any effect.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.Stop(coordcontext.Background())
		for i := len(c.closers) - 1; i >= 0; i-- {
			c.closers[i]()
		}
		c.wg.Done()
		log.Info("Shutdown complete")
	})
}

// Wait blocks until Shutdown has completed.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
