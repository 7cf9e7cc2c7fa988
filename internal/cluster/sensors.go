package cluster

import (
	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/healthmonitor"
	"github.com/armadaproject/mesoscoordinator/internal/common/metrics"
	commontask "github.com/armadaproject/mesoscoordinator/internal/common/task"
)

func (c *Cluster) connectSensors() {
	sensors := commontask.NewBackgroundTaskManager(c.deps.Clock)
	sensors.Register(c.pollHealth, c.config.HealthPollInterval, "mesos_health")
	sensors.Register(c.pollInfo, c.config.HealthPollInterval, "mesos_info")
	sensors.Register(c.reconciler.ScanTasks, c.config.ScanInterval, "mesos_task_scan")
	sensors.Register(c.rescanApplications, c.config.ApplicationRescanInterval, "application_rescan")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensors = sensors
}

// pollHealth publishes whether the master is up. Any failure counts as not up.
func (c *Cluster) pollHealth() {
	ctx := c.logContext(coordcontext.Background())
	up, err := c.master.Health(ctx)
	if err != nil {
		metrics.PollFailures.WithLabelValues(c.config.Id, "health").Inc()
		ctx.Log.Debugf("Error polling master health: %v", err)
		up = false
	}
	c.setUp(up)
	if up {
		c.health.SetHealthStatus(true)
		metrics.ClusterUp.WithLabelValues(c.config.Id).Set(1)
	} else {
		c.health.SetUnhealthy(healthmonitor.UnreachableReason)
		metrics.ClusterUp.WithLabelValues(c.config.Id).Set(0)
	}
}

// pollInfo publishes the cluster name, id and version reported by the master.
// A failed poll leaves the last published values in place.
func (c *Cluster) pollInfo() {
	ctx := c.logContext(coordcontext.Background())
	state, err := c.master.State(ctx)
	if err != nil {
		metrics.PollFailures.WithLabelValues(c.config.Id, "info").Inc()
		ctx.Log.Debugf("Error polling master state: %v", err)
		return
	}
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.info = Info{
		ClusterName:  state.Cluster,
		ClusterId:    state.Id,
		MesosVersion: state.Version,
	}
}
