package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "mesos_coordinator_"

var BackgroundTaskLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricsPrefix + "background_task_latency_seconds",
		Help:    "Background loop latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	},
	[]string{"task"})

var PollFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "poll_failures_total",
		Help: "Number of polls of the remote scheduler that produced no update",
	},
	[]string{"cluster", "poll"})

var TasksDiscovered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "tasks_discovered_total",
		Help: "Number of running remote tasks materialized by reconciliation",
	},
	[]string{"cluster"})

var ProvisioningRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "provisioning_requests_total",
		Help: "Number of obtain and release requests handled by framework locations",
	},
	[]string{"framework", "operation", "result"})

var StopWarnings = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "stop_warnings_total",
		Help: "Number of cluster stop phases that completed with a warning",
	},
	[]string{"cluster", "phase"})

var ClusterUp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "cluster_up",
		Help: "1 if the remote scheduler master last reported healthy, 0 otherwise",
	},
	[]string{"cluster"})
