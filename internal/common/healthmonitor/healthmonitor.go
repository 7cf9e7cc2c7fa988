package healthmonitor

const (
	// Health check failure reason indicating the component has not been started.
	NotStartedReason string = "notStarted"
	// Health check failure reason indicating the last poll of the remote endpoint failed or returned a non-200 response.
	UnreachableReason string = "unreachable"
	// Health check failure reason indicating the component has been stopped.
	StoppedReason string = "stopped"
)

// HealthMonitor represents a health checker.
type HealthMonitor interface {
	// IsHealthy returns the last known health of the monitored component,
	// a reason (empty if healthy), and possibly an error.
	IsHealthy() (ok bool, reason string, err error)
}
