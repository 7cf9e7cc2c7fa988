package healthmonitor

import (
	"sync"
)

// ManualHealthMonitor is a health monitor whose status is published by its owner,
// typically from a background poll of a remote health endpoint.
type ManualHealthMonitor struct {
	isHealthy bool
	reason    string
	mu        sync.Mutex
}

func NewManualHealthMonitor() *ManualHealthMonitor {
	return &ManualHealthMonitor{
		reason: NotStartedReason,
	}
}

// SetHealthStatus publishes the health status, returning the previous one.
func (srv *ManualHealthMonitor) SetHealthStatus(isHealthy bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	previous := srv.isHealthy
	srv.isHealthy = isHealthy
	return previous
}

// SetUnhealthy marks the monitor unhealthy for the given reason, returning the previous status.
func (srv *ManualHealthMonitor) SetUnhealthy(reason string) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	previous := srv.isHealthy
	srv.isHealthy = false
	srv.reason = reason
	return previous
}

func (srv *ManualHealthMonitor) WithReason(reason string) *ManualHealthMonitor {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.reason = reason
	return srv
}

func (srv *ManualHealthMonitor) IsHealthy() (bool, string, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.isHealthy {
		return true, "", nil
	} else {
		return false, srv.reason, nil
	}
}
