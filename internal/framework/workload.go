package framework

import (
	"golang.org/x/exp/slices"
)

// Workload is a caller asking a framework location for capacity.
type Workload struct {
	Id            string
	DisplayName   string
	ApplicationId string
	// PlanId, if set, names the task provisioned for the workload
	PlanId       string
	Capabilities []string

	MinCores float64
	MinRamMb int64
	Cpus     float64
	MemoryMb int64
	// ProvisioningProperties may carry minCores and minRam
	ProvisioningProperties map[string]interface{}

	Command      string
	Args         []string
	ImageName    string
	ImageTag     string
	OpenPorts    []int
	DirectPorts  []int
	PortBindings map[int]int
	Environment  map[string]string
}

func (w *Workload) HasCapability(capability string) bool {
	return slices.Contains(w.Capabilities, capability)
}

func (w *Workload) String() string {
	if w.DisplayName != "" {
		return w.DisplayName
	}
	return w.Id
}

// SupportPredicate decides whether a framework can provision capacity for a workload.
type SupportPredicate func(workload *Workload) bool

func SupportsNothing(*Workload) bool {
	return false
}

// RequireCapabilities supports workloads carrying every one of capabilities.
func RequireCapabilities(capabilities ...string) SupportPredicate {
	return func(workload *Workload) bool {
		for _, capability := range capabilities {
			if !workload.HasCapability(capability) {
				return false
			}
		}
		return true
	}
}
