package configuration

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	commonconfig "github.com/armadaproject/mesoscoordinator/internal/common/config"
	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
	"github.com/armadaproject/mesoscoordinator/internal/cluster"
)

const (
	MemoryNaming = "memory"
	RedisNaming  = "redis"
)

type NamingConfiguration struct {
	// Either memory, for a registry private to this process, or redis, for one shared by several coordinators
	Type  string                    `validate:"oneof=memory redis"`
	Redis *commonconfig.RedisConfig `validate:"omitempty"`
}

// TaskDefaults apply to every task provisioned through a framework that does not set its own.
type TaskDefaults struct {
	Cpu    resource.Quantity
	Memory resource.Quantity
}

type CoordinatorConfiguration struct {
	MetricsPort uint16
	Naming      NamingConfiguration
	// Bounds each phase of a cluster stop
	StopTimeout  time.Duration `validate:"required"`
	HttpClient   httpclient.Config
	TaskDefaults TaskDefaults
	Clusters     []cluster.Config `validate:"dive"`
}
