// Package framework contains the pieces shared by every scheduler framework a cluster can run,
// e.g. Marathon.
package framework

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
	"github.com/armadaproject/mesoscoordinator/internal/task"
)

// Framework is one scheduler framework bound to a cluster.
type Framework interface {
	task.Owner
	Kind() string
	Url() string
	IsUp() bool
	Version() string
	Start(ctx *coordcontext.Context, locations []location.Location) error
	Stop(ctx *coordcontext.Context) error
	// Supports reports whether the framework can provision capacity for workload.
	Supports(workload *Workload) bool
}

// Base holds the state common to all frameworks. Concrete frameworks embed it and publish their sensor values
// through its setters.
type Base struct {
	id        string
	name      string
	kind      string
	clusterId string
	url       string
	flags     map[string]string
	supports  SupportPredicate

	mu          sync.RWMutex
	frameworkId string
	up          bool
	version     string
}

func NewBase(spec Spec, clusterId string, supports SupportPredicate) *Base {
	if supports == nil {
		supports = SupportsNothing
	}
	return &Base{
		id:        util.NewEntityId(),
		name:      spec.DisplayName(),
		kind:      spec.Kind,
		clusterId: clusterId,
		url:       spec.Url,
		flags:     maps.Clone(spec.Flags),
		supports:  supports,
	}
}

func (b *Base) GetId() string {
	return b.id
}

func (b *Base) GetName() string {
	return b.name
}

func (b *Base) GetKind() registry.Kind {
	return registry.KindFramework
}

func (b *Base) GetClusterId() string {
	return b.clusterId
}

func (b *Base) GetApplicationId() string {
	return ""
}

func (b *Base) Kind() string {
	return b.kind
}

func (b *Base) Url() string {
	return b.url
}

// Flags returns the configured flags of the framework. Frameworks treat them as defaults for the requests they serve.
func (b *Base) Flags() map[string]string {
	return maps.Clone(b.flags)
}

func (b *Base) Supports(workload *Workload) bool {
	return workload != nil && b.supports(workload)
}

func (b *Base) FrameworkId() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frameworkId
}

func (b *Base) SetFrameworkId(frameworkId string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameworkId = frameworkId
}

func (b *Base) IsUp() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.up
}

func (b *Base) SetUp(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.up = up
}

func (b *Base) Version() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *Base) SetVersion(version string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version = version
}
