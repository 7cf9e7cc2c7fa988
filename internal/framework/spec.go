package framework

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

// Spec configures one framework of a cluster.
type Spec struct {
	Kind string `validate:"required"`
	Name string
	Url  string `validate:"required,url"`
	// MaxTasks bounds the number of tasks the framework location provisions. 0 means unbounded.
	MaxTasks int `validate:"gte=0"`
	Flags    map[string]string
}

func (s Spec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind
}

// Dependencies are the cluster scoped collaborators handed to every framework constructor.
type Dependencies struct {
	ClusterId string
	Registry  *registry.Registry
	Clock     clock.Clock
	// PollInterval of the framework's own sensors
	PollInterval time.Duration
	HttpClient   httpclient.Config
}

type Constructor func(spec Spec, deps Dependencies) (Framework, error)

// Factory builds frameworks from their specs, keyed by framework kind.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

func NewFactory() *Factory {
	return &Factory{constructors: map[string]Constructor{}}
}

func (f *Factory) Register(kind string, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[kind] = constructor
}

func (f *Factory) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := maps.Keys(f.constructors)
	slices.Sort(kinds)
	return kinds
}

func (f *Factory) Create(spec Spec, deps Dependencies) (Framework, error) {
	f.mu.RLock()
	constructor, ok := f.constructors[spec.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown framework kind %q, expected one of %v", spec.Kind, f.Kinds())
	}
	fw, err := constructor(spec, deps)
	if err != nil {
		return nil, errors.WithMessagef(err, "error creating %s framework %s", spec.Kind, spec.DisplayName())
	}
	return fw, nil
}
