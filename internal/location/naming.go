package location

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
)

// Resolver turns a definition into an active location.
type Resolver func(definition *Definition) (Location, error)

// NamingRegistry stores location definitions by unique name and resolves them into locations through
// resolvers registered per cluster.
type NamingRegistry interface {
	// Define stores a new definition, failing with coorderrors.ErrDuplicateLocation if the name is taken.
	Define(name string, spec string, flags map[string]string) (*Definition, error)
	// Lookup returns the definition with the given name, or nil if there is none.
	Lookup(name string) (*Definition, error)
	Remove(id string) error
	Resolve(definition *Definition) (Location, error)
	RegisterResolver(clusterId string, resolver Resolver)
	UnregisterResolver(clusterId string)
}

type resolvers struct {
	mu        sync.RWMutex
	byCluster map[string]Resolver
}

func (r *resolvers) RegisterResolver(clusterId string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byCluster == nil {
		r.byCluster = map[string]Resolver{}
	}
	r.byCluster[clusterId] = resolver
}

func (r *resolvers) UnregisterResolver(clusterId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byCluster, clusterId)
}

func (r *resolvers) Resolve(definition *Definition) (Location, error) {
	if definition == nil {
		return nil, errors.New("cannot resolve a nil definition")
	}
	clusterId, _, err := ParseClusterSpec(definition.Spec)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	resolver, ok := r.byCluster[clusterId]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WithStack(&coorderrors.ErrNotFound{
			Type:    "resolver",
			Value:   clusterId,
			Message: "no location resolver registered for cluster",
		})
	}
	return resolver(definition)
}
