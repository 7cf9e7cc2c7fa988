package cluster

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/location"
)

// Flag recorded on every definition created by a cluster.
const ClusterIdFlag = "clusterId"

func (c *Cluster) resolveLocation(definition *location.Definition) (location.Location, error) {
	return location.NewClusterLocation(definition, c.config.Id, c), nil
}

// CreateLocation defines, resolves and manages the dynamic location of the cluster.
// It fails with coorderrors.ErrDuplicateLocation if a location of the same name is already defined; an existing
// definition is never overwritten.
func (c *Cluster) CreateLocation(ctx *coordcontext.Context, extraFlags map[string]string) (*location.ClusterLocation, error) {
	ctx = c.logContext(ctx)
	name := location.Name(c.config.LocationName, c.config.LocationPrefix, c.config.Id, c.config.LocationSuffix)

	existing, err := c.deps.Naming.Lookup(name)
	if err != nil {
		return nil, errors.WithMessagef(err, "error looking up location %s", name)
	}
	if existing != nil {
		return nil, errors.WithStack(&coorderrors.ErrDuplicateLocation{Name: name, ExistingSpec: existing.Spec})
	}

	spec := location.ClusterSpec(c.config.Id, name)
	c.setLocationSpec(spec)

	flags := map[string]string{}
	maps.Copy(flags, extraFlags)
	flags[ClusterIdFlag] = c.config.Id

	definition, err := c.deps.Naming.Define(name, spec, flags)
	if err != nil {
		c.setLocationSpec("")
		return nil, err
	}
	resolved, err := c.deps.Naming.Resolve(definition)
	if err != nil {
		c.removeDefinition(ctx, definition)
		return nil, errors.WithMessagef(err, "error resolving location %s", name)
	}
	loc, ok := resolved.(*location.ClusterLocation)
	if !ok {
		c.removeDefinition(ctx, definition)
		return nil, errors.Errorf("location %s resolved to unexpected type %T", name, resolved)
	}
	if err := c.deps.Locations.Manage(loc); err != nil {
		c.removeDefinition(ctx, definition)
		return nil, errors.WithMessagef(err, "error managing location %s", name)
	}
	token := c.deps.Reload.Add(c.onLocationReload)

	c.mu.Lock()
	c.location = loc
	c.definition = definition
	c.locationName = name
	c.listenerToken = token
	c.mu.Unlock()

	ctx.Log.Infof("Created location %s: %s", name, spec)
	return loc, nil
}

// DeleteLocation unmanages the dynamic location and removes its definition. It does nothing if the cluster has
// no location. The location attributes of the cluster are cleared even if removal fails.
func (c *Cluster) DeleteLocation(ctx *coordcontext.Context) error {
	ctx = c.logContext(ctx)
	c.mu.Lock()
	loc := c.location
	definition := c.definition
	token := c.listenerToken
	c.mu.Unlock()

	if loc == nil {
		return nil
	}
	defer c.clearLocation()

	var result *multierror.Error
	if err := c.deps.Locations.Unmanage(loc); err != nil {
		var notFound *coorderrors.ErrNotFound
		if errors.As(err, &notFound) {
			ctx.Log.Debugf("Location %s was not managed", loc.GetName())
		} else {
			result = multierror.Append(result, err)
		}
	}
	if definition != nil {
		if err := c.deps.Naming.Remove(definition.Id); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "error removing definition of location %s", loc.GetName()))
		}
	}
	if token != "" {
		c.deps.Reload.Remove(token)
	}
	ctx.Log.Infof("Deleted location %s", loc.GetName())
	return result.ErrorOrNil()
}

// Rebind re-registers the location of the cluster with the naming registry, as happens on a config reload.
// Returns false if the cluster has no location.
func (c *Cluster) Rebind() bool {
	c.mu.Lock()
	token := c.listenerToken
	c.mu.Unlock()
	if token == "" {
		return false
	}
	return c.deps.Reload.Fire(token)
}

// onLocationReload restores the resolver of the cluster and, if the naming registry lost the definition of the
// location, defines it again under the same name.
func (c *Cluster) onLocationReload() {
	ctx := c.logContext(coordcontext.Background())
	c.deps.Naming.RegisterResolver(c.config.Id, c.resolveLocation)

	c.mu.Lock()
	definition := c.definition
	c.mu.Unlock()
	if definition == nil {
		return
	}

	existing, err := c.deps.Naming.Lookup(definition.Name)
	if err != nil {
		ctx.Log.WithError(err).Warnf("Error looking up location %s on reload", definition.Name)
		return
	}
	if existing != nil {
		return
	}
	redefined, err := c.deps.Naming.Define(definition.Name, definition.Spec, definition.Flags)
	if err != nil {
		ctx.Log.WithError(err).Warnf("Error redefining location %s on reload", definition.Name)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.definition == definition {
		c.definition = redefined
	}
	ctx.Log.Infof("Redefined location %s on reload", definition.Name)
}

func (c *Cluster) removeDefinition(ctx *coordcontext.Context, definition *location.Definition) {
	c.setLocationSpec("")
	if err := c.deps.Naming.Remove(definition.Id); err != nil {
		ctx.Log.WithError(err).Warnf("Error removing definition of location %s", definition.Name)
	}
}

func (c *Cluster) clearLocation() {
	c.mu.Lock()
	c.location = nil
	c.definition = nil
	c.locationName = ""
	c.listenerToken = ""
	c.mu.Unlock()
	c.setLocationSpec("")
}

// Definition returns the naming registry definition of the dynamic location, or nil if there is none.
func (c *Cluster) Definition() *location.Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.definition
}
