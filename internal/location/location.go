package location

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/util"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

// Location is an addressable handle other components request capacity from.
type Location interface {
	registry.Entity
	Spec() string
}

// Definition is the naming registry record a Location is resolved from.
type Definition struct {
	Id    string
	Name  string
	Spec  string
	Flags map[string]string
}

func (d *Definition) Flag(key string) string {
	if d.Flags == nil {
		return ""
	}
	return d.Flags[key]
}

// ClusterLocation is the dynamic location owned by a running cluster.
// Owner is a lookup-only reference to the cluster the location was created for.
type ClusterLocation struct {
	id        string
	name      string
	spec      string
	clusterId string
	owner     registry.Entity
}

func NewClusterLocation(definition *Definition, clusterId string, owner registry.Entity) *ClusterLocation {
	return &ClusterLocation{
		id:        util.NewEntityId(),
		name:      definition.Name,
		spec:      definition.Spec,
		clusterId: clusterId,
		owner:     owner,
	}
}

func (l *ClusterLocation) GetId() string {
	return l.id
}

func (l *ClusterLocation) GetName() string {
	return l.name
}

func (l *ClusterLocation) GetKind() registry.Kind {
	return registry.KindLocation
}

func (l *ClusterLocation) GetClusterId() string {
	return l.clusterId
}

func (l *ClusterLocation) GetApplicationId() string {
	return ""
}

func (l *ClusterLocation) Spec() string {
	return l.spec
}

func (l *ClusterLocation) Owner() registry.Entity {
	return l.owner
}

func (l *ClusterLocation) String() string {
	return fmt.Sprintf("%s (%s)", l.name, l.spec)
}

const clusterSpecScheme = "mesos"

var clusterSpecPattern = regexp.MustCompile(`^mesos:([^:]+):\(name="([^"]*)"\)$`)

// ClusterSpec formats the location spec for the named location of a cluster, e.g. mesos:c1:(name="mesos-c1").
func ClusterSpec(clusterId string, name string) string {
	return fmt.Sprintf(`%s:%s:(name="%s")`, clusterSpecScheme, clusterId, name)
}

// ParseClusterSpec is the inverse of ClusterSpec.
func ParseClusterSpec(spec string) (clusterId string, name string, err error) {
	matches := clusterSpecPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if matches == nil {
		return "", "", errors.Errorf("%q is not a valid %s location spec", spec, clusterSpecScheme)
	}
	return matches[1], matches[2], nil
}

// Name derives the location name from the configured explicit name, or joins the non-empty parts of
// prefix, clusterId and suffix with "-".
func Name(explicitName string, prefix string, clusterId string, suffix string) string {
	if explicitName != "" {
		return explicitName
	}
	parts := make([]string, 0, 3)
	for _, part := range []string{prefix, clusterId, suffix} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "-")
}
