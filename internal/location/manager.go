package location

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

const managedLocationsGroup = "Managed Locations"

// Manager tracks which locations are currently active.
type Manager struct {
	registry *registry.Registry
	group    *registry.Group
}

func NewManager(r *registry.Registry) *Manager {
	return &Manager{registry: r, group: r.NewGroup(managedLocationsGroup)}
}

func (m *Manager) Manage(location Location) error {
	if location == nil {
		return errors.New("cannot manage a nil location")
	}
	return m.group.AddMember(location)
}

// Unmanage removes the location from the registry. Returns coorderrors.ErrNotFound if the location is not managed.
func (m *Manager) Unmanage(location Location) error {
	if location == nil || !m.group.HasMember(location) || !m.registry.Unmanage(location.GetId()) {
		name := ""
		if location != nil {
			name = location.GetName()
		}
		return errors.WithStack(&coorderrors.ErrNotFound{
			Type:    "location",
			Value:   name,
			Message: "location is not managed",
		})
	}
	return nil
}

func (m *Manager) IsManaged(location Location) bool {
	return location != nil && m.group.HasMember(location)
}

func (m *Manager) Managed() []Location {
	members := m.group.Members()
	result := make([]Location, 0, len(members))
	for _, member := range members {
		if location, ok := member.(Location); ok {
			result = append(result, location)
		}
	}
	return result
}
