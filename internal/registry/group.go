package registry

import (
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
)

// Group is a named view over the members of one registry group.
type Group struct {
	id          string
	displayName string
	registry    *Registry
}

func (r *Registry) NewGroup(displayName string) *Group {
	return &Group{
		id:          util.NewEntityId(),
		displayName: displayName,
		registry:    r,
	}
}

func (g *Group) GetId() string {
	return g.id
}

func (g *Group) DisplayName() string {
	return g.displayName
}

// AddMember manages the entity as a member of this group.
func (g *Group) AddMember(entity Entity) error {
	return g.registry.Manage(entity, g.id)
}

// RemoveMember drops the entity from this group, leaving it managed.
// Returns false if the entity was not a member.
func (g *Group) RemoveMember(entity Entity) bool {
	return g.registry.RemoveFromGroup(entity.GetId(), g.id)
}

func (g *Group) HasMember(entity Entity) bool {
	rec := g.registry.getRecord(entity.GetId())
	return rec != nil && rec.Group == g.id
}

func (g *Group) Members() []Entity {
	return g.registry.Members(g.id)
}

func (g *Group) Size() int {
	return len(g.Members())
}

// FindByName returns the first member with the given name.
func (g *Group) FindByName(name string) (Entity, bool) {
	for _, member := range g.Members() {
		if member.GetName() == name {
			return member, true
		}
	}
	return nil, false
}
