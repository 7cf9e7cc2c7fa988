package registry

import (
	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
)

// Kind classifies the entities held by the registry.
type Kind string

const (
	KindCluster     Kind = "cluster"
	KindFramework   Kind = "framework"
	KindTask        Kind = "task"
	KindApplication Kind = "application"
	KindWorkload    Kind = "workload"
	KindLocation    Kind = "location"
)

const (
	entitiesTable = "entities"
	idIndex       = "id"      // unique entity id
	groupIndex    = "group"   // id of the group the entity is a member of
	clusterIndex  = "cluster" // id of the cluster the entity is bound to
	kindIndex     = "kind"
)

// Entity is anything the registry can manage.
type Entity interface {
	GetId() string
	GetName() string
	GetKind() Kind
	// GetClusterId returns the id of the cluster the entity belongs to, or "" if it is not bound to one.
	GetClusterId() string
	// GetApplicationId returns the id of the application owning the entity, or "" if it has none.
	GetApplicationId() string
}

// Stoppable entities can be stopped by whoever tears down the cluster they are bound to.
type Stoppable interface {
	Entity
	Stop(ctx *coordcontext.Context) error
}

type record struct {
	Id        string
	Group     string
	ClusterId string
	Kind      string
	Entity    Entity
}

// Registry is an in-memory, thread-safe store of managed entities and their group membership.
// It is implemented on top of https://github.com/hashicorp/go-memdb, which allows any number of concurrent readers
// and serialises writers.
type Registry struct {
	db *memdb.MemDB
}

func NewRegistry() (*Registry, error) {
	db, err := memdb.NewMemDB(registrySchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Registry{db: db}, nil
}

// Manage adds the entity to the registry as a member of group. Use "" for no group.
// Managing an entity that is already managed updates its group membership.
func (r *Registry) Manage(entity Entity, group string) error {
	if entity == nil || entity.GetId() == "" {
		return errors.New("cannot manage an entity without an id")
	}
	txn := r.db.Txn(true)
	defer txn.Abort()
	err := txn.Insert(entitiesTable, &record{
		Id:        entity.GetId(),
		Group:     group,
		ClusterId: entity.GetClusterId(),
		Kind:      string(entity.GetKind()),
		Entity:    entity,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// Unmanage removes the entity from the registry, returning false if it was not managed.
func (r *Registry) Unmanage(id string) bool {
	txn := r.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(entitiesTable, idIndex, id)
	if err != nil || existing == nil {
		return false
	}
	if err := txn.Delete(entitiesTable, existing); err != nil {
		return false
	}
	txn.Commit()
	return true
}

func (r *Registry) IsManaged(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry) Get(id string) (Entity, bool) {
	rec := r.getRecord(id)
	if rec == nil {
		return nil, false
	}
	return rec.Entity, true
}

// Members returns every entity in group.
func (r *Registry) Members(group string) []Entity {
	return r.list(groupIndex, group, nil)
}

// SameCluster returns every entity bound to the given cluster.
func (r *Registry) SameCluster(clusterId string) []Entity {
	return r.list(clusterIndex, clusterId, nil)
}

// OfKind returns every entity of the given kind bound to the given cluster.
func (r *Registry) OfKind(clusterId string, kind Kind) []Entity {
	return r.list(clusterIndex, clusterId, func(rec *record) bool {
		return rec.Kind == string(kind)
	})
}

// FindByName returns the first entity of the given kind bound to the cluster with the given name.
func (r *Registry) FindByName(clusterId string, kind Kind, name string) (Entity, bool) {
	matches := r.list(clusterIndex, clusterId, func(rec *record) bool {
		return rec.Kind == string(kind) && rec.Entity.GetName() == name
	})
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// RemoveFromGroup clears the group membership of the entity if, and only if, it is currently a member of group.
// The entity stays managed. Returns false if the entity was not a member.
func (r *Registry) RemoveFromGroup(id string, group string) bool {
	txn := r.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(entitiesTable, idIndex, id)
	if err != nil || raw == nil {
		return false
	}
	existing := raw.(*record)
	if existing.Group != group {
		return false
	}
	// Objects stored in memdb must not be modified in place
	updated := *existing
	updated.Group = ""
	if err := txn.Insert(entitiesTable, &updated); err != nil {
		return false
	}
	txn.Commit()
	return true
}

func (r *Registry) getRecord(id string) *record {
	txn := r.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(entitiesTable, idIndex, id)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*record)
}

func (r *Registry) list(index string, value string, filter func(*record) bool) []Entity {
	txn := r.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(entitiesTable, index, value)
	if err != nil {
		return nil
	}
	result := []Entity{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*record)
		if filter == nil || filter(rec) {
			result = append(result, rec.Entity)
		}
	}
	return result
}

func registrySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			entitiesTable: {
				Name: entitiesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Id"},
					},
					groupIndex: {
						Name:         groupIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Group"},
					},
					clusterIndex: {
						Name:         clusterIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ClusterId"},
					},
					kindIndex: {
						Name:    kindIndex,
						Indexer: &memdb.StringFieldIndex{Field: "Kind"},
					},
				},
			},
		},
	}
}
