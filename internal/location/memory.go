package location

import (
	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
)

const (
	definitionsTable = "definitions"
	idIndex          = "id"
	nameIndex        = "name"
)

// MemoryNamingRegistry keeps definitions in process memory. Suitable when a single coordinator owns every
// location it may collide with.
type MemoryNamingRegistry struct {
	resolvers
	db *memdb.MemDB
}

func NewMemoryNamingRegistry() (*MemoryNamingRegistry, error) {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			definitionsTable: {
				Name: definitionsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Id"},
					},
					nameIndex: {
						Name:    nameIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemoryNamingRegistry{db: db}, nil
}

func (r *MemoryNamingRegistry) Define(name string, spec string, flags map[string]string) (*Definition, error) {
	if name == "" {
		return nil, errors.New("cannot define a location without a name")
	}
	txn := r.db.Txn(true)
	defer txn.Abort()

	// Writers are serialised, so checking and inserting in one transaction cannot race another define.
	existing, err := txn.First(definitionsTable, nameIndex, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if existing != nil {
		return nil, errors.WithStack(&coorderrors.ErrDuplicateLocation{
			Name:         name,
			ExistingSpec: existing.(*Definition).Spec,
		})
	}

	definition := &Definition{
		Id:    util.NewULID(),
		Name:  name,
		Spec:  spec,
		Flags: copyFlags(flags),
	}
	if err := txn.Insert(definitionsTable, definition); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return definition, nil
}

func (r *MemoryNamingRegistry) Lookup(name string) (*Definition, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(definitionsTable, nameIndex, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*Definition), nil
}

// Remove deletes the definition with the given id. Removing an unknown id is not an error.
func (r *MemoryNamingRegistry) Remove(id string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(definitionsTable, idIndex, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if raw == nil {
		return nil
	}
	if err := txn.Delete(definitionsTable, raw); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func copyFlags(flags map[string]string) map[string]string {
	if flags == nil {
		return map[string]string{}
	}
	return maps.Clone(flags)
}
