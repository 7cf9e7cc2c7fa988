package location

import (
	"strings"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/common/util"
)

const (
	definitionPrefix = "Location:Definition:"
	namesKey         = "Location:Names"
	flagFieldPrefix  = "flag."
)

// RedisNamingRegistry shares definitions between every coordinator process pointed at the same redis.
// Each definition is a hash; a single hash maps names to definition ids and is used to claim a name.
type RedisNamingRegistry struct {
	resolvers
	db redis.UniversalClient
}

func NewRedisNamingRegistry(db redis.UniversalClient) *RedisNamingRegistry {
	return &RedisNamingRegistry{db: db}
}

func (r *RedisNamingRegistry) Define(name string, spec string, flags map[string]string) (*Definition, error) {
	if name == "" {
		return nil, errors.New("cannot define a location without a name")
	}
	definition := &Definition{
		Id:    util.NewULID(),
		Name:  name,
		Spec:  spec,
		Flags: copyFlags(flags),
	}

	claimed, err := r.db.HSetNX(namesKey, name, definition.Id).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !claimed {
		duplicate := &coorderrors.ErrDuplicateLocation{Name: name}
		if existing, err := r.Lookup(name); err == nil && existing != nil {
			duplicate.ExistingSpec = existing.Spec
		}
		return nil, errors.WithStack(duplicate)
	}

	if err := r.db.HMSet(definitionPrefix+definition.Id, toFields(definition)).Err(); err != nil {
		r.db.HDel(namesKey, name)
		return nil, errors.WithStack(err)
	}
	return definition, nil
}

func (r *RedisNamingRegistry) Lookup(name string) (*Definition, error) {
	id, err := r.db.HGet(namesKey, name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return r.get(id)
}

// Remove deletes the definition with the given id and releases its name. Removing an unknown id is not an error.
func (r *RedisNamingRegistry) Remove(id string) error {
	definition, err := r.get(id)
	if err != nil {
		return err
	}
	if definition == nil {
		return nil
	}

	owner, err := r.db.HGet(namesKey, definition.Name).Result()
	if err != nil && err != redis.Nil {
		return errors.WithStack(err)
	}

	_, err = r.db.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.Del(definitionPrefix + id)
		if owner == id {
			pipe.HDel(namesKey, definition.Name)
		}
		return nil
	})
	return errors.WithStack(err)
}

func (r *RedisNamingRegistry) get(id string) (*Definition, error) {
	fields, err := r.db.HGetAll(definitionPrefix + id).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fromFields(fields), nil
}

func toFields(definition *Definition) map[string]interface{} {
	fields := map[string]interface{}{
		"id":   definition.Id,
		"name": definition.Name,
		"spec": definition.Spec,
	}
	for k, v := range definition.Flags {
		fields[flagFieldPrefix+k] = v
	}
	return fields
}

func fromFields(fields map[string]string) *Definition {
	definition := &Definition{
		Id:    fields["id"],
		Name:  fields["name"],
		Spec:  fields["spec"],
		Flags: map[string]string{},
	}
	for k, v := range fields {
		if strings.HasPrefix(k, flagFieldPrefix) {
			definition.Flags[strings.TrimPrefix(k, flagFieldPrefix)] = v
		}
	}
	return definition
}
