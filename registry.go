package ormlite

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// registry maps a Go type to the TableDescriptor that maps it. Populated
// once per type via RegisterType, consulted by Query, DeferredQuery, and
// the CRUD pipeline.
var registry = struct {
	mu sync.RWMutex
	m  map[reflect.Type]*TableDescriptor
}{m: make(map[reflect.Type]*TableDescriptor)}

// RegisterType associates T with desc, validating desc first. It must be
// called once per type before any Insert, Upsert, Update, Delete, Query,
// DeferredQuery, or FindByPK call involving T.
//
// RegisterType also sets desc's internal type identity, used as half of
// the prepared-statement cache key in the insert/upsert pipeline.
func RegisterType[T any](desc *TableDescriptor) error {
	if err := desc.validate(); err != nil {
		return err
	}

	t := reflect.TypeOf((*T)(nil)).Elem()
	desc.typeID = t

	registry.mu.Lock()
	registry.m[t] = desc
	registry.mu.Unlock()

	return nil
}

// descriptorFor returns the TableDescriptor registered for T.
func descriptorFor[T any]() (*TableDescriptor, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	registry.mu.RLock()
	desc, ok := registry.m[t]
	registry.mu.RUnlock()

	if !ok {
		return nil, NewError(ErrInvalidArgument, fmt.Errorf("type %s has no registered TableDescriptor; call RegisterType first", t))
	}

	return desc, nil
}

// RegisteredTables returns the table names of every type registered so
// far via RegisterType, sorted ascending. Intended for diagnostics and
// tests; the ORM core never iterates the registry itself.
func RegisteredTables() []string {
	registry.mu.RLock()
	descs := maps.Values(registry.m)
	registry.mu.RUnlock()

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.TableName
	}

	slices.Sort(names)

	return names
}
