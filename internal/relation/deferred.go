package relation

import (
	"sync"
	"sync/atomic"

	"github.com/graphql-go/graphql"

	"relgraph/internal/binding"
)

// Deferred is a memoised lookup of an entity's object type.
//
// The first successful Resolve caches the object and later calls return it
// without touching the registry. A miss is retried while the registry is still
// open, because the target may simply not be built yet, and becomes final once
// the registry is frozen.
type Deferred struct {
	bindings *binding.Registry
	entity   string

	done   atomic.Bool
	mu     sync.Mutex
	object *graphql.Object
}

// NewDeferred creates an unresolved cell for entity.
func NewDeferred(bindings *binding.Registry, entity string) *Deferred {
	return &Deferred{bindings: bindings, entity: entity}
}

// Entity is the entity the cell resolves.
func (d *Deferred) Entity() string {
	return d.entity
}

// Resolve returns the bound object type, or false when the entity has none.
func (d *Deferred) Resolve() (*graphql.Object, bool) {
	if d.done.Load() {
		return d.object, d.object != nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done.Load() {
		return d.object, d.object != nil
	}

	obj, ok := d.bindings.ObjectFor(d.entity)
	if ok {
		d.object = obj
		d.done.Store(true)
		return obj, true
	}
	if d.bindings.Frozen() {
		d.done.Store(true)
	}
	return nil, false
}
