// Package binding links native entities to the GraphQL object types built for them.
//
// A Registry is populated while a schema is constructed and frozen afterwards.
// Once frozen it is read-only and may be shared by concurrent query executions
// without coordination. Registries are ordinary values, so a process can hold
// several independent schemas.
package binding

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"relgraph/internal/sqltype"

	"github.com/graphql-go/graphql"
)

// ErrFrozen is returned by mutating calls after Freeze.
var ErrFrozen = errors.New("binding registry is frozen")

// Binding declares how one entity is exposed.
type Binding struct {
	Entity   string
	TypeName string
	// Connection marks the type as pagination-capable: to-many relationships
	// targeting it are emitted as connection fields instead of plain lists.
	Connection  bool
	Description string
}

// CompositeConverter builds the GraphQL type for a composite column.
type CompositeConverter func(desc sqltype.Descriptor) (graphql.Output, error)

// LookupResult explains the outcome of a composite converter lookup.
type LookupResult int

const (
	LookupFound LookupResult = iota
	LookupNotRegistered
	LookupEmptyClass
)

func (r LookupResult) String() string {
	switch r {
	case LookupFound:
		return "found"
	case LookupNotRegistered:
		return "not registered"
	case LookupEmptyClass:
		return "empty composite class"
	default:
		return "unknown"
	}
}

type entry struct {
	binding Binding
	object  *graphql.Object
}

// Registry is the bidirectional entity <-> object type lookup.
type Registry struct {
	mu         sync.RWMutex
	frozen     atomic.Bool
	order      []string
	byEntity   map[string]*entry
	byType     map[string]string
	composites map[string]CompositeConverter
}

// NewRegistry returns an empty, open registry.
func NewRegistry() *Registry {
	return &Registry{
		byEntity:   make(map[string]*entry),
		byType:     make(map[string]string),
		composites: make(map[string]CompositeConverter),
	}
}

// Declare registers an entity for exposure before its object type exists.
func (r *Registry) Declare(b Binding) error {
	if b.Entity == "" || b.TypeName == "" {
		return fmt.Errorf("binding requires entity and type name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	if _, exists := r.byEntity[b.Entity]; exists {
		return fmt.Errorf("entity %q already bound", b.Entity)
	}
	if other, exists := r.byType[b.TypeName]; exists {
		return fmt.Errorf("type name %q already bound to entity %q", b.TypeName, other)
	}
	r.byEntity[b.Entity] = &entry{binding: b}
	r.byType[b.TypeName] = b.Entity
	r.order = append(r.order, b.Entity)
	return nil
}

// Bind attaches the constructed object type to a declared entity.
func (r *Registry) Bind(entity string, object *graphql.Object) error {
	if object == nil {
		return fmt.Errorf("cannot bind nil object to %q", entity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	e, ok := r.byEntity[entity]
	if !ok {
		return fmt.Errorf("entity %q was not declared", entity)
	}
	if object.Name() != e.binding.TypeName {
		return fmt.Errorf("object %q does not match declared type %q for %q", object.Name(), e.binding.TypeName, entity)
	}
	e.object = object
	return nil
}

// RegisterComposite installs the converter for a composite class.
func (r *Registry) RegisterComposite(class string, converter CompositeConverter) error {
	if class == "" {
		return fmt.Errorf("composite class must not be empty")
	}
	if converter == nil {
		return fmt.Errorf("composite converter for %q is nil", class)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	r.composites[class] = converter
	return nil
}

// LookupComposite returns the converter for class, or nil with the reason it is missing.
func (r *Registry) LookupComposite(class string) (CompositeConverter, LookupResult) {
	if class == "" {
		return nil, LookupEmptyClass
	}
	unlock := r.rlock()
	defer unlock()
	converter, ok := r.composites[class]
	if !ok {
		return nil, LookupNotRegistered
	}
	return converter, LookupFound
}

// Lookup returns the declaration for an entity.
func (r *Registry) Lookup(entity string) (Binding, bool) {
	unlock := r.rlock()
	defer unlock()
	e, ok := r.byEntity[entity]
	if !ok {
		return Binding{}, false
	}
	return e.binding, true
}

// ObjectFor returns the object type bound to an entity, if it has been built.
func (r *Registry) ObjectFor(entity string) (*graphql.Object, bool) {
	unlock := r.rlock()
	defer unlock()
	e, ok := r.byEntity[entity]
	if !ok || e.object == nil {
		return nil, false
	}
	return e.object, true
}

// EntityFor maps a GraphQL type name back to its entity.
func (r *Registry) EntityFor(typeName string) (string, bool) {
	unlock := r.rlock()
	defer unlock()
	entity, ok := r.byType[typeName]
	return entity, ok
}

// Bindings returns declarations in the order they were made.
func (r *Registry) Bindings() []Binding {
	unlock := r.rlock()
	defer unlock()
	out := make([]Binding, 0, len(r.order))
	for _, entity := range r.order {
		out = append(out, r.byEntity[entity].binding)
	}
	return out
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// rlock takes the read lock only while the registry is still mutable.
func (r *Registry) rlock() func() {
	if r.frozen.Load() {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}
