// Package relation decides the GraphQL field shape for a relationship.
//
// A relationship becomes a single-object field, a plain list or a cursor
// connection, and is resolved with one of three strategies. The target type is
// looked up through a Deferred cell so entities that reference each other can
// be built in any order.
package relation

import (
	"fmt"
	"sync"

	"relgraph/internal/binding"
	"relgraph/internal/introspection"
)

// ShapeKind is the GraphQL shape of a relationship field.
type ShapeKind int

const (
	ShapeSingle ShapeKind = iota + 1
	ShapeList
	ShapeConnection
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeSingle:
		return "single"
	case ShapeList:
		return "list"
	case ShapeConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Strategy is how the field's rows are fetched.
type Strategy int

const (
	// StrategyBatched coalesces sibling parents into one query per pass.
	StrategyBatched Strategy = iota + 1
	// StrategyDirect queries once per parent.
	StrategyDirect
	// StrategyCustom delegates to a user-supplied resolver.
	StrategyCustom
)

func (s Strategy) String() string {
	switch s {
	case StrategyBatched:
		return "batched"
	case StrategyDirect:
		return "direct"
	case StrategyCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Hints carry per-field configuration that affects the strategy.
type Hints struct {
	// DisableBatching forces one query per parent.
	DisableBatching bool
	// CustomResolver is set when the field has a resolver override.
	CustomResolver bool
}

// Shape is the classification result for one relationship.
type Shape struct {
	Kind         ShapeKind
	Strategy     Strategy
	Relationship introspection.Relationship
	Target       *Deferred
}

// Single reports whether the field yields at most one row per parent.
func (s Shape) Single() bool {
	return s.Kind == ShapeSingle
}

// MissingTypeBindingError reports a relationship whose target never received an object type.
type MissingTypeBindingError struct {
	Source string
	Field  string
	Target string
}

func (e *MissingTypeBindingError) Error() string {
	return fmt.Sprintf("relationship %s.%s targets %q which has no bound GraphQL type", e.Source, e.Field, e.Target)
}

// Classifier maps relationships to shapes. It shares one Deferred per target entity.
type Classifier struct {
	bindings *binding.Registry

	mu       sync.Mutex
	deferred map[string]*Deferred
}

// NewClassifier creates a classifier backed by bindings.
func NewClassifier(bindings *binding.Registry) *Classifier {
	return &Classifier{
		bindings: bindings,
		deferred: make(map[string]*Deferred),
	}
}

// Classify picks the field shape and resolver strategy for rel.
func (c *Classifier) Classify(rel introspection.Relationship, hints Hints) Shape {
	shape := Shape{
		Relationship: rel,
		Target:       c.target(rel.Target),
		Strategy:     StrategyBatched,
	}

	switch {
	case rel.IsSingle():
		shape.Kind = ShapeSingle
	case c.paginated(rel.Target):
		shape.Kind = ShapeConnection
	default:
		shape.Kind = ShapeList
	}

	switch {
	case hints.CustomResolver:
		shape.Strategy = StrategyCustom
	case hints.DisableBatching:
		shape.Strategy = StrategyDirect
	}
	return shape
}

// paginated reports whether the target declared connection support.
func (c *Classifier) paginated(entity string) bool {
	b, ok := c.bindings.Lookup(entity)
	return ok && b.Connection
}

func (c *Classifier) target(entity string) *Deferred {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.deferred[entity]; ok {
		return d
	}
	d := NewDeferred(c.bindings, entity)
	c.deferred[entity] = d
	return d
}
