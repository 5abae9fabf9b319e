package connection

import (
	"github.com/graphql-go/graphql"
)

// Source returns the full ordered row set behind a connection field. The
// returned function may be deferred so it can join a batch window.
type Source func(p graphql.ResolveParams) (func() ([]Row, error), error)

// FieldSpec is what a Factory needs to build one connection field.
type FieldSpec struct {
	Node        *graphql.Object
	Keyer       Keyer
	Description string
	Source      Source
}

// Factory builds a connection field. It can be overridden per field.
type Factory func(types *Types, spec FieldSpec) *graphql.Field

// DefaultFactory builds a NonNull connection field with first/after/last/before.
func DefaultFactory(types *Types, spec FieldSpec) *graphql.Field {
	return &graphql.Field{
		Type:        graphql.NewNonNull(types.Connection(spec.Node)),
		Description: spec.Description,
		Args:        Arguments(),
		Resolve:     Resolver(spec),
	}
}

// Resolver validates the arguments up front and paginates once the rows arrive.
func Resolver(spec FieldSpec) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		args, err := ParseArgs(p.Args)
		if err != nil {
			return nil, err
		}
		rows, err := spec.Source(p)
		if err != nil {
			return nil, err
		}
		return func() (interface{}, error) {
			all, err := rows()
			if err != nil {
				return nil, err
			}
			page, err := Paginate(all, args, spec.Keyer)
			if err != nil {
				return nil, err
			}
			return page.Map(), nil
		}, nil
	}
}
