package binding

import (
	"sync"
	"testing"

	"relgraph/internal/sqltype"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newObject(name string) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:   name,
		Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.ID}},
	})
}

func TestRegistry_DeclareBindLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Declare(Binding{Entity: "users", TypeName: "User", Connection: true}))
	require.NoError(t, r.Declare(Binding{Entity: "posts", TypeName: "Post"}))

	_, ok := r.ObjectFor("users")
	assert.False(t, ok, "declared but unbuilt entity has no object")

	user := newObject("User")
	require.NoError(t, r.Bind("users", user))

	obj, ok := r.ObjectFor("users")
	require.True(t, ok)
	assert.Same(t, user, obj)

	entity, ok := r.EntityFor("Post")
	require.True(t, ok)
	assert.Equal(t, "posts", entity)

	b, ok := r.Lookup("users")
	require.True(t, ok)
	assert.True(t, b.Connection)

	assert.Equal(t, []string{"users", "posts"}, []string{r.Bindings()[0].Entity, r.Bindings()[1].Entity})
}

func TestRegistry_RejectsConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Declare(Binding{Entity: "users", TypeName: "User"}))

	assert.Error(t, r.Declare(Binding{Entity: "users", TypeName: "Other"}))
	assert.Error(t, r.Declare(Binding{Entity: "people", TypeName: "User"}))
	assert.Error(t, r.Declare(Binding{Entity: "", TypeName: "X"}))
	assert.Error(t, r.Bind("missing", newObject("Missing")))
	assert.Error(t, r.Bind("users", newObject("Person")))
	assert.Error(t, r.Bind("users", nil))
}

func TestRegistry_FreezeIsReadOnly(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Declare(Binding{Entity: "users", TypeName: "User"}))
	require.NoError(t, r.Bind("users", newObject("User")))
	r.Freeze()

	assert.True(t, r.Frozen())
	assert.ErrorIs(t, r.Declare(Binding{Entity: "posts", TypeName: "Post"}), ErrFrozen)
	assert.ErrorIs(t, r.Bind("users", newObject("User")), ErrFrozen)
	assert.ErrorIs(t, r.RegisterComposite("money", func(sqltype.Descriptor) (graphql.Output, error) {
		return graphql.String, nil
	}), ErrFrozen)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.ObjectFor("users")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestRegistry_LookupComposite(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterComposite("money", func(sqltype.Descriptor) (graphql.Output, error) {
		return graphql.Float, nil
	}))

	converter, result := r.LookupComposite("money")
	require.Equal(t, LookupFound, result)
	out, err := converter(sqltype.Composite("money"))
	require.NoError(t, err)
	assert.Equal(t, graphql.Float, out)

	converter, result = r.LookupComposite("point")
	assert.Nil(t, converter)
	assert.Equal(t, LookupNotRegistered, result)

	_, result = r.LookupComposite("")
	assert.Equal(t, LookupEmptyClass, result)
	assert.Equal(t, "empty composite class", result.String())
}

func TestRegistry_IndependentInstances(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	require.NoError(t, a.Declare(Binding{Entity: "users", TypeName: "User"}))
	_, ok := b.Lookup("users")
	assert.False(t, ok)
}
