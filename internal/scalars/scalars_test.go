package scalars

import (
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarsAreSingletons(t *testing.T) {
	assert.Same(t, JSONString(), JSONString())
	assert.Same(t, DateTime(), DateTime())
	assert.Same(t, NonNegativeInt(), NonNegativeInt())
}

func TestNonNegativeIntScalar(t *testing.T) {
	scalar := NonNegativeInt()

	assert.Equal(t, 5, scalar.ParseValue(5))
	assert.Equal(t, 0, scalar.ParseValue(float64(0)))
	assert.Nil(t, scalar.ParseValue(-1))
	assert.Nil(t, scalar.ParseValue(1.5))

	assert.Equal(t, 3, scalar.ParseLiteral(&ast.IntValue{Value: "3"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "-3"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.StringValue{Value: "3"}))
}

func TestJSONStringScalar(t *testing.T) {
	scalar := JSONString()

	assert.Equal(t, `{"a":1}`, scalar.Serialize([]byte(`{"a":1}`)))
	assert.Equal(t, `[1,2]`, scalar.Serialize(`[1,2]`))
	assert.Equal(t, `{"k":"v"}`, scalar.Serialize(map[string]string{"k": "v"}))
	assert.Nil(t, scalar.Serialize(nil))

	assert.Equal(t, `{"x":true}`, scalar.ParseValue(`{"x":true}`))
	assert.Nil(t, scalar.ParseValue(`{not json`))
	assert.Equal(t, `"s"`, scalar.ParseLiteral(&ast.StringValue{Value: `"s"`}))
}

func TestDateTimeScalar(t *testing.T) {
	scalar := DateTime()

	input := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-15T10:30:00Z", scalar.Serialize(input))
	assert.Equal(t, "2024-01-15T10:30:00Z", scalar.Serialize("2024-01-15 10:30:00"))
	assert.Equal(t, "2024-01-15T10:30:00Z", scalar.Serialize([]byte("2024-01-15T10:30:00Z")))
	assert.Nil(t, scalar.Serialize("yesterday"))

	parsed := scalar.ParseValue("2024-01-02T11:12:13Z")
	require.IsType(t, time.Time{}, parsed)
	assert.Equal(t, 11, parsed.(time.Time).Hour())

	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "1"}))
}

func TestNonNegativeIntRejectsNonNumbers(t *testing.T) {
	scalar := NonNegativeInt()
	assert.Nil(t, scalar.Serialize(nil))
	assert.Nil(t, scalar.Serialize(true))
	assert.Equal(t, 7, scalar.Serialize(int64(7)))
	assert.Equal(t, 12, scalar.Serialize("12"))
}
