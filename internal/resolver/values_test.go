package resolver

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"relgraph/internal/introspection"
	"relgraph/internal/sqltype"
)

func TestNormalizeValue(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	day := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	tests := []struct {
		name  string
		kind  sqltype.Kind
		value interface{}
		want  interface{}
	}{
		{"nil", sqltype.KindText, nil, nil},
		{"text bytes", sqltype.KindText, []byte("hello"), "hello"},
		{"uuid binary", sqltype.KindUUID, id[:], id.String()},
		{"uuid text", sqltype.KindUUID, []byte("6BA7B810-9DAD-11D1-80B4-00C04FD430C8"), id.String()},
		{"set", sqltype.KindSet, []byte("a,b"), []string{"a", "b"}},
		{"empty set", sqltype.KindSet, "", []string{}},
		{"bit boolean", sqltype.KindBoolean, []byte{1}, true},
		{"text boolean", sqltype.KindBoolean, []byte("0"), false},
		{"int boolean", sqltype.KindBoolean, int64(1), int64(1)},
		{"date", sqltype.KindDate, day, "2024-03-09"},
		{"time", sqltype.KindTime, day, "14:05:06"},
		{"binary", sqltype.KindBinary, []byte{0xde, 0xad}, "3q0="},
		{"array", sqltype.KindArray, []byte(`[1,2]`), []interface{}{float64(1), float64(2)}},
		{"bad array", sqltype.KindArray, "{1,2}", nil},
		{"timestamp passthrough", sqltype.KindTimestamp, day, day},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := introspection.Column{Name: "c", Type: sqltype.Descriptor{Kind: tt.kind}}
			assert.Equal(t, tt.want, normalizeValue(col, tt.value))
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "42", normalizeKey([]byte("42")))
	assert.Equal(t, int64(42), normalizeKey(int64(42)))
	assert.Nil(t, normalizeKey(nil))
}
