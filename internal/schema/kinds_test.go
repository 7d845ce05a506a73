package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"schemaline/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestValidate(t *testing.T) {
	one := domain.RelationshipOne
	many := domain.RelationshipMany
	cases := []struct {
		name string
		prop domain.Property
		val  any
		ok   bool
	}{
		{"string", domain.Property{Name: "n", Type: domain.PropertyString}, "hello", true},
		{"string rejects number", domain.Property{Name: "n", Type: domain.PropertyString}, float64(3), false},
		{"number in range", domain.Property{Name: "n", Type: domain.PropertyNumber, MinValue: ptr(0.0), MaxValue: ptr(10.0)}, float64(7), true},
		{"number numeric string", domain.Property{Name: "n", Type: domain.PropertyNumber}, "2.5", true},
		{"number below min", domain.Property{Name: "n", Type: domain.PropertyNumber, MinValue: ptr(0.0)}, float64(-1), false},
		{"number above max", domain.Property{Name: "n", Type: domain.PropertyNumber, MaxValue: ptr(10.0)}, float64(11), false},
		{"boolean", domain.Property{Name: "b", Type: domain.PropertyBoolean}, true, true},
		{"boolean string", domain.Property{Name: "b", Type: domain.PropertyBoolean}, "false", true},
		{"boolean garbage", domain.Property{Name: "b", Type: domain.PropertyBoolean}, "maybe", false},
		{"date only", domain.Property{Name: "d", Type: domain.PropertyDate}, "2024-02-29", true},
		{"date rfc3339", domain.Property{Name: "d", Type: domain.PropertyDate}, "2024-02-29T10:00:00Z", true},
		{"date garbage", domain.Property{Name: "d", Type: domain.PropertyDate}, "yesterday", false},
		{"rating default max", domain.Property{Name: "r", Type: domain.PropertyRating}, float64(5), true},
		{"rating too high", domain.Property{Name: "r", Type: domain.PropertyRating}, float64(6), false},
		{"rating fractional", domain.Property{Name: "r", Type: domain.PropertyRating}, 2.5, false},
		{"url", domain.Property{Name: "u", Type: domain.PropertyURL}, "https://example.com/x", true},
		{"url relative", domain.Property{Name: "u", Type: domain.PropertyURL}, "/x", false},
		{"image ref", domain.Property{Name: "i", Type: domain.PropertyImage}, "uploads/a.png", true},
		{"markdown", domain.Property{Name: "m", Type: domain.PropertyMarkdown}, "# hi", true},
		{"relationship one", domain.Property{Name: "rel", Type: domain.PropertyRelationship, RelationshipType: &one}, "obj-1", true},
		{"relationship one rejects list", domain.Property{Name: "rel", Type: domain.PropertyRelationship, RelationshipType: &one}, []any{"a", "b"}, false},
		{"relationship many", domain.Property{Name: "rel", Type: domain.PropertyRelationship, RelationshipType: &many}, []any{"a", "b"}, true},
		{"relationship many non-string", domain.Property{Name: "rel", Type: domain.PropertyRelationship, RelationshipType: &many}, []any{"a", 1.0}, false},
		{"unknown type", domain.Property{Name: "x", Type: "blob"}, "x", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.prop, tc.val)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, domain.KindInvalidValue, domain.KindOf(err))
		})
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "12.50 kg", Display(domain.Property{Type: domain.PropertyNumber, Precision: ptr(2), Unit: ptr("kg")}, 12.5))
	assert.Equal(t, "3", Display(domain.Property{Type: domain.PropertyNumber}, float64(3)))
	assert.Equal(t, "Yes", Display(domain.Property{Type: domain.PropertyBoolean}, true))
	assert.Equal(t, "4/5", Display(domain.Property{Type: domain.PropertyRating}, float64(4)))
	assert.Equal(t, "2024-01-02", Display(domain.Property{Type: domain.PropertyDate}, "2024-01-02"))
	assert.Equal(t, "a, b", Display(domain.Property{Type: domain.PropertyRelationship}, []any{"a", "b"}))
	assert.Equal(t, "", Display(domain.Property{Type: domain.PropertyString}, nil))
}

func TestUniqueKey(t *testing.T) {
	p := domain.Property{Name: "code", Type: domain.PropertyString, IsUnique: true}
	assert.Equal(t, "abc", UniqueKey(p, "  abc "))
	assert.Equal(t, "", UniqueKey(p, "   "))
	assert.Equal(t, "", UniqueKey(domain.Property{Type: domain.PropertyString}, "abc"))
}
