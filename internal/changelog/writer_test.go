package changelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/domain"
)

func TestDiff(t *testing.T) {
	before := map[string]any{"name": "Widget", "qty": float64(3), "tags": []any{"a"}, "gone": true}
	after := map[string]any{"name": "Widget", "qty": float64(4), "tags": []any{"a"}, "added": "x"}

	changes := Diff(before, after)
	require.Len(t, changes, 3)
	assert.Equal(t, domain.FieldChange{Field: "added", OldValue: nil, NewValue: "x"}, changes[0])
	assert.Equal(t, domain.FieldChange{Field: "gone", OldValue: true, NewValue: nil}, changes[1])
	assert.Equal(t, domain.FieldChange{Field: "qty", OldValue: float64(3), NewValue: float64(4)}, changes[2])
}

func TestDiffNoChanges(t *testing.T) {
	data := map[string]any{"name": "same"}
	changes := Diff(data, map[string]any{"name": "same"})
	assert.NotNil(t, changes)
	assert.Empty(t, changes)
}

func TestStateChange(t *testing.T) {
	a, b := "new", "approved"
	assert.Nil(t, StateChange(nil, nil))
	assert.Nil(t, StateChange(&a, &a))
	fc := StateChange(&a, &b)
	require.NotNil(t, fc)
	assert.Equal(t, domain.StateField, fc.Field)
	assert.Equal(t, "new", fc.OldValue)
	assert.Equal(t, "approved", fc.NewValue)
	fc = StateChange(nil, &a)
	require.NotNil(t, fc)
	assert.Nil(t, fc.OldValue)
}
