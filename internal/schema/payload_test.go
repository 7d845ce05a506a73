package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/domain"
)

func testModel() domain.Model {
	return domain.Model{
		ID:   "m",
		Name: "Item",
		Properties: []domain.Property{
			{Name: "title", Type: domain.PropertyString, Required: true},
			{Name: "qty", Type: domain.PropertyNumber, DefaultValue: float64(1)},
			{Name: "created", Type: domain.PropertyDate, AutoSetOnCreate: true},
			{Name: "touched", Type: domain.PropertyDate, AutoSetOnUpdate: true},
		},
	}
}

func TestPrepareDataCreate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out, err := PrepareData(testModel(), map[string]any{"title": "Bolt", "extra": "dropped"}, nil, ModeCreate, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":   "Bolt",
		"qty":     float64(1),
		"created": "2024-01-01T12:00:00Z",
		"touched": "2024-01-01T12:00:00Z",
	}, out)
}

func TestPrepareDataMissingRequired(t *testing.T) {
	_, err := PrepareData(testModel(), map[string]any{"title": "  "}, nil, ModeCreate, time.Now())
	require.Error(t, err)
	assert.Equal(t, domain.KindMissingRequired, domain.KindOf(err))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "title", de.Field)
}

func TestPrepareDataUpdateKeepsCreateStamp(t *testing.T) {
	later := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	prev := map[string]any{"title": "Bolt", "created": "2024-01-01T12:00:00Z"}
	out, err := PrepareData(testModel(), map[string]any{"title": "Nut", "created": "1999-01-01"}, prev, ModeUpdate, later)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T12:00:00Z", out["created"])
	assert.Equal(t, "2024-03-01T00:00:00Z", out["touched"])
	_, hasQty := out["qty"]
	assert.False(t, hasQty, "defaults apply on create only")
}

func TestPrepareDataNormalizesNumbers(t *testing.T) {
	out, err := PrepareData(testModel(), map[string]any{"title": "Bolt", "qty": 3}, nil, ModeCreate, time.Now())
	require.NoError(t, err)
	assert.Equal(t, float64(3), out["qty"])
}
