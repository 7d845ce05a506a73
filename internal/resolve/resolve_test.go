package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/domain"
)

func rel(name, target string, many bool) domain.Property {
	rt := domain.RelationshipOne
	if many {
		rt = domain.RelationshipMany
	}
	return domain.Property{Name: name, Type: domain.PropertyRelationship, RelatedModelID: &target, RelationshipType: &rt}
}

func fixture() ([]domain.Model, []domain.DataObject) {
	people := domain.Model{
		ID:                   "people",
		DisplayPropertyNames: []string{"first", "last"},
		Properties: []domain.Property{
			{Name: "first", Type: domain.PropertyString},
			{Name: "last", Type: domain.PropertyString},
			rel("manager", "people", false),
		},
	}
	tasks := domain.Model{
		ID:                   "tasks",
		DisplayPropertyNames: []string{"title", "owner"},
		Properties: []domain.Property{
			{Name: "title", Type: domain.PropertyString},
			rel("owner", "people", false),
			rel("watchers", "people", true),
		},
	}
	objects := []domain.DataObject{
		{ID: "p1", ModelID: "people", Data: map[string]any{"first": "Ada", "last": "Lovelace"}},
		{ID: "p2", ModelID: "people", Data: map[string]any{"first": "Alan", "last": "Turing", "manager": "p1"}},
		{ID: "t1", ModelID: "tasks", Data: map[string]any{"title": "Engine", "owner": "p1", "watchers": []any{"p1", "p2"}}},
	}
	return []domain.Model{people, tasks}, objects
}

func TestDisplayValue(t *testing.T) {
	models, objects := fixture()
	snap := NewSnapshot(models, objects)
	r := Resolver{}

	t1 := snap.ObjectsByModel["tasks"]["t1"]
	assert.Equal(t, "Engine Ada Lovelace", r.DisplayValue(t1, snap.Models["tasks"], snap))
	assert.Equal(t, "Ada Lovelace", r.Label("p1", snap))
	assert.Equal(t, "ghost", r.Label("ghost", snap))
}

func TestDisplayValueFallsBackToID(t *testing.T) {
	models, _ := fixture()
	snap := NewSnapshot(models, nil)
	empty := domain.DataObject{ID: "p9", ModelID: "people", Data: map[string]any{"first": "  "}}
	assert.Equal(t, "p9", Resolver{}.DisplayValue(empty, snap.Models["people"], snap))
}

func TestDisplayValueBoundsCycles(t *testing.T) {
	node := domain.Model{
		ID:                   "node",
		DisplayPropertyNames: []string{"name", "next"},
		Properties:           []domain.Property{{Name: "name", Type: domain.PropertyString}, rel("next", "node", false)},
	}
	objects := []domain.DataObject{
		{ID: "a", ModelID: "node", Data: map[string]any{"name": "A", "next": "b"}},
		{ID: "b", ModelID: "node", Data: map[string]any{"name": "B", "next": "a"}},
	}
	snap := NewSnapshot([]domain.Model{node}, objects)

	assert.Equal(t, "A B a", Resolver{MaxDepth: 1}.Label("a", snap))
	assert.Equal(t, "A B A b", Resolver{MaxDepth: 2}.Label("a", snap))
}

func TestDependencyGraph(t *testing.T) {
	models, objects := fixture()
	snap := NewSnapshot(models, objects)
	batch := []domain.DataObject{snap.ObjectsByModel["people"]["p1"]}

	edges := Resolver{}.DependencyGraph(batch, snap)
	require.Len(t, edges, 2)

	assert.Equal(t, "p1", edges[0].ObjectID)
	assert.Equal(t, "p2", edges[0].RelatedObjectID)
	assert.Equal(t, domain.EdgeIncoming, edges[0].Direction)
	assert.Equal(t, []domain.RelationLink{{SourceObjectID: "p2", PropertyName: "manager"}}, edges[0].Links)

	assert.Equal(t, "t1", edges[1].RelatedObjectID)
	assert.Equal(t, "Engine Ada Lovelace", edges[1].RelatedDisplay)
	assert.Equal(t, []domain.RelationLink{
		{SourceObjectID: "t1", PropertyName: "owner"},
		{SourceObjectID: "t1", PropertyName: "watchers"},
	}, edges[1].Links, "links between the same pair merge into one edge")
}

func TestDependencyGraphKeepsDeleted(t *testing.T) {
	models, objects := fixture()
	deletedAt := "2024-01-02T00:00:00Z"
	objects[2].IsDeleted = true
	objects[2].DeletedAt = &deletedAt
	snap := NewSnapshot(models, objects)

	edges := Resolver{}.DependencyGraph([]domain.DataObject{snap.ObjectsByModel["tasks"]["t1"]}, snap)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, domain.EdgeOutgoing, e.Direction)
		assert.Equal(t, "people", e.RelatedModelID)
	}

	edges = Resolver{}.DependencyGraph([]domain.DataObject{snap.ObjectsByModel["people"]["p2"]}, snap)
	var found bool
	for _, e := range edges {
		if e.RelatedObjectID == "t1" {
			found = true
			assert.True(t, e.RelatedDeleted)
		}
	}
	assert.True(t, found, "deleted referencing objects still produce edges")
}

func TestDependencyGraphDanglingReference(t *testing.T) {
	models, _ := fixture()
	orphan := domain.DataObject{ID: "t9", ModelID: "tasks", Data: map[string]any{"owner": "missing"}}
	snap := NewSnapshot(models, []domain.DataObject{orphan})
	edges := Resolver{}.DependencyGraph([]domain.DataObject{orphan}, snap)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].RelatedMissing)
	assert.Equal(t, "missing", edges[0].RelatedDisplay)
}

func TestGraphAndDisplayModels(t *testing.T) {
	models, _ := fixture()
	snap := NewSnapshot(models, nil)
	assert.Equal(t, []string{"people", "tasks"}, GraphModels(snap.Models, []string{"people"}))
	assert.Equal(t, []string{"people", "tasks"}, GraphModels(snap.Models, []string{"tasks"}))
	assert.Equal(t, []string{"people", "tasks"}, Resolver{}.DisplayModels(snap.Models, []string{"tasks"}))
	assert.Equal(t, []string{"people"}, Resolver{}.DisplayModels(snap.Models, []string{"people"}))
}
