package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/db"
	"schemaline/internal/domain"
	"schemaline/internal/migrate"
	"schemaline/internal/repo"
	"schemaline/internal/schema"
)

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	unit := "pcs"
	ts := "2024-01-01T00:00:00Z"
	err = r.InsertModel(context.Background(), nil, domain.Model{
		ID:                   "parts",
		Name:                 "Part",
		Namespace:            domain.DefaultNamespace,
		DisplayPropertyNames: []string{"name"},
		CreatedAt:            ts,
		UpdatedAt:            ts,
		Properties: []domain.Property{
			{ID: "p-code", ModelID: "parts", Name: "code", Type: domain.PropertyString, OrderIndex: 2, IsUnique: true},
			{ID: "p-name", ModelID: "parts", Name: "name", Type: domain.PropertyString, OrderIndex: 0},
			{ID: "p-qty", ModelID: "parts", Name: "qty", Type: domain.PropertyNumber, OrderIndex: 1, Unit: &unit},
		},
	})
	if err != nil {
		t.Fatalf("insert model: %v", err)
	}
	return schema.NewRegistry(r)
}

func TestGetPropertiesOrdered(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	props, err := reg.GetProperties(ctx, "parts")
	require.NoError(t, err)
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"name", "qty", "code"}, names)

	_, err = reg.GetProperties(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	m, err := reg.GetModel(ctx, "parts")
	require.NoError(t, err)
	m.Properties[0].IsUnique = true
	*m.Properties[1].Unit = "kg"
	m.DisplayPropertyNames[0] = "code"

	again, err := reg.GetModel(ctx, "parts")
	require.NoError(t, err)
	assert.False(t, again.Properties[0].IsUnique)
	assert.Equal(t, "pcs", *again.Properties[1].Unit)
	assert.Equal(t, []string{"name"}, again.DisplayPropertyNames)

	all, err := reg.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	all[0].Properties[2].Name = "sku"

	byID, err := reg.ModelMap(ctx)
	require.NoError(t, err)
	byID["parts"].Properties[0].Required = true

	props, err := reg.GetProperties(ctx, "parts")
	require.NoError(t, err)
	assert.Equal(t, "code", props[2].Name)
	assert.False(t, props[0].Required)
}
