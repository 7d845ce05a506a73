package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Display.MaxDepth)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	require.Len(t, cfg.Schema.Workflows, 1)
	assert.Contains(t, cfg.RBAC.Roles, "anonymous")
	assert.Empty(t, cfg.RBAC.Grants)
}

func TestGenerateDefaultGrantsAdmin(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("alice")))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, cfg.RBAC.Grants["alice"])
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown successor": `
schema:
  workflows:
    - id: wf
      states:
        - id: a
          successors: [b]
`,
		"unknown workflow": `
schema:
  models:
    - id: m
      name: M
      workflow: nope
`,
		"bad property type": `
schema:
  models:
    - id: m
      name: M
      properties:
        - name: x
          type: blob
`,
		"grant unknown role": `
rbac:
  grants:
    bob: [ghost]
`,
		"bad webhook url": `
webhooks:
  - url: ftp://example.com
`,
		"bad webhook event": `
webhooks:
  - url: https://example.com/hook
    events: [PATCH]
`,
		"depth out of range": `
display:
  max_depth: 40
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestModelSpecToModel(t *testing.T) {
	doc := []byte(`
models:
  - id: tickets
    name: Ticket
    display: [title]
    workflow: review
    properties:
      - name: title
        type: string
        required: true
        unique: true
      - name: weight
        type: number
        unit: kg
        precision: 1
        min: 0
        default: 1
      - name: parent
        type: relationship
        related_model: tickets
`)
	specs, err := ParseModelSpecs(doc)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	m := specs[0].ToModel()

	assert.Equal(t, "review", *m.WorkflowID)
	require.Len(t, m.Properties, 3)
	assert.True(t, m.Properties[0].IsUnique)
	assert.Equal(t, 1, m.Properties[1].OrderIndex)
	assert.Equal(t, "kg", *m.Properties[1].Unit)
	assert.Equal(t, 1, m.Properties[1].DefaultValue)
	assert.Equal(t, domain.RelationshipOne, *m.Properties[2].RelationshipType)
}

func TestLoadOptionalWithoutFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8420", cfg.Server.Addr)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("display:\n  max_depth: 2\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Display.MaxDepth)
}
