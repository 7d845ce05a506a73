package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"schemaline/internal/domain"
)

const FileName = "schemaline.yml"

// Config models schemaline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Display struct {
		MaxDepth int `yaml:"max_depth"`
	} `yaml:"display"`
	Webhooks []Webhook `yaml:"webhooks"`
	RBAC     struct {
		Roles  map[string]RBACRole `yaml:"roles"`
		Grants map[string][]string `yaml:"grants"`
	} `yaml:"rbac"`
	Schema struct {
		Workflows []WorkflowSpec `yaml:"workflows"`
		Models    []ModelSpec    `yaml:"models"`
	} `yaml:"schema"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type Webhook struct {
	ID          string   `yaml:"id"`
	URL         string   `yaml:"url"`
	Secret      string   `yaml:"secret"`
	Events      []string `yaml:"events"`
	Models      []string `yaml:"models"`
	Enabled     *bool    `yaml:"enabled"`
	TimeoutMS   int      `yaml:"timeout_ms"`
	MaxAttempts int      `yaml:"max_attempts"`
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

type WorkflowSpec struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	States []StateSpec `yaml:"states"`
}

// StateSpec order in the list becomes the state's order_index.
type StateSpec struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Initial    bool     `yaml:"initial"`
	Successors []string `yaml:"successors"`
}

type ModelSpec struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Namespace   string         `yaml:"namespace"`
	Description string         `yaml:"description"`
	Display     []string       `yaml:"display"`
	Workflow    string         `yaml:"workflow"`
	Properties  []PropertySpec `yaml:"properties"`
}

type PropertySpec struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	Required          bool     `yaml:"required"`
	Unique            bool     `yaml:"unique"`
	RelatedModel      string   `yaml:"related_model"`
	Relationship      string   `yaml:"relationship"`
	Unit              string   `yaml:"unit"`
	Precision         *int     `yaml:"precision"`
	Min               *float64 `yaml:"min"`
	Max               *float64 `yaml:"max"`
	AutoSetOnCreate   bool     `yaml:"auto_set_on_create"`
	AutoSetOnUpdate   bool     `yaml:"auto_set_on_update"`
	Default           any      `yaml:"default"`
	ValidationRuleset string   `yaml:"validation_ruleset"`
}

// ToModel converts a spec to a model definition. Property ids are left empty
// unless given; list position becomes order_index.
func (s ModelSpec) ToModel() domain.Model {
	m := domain.Model{
		ID:                   s.ID,
		Name:                 s.Name,
		Namespace:            s.Namespace,
		Description:          s.Description,
		DisplayPropertyNames: append([]string{}, s.Display...),
	}
	if s.Workflow != "" {
		wf := s.Workflow
		m.WorkflowID = &wf
	}
	for i, ps := range s.Properties {
		p := domain.Property{
			ID:              ps.ID,
			ModelID:         s.ID,
			Name:            ps.Name,
			Type:            domain.PropertyType(ps.Type),
			Required:        ps.Required,
			IsUnique:        ps.Unique,
			OrderIndex:      i,
			Precision:       ps.Precision,
			MinValue:        ps.Min,
			MaxValue:        ps.Max,
			AutoSetOnCreate: ps.AutoSetOnCreate,
			AutoSetOnUpdate: ps.AutoSetOnUpdate,
			DefaultValue:    ps.Default,
		}
		if ps.RelatedModel != "" {
			rm := ps.RelatedModel
			p.RelatedModelID = &rm
		}
		if ps.Relationship != "" {
			rt := domain.RelationshipType(ps.Relationship)
			p.RelationshipType = &rt
		} else if p.Type == domain.PropertyRelationship {
			rt := domain.RelationshipOne
			p.RelationshipType = &rt
		}
		if ps.Unit != "" {
			u := ps.Unit
			p.Unit = &u
		}
		if ps.ValidationRuleset != "" {
			v := ps.ValidationRuleset
			p.ValidationRulesetID = &v
		}
		m.Properties = append(m.Properties, p)
	}
	return m
}

// ToWorkflow converts a spec to a workflow definition.
func (s WorkflowSpec) ToWorkflow(createdAt string) domain.Workflow {
	w := domain.Workflow{ID: s.ID, Name: s.Name, CreatedAt: createdAt}
	if w.Name == "" {
		w.Name = s.ID
	}
	for i, st := range s.States {
		name := st.Name
		if name == "" {
			name = st.ID
		}
		w.States = append(w.States, domain.WorkflowState{
			ID:                st.ID,
			WorkflowID:        s.ID,
			Name:              name,
			IsInitial:         st.Initial,
			OrderIndex:        i,
			SuccessorStateIDs: append([]string{}, st.Successors...),
		})
	}
	return w
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8420"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v0"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Display.MaxDepth == 0 {
		c.Display.MaxDepth = 3
	}
	for i := range c.Webhooks {
		if c.Webhooks[i].TimeoutMS == 0 {
			c.Webhooks[i].TimeoutMS = 5000
		}
		if c.Webhooks[i].MaxAttempts == 0 {
			c.Webhooks[i].MaxAttempts = 3
		}
		if c.Webhooks[i].ID == "" {
			c.Webhooks[i].ID = fmt.Sprintf("webhook-%d", i+1)
		}
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	c.applyDefaults()
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config.log.format must be text or json")
	}
	if c.Display.MaxDepth < 1 || c.Display.MaxDepth > 8 {
		return fmt.Errorf("config.display.max_depth must be between 1 and 8")
	}
	for _, w := range c.Webhooks {
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %s has invalid url %q", w.ID, w.URL)
		}
		for _, evt := range w.Events {
			switch domain.ChangeType(evt) {
			case domain.ChangeCreate, domain.ChangeUpdate, domain.ChangeDelete:
			default:
				return fmt.Errorf("webhook %s has unknown event %q", w.ID, evt)
			}
		}
		if w.MaxAttempts < 1 {
			return fmt.Errorf("webhook %s max_attempts must be positive", w.ID)
		}
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if strings.TrimSpace(perm) == "" {
				return fmt.Errorf("role %s has empty permission", roleID)
			}
		}
	}
	for actor, roles := range c.RBAC.Grants {
		for _, roleID := range roles {
			if _, ok := c.RBAC.Roles[roleID]; !ok {
				return fmt.Errorf("grant for %s references unknown role %s", actor, roleID)
			}
		}
	}
	return c.validateSchema()
}

func (c *Config) validateSchema() error {
	workflows := map[string]bool{}
	for _, w := range c.Schema.Workflows {
		if w.ID == "" {
			return fmt.Errorf("config.schema.workflows contains empty id")
		}
		if workflows[w.ID] {
			return fmt.Errorf("workflow %s defined twice", w.ID)
		}
		workflows[w.ID] = true
		states := map[string]bool{}
		for _, s := range w.States {
			if s.ID == "" {
				return fmt.Errorf("workflow %s has a state without id", w.ID)
			}
			if states[s.ID] {
				return fmt.Errorf("workflow %s defines state %s twice", w.ID, s.ID)
			}
			states[s.ID] = true
		}
		for _, s := range w.States {
			for _, next := range s.Successors {
				if !states[next] {
					return fmt.Errorf("workflow %s state %s has unknown successor %s", w.ID, s.ID, next)
				}
			}
		}
	}
	models := map[string]bool{}
	names := map[string]bool{}
	for _, m := range c.Schema.Models {
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("config.schema.models entries need id and name")
		}
		if models[m.ID] || names[m.Name] {
			return fmt.Errorf("model %s defined twice", m.ID)
		}
		models[m.ID], names[m.Name] = true, true
		if m.Workflow != "" && !workflows[m.Workflow] {
			return fmt.Errorf("model %s references unknown workflow %s", m.ID, m.Workflow)
		}
		for _, p := range m.Properties {
			if _, err := domain.ParsePropertyType(p.Type); err != nil {
				return fmt.Errorf("model %s property %s: %w", m.ID, p.Name, err)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the config rendered from the default template.
func Default() *Config {
	cfg, err := FromYAML([]byte(GenerateDefault("")))
	if err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML, granting admin to adminActor when set.
func GenerateDefault(adminActor string) string {
	grants := "  grants: {}\n"
	if adminActor != "" {
		grants = fmt.Sprintf("  grants:\n    %q: [admin]\n", adminActor)
	}
	return defaultTemplate + grants
}

// ParseModelSpecs reads a YAML document holding either a list of models or a
// single model, as used by "sl model apply".
func ParseModelSpecs(data []byte) ([]ModelSpec, error) {
	var doc struct {
		Models []ModelSpec `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Models) > 0 {
		return doc.Models, nil
	}
	var single ModelSpec
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("invalid model yaml: %w", err)
	}
	if single.Name == "" {
		return nil, fmt.Errorf("model yaml has no models")
	}
	return []ModelSpec{single}, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8420
  base_path: /v0

log:
  level: info
  format: text

display:
  max_depth: 3

webhooks: []

schema:
  workflows:
    - id: review
      name: Review
      states:
        - id: review.new
          name: New
          initial: true
          successors: [review.approved]
        - id: review.approved
          name: Approved
          successors: [review.closed]
        - id: review.closed
          name: Closed
  models: []

rbac:
  roles:
    admin:
      description: Full access
      permissions: ["*"]
    editor:
      description: Read and write objects of every model
      permissions: ["model:view:*", "model:create:*", "model:edit:*", "model:delete:*"]
    viewer:
      description: Read objects of every model
      permissions: ["model:view:*"]
    anonymous:
      description: Public submissions
      permissions: []
`
