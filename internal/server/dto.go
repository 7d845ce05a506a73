package server

import (
	"schemaline/internal/domain"
)

// Request payloads

type PropertyRequest struct {
	ID                  string   `json:"id,omitempty"`
	Name                string   `json:"name"`
	Type                string   `json:"type" enum:"string,number,boolean,date,rating,relationship,markdown,url,image,fileAttachment"`
	Required            bool     `json:"required,omitempty"`
	IsUnique            bool     `json:"is_unique,omitempty"`
	OrderIndex          int      `json:"order_index,omitempty"`
	RelatedModelID      *string  `json:"related_model_id,omitempty"`
	RelationshipType    *string  `json:"relationship_type,omitempty" enum:"one,many"`
	Unit                *string  `json:"unit,omitempty"`
	Precision           *int     `json:"precision,omitempty"`
	MinValue            *float64 `json:"min_value,omitempty"`
	MaxValue            *float64 `json:"max_value,omitempty"`
	AutoSetOnCreate     bool     `json:"auto_set_on_create,omitempty"`
	AutoSetOnUpdate     bool     `json:"auto_set_on_update,omitempty"`
	DefaultValue        any      `json:"default_value,omitempty"`
	ValidationRulesetID *string  `json:"validation_ruleset_id,omitempty"`
}

type ModelRequest struct {
	ID                   string            `json:"id,omitempty"`
	Name                 string            `json:"name"`
	Namespace            string            `json:"namespace,omitempty"`
	Description          string            `json:"description,omitempty"`
	DisplayPropertyNames []string          `json:"display_property_names,omitempty"`
	WorkflowID           *string           `json:"workflow_id,omitempty"`
	Properties           []PropertyRequest `json:"properties,omitempty"`
}

func (r ModelRequest) toModel() domain.Model {
	m := domain.Model{
		ID:                   r.ID,
		Name:                 r.Name,
		Namespace:            r.Namespace,
		Description:          r.Description,
		DisplayPropertyNames: r.DisplayPropertyNames,
		WorkflowID:           r.WorkflowID,
	}
	for _, p := range r.Properties {
		prop := domain.Property{
			ID:                  p.ID,
			Name:                p.Name,
			Type:                domain.PropertyType(p.Type),
			Required:            p.Required,
			IsUnique:            p.IsUnique,
			OrderIndex:          p.OrderIndex,
			RelatedModelID:      p.RelatedModelID,
			Unit:                p.Unit,
			Precision:           p.Precision,
			MinValue:            p.MinValue,
			MaxValue:            p.MaxValue,
			AutoSetOnCreate:     p.AutoSetOnCreate,
			AutoSetOnUpdate:     p.AutoSetOnUpdate,
			DefaultValue:        p.DefaultValue,
			ValidationRulesetID: p.ValidationRulesetID,
		}
		if p.RelationshipType != nil {
			rt := domain.RelationshipType(*p.RelationshipType)
			prop.RelationshipType = &rt
		}
		m.Properties = append(m.Properties, prop)
	}
	return m
}

type CreateObjectRequest struct {
	Data map[string]any `json:"data"`
}

type UpdateObjectRequest struct {
	Data    map[string]any `json:"data,omitempty"`
	StateID *string        `json:"state_id,omitempty"`
}

type TransitionRequest struct {
	StateID string `json:"state_id"`
}

type ObjectIDsRequest struct {
	IDs []string `json:"ids" minItems:"1"`
}

type ConvertRequest struct {
	SourceModelID  string            `json:"source_model_id,omitempty"`
	TargetModelID  string            `json:"target_model_id"`
	FieldMapping   map[string]string `json:"field_mapping,omitempty"`
	Defaults       map[string]any    `json:"defaults,omitempty"`
	DeleteOriginal bool              `json:"delete_original,omitempty"`
}

type RoleRequest struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type APIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type ObjectPage struct {
	Items      []domain.ObjectView `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type ChangelogPage struct {
	Items      []domain.ChangelogEntry `json:"items"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id,omitempty"`
	Anonymous   bool     `json:"anonymous"`
	Source      string   `json:"source"`
	Permissions []string `json:"permissions"`
}

type APIKeyResponse struct {
	domain.APIKey
	// Key is only returned when the key is created.
	Key string `json:"key,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
