package domain

import "encoding/json"

// Model is a runtime-defined record schema.
type Model struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Namespace            string     `json:"namespace"`
	Description          string     `json:"description,omitempty"`
	DisplayPropertyNames []string   `json:"display_property_names"`
	Properties           []Property `json:"properties"`
	WorkflowID           *string    `json:"workflow_id,omitempty"`
	CreatedAt            string     `json:"created_at" format:"date-time"`
	UpdatedAt            string     `json:"updated_at" format:"date-time"`
}

const DefaultNamespace = "Default"

// Property looks up a property by name.
func (m Model) Property(name string) (Property, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

type Property struct {
	ID                  string            `json:"id"`
	ModelID             string            `json:"model_id"`
	Name                string            `json:"name"`
	Type                PropertyType      `json:"type" enum:"string,number,boolean,date,rating,relationship,markdown,url,image,fileAttachment"`
	Required            bool              `json:"required"`
	IsUnique            bool              `json:"is_unique"`
	OrderIndex          int               `json:"order_index"`
	RelatedModelID      *string           `json:"related_model_id,omitempty"`
	RelationshipType    *RelationshipType `json:"relationship_type,omitempty" enum:"one,many"`
	Unit                *string           `json:"unit,omitempty"`
	Precision           *int              `json:"precision,omitempty"`
	MinValue            *float64          `json:"min_value,omitempty"`
	MaxValue            *float64          `json:"max_value,omitempty"`
	AutoSetOnCreate     bool              `json:"auto_set_on_create,omitempty"`
	AutoSetOnUpdate     bool              `json:"auto_set_on_update,omitempty"`
	DefaultValue        any               `json:"default_value,omitempty"`
	ValidationRulesetID *string           `json:"validation_ruleset_id,omitempty"`
}

// Many reports whether a relationship property holds a list of ids.
func (p Property) Many() bool {
	return p.RelationshipType != nil && *p.RelationshipType == RelationshipMany
}

type DataObject struct {
	ID             string         `json:"id"`
	ModelID        string         `json:"model_id"`
	Data           map[string]any `json:"data"`
	CurrentStateID *string        `json:"current_state_id,omitempty"`
	OwnerID        *string        `json:"owner_id,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
	DeletedAt      *string        `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// ObjectView is an object together with its resolved label.
type ObjectView struct {
	DataObject
	Display string `json:"display"`
}

type DeleteResult struct {
	ObjectID       string  `json:"object_id"`
	AlreadyDeleted bool    `json:"already_deleted"`
	DeletedAt      *string `json:"deleted_at,omitempty" format:"date-time"`
}

type Workflow struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	States    []WorkflowState `json:"states"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

type WorkflowState struct {
	ID                string   `json:"id"`
	WorkflowID        string   `json:"workflow_id"`
	Name              string   `json:"name"`
	IsInitial         bool     `json:"is_initial"`
	OrderIndex        int      `json:"order_index"`
	SuccessorStateIDs []string `json:"successor_state_ids"`
}

type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangelogEntry is one immutable audit record. Changes holds an ObjectSnapshot
// for CREATE and DELETE, and a list of FieldChange for UPDATE.
type ChangelogEntry struct {
	ID              string          `json:"id"`
	DataObjectID    string          `json:"data_object_id"`
	ModelID         string          `json:"model_id"`
	ChangedAt       string          `json:"changed_at" format:"date-time"`
	ChangedByUserID *string         `json:"changed_by_user_id,omitempty"`
	ChangeType      ChangeType      `json:"change_type" enum:"CREATE,UPDATE,DELETE"`
	Changes         json.RawMessage `json:"changes"`
}

type ObjectSnapshot struct {
	Data           map[string]any `json:"data"`
	CurrentStateID *string        `json:"current_state_id,omitempty"`
	OwnerID        *string        `json:"owner_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	ConvertedFrom  string         `json:"converted_from,omitempty"`
	ConvertedTo    string         `json:"converted_to,omitempty"`
}

type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// StateField is the FieldChange name used for workflow state moves.
const StateField = "current_state_id"

type RelationLink struct {
	SourceObjectID string `json:"source_object_id"`
	PropertyName   string `json:"property_name"`
}

type EdgeDirection string

const (
	EdgeIncoming EdgeDirection = "incoming"
	EdgeOutgoing EdgeDirection = "outgoing"
	EdgeBoth     EdgeDirection = "both"
)

// RelationEdge joins one object of the queried batch to a related object.
// Every link between the pair, in either direction, is merged into Links.
type RelationEdge struct {
	ObjectID        string         `json:"object_id"`
	RelatedObjectID string         `json:"related_object_id"`
	RelatedModelID  string         `json:"related_model_id,omitempty"`
	RelatedDisplay  string         `json:"related_display"`
	RelatedDeleted  bool           `json:"related_deleted"`
	RelatedMissing  bool           `json:"related_missing,omitempty"`
	Direction       EdgeDirection  `json:"direction" enum:"incoming,outgoing,both"`
	Links           []RelationLink `json:"links"`
}

type BatchFailure struct {
	ObjectID string `json:"object_id"`
	Code     Kind   `json:"code"`
	Message  string `json:"message"`
}

type BatchDeleteResult struct {
	DeletedCount   int            `json:"deleted_count"`
	Total          int            `json:"total"`
	AlreadyDeleted []string       `json:"already_deleted,omitempty"`
	Failed         []BatchFailure `json:"failed,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
