package schema

import (
	"strings"

	"schemaline/internal/domain"
)

// CheckModel enforces the structural invariants of a model definition.
// modelExists answers whether a relationship target other than m itself exists.
func CheckModel(m domain.Model, modelExists func(id string) bool) error {
	if strings.TrimSpace(m.Name) == "" {
		return domain.InvalidValue("name", "model name is required")
	}
	names := map[string]bool{}
	for _, p := range m.Properties {
		if err := checkProperty(m, p, modelExists); err != nil {
			return err
		}
		if names[p.Name] {
			return domain.InvalidValue(p.Name, "duplicate property name")
		}
		names[p.Name] = true
	}
	seen := map[string]bool{}
	for _, n := range m.DisplayPropertyNames {
		if !names[n] {
			return domain.InvalidValue("display_property_names", "%q is not a property of %s", n, m.Name)
		}
		if seen[n] {
			return domain.InvalidValue("display_property_names", "%q listed twice", n)
		}
		seen[n] = true
	}
	return nil
}

func checkProperty(m domain.Model, p domain.Property, modelExists func(id string) bool) error {
	if strings.TrimSpace(p.Name) == "" {
		return domain.InvalidValue("properties", "property name is required")
	}
	if !p.Type.Valid() {
		return domain.InvalidValue(p.Name, "unknown property type %q", p.Type)
	}
	rel := p.Type == domain.PropertyRelationship
	if rel {
		if p.RelatedModelID == nil || *p.RelatedModelID == "" {
			return domain.InvalidValue(p.Name, "relationship requires related_model_id")
		}
		if *p.RelatedModelID != m.ID && (modelExists == nil || !modelExists(*p.RelatedModelID)) {
			return domain.InvalidValue(p.Name, "related model %s does not exist", *p.RelatedModelID)
		}
		if p.RelationshipType == nil || !p.RelationshipType.Valid() {
			return domain.InvalidValue(p.Name, "relationship_type must be one or many")
		}
		if p.DefaultValue != nil {
			return domain.InvalidValue(p.Name, "relationships cannot have a default value")
		}
	} else if p.RelatedModelID != nil || p.RelationshipType != nil {
		return domain.InvalidValue(p.Name, "related_model_id and relationship_type are only valid on relationships")
	}
	numeric := p.Type == domain.PropertyNumber
	if !numeric && (p.Unit != nil || p.Precision != nil) {
		return domain.InvalidValue(p.Name, "unit and precision are only valid on numbers")
	}
	if !numeric && p.Type != domain.PropertyRating && (p.MinValue != nil || p.MaxValue != nil) {
		return domain.InvalidValue(p.Name, "min_value and max_value are only valid on numbers and ratings")
	}
	if p.Precision != nil && *p.Precision < 0 {
		return domain.InvalidValue(p.Name, "precision must not be negative")
	}
	if p.MinValue != nil && p.MaxValue != nil && *p.MinValue > *p.MaxValue {
		return domain.InvalidValue(p.Name, "min_value exceeds max_value")
	}
	if (p.AutoSetOnCreate || p.AutoSetOnUpdate) && p.Type != domain.PropertyDate {
		return domain.InvalidValue(p.Name, "auto-set is only valid on dates")
	}
	if p.IsUnique && p.Type != domain.PropertyString {
		return domain.InvalidValue(p.Name, "uniqueness is only supported on string properties")
	}
	if p.DefaultValue != nil && !IsEmpty(p.DefaultValue) {
		if err := Validate(p, p.DefaultValue); err != nil {
			return err
		}
	}
	return nil
}
