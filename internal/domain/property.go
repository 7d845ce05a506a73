package domain

import "fmt"

// PropertyType is the closed set of field kinds a model property may take.
type PropertyType string

const (
	// PropertyString is free single-line text.
	PropertyString PropertyType = "string"
	// PropertyNumber is a float with optional unit, precision and bounds.
	PropertyNumber PropertyType = "number"
	PropertyBoolean PropertyType = "boolean"
	// PropertyDate is an RFC 3339 timestamp or a YYYY-MM-DD date.
	PropertyDate PropertyType = "date"
	// PropertyRating is a whole number between 0 and MaxValue (5 when unset).
	PropertyRating PropertyType = "rating"
	// PropertyRelationship holds one object id, or a list of ids for "many".
	PropertyRelationship PropertyType = "relationship"
	PropertyMarkdown     PropertyType = "markdown"
	PropertyURL          PropertyType = "url"
	// PropertyImage and PropertyFileAttachment store a reference string; the
	// bytes live in an external upload store.
	PropertyImage          PropertyType = "image"
	PropertyFileAttachment PropertyType = "fileAttachment"
)

var PropertyTypes = []PropertyType{
	PropertyString, PropertyNumber, PropertyBoolean, PropertyDate, PropertyRating,
	PropertyRelationship, PropertyMarkdown, PropertyURL, PropertyImage, PropertyFileAttachment,
}

func (t PropertyType) Valid() bool {
	for _, v := range PropertyTypes {
		if v == t {
			return true
		}
	}
	return false
}

func ParsePropertyType(s string) (PropertyType, error) {
	t := PropertyType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown property type %q", s)
	}
	return t, nil
}

type RelationshipType string

const (
	RelationshipOne  RelationshipType = "one"
	RelationshipMany RelationshipType = "many"
)

func (t RelationshipType) Valid() bool {
	return t == RelationshipOne || t == RelationshipMany
}
