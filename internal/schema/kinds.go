package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"schemaline/internal/domain"
)

const defaultRatingMax = 5

// Coerce converts a stored value to the Go form its property type works with:
// string, float64, bool, time.Time or []string for relationships.
func Coerce(p domain.Property, v any) (any, error) {
	switch p.Type {
	case domain.PropertyString, domain.PropertyMarkdown:
		return asString(v)
	case domain.PropertyURL, domain.PropertyImage, domain.PropertyFileAttachment:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil
	case domain.PropertyNumber, domain.PropertyRating:
		return asFloat(v)
	case domain.PropertyBoolean:
		return asBool(v)
	case domain.PropertyDate:
		return asDate(v)
	case domain.PropertyRelationship:
		return asIDs(v)
	default:
		return nil, fmt.Errorf("unknown property type %q", p.Type)
	}
}

// Validate checks a present, non-empty value against its property.
func Validate(p domain.Property, v any) error {
	c, err := Coerce(p, v)
	if err != nil {
		return domain.InvalidValue(p.Name, "%v", err)
	}
	switch p.Type {
	case domain.PropertyString, domain.PropertyMarkdown:
		return nil
	case domain.PropertyURL:
		u, err := url.Parse(c.(string))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return domain.InvalidValue(p.Name, "%q is not an absolute URL", c)
		}
		return nil
	case domain.PropertyImage, domain.PropertyFileAttachment:
		if c.(string) == "" {
			return domain.InvalidValue(p.Name, "reference must not be blank")
		}
		return nil
	case domain.PropertyNumber:
		f := c.(float64)
		if p.MinValue != nil && f < *p.MinValue {
			return domain.InvalidValue(p.Name, "%v is below minimum %v", f, *p.MinValue)
		}
		if p.MaxValue != nil && f > *p.MaxValue {
			return domain.InvalidValue(p.Name, "%v is above maximum %v", f, *p.MaxValue)
		}
		return nil
	case domain.PropertyRating:
		f := c.(float64)
		lo, hi := ratingBounds(p)
		if f != math.Trunc(f) {
			return domain.InvalidValue(p.Name, "rating %v must be a whole number", f)
		}
		if f < lo || f > hi {
			return domain.InvalidValue(p.Name, "rating %v is outside %v..%v", f, lo, hi)
		}
		return nil
	case domain.PropertyBoolean, domain.PropertyDate:
		return nil
	case domain.PropertyRelationship:
		ids := c.([]string)
		if !p.Many() && len(ids) > 1 {
			return domain.InvalidValue(p.Name, "expects a single object id")
		}
		for _, id := range ids {
			if strings.TrimSpace(id) == "" {
				return domain.InvalidValue(p.Name, "object id must not be blank")
			}
		}
		return nil
	default:
		return domain.InvalidValue(p.Name, "unknown property type %q", p.Type)
	}
}

// Display renders a non-relationship value as text. Relationship values render
// as their raw ids; the resolver replaces them with the related labels.
func Display(p domain.Property, v any) string {
	if v == nil {
		return ""
	}
	c, err := Coerce(p, v)
	if err != nil {
		return fmt.Sprint(v)
	}
	switch p.Type {
	case domain.PropertyString, domain.PropertyMarkdown, domain.PropertyURL, domain.PropertyImage, domain.PropertyFileAttachment:
		return c.(string)
	case domain.PropertyNumber:
		s := formatNumber(c.(float64), p.Precision)
		if p.Unit != nil && *p.Unit != "" {
			s += " " + *p.Unit
		}
		return s
	case domain.PropertyRating:
		_, hi := ratingBounds(p)
		return fmt.Sprintf("%s/%s", formatNumber(c.(float64), nil), formatNumber(hi, nil))
	case domain.PropertyBoolean:
		if c.(bool) {
			return "Yes"
		}
		return "No"
	case domain.PropertyDate:
		t := c.(time.Time)
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339)
	case domain.PropertyRelationship:
		return strings.Join(c.([]string), ", ")
	default:
		return fmt.Sprint(v)
	}
}

// RelationIDs returns the object ids a relationship value points at.
func RelationIDs(p domain.Property, v any) []string {
	if p.Type != domain.PropertyRelationship || v == nil {
		return nil
	}
	ids, err := asIDs(v)
	if err != nil {
		return nil
	}
	return ids
}

// UniqueKey returns the comparison key for a unique property, "" when the
// value does not take part in uniqueness.
func UniqueKey(p domain.Property, v any) string {
	if p.Type != domain.PropertyString || !p.IsUnique {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// IsEmpty reports whether a value counts as absent for required checks.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

func ratingBounds(p domain.Property) (float64, float64) {
	lo, hi := 0.0, float64(defaultRatingMax)
	if p.MinValue != nil {
		lo = *p.MinValue
	}
	if p.MaxValue != nil {
		hi = *p.MaxValue
	}
	return lo, hi
}

func formatNumber(f float64, precision *int) string {
	if precision != nil && *precision >= 0 {
		return strconv.FormatFloat(f, 'f', *precision, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected text, got %T", v)
	}
	return s, nil
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean", t)
		}
		return b, nil
	}
	return false, fmt.Errorf("expected boolean, got %T", v)
}

func asDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected date string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC 3339 timestamp or YYYY-MM-DD date", s)
}

func asIDs(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		ids := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected object id, got %T", item)
			}
			ids = append(ids, s)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("expected object id or list of ids, got %T", v)
}
