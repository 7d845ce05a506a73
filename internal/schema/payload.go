package schema

import (
	"encoding/json"
	"time"

	"schemaline/internal/domain"
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// PrepareData validates input against the model's properties and returns the
// data map to store. Keys that are not properties are dropped. On update,
// previous supplies the values of fields that only auto-set on create.
func PrepareData(m domain.Model, input, previous map[string]any, mode Mode, now time.Time) (map[string]any, error) {
	in, err := Normalize(input)
	if err != nil {
		return nil, domain.InvalidValue("data", "%v", err)
	}
	stamp := now.UTC().Format(time.RFC3339)
	out := map[string]any{}
	for _, p := range m.Properties {
		if p.Type == domain.PropertyDate {
			switch {
			case p.AutoSetOnUpdate:
				out[p.Name] = stamp
				continue
			case p.AutoSetOnCreate && mode == ModeCreate:
				out[p.Name] = stamp
				continue
			case p.AutoSetOnCreate:
				if v, ok := previous[p.Name]; ok && v != nil {
					out[p.Name] = v
				}
				continue
			}
		}
		v := in[p.Name]
		if IsEmpty(v) && mode == ModeCreate && p.DefaultValue != nil {
			v = p.DefaultValue
		}
		if IsEmpty(v) {
			if p.Required {
				return nil, domain.MissingRequired(p.Name)
			}
			continue
		}
		if err := Validate(p, v); err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

// Normalize round-trips a data map through JSON so values compare the same way
// as ones read back from storage.
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
