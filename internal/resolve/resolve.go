// Package resolve computes object labels and relationship edges from a loaded
// snapshot. Nothing here touches storage, so read paths for full views and for
// search summaries produce identical output.
package resolve

import (
	"sort"
	"strings"

	"schemaline/internal/domain"
	"schemaline/internal/schema"
)

// DefaultMaxDepth bounds how many relationship hops a label may follow.
const DefaultMaxDepth = 3

// Snapshot is the set of definitions and objects a resolution may consult.
type Snapshot struct {
	Models         map[string]domain.Model
	ObjectsByModel map[string]map[string]domain.DataObject
}

func NewSnapshot(models []domain.Model, objects []domain.DataObject) Snapshot {
	s := Snapshot{
		Models:         make(map[string]domain.Model, len(models)),
		ObjectsByModel: map[string]map[string]domain.DataObject{},
	}
	for _, m := range models {
		s.Models[m.ID] = m
	}
	for _, o := range objects {
		s.Add(o)
	}
	return s
}

func (s Snapshot) Add(o domain.DataObject) {
	byID := s.ObjectsByModel[o.ModelID]
	if byID == nil {
		byID = map[string]domain.DataObject{}
		s.ObjectsByModel[o.ModelID] = byID
	}
	byID[o.ID] = o
}

// Lookup finds an object by id in any model.
func (s Snapshot) Lookup(id string) (domain.DataObject, bool) {
	for _, byID := range s.ObjectsByModel {
		if o, ok := byID[id]; ok {
			return o, true
		}
	}
	return domain.DataObject{}, false
}

type Resolver struct {
	MaxDepth int
}

func (r Resolver) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

// DisplayValue joins the display properties of obj in order. Relationship
// values resolve to the related objects' own labels until the depth bound,
// after which the raw id is used. An empty label falls back to the object id.
func (r Resolver) DisplayValue(obj domain.DataObject, model domain.Model, snap Snapshot) string {
	return r.display(obj, model, snap, 0)
}

func (r Resolver) display(obj domain.DataObject, model domain.Model, snap Snapshot, depth int) string {
	var parts []string
	for _, name := range model.DisplayPropertyNames {
		p, ok := model.Property(name)
		if !ok {
			continue
		}
		v := obj.Data[name]
		if schema.IsEmpty(v) {
			continue
		}
		var s string
		if p.Type == domain.PropertyRelationship {
			s = r.relatedLabel(p, v, snap, depth)
		} else {
			s = schema.Display(p, v)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return obj.ID
	}
	return strings.Join(parts, " ")
}

func (r Resolver) relatedLabel(p domain.Property, v any, snap Snapshot, depth int) string {
	ids := schema.RelationIDs(p, v)
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, r.labelFor(id, p.RelatedModelID, snap, depth+1))
	}
	return strings.Join(labels, ", ")
}

func (r Resolver) labelFor(id string, modelID *string, snap Snapshot, depth int) string {
	if depth > r.maxDepth() || modelID == nil {
		return id
	}
	related, ok := snap.ObjectsByModel[*modelID][id]
	if !ok {
		return id
	}
	m, ok := snap.Models[related.ModelID]
	if !ok {
		return id
	}
	return r.display(related, m, snap, depth)
}

// Label resolves any object in the snapshot, falling back to id.
func (r Resolver) Label(id string, snap Snapshot) string {
	o, ok := snap.Lookup(id)
	if !ok {
		return id
	}
	m, ok := snap.Models[o.ModelID]
	if !ok {
		return id
	}
	return r.DisplayValue(o, m, snap)
}

// DisplayModels returns modelIDs plus every model their labels can reach
// through relationship display properties within the depth bound.
func (r Resolver) DisplayModels(models map[string]domain.Model, modelIDs []string) []string {
	seen := map[string]bool{}
	frontier := append([]string(nil), modelIDs...)
	for _, id := range frontier {
		seen[id] = true
	}
	for hop := 0; hop < r.maxDepth() && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			m := models[id]
			for _, name := range m.DisplayPropertyNames {
				p, ok := m.Property(name)
				if !ok || p.Type != domain.PropertyRelationship || p.RelatedModelID == nil {
					continue
				}
				if !seen[*p.RelatedModelID] {
					seen[*p.RelatedModelID] = true
					next = append(next, *p.RelatedModelID)
				}
			}
		}
		frontier = next
	}
	return sortedKeys(seen)
}

// GraphModels returns the models whose objects a dependency graph over objects
// of batchModelIDs needs: the batch models, every model with a relationship
// property targeting them, and the targets of the batch models' own
// relationship properties.
func GraphModels(models map[string]domain.Model, batchModelIDs []string) []string {
	inBatch := map[string]bool{}
	for _, id := range batchModelIDs {
		inBatch[id] = true
	}
	seen := map[string]bool{}
	for id := range inBatch {
		seen[id] = true
	}
	for _, m := range models {
		for _, p := range m.Properties {
			if p.Type != domain.PropertyRelationship || p.RelatedModelID == nil {
				continue
			}
			if inBatch[*p.RelatedModelID] {
				seen[m.ID] = true
			}
			if inBatch[m.ID] {
				seen[*p.RelatedModelID] = true
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
