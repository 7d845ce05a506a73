package resolve

import (
	"sort"

	"schemaline/internal/domain"
	"schemaline/internal/schema"
)

type edgeKey struct {
	object, related string
}

type edgeAcc struct {
	edge  domain.RelationEdge
	links map[domain.RelationLink]bool
}

// DependencyGraph returns one edge per (batch object, related object) pair.
// Incoming links come from every object in the snapshot whose relationship
// properties point at a batch object; outgoing links come from the batch
// objects' own relationship values. Soft-deleted objects on either side are
// kept and flagged.
func (r Resolver) DependencyGraph(batch []domain.DataObject, snap Snapshot) []domain.RelationEdge {
	inBatch := map[string]domain.DataObject{}
	for _, o := range batch {
		inBatch[o.ID] = o
	}
	acc := map[edgeKey]*edgeAcc{}
	add := func(objectID, relatedID string, link domain.RelationLink) {
		k := edgeKey{objectID, relatedID}
		a, ok := acc[k]
		if !ok {
			a = &edgeAcc{
				edge:  domain.RelationEdge{ObjectID: objectID, RelatedObjectID: relatedID},
				links: map[domain.RelationLink]bool{},
			}
			acc[k] = a
		}
		a.links[link] = true
	}

	for _, o := range batch {
		m, ok := snap.Models[o.ModelID]
		if !ok {
			continue
		}
		for _, p := range m.Properties {
			for _, target := range schema.RelationIDs(p, o.Data[p.Name]) {
				add(o.ID, target, domain.RelationLink{SourceObjectID: o.ID, PropertyName: p.Name})
			}
		}
	}

	for _, m := range snap.Models {
		for _, p := range m.Properties {
			if p.Type != domain.PropertyRelationship {
				continue
			}
			for _, src := range snap.ObjectsByModel[m.ID] {
				for _, target := range schema.RelationIDs(p, src.Data[p.Name]) {
					if _, ok := inBatch[target]; !ok {
						continue
					}
					add(target, src.ID, domain.RelationLink{SourceObjectID: src.ID, PropertyName: p.Name})
				}
			}
		}
	}

	edges := make([]domain.RelationEdge, 0, len(acc))
	for _, a := range acc {
		e := a.edge
		var in, out bool
		for l := range a.links {
			e.Links = append(e.Links, l)
			if l.SourceObjectID == e.ObjectID {
				out = true
			} else {
				in = true
			}
		}
		sort.Slice(e.Links, func(i, j int) bool {
			if e.Links[i].SourceObjectID != e.Links[j].SourceObjectID {
				return e.Links[i].SourceObjectID < e.Links[j].SourceObjectID
			}
			return e.Links[i].PropertyName < e.Links[j].PropertyName
		})
		switch {
		case in && out:
			e.Direction = domain.EdgeBoth
		case out:
			e.Direction = domain.EdgeOutgoing
		default:
			e.Direction = domain.EdgeIncoming
		}
		if related, ok := snap.Lookup(e.RelatedObjectID); ok {
			e.RelatedModelID = related.ModelID
			e.RelatedDeleted = related.IsDeleted
			e.RelatedDisplay = r.Label(related.ID, snap)
		} else {
			e.RelatedMissing = true
			e.RelatedDisplay = e.RelatedObjectID
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].ObjectID != edges[j].ObjectID {
			return edges[i].ObjectID < edges[j].ObjectID
		}
		return edges[i].RelatedObjectID < edges[j].RelatedObjectID
	})
	return edges
}
