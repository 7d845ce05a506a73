package engine

import (
	"context"

	"schemaline/internal/domain"
	"schemaline/internal/engine/auth"
	"schemaline/internal/repo"
	"schemaline/internal/resolve"
	"schemaline/internal/schema"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListOptions filters ListObjects. The cursor is the (created_at, id) of the
// last object of the previous page.
type ListOptions struct {
	ModelID         string
	IncludeDeleted  bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// visibleObject loads one object the actor may view.
func (e Engine) visibleObject(ctx context.Context, actor auth.Actor, id string, includeDeleted bool) (domain.DataObject, error) {
	obj, err := e.Repo.GetObject(ctx, nil, id)
	if err != nil {
		return obj, notFoundOr(err, "object", id, "load object")
	}
	if obj.IsDeleted && !includeDeleted {
		return domain.DataObject{}, domain.NotFound("object", id)
	}
	if err := actor.RequireOnObject(auth.ActionView, obj.ModelID, obj.OwnerID); err != nil {
		return domain.DataObject{}, err
	}
	return obj, nil
}

// GetObject returns an object with its display value.
func (e Engine) GetObject(ctx context.Context, actor auth.Actor, id string, includeDeleted bool) (domain.ObjectView, error) {
	obj, err := e.visibleObject(ctx, actor, id, includeDeleted)
	if err != nil {
		return domain.ObjectView{}, err
	}
	views, err := e.views(ctx, actor, []domain.DataObject{obj})
	if err != nil {
		return domain.ObjectView{}, err
	}
	return views[0], nil
}

// ListObjects pages the objects the actor can view, newest first. Without a
// model-wide grant only the actor's own objects are listed.
func (e Engine) ListObjects(ctx context.Context, actor auth.Actor, opts ListOptions) ([]domain.ObjectView, error) {
	if opts.ModelID != "" {
		if _, err := e.Registry.GetModel(ctx, opts.ModelID); err != nil {
			return nil, err
		}
	}
	f := repo.ObjectFilters{
		ModelID:         opts.ModelID,
		IncludeDeleted:  opts.IncludeDeleted,
		Limit:           clampLimit(opts.Limit),
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}
	scope := actor.Permissions.ScopeModels(auth.ActionView)
	if scope.All {
		f.AllModels = true
	} else {
		f.ScopeModelIDs = scope.IDs()
		if owner := actor.OwnerID(); owner != nil {
			f.ScopeOwnerID = *owner
		}
	}
	objs, err := e.Repo.ListObjects(ctx, nil, f)
	if err != nil {
		return nil, domain.StorageFailure("list objects", err)
	}
	return e.views(ctx, actor, objs)
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// DisplayValues resolves labels for a set of object ids. Ids that do not
// exist or that the actor cannot view are left out.
func (e Engine) DisplayValues(ctx context.Context, actor auth.Actor, ids []string) (map[string]string, error) {
	objs, err := e.Repo.GetObjects(ctx, nil, dedupe(ids))
	if err != nil {
		return nil, domain.StorageFailure("load objects", err)
	}
	visible := objs[:0]
	for _, o := range objs {
		if actor.CanSee(o.ModelID, o.OwnerID) {
			visible = append(visible, o)
		}
	}
	views, err := e.views(ctx, actor, visible)
	if err != nil {
		return nil, err
	}
	res := make(map[string]string, len(views))
	for _, v := range views {
		res[v.ID] = v.Display
	}
	return res, nil
}

// DependencyGraph lists, for each object in the batch, the objects it links to
// and the objects linking to it. Soft-deleted objects on either side stay in
// the graph. Labels of objects the actor cannot view are replaced by ids.
func (e Engine) DependencyGraph(ctx context.Context, actor auth.Actor, ids []string) ([]domain.RelationEdge, error) {
	ids = dedupe(ids)
	batch, err := e.Repo.GetObjects(ctx, nil, ids)
	if err != nil {
		return nil, domain.StorageFailure("load objects", err)
	}
	found := map[string]bool{}
	var batchModels []string
	for _, o := range batch {
		found[o.ID] = true
		if err := actor.RequireOnObject(auth.ActionView, o.ModelID, o.OwnerID); err != nil {
			return nil, err
		}
		batchModels = append(batchModels, o.ModelID)
	}
	for _, id := range ids {
		if !found[id] {
			return nil, domain.NotFound("object", id)
		}
	}
	models, err := e.Registry.ModelMap(ctx)
	if err != nil {
		return nil, err
	}
	graphModels := resolve.GraphModels(models, dedupe(batchModels))
	load := dedupe(append(graphModels, e.Resolver.DisplayModels(models, graphModels)...))
	objs, err := e.Repo.ObjectsByModels(ctx, nil, load, true)
	if err != nil {
		return nil, domain.StorageFailure("load related objects", err)
	}

	full := resolve.Snapshot{Models: models, ObjectsByModel: map[string]map[string]domain.DataObject{}}
	visible := resolve.Snapshot{Models: models, ObjectsByModel: map[string]map[string]domain.DataObject{}}
	for _, o := range objs {
		full.Add(o)
		if actor.CanSee(o.ModelID, o.OwnerID) {
			visible.Add(o)
		}
	}
	edges := e.Resolver.DependencyGraph(batch, full)
	for i := range edges {
		if edges[i].RelatedMissing {
			continue
		}
		if _, ok := visible.Lookup(edges[i].RelatedObjectID); ok {
			edges[i].RelatedDisplay = e.Resolver.Label(edges[i].RelatedObjectID, visible)
		} else {
			edges[i].RelatedDisplay = edges[i].RelatedObjectID
		}
	}
	return edges, nil
}

// ObjectChangelog returns an object's audit history oldest first. Deleted
// objects keep their history.
func (e Engine) ObjectChangelog(ctx context.Context, actor auth.Actor, id string) ([]domain.ChangelogEntry, error) {
	if _, err := e.visibleObject(ctx, actor, id, true); err != nil {
		return nil, err
	}
	entries, err := e.Repo.ListChangelog(ctx, nil, id)
	if err != nil {
		return nil, domain.StorageFailure("list changelog", err)
	}
	if entries == nil {
		entries = []domain.ChangelogEntry{}
	}
	return entries, nil
}

// ChangelogAfter pages the global changelog after cursor, for feeds.
func (e Engine) ChangelogAfter(ctx context.Context, cursor string, limit int) ([]domain.ChangelogEntry, error) {
	entries, err := e.Repo.ChangelogAfter(ctx, nil, cursor, clampLimit(limit))
	if err != nil {
		return nil, domain.StorageFailure("read changelog", err)
	}
	return entries, nil
}

// views attaches display values to objs, loading only the related objects
// their display properties reach.
func (e Engine) views(ctx context.Context, actor auth.Actor, objs []domain.DataObject) ([]domain.ObjectView, error) {
	res := make([]domain.ObjectView, 0, len(objs))
	if len(objs) == 0 {
		return res, nil
	}
	models, err := e.Registry.ModelMap(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := e.displaySnapshot(ctx, actor, models, objs)
	if err != nil {
		return nil, err
	}
	for _, o := range objs {
		view := domain.ObjectView{DataObject: o, Display: o.ID}
		if m, ok := models[o.ModelID]; ok {
			view.Display = e.Resolver.DisplayValue(o, m, snap)
		}
		res = append(res, view)
	}
	return res, nil
}

func (e Engine) displaySnapshot(ctx context.Context, actor auth.Actor, models map[string]domain.Model, seed []domain.DataObject) (resolve.Snapshot, error) {
	snap := resolve.Snapshot{Models: models, ObjectsByModel: map[string]map[string]domain.DataObject{}}
	for _, o := range seed {
		snap.Add(o)
	}
	depth := e.Resolver.MaxDepth
	if depth <= 0 {
		depth = resolve.DefaultMaxDepth
	}
	frontier := seed
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var want []string
		for _, o := range frontier {
			m := models[o.ModelID]
			for _, name := range m.DisplayPropertyNames {
				p, ok := m.Property(name)
				if !ok || p.Type != domain.PropertyRelationship {
					continue
				}
				for _, id := range schema.RelationIDs(p, o.Data[name]) {
					if _, seen := snap.Lookup(id); !seen {
						want = append(want, id)
					}
				}
			}
		}
		if len(want) == 0 {
			break
		}
		related, err := e.Repo.GetObjects(ctx, nil, dedupe(want))
		if err != nil {
			return snap, domain.StorageFailure("load related objects", err)
		}
		frontier = frontier[:0:0]
		for _, o := range related {
			if !actor.CanSee(o.ModelID, o.OwnerID) {
				continue
			}
			snap.Add(o)
			frontier = append(frontier, o)
		}
	}
	return snap, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
