package schema

import (
	"context"
	"errors"
	"slices"
	"sync"

	"schemaline/internal/domain"
	"schemaline/internal/repo"
)

// Registry serves model definitions from a cache filled on first use.
// It reads through the pool, so callers must not hold a transaction.
type Registry struct {
	Repo repo.Repo

	mu     sync.RWMutex
	byID   map[string]domain.Model
	all    []domain.Model
	loaded bool
	// gen moves on every Invalidate so loads that raced with it are not cached.
	gen uint64
}

func NewRegistry(r repo.Repo) *Registry {
	return &Registry{Repo: r, byID: map[string]domain.Model{}}
}

func (r *Registry) GetModel(ctx context.Context, id string) (domain.Model, error) {
	r.mu.RLock()
	m, ok := r.byID[id]
	gen := r.gen
	r.mu.RUnlock()
	if ok {
		return cloneModel(m), nil
	}
	m, err := r.Repo.GetModel(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Model{}, domain.NotFound("model", id)
	}
	if err != nil {
		return domain.Model{}, domain.StorageFailure("load model", err)
	}
	r.mu.Lock()
	if r.gen == gen {
		r.byID[id] = m
	}
	r.mu.Unlock()
	return cloneModel(m), nil
}

func (r *Registry) ListModels(ctx context.Context) ([]domain.Model, error) {
	r.mu.RLock()
	if r.loaded {
		all := cloneModels(r.all)
		r.mu.RUnlock()
		return all, nil
	}
	gen := r.gen
	r.mu.RUnlock()
	models, err := r.Repo.ListModels(ctx, nil)
	if err != nil {
		return nil, domain.StorageFailure("list models", err)
	}
	r.mu.Lock()
	if r.gen == gen {
		r.all = models
		r.loaded = true
		for _, m := range models {
			r.byID[m.ID] = m
		}
	}
	r.mu.Unlock()
	return cloneModels(models), nil
}

// GetProperties returns a model's properties ordered by order_index.
func (r *Registry) GetProperties(ctx context.Context, modelID string) ([]domain.Property, error) {
	m, err := r.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return m.Properties, nil
}

// ModelMap returns every model keyed by id.
func (r *Registry) ModelMap(ctx context.Context) (map[string]domain.Model, error) {
	models, err := r.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	res := make(map[string]domain.Model, len(models))
	for _, m := range models {
		res[m.ID] = m
	}
	return res, nil
}

// Invalidate drops cached definitions after an administrative write.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.byID = map[string]domain.Model{}
	r.all = nil
	r.loaded = false
	r.gen++
	r.mu.Unlock()
}

// cloneModel copies the slices and pointers of m so callers can edit the
// result without touching the cache.
func cloneModel(m domain.Model) domain.Model {
	m.DisplayPropertyNames = slices.Clone(m.DisplayPropertyNames)
	m.WorkflowID = clonePtr(m.WorkflowID)
	m.Properties = slices.Clone(m.Properties)
	for i := range m.Properties {
		p := &m.Properties[i]
		p.RelatedModelID = clonePtr(p.RelatedModelID)
		p.RelationshipType = clonePtr(p.RelationshipType)
		p.Unit = clonePtr(p.Unit)
		p.Precision = clonePtr(p.Precision)
		p.MinValue = clonePtr(p.MinValue)
		p.MaxValue = clonePtr(p.MaxValue)
		p.ValidationRulesetID = clonePtr(p.ValidationRulesetID)
	}
	return m
}

func cloneModels(models []domain.Model) []domain.Model {
	if models == nil {
		return nil
	}
	res := make([]domain.Model, len(models))
	for i, m := range models {
		res[i] = cloneModel(m)
	}
	return res
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
