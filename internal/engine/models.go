package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"schemaline/internal/domain"
	"schemaline/internal/engine/auth"
	"schemaline/internal/repo"
	"schemaline/internal/schema"
)

// GetModel returns a model definition the actor can work with: admins and
// holders of a view or create grant on it.
func (e Engine) GetModel(ctx context.Context, actor auth.Actor, id string) (domain.Model, error) {
	m, err := e.Registry.GetModel(ctx, id)
	if err != nil {
		return domain.Model{}, err
	}
	if !canUseModel(actor, id) {
		return domain.Model{}, auth.ForbiddenError{Permission: string(auth.ActionView) + ":" + id}
	}
	return m, nil
}

// ListModels returns the definitions visible to actor.
func (e Engine) ListModels(ctx context.Context, actor auth.Actor) ([]domain.Model, error) {
	all, err := e.Registry.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Model, 0, len(all))
	for _, m := range all {
		if canUseModel(actor, m.ID) {
			res = append(res, m)
		}
	}
	return res, nil
}

func canUseModel(actor auth.Actor, id string) bool {
	return actor.RequireAdmin() == nil ||
		actor.Permissions.Allows(auth.ActionView, id) ||
		actor.Permissions.Allows(auth.ActionCreate, id)
}

// CreateModel stores a new model definition. Missing ids are generated and
// properties without an explicit order keep their list position.
func (e Engine) CreateModel(ctx context.Context, actor auth.Actor, m domain.Model) (domain.Model, error) {
	if err := actor.RequireAdmin(); err != nil {
		return domain.Model{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m = normalizeModel(m, nil)
	now := stamp(e.now())
	m.CreatedAt, m.UpdatedAt = now, now

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetModel(ctx, tx, m.ID); err == nil {
			return domain.Conflict("model %s already exists", m.ID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.StorageFailure("load model", err)
		}
		if err := e.checkDefinition(ctx, tx, m); err != nil {
			return err
		}
		if err := e.Repo.InsertModel(ctx, tx, m); err != nil {
			return domain.StorageFailure("insert model", err)
		}
		return nil
	})
	e.Registry.Invalidate()
	if err != nil {
		return domain.Model{}, err
	}
	e.log().Info("model created", "model_id", m.ID, "name", m.Name, "actor_id", actor.ID)
	return m, nil
}

// UpdateModel replaces a model definition. Properties are matched to the
// stored ones by id, then by name. Renaming or retyping a property is refused
// while the model holds objects, and the unique index is rebuilt.
func (e Engine) UpdateModel(ctx context.Context, actor auth.Actor, m domain.Model) (domain.Model, error) {
	if err := actor.RequireAdmin(); err != nil {
		return domain.Model{}, err
	}
	var saved domain.Model
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetModel(ctx, tx, m.ID)
		if err != nil {
			return notFoundOr(err, "model", m.ID, "load model")
		}
		next := normalizeModel(m, &current)
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = stamp(e.now())
		count, err := e.Repo.CountObjects(ctx, tx, next.ID)
		if err != nil {
			return domain.StorageFailure("count objects", err)
		}
		if count > 0 {
			if err := checkCompatible(current, next); err != nil {
				return err
			}
		}
		if err := e.checkDefinition(ctx, tx, next); err != nil {
			return err
		}
		if err := e.Repo.UpdateModel(ctx, tx, next); err != nil {
			return notFoundOr(err, "model", next.ID, "update model")
		}
		if err := e.rebuildUniqueIndex(ctx, tx, next); err != nil {
			return err
		}
		saved = next
		return nil
	})
	e.Registry.Invalidate()
	if err != nil {
		return domain.Model{}, err
	}
	e.log().Info("model updated", "model_id", saved.ID, "actor_id", actor.ID)
	return saved, nil
}

// DeleteModel removes a definition that holds no objects and that no other
// model references.
func (e Engine) DeleteModel(ctx context.Context, actor auth.Actor, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetModel(ctx, tx, id); err != nil {
			return notFoundOr(err, "model", id, "load model")
		}
		count, err := e.Repo.CountObjects(ctx, tx, id)
		if err != nil {
			return domain.StorageFailure("count objects", err)
		}
		if count > 0 {
			return domain.Conflict("model %s still holds %d objects", id, count)
		}
		refs, err := e.Repo.ModelsReferencing(ctx, tx, id)
		if err != nil {
			return domain.StorageFailure("find references", err)
		}
		if len(refs) > 0 {
			return domain.Conflict("model %s is referenced by %s", id, strings.Join(refs, ", "))
		}
		if err := e.Repo.DeleteModel(ctx, tx, id); err != nil {
			return notFoundOr(err, "model", id, "delete model")
		}
		return nil
	})
	e.Registry.Invalidate()
	if err != nil {
		return err
	}
	e.log().Info("model deleted", "model_id", id, "actor_id", actor.ID)
	return nil
}

// normalizeModel fills namespace, property ids and order. With current set,
// properties without an id reuse the id of the stored property of that name.
func normalizeModel(m domain.Model, current *domain.Model) domain.Model {
	if strings.TrimSpace(m.Namespace) == "" {
		m.Namespace = domain.DefaultNamespace
	}
	if m.DisplayPropertyNames == nil {
		m.DisplayPropertyNames = []string{}
	}
	sameOrder := true
	for i, p := range m.Properties {
		if i > 0 && p.OrderIndex != m.Properties[0].OrderIndex {
			sameOrder = false
		}
	}
	props := make([]domain.Property, len(m.Properties))
	for i, p := range m.Properties {
		p.ModelID = m.ID
		if p.ID == "" && current != nil {
			if old, ok := current.Property(p.Name); ok {
				p.ID = old.ID
			}
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if sameOrder {
			p.OrderIndex = i
		}
		props[i] = p
	}
	m.Properties = props
	return m
}

func (e Engine) checkDefinition(ctx context.Context, q repo.Querier, m domain.Model) error {
	taken, err := e.Repo.ModelNameTaken(ctx, q, m.Name, m.ID)
	if err != nil {
		return domain.StorageFailure("check model name", err)
	}
	if taken {
		return domain.UniqueViolation("name", m.Name)
	}
	var lookupErr error
	exists := func(id string) bool {
		_, err := e.Repo.GetModel(ctx, q, id)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			lookupErr = err
		}
		return err == nil
	}
	if err := schema.CheckModel(m, exists); err != nil {
		if lookupErr != nil {
			return domain.StorageFailure("check related models", lookupErr)
		}
		return err
	}
	if m.WorkflowID != nil {
		if _, err := e.Repo.GetWorkflow(ctx, q, *m.WorkflowID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.InvalidValue("workflow_id", "workflow %s does not exist", *m.WorkflowID)
			}
			return domain.StorageFailure("load workflow", err)
		}
	}
	return nil
}

// checkCompatible refuses definition changes that would strand stored data.
func checkCompatible(current, next domain.Model) error {
	byID := map[string]domain.Property{}
	for _, p := range current.Properties {
		byID[p.ID] = p
	}
	for _, p := range next.Properties {
		old, ok := byID[p.ID]
		if !ok {
			continue
		}
		if old.Name != p.Name {
			return domain.Conflict("cannot rename property %s to %s while objects exist", old.Name, p.Name)
		}
		if old.Type != p.Type {
			return domain.Conflict("cannot change type of %s while objects exist", p.Name)
		}
	}
	return nil
}

// rebuildUniqueIndex reclaims unique values of live objects after a
// definition change. Existing duplicates fail the update.
func (e Engine) rebuildUniqueIndex(ctx context.Context, q repo.Querier, m domain.Model) error {
	if err := e.Repo.ClearUniqueValues(ctx, q, m.ID); err != nil {
		return domain.StorageFailure("clear unique values", err)
	}
	unique := false
	for _, p := range m.Properties {
		unique = unique || p.IsUnique
	}
	if !unique {
		return nil
	}
	objs, err := e.Repo.ObjectsByModels(ctx, q, []string{m.ID}, false)
	if err != nil {
		return domain.StorageFailure("load objects", err)
	}
	for _, o := range objs {
		if err := e.claimUnique(ctx, q, m, o.Data, o.ID); err != nil {
			return err
		}
	}
	return nil
}
