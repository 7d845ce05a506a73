package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"schemaline/internal/changelog"
	"schemaline/internal/domain"
	"schemaline/internal/engine/auth"
	"schemaline/internal/repo"
	"schemaline/internal/schema"
	"schemaline/internal/workflow"
)

// ObjectUpdateOptions are parameters for updating an object. A nil Data keeps
// the current data map; a nil StateID keeps the current state.
type ObjectUpdateOptions struct {
	Data    map[string]any
	StateID *string
}

// ConvertOptions are parameters for converting an object to another model.
// FieldMapping maps target property names to source property names.
type ConvertOptions struct {
	SourceID       string
	SourceModelID  string
	TargetModelID  string
	FieldMapping   map[string]string
	Defaults       map[string]any
	DeleteOriginal bool
}

// CreateObject validates data against the model, assigns the workflow's
// initial state and stores the object with a CREATE audit entry.
func (e Engine) CreateObject(ctx context.Context, actor auth.Actor, modelID string, data map[string]any) (domain.DataObject, error) {
	model, err := e.Registry.GetModel(ctx, modelID)
	if err != nil {
		return domain.DataObject{}, err
	}
	if err := actor.Require(auth.ActionCreate, modelID); err != nil {
		return domain.DataObject{}, err
	}
	now := e.now()
	var obj domain.DataObject
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		model, err := e.txModel(ctx, tx, model.ID)
		if err != nil {
			return err
		}
		prepared, err := schema.PrepareData(model, data, nil, schema.ModeCreate, now)
		if err != nil {
			return err
		}
		obj = domain.DataObject{
			ID:        uuid.NewString(),
			ModelID:   model.ID,
			Data:      prepared,
			OwnerID:   actor.OwnerID(),
			CreatedAt: stamp(now),
			UpdatedAt: stamp(now),
		}
		obj, err = e.insertObject(ctx, tx, model, obj, actor, changelog.Snapshot(obj))
		return err
	})
	if err != nil {
		return domain.DataObject{}, err
	}
	e.log().Debug("object created", "object_id", obj.ID, "model_id", obj.ModelID, "actor_id", actor.ID)
	return obj, nil
}

// insertObject runs the shared create steps inside tx: relationship and
// uniqueness checks, initial state, insert, and the CREATE entry.
func (e Engine) insertObject(ctx context.Context, tx *sql.Tx, model domain.Model, obj domain.DataObject, actor auth.Actor, snap domain.ObjectSnapshot) (domain.DataObject, error) {
	if err := e.checkRelations(ctx, tx, model, obj.Data); err != nil {
		return obj, err
	}
	if err := e.checkUnique(ctx, tx, model, obj.Data, obj.ID); err != nil {
		return obj, err
	}
	states, err := e.workflowStates(ctx, tx, model)
	if err != nil {
		return obj, err
	}
	if model.WorkflowID != nil {
		if s, ok := workflow.InitialState(states); ok {
			id := s.ID
			obj.CurrentStateID = &id
		} else {
			e.log().Warn("workflow has no initial state; object created without state",
				"model_id", model.ID, "workflow_id", *model.WorkflowID)
		}
	}
	if err := e.Repo.InsertObject(ctx, tx, obj); err != nil {
		return obj, domain.StorageFailure("insert object", err)
	}
	if err := e.claimUnique(ctx, tx, model, obj.Data, obj.ID); err != nil {
		return obj, err
	}
	snap.CurrentStateID = obj.CurrentStateID
	if _, err := e.audit().Append(ctx, tx, obj, domain.ChangeCreate, actor.ID, snap); err != nil {
		return obj, domain.StorageFailure("append changelog", err)
	}
	return obj, nil
}

// UpdateObject replaces the object's data map and optionally moves it to a
// new workflow state. The UPDATE entry lists every changed field.
func (e Engine) UpdateObject(ctx context.Context, actor auth.Actor, objectID string, opts ObjectUpdateOptions) (domain.DataObject, error) {
	current, err := e.Repo.GetObject(ctx, nil, objectID)
	if err != nil {
		return domain.DataObject{}, notFoundOr(err, "object", objectID, "load object")
	}
	if current.IsDeleted {
		return domain.DataObject{}, domain.NotFound("object", objectID)
	}
	if err := actor.RequireOnObject(auth.ActionEdit, current.ModelID, current.OwnerID); err != nil {
		return domain.DataObject{}, err
	}
	now := e.now()
	var updated domain.DataObject
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		old, err := e.Repo.GetObject(ctx, tx, objectID)
		if err != nil {
			return notFoundOr(err, "object", objectID, "load object")
		}
		if old.IsDeleted {
			return domain.NotFound("object", objectID)
		}
		model, err := e.txModel(ctx, tx, old.ModelID)
		if err != nil {
			return err
		}
		next := old
		next.UpdatedAt = stamp(now)
		if opts.Data != nil {
			next.Data, err = schema.PrepareData(model, opts.Data, old.Data, schema.ModeUpdate, now)
			if err != nil {
				return err
			}
			if err := e.checkRelations(ctx, tx, model, next.Data); err != nil {
				return err
			}
		}
		if opts.StateID != nil {
			if err := e.checkTransition(ctx, tx, model, old.CurrentStateID, *opts.StateID); err != nil {
				return err
			}
			target := *opts.StateID
			next.CurrentStateID = &target
		}
		if opts.Data != nil {
			if err := e.Repo.ReleaseUniqueValues(ctx, tx, old.ID); err != nil {
				return domain.StorageFailure("release unique values", err)
			}
			if err := e.checkUnique(ctx, tx, model, next.Data, old.ID); err != nil {
				return err
			}
			if err := e.claimUnique(ctx, tx, model, next.Data, old.ID); err != nil {
				return err
			}
		}
		if err := e.Repo.UpdateObject(ctx, tx, next); err != nil {
			return notFoundOr(err, "object", objectID, "update object")
		}
		changes := changelog.Diff(old.Data, next.Data)
		if sc := changelog.StateChange(old.CurrentStateID, next.CurrentStateID); sc != nil {
			changes = append(changes, *sc)
		}
		if _, err := e.audit().Append(ctx, tx, next, domain.ChangeUpdate, actor.ID, changes); err != nil {
			return domain.StorageFailure("append changelog", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.DataObject{}, err
	}
	e.log().Debug("object updated", "object_id", updated.ID, "actor_id", actor.ID)
	return updated, nil
}

// TransitionObject moves an object to another workflow state without
// touching its data.
func (e Engine) TransitionObject(ctx context.Context, actor auth.Actor, objectID, stateID string) (domain.DataObject, error) {
	return e.UpdateObject(ctx, actor, objectID, ObjectUpdateOptions{StateID: &stateID})
}

// AvailableTransitions lists the states the object can move to next.
func (e Engine) AvailableTransitions(ctx context.Context, actor auth.Actor, objectID string) ([]domain.WorkflowState, error) {
	obj, err := e.visibleObject(ctx, actor, objectID, false)
	if err != nil {
		return nil, err
	}
	model, err := e.Registry.GetModel(ctx, obj.ModelID)
	if err != nil {
		return nil, err
	}
	states, err := e.workflowStates(ctx, nil, model)
	if err != nil {
		return nil, err
	}
	return workflow.Successors(states, obj.CurrentStateID), nil
}

func (e Engine) checkTransition(ctx context.Context, q repo.Querier, model domain.Model, current *string, target string) error {
	from := ""
	if current != nil {
		from = *current
	}
	if model.WorkflowID == nil {
		return domain.InvalidTransition(from, target)
	}
	states, err := e.workflowStates(ctx, q, model)
	if err != nil {
		return err
	}
	return workflow.EnsureTransition(states, current, target)
}

// SoftDeleteObject flags an object deleted. Deleting an already deleted
// object is a no-op reported through AlreadyDeleted.
func (e Engine) SoftDeleteObject(ctx context.Context, actor auth.Actor, objectID string) (domain.DeleteResult, error) {
	var res domain.DeleteResult
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		obj, err := e.Repo.GetObject(ctx, tx, objectID)
		if err != nil {
			return notFoundOr(err, "object", objectID, "load object")
		}
		if err := actor.RequireOnObject(auth.ActionDelete, obj.ModelID, obj.OwnerID); err != nil {
			return err
		}
		res, err = e.softDelete(ctx, tx, obj, actor, changelog.Snapshot(obj))
		return err
	})
	if err != nil {
		return domain.DeleteResult{}, err
	}
	return res, nil
}

func (e Engine) softDelete(ctx context.Context, tx *sql.Tx, obj domain.DataObject, actor auth.Actor, snap domain.ObjectSnapshot) (domain.DeleteResult, error) {
	res := domain.DeleteResult{ObjectID: obj.ID}
	if obj.IsDeleted {
		res.AlreadyDeleted = true
		res.DeletedAt = obj.DeletedAt
		return res, nil
	}
	at := stamp(e.now())
	changed, err := e.Repo.SoftDeleteObject(ctx, tx, obj.ID, at)
	if err != nil {
		return res, notFoundOr(err, "object", obj.ID, "soft delete object")
	}
	if !changed {
		res.AlreadyDeleted = true
		return res, nil
	}
	if err := e.Repo.ReleaseUniqueValues(ctx, tx, obj.ID); err != nil {
		return res, domain.StorageFailure("release unique values", err)
	}
	obj.IsDeleted = true
	obj.DeletedAt = &at
	if _, err := e.audit().Append(ctx, tx, obj, domain.ChangeDelete, actor.ID, snap); err != nil {
		return res, domain.StorageFailure("append changelog", err)
	}
	res.DeletedAt = &at
	return res, nil
}

// BatchSoftDelete deletes each object independently inside one transaction.
// Missing or forbidden objects are reported and skipped; storage failures
// abort the whole batch.
func (e Engine) BatchSoftDelete(ctx context.Context, actor auth.Actor, objectIDs []string) (domain.BatchDeleteResult, error) {
	res := domain.BatchDeleteResult{Total: len(objectIDs)}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range objectIDs {
			obj, err := e.Repo.GetObject(ctx, tx, id)
			if errors.Is(err, repo.ErrNotFound) {
				res.Failed = append(res.Failed, domain.BatchFailure{ObjectID: id, Code: domain.KindNotFound, Message: "object not found"})
				continue
			}
			if err != nil {
				return domain.StorageFailure("load object", err)
			}
			if err := actor.RequireOnObject(auth.ActionDelete, obj.ModelID, obj.OwnerID); err != nil {
				res.Failed = append(res.Failed, domain.BatchFailure{ObjectID: id, Code: domain.KindForbidden, Message: err.Error()})
				continue
			}
			r, err := e.softDelete(ctx, tx, obj, actor, changelog.Snapshot(obj))
			if err != nil {
				return err
			}
			if r.AlreadyDeleted {
				res.AlreadyDeleted = append(res.AlreadyDeleted, id)
				continue
			}
			res.DeletedCount++
		}
		return nil
	})
	if err != nil {
		return domain.BatchDeleteResult{}, err
	}
	e.log().Debug("batch delete", "deleted", res.DeletedCount, "total", res.Total, "actor_id", actor.ID)
	return res, nil
}

// ConvertObject copies an object into another model through a field mapping.
// The new object keeps the source owner. A required target property with no
// mapping and no default aborts before anything is written. An empty
// SourceModelID is taken from the source object.
func (e Engine) ConvertObject(ctx context.Context, actor auth.Actor, opts ConvertOptions) (domain.DataObject, error) {
	if opts.SourceModelID == "" {
		src, err := e.Repo.GetObject(ctx, nil, opts.SourceID)
		if err != nil {
			return domain.DataObject{}, notFoundOr(err, "object", opts.SourceID, "load object")
		}
		opts.SourceModelID = src.ModelID
	}
	srcModel, err := e.Registry.GetModel(ctx, opts.SourceModelID)
	if err != nil {
		return domain.DataObject{}, err
	}
	target, err := e.Registry.GetModel(ctx, opts.TargetModelID)
	if err != nil {
		return domain.DataObject{}, err
	}
	if err := actor.Require(auth.ActionCreate, target.ID); err != nil {
		return domain.DataObject{}, err
	}
	if err := checkMapping(srcModel, target, opts); err != nil {
		return domain.DataObject{}, err
	}

	now := e.now()
	var created domain.DataObject
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		srcModel, err := e.txModel(ctx, tx, srcModel.ID)
		if err != nil {
			return err
		}
		target, err := e.txModel(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		if err := checkMapping(srcModel, target, opts); err != nil {
			return err
		}
		src, err := e.Repo.GetObject(ctx, tx, opts.SourceID)
		if err != nil {
			return notFoundOr(err, "object", opts.SourceID, "load object")
		}
		if src.IsDeleted || src.ModelID != srcModel.ID {
			return domain.NotFound("object", opts.SourceID)
		}
		if err := actor.RequireOnObject(auth.ActionView, src.ModelID, src.OwnerID); err != nil {
			return err
		}
		if opts.DeleteOriginal {
			if err := actor.RequireOnObject(auth.ActionDelete, src.ModelID, src.OwnerID); err != nil {
				return err
			}
		}
		data, err := mapFields(target, src, opts)
		if err != nil {
			return err
		}
		prepared, err := schema.PrepareData(target, data, nil, schema.ModeCreate, now)
		if err != nil {
			return err
		}
		obj := domain.DataObject{
			ID:        uuid.NewString(),
			ModelID:   target.ID,
			Data:      prepared,
			OwnerID:   src.OwnerID,
			CreatedAt: stamp(now),
			UpdatedAt: stamp(now),
		}
		snap := changelog.Snapshot(obj)
		snap.Reason = "conversion"
		snap.ConvertedFrom = src.ID
		created, err = e.insertObject(ctx, tx, target, obj, actor, snap)
		if err != nil {
			return err
		}
		if opts.DeleteOriginal {
			del := changelog.Snapshot(src)
			del.Reason = "conversion"
			del.ConvertedTo = created.ID
			if _, err := e.softDelete(ctx, tx, src, actor, del); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.DataObject{}, err
	}
	e.log().Info("object converted", "source_id", opts.SourceID, "object_id", created.ID,
		"target_model_id", target.ID, "deleted_original", opts.DeleteOriginal)
	return created, nil
}

// txModel reads the model definition inside tx. Object writes validate
// against it rather than the registry copy.
func (e Engine) txModel(ctx context.Context, tx *sql.Tx, id string) (domain.Model, error) {
	m, err := e.Repo.GetModel(ctx, tx, id)
	if err != nil {
		return m, notFoundOr(err, "model", id, "load model")
	}
	return m, nil
}

func checkMapping(srcModel, target domain.Model, opts ConvertOptions) error {
	for targetName, sourceName := range opts.FieldMapping {
		if _, ok := target.Property(targetName); !ok {
			return domain.InvalidValue("field_mapping", "%s is not a property of %s", targetName, target.Name)
		}
		if _, ok := srcModel.Property(sourceName); !ok {
			return domain.InvalidValue("field_mapping", "%s is not a property of %s", sourceName, srcModel.Name)
		}
	}
	for name := range opts.Defaults {
		if _, ok := target.Property(name); !ok {
			return domain.InvalidValue("defaults", "%s is not a property of %s", name, target.Name)
		}
	}
	return nil
}

func mapFields(target domain.Model, src domain.DataObject, opts ConvertOptions) (map[string]any, error) {
	data := map[string]any{}
	for _, p := range target.Properties {
		var v any
		sourceName, mapped := opts.FieldMapping[p.Name]
		if mapped {
			v = src.Data[sourceName]
		}
		if schema.IsEmpty(v) {
			if d, ok := opts.Defaults[p.Name]; ok {
				v = d
			}
		}
		if schema.IsEmpty(v) && p.Required && p.DefaultValue == nil && !p.AutoSetOnCreate && !p.AutoSetOnUpdate {
			if mapped {
				return nil, domain.MissingRequired(p.Name)
			}
			return nil, domain.MissingMapping(p.Name)
		}
		data[p.Name] = v
	}
	return data, nil
}

// checkRelations verifies that relationship values reference objects of the
// related model. Soft-deleted targets are accepted.
func (e Engine) checkRelations(ctx context.Context, q repo.Querier, model domain.Model, data map[string]any) error {
	for _, p := range model.Properties {
		if p.Type != domain.PropertyRelationship || p.RelatedModelID == nil {
			continue
		}
		ids := schema.RelationIDs(p, data[p.Name])
		if len(ids) == 0 {
			continue
		}
		found, err := e.Repo.ExistingObjectIDs(ctx, q, *p.RelatedModelID, ids)
		if err != nil {
			return domain.StorageFailure("check relationships", err)
		}
		for _, id := range ids {
			if !found[id] {
				return domain.InvalidValue(p.Name, "object %s does not exist in model %s", id, *p.RelatedModelID)
			}
		}
	}
	return nil
}

// checkUnique looks for a live object of the model already holding one of
// data's unique values.
func (e Engine) checkUnique(ctx context.Context, q repo.Querier, model domain.Model, data map[string]any, selfID string) error {
	for _, p := range model.Properties {
		key := schema.UniqueKey(p, data[p.Name])
		if key == "" {
			continue
		}
		_, err := e.Repo.FindLiveValue(ctx, q, model.ID, p.Name, key, selfID)
		if err == nil {
			return domain.UniqueViolation(p.Name, key)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.StorageFailure("check uniqueness", err)
		}
	}
	return nil
}

// claimUnique records data's unique values in the unique index. The index
// primary key rejects a concurrent writer that passed checkUnique with the
// same value.
func (e Engine) claimUnique(ctx context.Context, q repo.Querier, model domain.Model, data map[string]any, objectID string) error {
	for _, p := range model.Properties {
		key := schema.UniqueKey(p, data[p.Name])
		if key == "" {
			continue
		}
		err := e.Repo.ClaimUniqueValue(ctx, q, model.ID, p.Name, key, objectID)
		if errors.Is(err, repo.ErrValueTaken) {
			return domain.UniqueViolation(p.Name, key)
		}
		if err != nil {
			return domain.StorageFailure(fmt.Sprintf("claim unique %s", p.Name), err)
		}
	}
	return nil
}
