package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"schemaline/internal/domain"
	"schemaline/internal/engine"
)

type objectPath struct {
	ObjectID string `path:"object_id"`
}

func registerObjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-objects",
		Method:      http.MethodGet,
		Path:        "/objects",
		Summary:     "List visible objects",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ModelID        string `query:"model_id"`
		IncludeDeleted bool   `query:"include_deleted"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*output[ObjectPage], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "", "invalid cursor", nil)
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListObjects(ctx, actor, engine.ListOptions{
			ModelID:         input.ModelID,
			IncludeDeleted:  input.IncludeDeleted,
			Limit:           limit,
			CursorCreatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page := ObjectPage{Items: items}
		if page.Items == nil {
			page.Items = []domain.ObjectView{}
		}
		if len(items) == limit {
			last := items[len(items)-1]
			page.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		return reply(page), nil
	})

	createHandler := func(ctx context.Context, input *struct {
		ModelID string              `path:"model_id"`
		Body    CreateObjectRequest `json:"body"`
	}) (*output[domain.DataObject], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		obj, err := e.CreateObject(ctx, actor, input.ModelID, input.Body.Data)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(obj), nil
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-object",
		Method:        http.MethodPost,
		Path:          "/models/{model_id}/objects",
		Summary:       "Create object",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, createHandler)
	huma.Register(api, huma.Operation{
		OperationID:   "submit-public-object",
		Method:        http.MethodPost,
		Path:          "/public/models/{model_id}/objects",
		Summary:       "Create object without credentials",
		Description:   "Runs as the anonymous actor; the model must grant create to the anonymous role.",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, createHandler)

	huma.Register(api, huma.Operation{
		OperationID: "get-object",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}",
		Summary:     "Get object",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ObjectID       string `path:"object_id"`
		IncludeDeleted bool   `query:"include_deleted"`
	}) (*output[domain.ObjectView], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.GetObject(ctx, actor, input.ObjectID, input.IncludeDeleted)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-object",
		Method:      http.MethodPatch,
		Path:        "/objects/{object_id}",
		Summary:     "Update object data or state",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ObjectID string              `path:"object_id"`
		Body     UpdateObjectRequest `json:"body"`
	}) (*output[domain.DataObject], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		obj, err := e.UpdateObject(ctx, actor, input.ObjectID, engine.ObjectUpdateOptions{
			Data:    input.Body.Data,
			StateID: input.Body.StateID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(obj), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-object",
		Method:      http.MethodDelete,
		Path:        "/objects/{object_id}",
		Summary:     "Soft-delete object",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *objectPath) (*output[domain.DeleteResult], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SoftDeleteObject(ctx, actor, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-delete-objects",
		Method:      http.MethodPost,
		Path:        "/objects/batch-delete",
		Summary:     "Soft-delete several objects",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body ObjectIDsRequest `json:"body"`
	}) (*output[domain.BatchDeleteResult], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.BatchSoftDelete(ctx, actor, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-object",
		Method:        http.MethodPost,
		Path:          "/objects/{object_id}/convert",
		Summary:       "Convert object to another model",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ObjectID string         `path:"object_id"`
		Body     ConvertRequest `json:"body"`
	}) (*output[domain.DataObject], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		obj, err := e.ConvertObject(ctx, actor, engine.ConvertOptions{
			SourceID:       input.ObjectID,
			SourceModelID:  input.Body.SourceModelID,
			TargetModelID:  input.Body.TargetModelID,
			FieldMapping:   input.Body.FieldMapping,
			Defaults:       input.Body.Defaults,
			DeleteOriginal: input.Body.DeleteOriginal,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(obj), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-object",
		Method:      http.MethodPost,
		Path:        "/objects/{object_id}/transition",
		Summary:     "Move object to a workflow state",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ObjectID string            `path:"object_id"`
		Body     TransitionRequest `json:"body"`
	}) (*output[domain.DataObject], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		obj, err := e.TransitionObject(ctx, actor, input.ObjectID, input.Body.StateID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(obj), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "object-transitions",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/transitions",
		Summary:     "States reachable from the current state",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *objectPath) (*output[[]domain.WorkflowState], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		states, err := e.AvailableTransitions(ctx, actor, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if states == nil {
			states = []domain.WorkflowState{}
		}
		return reply(states), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "object-changelog",
		Method:      http.MethodGet,
		Path:        "/objects/{object_id}/changelog",
		Summary:     "Audit history of an object",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *objectPath) (*output[[]domain.ChangelogEntry], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := e.ObjectChangelog(ctx, actor, input.ObjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(entries), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "object-dependencies",
		Method:      http.MethodPost,
		Path:        "/objects/dependencies",
		Summary:     "Relationship graph around a batch of objects",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body ObjectIDsRequest `json:"body"`
	}) (*output[[]domain.RelationEdge], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		edges, err := e.DependencyGraph(ctx, actor, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		if edges == nil {
			edges = []domain.RelationEdge{}
		}
		return reply(edges), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "object-display",
		Method:      http.MethodPost,
		Path:        "/objects/display",
		Summary:     "Display values for a batch of objects",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body ObjectIDsRequest `json:"body"`
	}) (*output[map[string]string], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		values, err := e.DisplayValues(ctx, actor, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(values), nil
	})
}
