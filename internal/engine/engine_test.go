package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemaline/internal/config"
	"schemaline/internal/db"
	"schemaline/internal/domain"
	"schemaline/internal/engine"
	"schemaline/internal/engine/auth"
	"schemaline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Admin  auth.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	env := testEnv{Engine: eng, Ctx: context.Background(), Admin: auth.System("admin")}

	_, err = eng.PutWorkflow(env.Ctx, env.Admin, domain.Workflow{
		ID:   "review",
		Name: "Review",
		States: []domain.WorkflowState{
			{ID: "new", Name: "New", IsInitial: true, OrderIndex: 0, SuccessorStateIDs: []string{"approved"}},
			{ID: "approved", Name: "Approved", OrderIndex: 1, SuccessorStateIDs: []string{"closed"}},
			{ID: "closed", Name: "Closed", OrderIndex: 2},
		},
	})
	if err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	people := "people"
	one := domain.RelationshipOne
	workflowID := "review"
	env.mustModel(t, domain.Model{
		ID:                   "people",
		Name:                 "Person",
		DisplayPropertyNames: []string{"name"},
		Properties: []domain.Property{
			{Name: "name", Type: domain.PropertyString, Required: true, IsUnique: true},
			{Name: "email", Type: domain.PropertyString},
		},
	})
	env.mustModel(t, domain.Model{
		ID:                   "tasks",
		Name:                 "Task",
		DisplayPropertyNames: []string{"title", "owner"},
		WorkflowID:           &workflowID,
		Properties: []domain.Property{
			{Name: "title", Type: domain.PropertyString, Required: true},
			{Name: "owner", Type: domain.PropertyRelationship, RelatedModelID: &people, RelationshipType: &one},
			{Name: "estimate", Type: domain.PropertyNumber},
		},
	})
	return env
}

func (env testEnv) mustModel(t *testing.T, m domain.Model) domain.Model {
	t.Helper()
	saved, err := env.Engine.CreateModel(env.Ctx, env.Admin, m)
	if err != nil {
		t.Fatalf("create model %s: %v", m.Name, err)
	}
	return saved
}

func (env testEnv) mustCreate(t *testing.T, modelID string, data map[string]any) domain.DataObject {
	t.Helper()
	obj, err := env.Engine.CreateObject(env.Ctx, env.Admin, modelID, data)
	if err != nil {
		t.Fatalf("create %s object: %v", modelID, err)
	}
	return obj
}

func TestUniqueValueReusableAfterDelete(t *testing.T) {
	env := newTestEnv(t)
	ada := env.mustCreate(t, "people", map[string]any{"name": "Ada"})

	_, err := env.Engine.CreateObject(env.Ctx, env.Admin, "people", map[string]any{"name": " Ada "})
	require.Error(t, err)
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))

	_, err = env.Engine.SoftDeleteObject(env.Ctx, env.Admin, ada.ID)
	require.NoError(t, err)

	again, err := env.Engine.CreateObject(env.Ctx, env.Admin, "people", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.NotEqual(t, ada.ID, again.ID)
}

func TestUpdateKeepsOwnUniqueValue(t *testing.T) {
	env := newTestEnv(t)
	ada := env.mustCreate(t, "people", map[string]any{"name": "Ada"})
	env.mustCreate(t, "people", map[string]any{"name": "Alan"})

	_, err := env.Engine.UpdateObject(env.Ctx, env.Admin, ada.ID, engine.ObjectUpdateOptions{
		Data: map[string]any{"name": "Ada", "email": "ada@example.com"},
	})
	require.NoError(t, err)

	_, err = env.Engine.UpdateObject(env.Ctx, env.Admin, ada.ID, engine.ObjectUpdateOptions{
		Data: map[string]any{"name": "Alan"},
	})
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustCreate(t, "people", map[string]any{"name": "Grace"})

	first, err := env.Engine.SoftDeleteObject(env.Ctx, env.Admin, p.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyDeleted)
	require.NotNil(t, first.DeletedAt)

	second, err := env.Engine.SoftDeleteObject(env.Ctx, env.Admin, p.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyDeleted)
	assert.Equal(t, first.DeletedAt, second.DeletedAt)

	entries, err := env.Engine.ObjectChangelog(env.Ctx, env.Admin, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ChangeCreate, entries[0].ChangeType)
	assert.Equal(t, domain.ChangeDelete, entries[1].ChangeType)

	_, err = env.Engine.GetObject(env.Ctx, env.Admin, p.ID, false)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	view, err := env.Engine.GetObject(env.Ctx, env.Admin, p.ID, true)
	require.NoError(t, err)
	assert.True(t, view.IsDeleted)
}

func TestDisplayFollowsRelatedUpdates(t *testing.T) {
	env := newTestEnv(t)
	ada := env.mustCreate(t, "people", map[string]any{"name": "Ada"})
	task := env.mustCreate(t, "tasks", map[string]any{"title": "Engine", "owner": ada.ID})

	view, err := env.Engine.GetObject(env.Ctx, env.Admin, task.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Engine Ada", view.Display)

	_, err = env.Engine.UpdateObject(env.Ctx, env.Admin, ada.ID, engine.ObjectUpdateOptions{
		Data: map[string]any{"name": "Ada Lovelace"},
	})
	require.NoError(t, err)

	labels, err := env.Engine.DisplayValues(env.Ctx, env.Admin, []string{task.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{task.ID: "Engine Ada Lovelace"}, labels)
}

func TestUpdateChangelogListsChangedFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, "tasks", map[string]any{"title": "Draft", "estimate": 2})

	_, err := env.Engine.UpdateObject(env.Ctx, env.Admin, task.ID, engine.ObjectUpdateOptions{
		Data: map[string]any{"title": "Final", "estimate": 2},
	})
	require.NoError(t, err)

	entries, err := env.Engine.ObjectChangelog(env.Ctx, env.Admin, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var changes []domain.FieldChange
	require.NoError(t, json.Unmarshal(entries[1].Changes, &changes))
	assert.Equal(t, []domain.FieldChange{{Field: "title", OldValue: "Draft", NewValue: "Final"}}, changes)
	require.NotNil(t, entries[1].ChangedByUserID)
	assert.Equal(t, "admin", *entries[1].ChangedByUserID)
}

func TestRelationshipTargetMustExist(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateObject(env.Ctx, env.Admin, "tasks", map[string]any{"title": "x", "owner": "nobody"})
	assert.Equal(t, domain.KindInvalidValue, domain.KindOf(err))

	ada := env.mustCreate(t, "people", map[string]any{"name": "Ada"})
	_, err = env.Engine.SoftDeleteObject(env.Ctx, env.Admin, ada.ID)
	require.NoError(t, err)
	_, err = env.Engine.CreateObject(env.Ctx, env.Admin, "tasks", map[string]any{"title": "x", "owner": ada.ID})
	assert.NoError(t, err, "soft-deleted targets remain valid references")
}

func TestRequiredAndUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateObject(env.Ctx, env.Admin, "people", map[string]any{"email": "a@b.c"})
	assert.Equal(t, domain.KindMissingRequired, domain.KindOf(err))

	obj := env.mustCreate(t, "people", map[string]any{"name": "Linus", "shoe_size": 44})
	assert.NotContains(t, obj.Data, "shoe_size")
}

func TestWorkflowTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreate(t, "tasks", map[string]any{"title": "Ship"})
	require.NotNil(t, task.CurrentStateID)
	assert.Equal(t, "new", *task.CurrentStateID)

	_, err := env.Engine.TransitionObject(env.Ctx, env.Admin, task.ID, "closed")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))

	next, err := env.Engine.AvailableTransitions(env.Ctx, env.Admin, task.ID)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "approved", next[0].ID)

	task, err = env.Engine.TransitionObject(env.Ctx, env.Admin, task.ID, "approved")
	require.NoError(t, err)
	task, err = env.Engine.TransitionObject(env.Ctx, env.Admin, task.ID, "closed")
	require.NoError(t, err)
	assert.Equal(t, "closed", *task.CurrentStateID)

	entries, err := env.Engine.ObjectChangelog(env.Ctx, env.Admin, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	var changes []domain.FieldChange
	require.NoError(t, json.Unmarshal(entries[2].Changes, &changes))
	assert.Equal(t, []domain.FieldChange{{Field: domain.StateField, OldValue: "approved", NewValue: "closed"}}, changes)
}

func TestTransitionWithoutWorkflow(t *testing.T) {
	env := newTestEnv(t)
	p := env.mustCreate(t, "people", map[string]any{"name": "Edsger"})
	assert.Nil(t, p.CurrentStateID)
	_, err := env.Engine.TransitionObject(env.Ctx, env.Admin, p.ID, "new")
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestBatchSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, env.mustCreate(t, "people", map[string]any{"name": name}).ID)
	}
	for _, id := range ids[:2] {
		_, err := env.Engine.SoftDeleteObject(env.Ctx, env.Admin, id)
		require.NoError(t, err)
	}

	res, err := env.Engine.BatchSoftDelete(env.Ctx, env.Admin, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeletedCount)
	assert.Equal(t, 5, res.Total)
	assert.ElementsMatch(t, ids[:2], res.AlreadyDeleted)
	assert.Empty(t, res.Failed)

	res, err = env.Engine.BatchSoftDelete(env.Ctx, env.Admin, []string{ids[0], "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, domain.KindNotFound, res.Failed[0].Code)
}

func TestConvertMissingMappingCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.mustModel(t, domain.Model{
		ID:   "leads",
		Name: "Lead",
		Properties: []domain.Property{
			{Name: "full_name", Type: domain.PropertyString, Required: true},
		},
	})
	env.mustModel(t, domain.Model{
		ID:   "contacts",
		Name: "Contact",
		Properties: []domain.Property{
			{Name: "name", Type: domain.PropertyString, Required: true},
			{Name: "phone", Type: domain.PropertyString, Required: true},
		},
	})
	lead := env.mustCreate(t, "leads", map[string]any{"full_name": "Barbara Liskov"})

	_, err := env.Engine.ConvertObject(env.Ctx, env.Admin, engine.ConvertOptions{
		SourceID:      lead.ID,
		SourceModelID: "leads",
		TargetModelID: "contacts",
		FieldMapping:  map[string]string{"name": "full_name"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindMissingMapping, domain.KindOf(err))

	contacts, err := env.Engine.ListObjects(env.Ctx, env.Admin, engine.ListOptions{ModelID: "contacts", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestConvertDeletesOriginal(t *testing.T) {
	env := newTestEnv(t)
	env.mustModel(t, domain.Model{
		ID:   "leads",
		Name: "Lead",
		Properties: []domain.Property{
			{Name: "full_name", Type: domain.PropertyString, Required: true},
		},
	})
	lead := env.mustCreate(t, "leads", map[string]any{"full_name": "Barbara Liskov"})

	person, err := env.Engine.ConvertObject(env.Ctx, env.Admin, engine.ConvertOptions{
		SourceID:       lead.ID,
		SourceModelID:  "leads",
		TargetModelID:  "people",
		FieldMapping:   map[string]string{"name": "full_name"},
		Defaults:       map[string]any{"email": "unknown@example.com"},
		DeleteOriginal: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "people", person.ModelID)
	assert.Equal(t, "Barbara Liskov", person.Data["name"])
	assert.Equal(t, "unknown@example.com", person.Data["email"])
	assert.Equal(t, lead.OwnerID, person.OwnerID)

	source, err := env.Engine.GetObject(env.Ctx, env.Admin, lead.ID, true)
	require.NoError(t, err)
	assert.True(t, source.IsDeleted)

	entries, err := env.Engine.ObjectChangelog(env.Ctx, env.Admin, lead.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var snap domain.ObjectSnapshot
	require.NoError(t, json.Unmarshal(entries[1].Changes, &snap))
	assert.Equal(t, "conversion", snap.Reason)
	assert.Equal(t, person.ID, snap.ConvertedTo)
}

func TestDependencyGraphSurvivesSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "people", map[string]any{"name": "A"})
	b := env.mustCreate(t, "tasks", map[string]any{"title": "B", "owner": a.ID})
	c := env.mustCreate(t, "tasks", map[string]any{"title": "C", "owner": a.ID})

	edges, err := env.Engine.DependencyGraph(env.Ctx, env.Admin, []string{a.ID})
	require.NoError(t, err)
	require.Len(t, edges, 2)

	_, err = env.Engine.SoftDeleteObject(env.Ctx, env.Admin, a.ID)
	require.NoError(t, err)

	edges, err = env.Engine.DependencyGraph(env.Ctx, env.Admin, []string{a.ID})
	require.NoError(t, err)
	require.Len(t, edges, 2)
	related := map[string]domain.RelationEdge{}
	for _, e := range edges {
		related[e.RelatedObjectID] = e
		assert.Equal(t, domain.EdgeIncoming, e.Direction)
		assert.Equal(t, "owner", e.Links[0].PropertyName)
	}
	assert.Contains(t, related, b.ID)
	assert.Contains(t, related, c.ID)

	edges, err = env.Engine.DependencyGraph(env.Ctx, env.Admin, []string{b.ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].RelatedDeleted)
	assert.Equal(t, domain.EdgeOutgoing, edges[0].Direction)

	_, err = env.Engine.DependencyGraph(env.Ctx, env.Admin, []string{"ghost"})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestOwnerFallbackAndScope(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.DefineRole(env.Ctx, env.Admin, "submitter", "", []string{"model:create:tasks"}))
	require.NoError(t, env.Engine.GrantRole(env.Ctx, env.Admin, "bob", "submitter"))
	bob, err := env.Engine.ActorFor(env.Ctx, "bob")
	require.NoError(t, err)

	mine, err := env.Engine.CreateObject(env.Ctx, bob, "tasks", map[string]any{"title": "Bob's"})
	require.NoError(t, err)
	other := env.mustCreate(t, "tasks", map[string]any{"title": "Admin's"})

	_, err = env.Engine.GetObject(env.Ctx, bob, mine.ID, false)
	assert.NoError(t, err)
	_, err = env.Engine.GetObject(env.Ctx, bob, other.ID, false)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = env.Engine.CreateObject(env.Ctx, bob, "people", map[string]any{"name": "x"})
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	list, err := env.Engine.ListObjects(env.Ctx, bob, engine.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = env.Engine.UpdateObject(env.Ctx, bob, mine.ID, engine.ObjectUpdateOptions{Data: map[string]any{"title": "Bob's v2"}})
	assert.NoError(t, err)
}

func TestAnonymousSubmissionHasNoOwner(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.DefineRole(env.Ctx, env.Admin, auth.AnonymousRole, "", []string{"model:create:tasks"}))
	anon, err := env.Engine.AnonymousActor(env.Ctx)
	require.NoError(t, err)

	obj, err := env.Engine.CreateObject(env.Ctx, anon, "tasks", map[string]any{"title": "Feedback"})
	require.NoError(t, err)
	assert.Nil(t, obj.OwnerID)

	_, err = env.Engine.GetObject(env.Ctx, anon, obj.ID, false)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestModelAdministration(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateModel(env.Ctx, env.Admin, domain.Model{Name: "Person"})
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))

	viewer := auth.Actor{ID: "viewer", Permissions: auth.NewPermissionSet("model:view:people")}
	_, err = env.Engine.CreateModel(env.Ctx, viewer, domain.Model{Name: "Nope"})
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	models, err := env.Engine.ListModels(env.Ctx, viewer)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "people", models[0].ID)

	err = env.Engine.DeleteModel(env.Ctx, env.Admin, "people")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err), "tasks still reference people")

	env.mustCreate(t, "tasks", map[string]any{"title": "keep"})
	err = env.Engine.DeleteModel(env.Ctx, env.Admin, "tasks")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	tasks, err := env.Engine.GetModel(env.Ctx, env.Admin, "tasks")
	require.NoError(t, err)
	tasks.Properties[0].Name = "headline"
	_, err = env.Engine.UpdateModel(env.Ctx, env.Admin, tasks)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	tasks, err = env.Engine.GetModel(env.Ctx, env.Admin, "tasks")
	require.NoError(t, err)
	tasks.Properties = append(tasks.Properties, domain.Property{Name: "notes", Type: domain.PropertyMarkdown, OrderIndex: 10})
	updated, err := env.Engine.UpdateModel(env.Ctx, env.Admin, tasks)
	require.NoError(t, err)
	_, ok := updated.Property("notes")
	assert.True(t, ok)

	cached, err := env.Engine.GetModel(env.Ctx, env.Admin, "tasks")
	require.NoError(t, err)
	assert.Len(t, cached.Properties, 4)
}

func TestAPIKeyAuthentication(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.DefineRole(env.Ctx, env.Admin, "viewer", "", []string{"model:view:*"}))
	require.NoError(t, env.Engine.GrantRole(env.Ctx, env.Admin, "carol", "viewer"))

	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, env.Admin, "carol", "ci")
	require.NoError(t, err)
	assert.NotEqual(t, plain, key.KeyHash)

	carol, err := env.Engine.AuthenticateAPIKey(env.Ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, "carol", carol.ID)
	assert.True(t, carol.Permissions.Allows(auth.ActionView, "tasks"))

	_, err = env.Engine.AuthenticateAPIKey(env.Ctx, "sl_bogus")
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	err = env.Engine.GrantRole(env.Ctx, env.Admin, "carol", "ghost-role")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func makeUnique(t *testing.T, env testEnv, e engine.Engine, modelID, prop string) {
	t.Helper()
	m, err := e.GetModel(env.Ctx, env.Admin, modelID)
	require.NoError(t, err)
	for i := range m.Properties {
		if m.Properties[i].Name == prop {
			m.Properties[i].IsUnique = true
		}
	}
	_, err = e.UpdateModel(env.Ctx, env.Admin, m)
	require.NoError(t, err)
}

// withModelChange returns a copy of the engine whose first clock read, taken
// after the model is looked up and before the write transaction, makes prop
// unique.
func withModelChange(t *testing.T, env testEnv, prop string) (engine.Engine, *bool) {
	t.Helper()
	admin := env.Engine
	admin.Now = nil
	fired := false
	e := env.Engine
	e.Now = func() time.Time {
		if !fired {
			fired = true
			makeUnique(t, env, admin, "people", prop)
		}
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return e, &fired
}

func TestCreateUsesCommittedDefinition(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "people", map[string]any{"name": "Ada", "email": "x@y"})
	e, fired := withModelChange(t, env, "email")

	_, err := e.CreateObject(env.Ctx, env.Admin, "people", map[string]any{"name": "Bob", "email": "x@y"})
	require.True(t, *fired)
	require.Error(t, err)
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))

	objs, err := env.Engine.ListObjects(env.Ctx, env.Admin, engine.ListOptions{ModelID: "people"})
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}

func TestUpdateUsesCommittedDefinition(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "people", map[string]any{"name": "Ada", "email": "x@y"})
	bob := env.mustCreate(t, "people", map[string]any{"name": "Bob", "email": "bob@y"})
	e, fired := withModelChange(t, env, "email")

	_, err := e.UpdateObject(env.Ctx, env.Admin, bob.ID, engine.ObjectUpdateOptions{
		Data: map[string]any{"name": "Bob", "email": "x@y"},
	})
	require.True(t, *fired)
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))
}

func TestMakingPropertyUniqueRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "people", map[string]any{"name": "Ada", "email": "x@y"})
	bob := env.mustCreate(t, "people", map[string]any{"name": "Bob", "email": " x@y "})

	m, err := env.Engine.GetModel(env.Ctx, env.Admin, "people")
	require.NoError(t, err)
	m.Properties[1].IsUnique = true
	_, err = env.Engine.UpdateModel(env.Ctx, env.Admin, m)
	require.Error(t, err)
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))

	current, err := env.Engine.GetModel(env.Ctx, env.Admin, "people")
	require.NoError(t, err)
	email, ok := current.Property("email")
	require.True(t, ok)
	assert.False(t, email.IsUnique)

	_, err = env.Engine.SoftDeleteObject(env.Ctx, env.Admin, bob.ID)
	require.NoError(t, err)
	makeUnique(t, env, env.Engine, "people", "email")

	_, err = env.Engine.CreateObject(env.Ctx, env.Admin, "people", map[string]any{"name": "Cy", "email": "x@y"})
	assert.Equal(t, domain.KindUniqueViolation, domain.KindOf(err))
}
