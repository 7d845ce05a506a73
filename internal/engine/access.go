package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"

	"schemaline/internal/domain"
	"schemaline/internal/engine/auth"
	"schemaline/internal/repo"
)

// ActorFor builds an actor whose permissions are its granted roles.
func (e Engine) ActorFor(ctx context.Context, actorID string) (auth.Actor, error) {
	if strings.TrimSpace(actorID) == "" {
		return auth.Actor{}, auth.UnauthorizedError{Reason: "actor id required"}
	}
	perms, err := e.Auth.ActorPermissions(ctx, nil, actorID)
	if err != nil {
		return auth.Actor{}, domain.StorageFailure("load permissions", err)
	}
	return auth.Actor{ID: actorID, Permissions: perms}, nil
}

// AnonymousActor carries the permissions of the anonymous role.
func (e Engine) AnonymousActor(ctx context.Context) (auth.Actor, error) {
	perms, err := e.Auth.RolePermissions(ctx, nil, auth.AnonymousRole)
	if err != nil {
		return auth.Actor{}, domain.StorageFailure("load anonymous permissions", err)
	}
	return auth.Anonymous(perms), nil
}

// AuthenticateAPIKey resolves the actor owning key.
func (e Engine) AuthenticateAPIKey(ctx context.Context, key string) (auth.Actor, error) {
	if strings.TrimSpace(key) == "" {
		return auth.Actor{}, auth.UnauthorizedError{Reason: "empty api key"}
	}
	k, err := e.Repo.GetAPIKeyByHash(ctx, nil, repo.HashAPIKey(key))
	if errors.Is(err, repo.ErrNotFound) {
		return auth.Actor{}, auth.UnauthorizedError{Reason: "invalid api key"}
	}
	if err != nil {
		return auth.Actor{}, domain.StorageFailure("load api key", err)
	}
	return e.ActorFor(ctx, k.ActorID)
}

// DefineRole creates or extends a role with permissions.
func (e Engine) DefineRole(ctx context.Context, actor auth.Actor, roleID, description string, perms []string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		return e.defineRole(ctx, tx, roleID, description, perms)
	})
}

func (e Engine) defineRole(ctx context.Context, q repo.Querier, roleID, description string, perms []string) error {
	if strings.TrimSpace(roleID) == "" {
		return domain.InvalidValue("role", "role id required")
	}
	if err := e.Repo.InsertRole(ctx, q, roleID, description); err != nil {
		return domain.StorageFailure("insert role", err)
	}
	for _, p := range perms {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if err := e.Repo.AddRolePermission(ctx, q, roleID, p); err != nil {
			return domain.StorageFailure("add role permission", err)
		}
	}
	return nil
}

// RemoveRolePermission drops one permission from a role.
func (e Engine) RemoveRolePermission(ctx context.Context, actor auth.Actor, roleID, perm string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if err := e.Repo.RemoveRolePermission(ctx, nil, roleID, perm); err != nil {
		return domain.StorageFailure("remove role permission", err)
	}
	return nil
}

// GrantRole assigns an existing role to an actor.
func (e Engine) GrantRole(ctx context.Context, actor auth.Actor, actorID, roleID string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		return e.grantRole(ctx, tx, actorID, roleID)
	})
}

func (e Engine) grantRole(ctx context.Context, q repo.Querier, actorID, roleID string) error {
	roles, err := e.Repo.ListRoles(ctx, q)
	if err != nil {
		return domain.StorageFailure("list roles", err)
	}
	known := false
	for _, r := range roles {
		known = known || r == roleID
	}
	if !known {
		return domain.NotFound("role", roleID)
	}
	if err := e.Repo.AssignRole(ctx, q, actorID, roleID); err != nil {
		return domain.StorageFailure("assign role", err)
	}
	e.log().Info("role granted", "actor_id", actorID, "role", roleID)
	return nil
}

func (e Engine) RevokeRole(ctx context.Context, actor auth.Actor, actorID, roleID string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if err := e.Repo.RevokeRole(ctx, nil, actorID, roleID); err != nil {
		return domain.StorageFailure("revoke role", err)
	}
	e.log().Info("role revoked", "actor_id", actorID, "role", roleID)
	return nil
}

// ActorAccess lists the roles and effective permissions of actorID.
type ActorAccess struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (e Engine) ActorAccess(ctx context.Context, actorID string) (ActorAccess, error) {
	roles, err := e.Repo.ActorRoles(ctx, nil, actorID)
	if err != nil {
		return ActorAccess{}, domain.StorageFailure("list actor roles", err)
	}
	perms, err := e.Auth.ActorPermissions(ctx, nil, actorID)
	if err != nil {
		return ActorAccess{}, domain.StorageFailure("load permissions", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return ActorAccess{ActorID: actorID, Roles: roles, Permissions: perms.List()}, nil
}

// CreateAPIKey issues a key for actorID. The plain key is returned once; only
// its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actor auth.Actor, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		actorID = actor.ID
	}
	if actorID != actor.ID {
		if err := actor.RequireAdmin(); err != nil {
			return domain.APIKey{}, "", err
		}
	}
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", domain.InvalidValue("actor_id", "actor id required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", domain.StorageFailure("generate api key", err)
	}
	plain := "sl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: stamp(e.now()),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", domain.StorageFailure("insert api key", err)
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actor auth.Actor, actorID string) ([]domain.APIKey, error) {
	if actorID != actor.ID {
		if err := actor.RequireAdmin(); err != nil {
			return nil, err
		}
	}
	keys, err := e.Repo.ListAPIKeys(ctx, nil, actorID)
	if err != nil {
		return nil, domain.StorageFailure("list api keys", err)
	}
	return keys, nil
}

func (e Engine) DeleteAPIKey(ctx context.Context, actor auth.Actor, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, nil, id); err != nil {
		return notFoundOr(err, "api key", id, "delete api key")
	}
	return nil
}

// PutWorkflow creates or replaces a workflow definition.
func (e Engine) PutWorkflow(ctx context.Context, actor auth.Actor, w domain.Workflow) (domain.Workflow, error) {
	if err := actor.RequireAdmin(); err != nil {
		return domain.Workflow{}, err
	}
	if err := checkWorkflow(w); err != nil {
		return domain.Workflow{}, err
	}
	if w.CreatedAt == "" {
		w.CreatedAt = stamp(e.now())
	}
	for i := range w.States {
		w.States[i].WorkflowID = w.ID
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertWorkflow(ctx, tx, w); err != nil {
			return domain.StorageFailure("upsert workflow", err)
		}
		return nil
	})
	if err != nil {
		return domain.Workflow{}, err
	}
	return e.GetWorkflow(ctx, w.ID)
}

func checkWorkflow(w domain.Workflow) error {
	if strings.TrimSpace(w.ID) == "" {
		return domain.InvalidValue("id", "workflow id required")
	}
	ids := map[string]bool{}
	for _, s := range w.States {
		if s.ID == "" {
			return domain.InvalidValue("states", "state id required")
		}
		if ids[s.ID] {
			return domain.InvalidValue("states", "duplicate state %s", s.ID)
		}
		ids[s.ID] = true
	}
	for _, s := range w.States {
		for _, next := range s.SuccessorStateIDs {
			if !ids[next] {
				return domain.InvalidValue("states", "state %s lists unknown successor %s", s.ID, next)
			}
		}
	}
	return nil
}
