package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"schemaline/internal/domain"
	"schemaline/internal/repo"
)

// Wildcard grants every capability.
const Wildcard = "*"

// AnonymousRole names the role whose permissions public submissions run with.
const AnonymousRole = "anonymous"

type Action string

const (
	ActionView   Action = "model:view"
	ActionCreate Action = "model:create"
	ActionEdit   Action = "model:edit"
	ActionDelete Action = "model:delete"
	// ActionAdmin is global: it gates model definition writes.
	ActionAdmin Action = "model:admin"
)

// ownerGated actions fall back to ownership when the model scope is missing.
func (a Action) ownerGated() bool {
	return a == ActionView || a == ActionEdit || a == ActionDelete
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

func (e ForbiddenError) Kind() domain.Kind { return domain.KindForbidden }

// UnauthorizedError indicates the caller could not be identified.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

func (e UnauthorizedError) Kind() domain.Kind { return domain.KindUnauthorized }

// PermissionSet is an unordered set of capability strings.
type PermissionSet map[string]struct{}

func NewPermissionSet(perms ...string) PermissionSet {
	s := PermissionSet{}
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" {
			s[p] = struct{}{}
		}
	}
	return s
}

func (s PermissionSet) Has(perm string) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	_, ok := s[perm]
	return ok
}

func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Allows reports whether action is granted on modelID, either directly or
// through the wildcard or an "<action>:*" grant.
func (s PermissionSet) Allows(action Action, modelID string) bool {
	return s.Has(string(action)+":"+modelID) || s.Has(string(action)+":*")
}

// ModelScope is the set of models an action is granted on.
type ModelScope struct {
	All      bool
	ModelIDs map[string]bool
}

func (m ModelScope) Contains(modelID string) bool {
	return m.All || m.ModelIDs[modelID]
}

// IDs returns the scoped model ids in sorted order; empty when All is set.
func (m ModelScope) IDs() []string {
	out := make([]string, 0, len(m.ModelIDs))
	for id := range m.ModelIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ScopeModels derives the models an action reaches from "<action>:<modelId>" grants.
func (s PermissionSet) ScopeModels(action Action) ModelScope {
	if s.Has(Wildcard) || s.Has(string(action)+":*") {
		return ModelScope{All: true}
	}
	prefix := string(action) + ":"
	scope := ModelScope{ModelIDs: map[string]bool{}}
	for p := range s {
		if id, ok := strings.CutPrefix(p, prefix); ok && id != "" {
			scope.ModelIDs[id] = true
		}
	}
	return scope
}

// Actor is the acting caller of an engine operation.
type Actor struct {
	ID          string
	Anonymous   bool
	Permissions PermissionSet
}

// Anonymous builds the public actor with the given permissions.
func Anonymous(perms PermissionSet) Actor {
	return Actor{Anonymous: true, Permissions: perms}
}

// System has every permission; it is used by bootstrap code.
func System(id string) Actor {
	return Actor{ID: id, Permissions: NewPermissionSet(Wildcard)}
}

// OwnerID is the owner recorded on objects this actor creates.
func (a Actor) OwnerID() *string {
	if a.Anonymous || a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

func (a Actor) owns(ownerID *string) bool {
	return !a.Anonymous && a.ID != "" && ownerID != nil && *ownerID == a.ID
}

// Require checks a model-level grant.
func (a Actor) Require(action Action, modelID string) error {
	if a.Permissions.Allows(action, modelID) {
		return nil
	}
	return ForbiddenError{Permission: string(action) + ":" + modelID}
}

// RequireOnObject checks a grant on one object, accepting ownership for
// view, edit and delete.
func (a Actor) RequireOnObject(action Action, modelID string, ownerID *string) error {
	if a.Permissions.Allows(action, modelID) {
		return nil
	}
	if action.ownerGated() && a.owns(ownerID) {
		return nil
	}
	return ForbiddenError{Permission: string(action) + ":" + modelID}
}

func (a Actor) CanSee(modelID string, ownerID *string) bool {
	return a.RequireOnObject(ActionView, modelID, ownerID) == nil
}

func (a Actor) RequireAdmin() error {
	if a.Permissions.Has(string(ActionAdmin)) {
		return nil
	}
	return ForbiddenError{Permission: string(ActionAdmin)}
}

// Service resolves role grants stored in SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) q(q repo.Querier) repo.Querier {
	if q != nil {
		return q
	}
	return s.DB
}

func (s Service) ActorPermissions(ctx context.Context, q repo.Querier, actorID string) (PermissionSet, error) {
	rows, err := s.q(q).QueryContext(ctx, `
SELECT DISTINCT rp.permission
FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.actor_id=?`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := PermissionSet{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms[p] = struct{}{}
	}
	return perms, rows.Err()
}

func (s Service) RolePermissions(ctx context.Context, q repo.Querier, roleID string) (PermissionSet, error) {
	rows, err := s.q(q).QueryContext(ctx, `SELECT permission FROM role_permissions WHERE role_id=?`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := PermissionSet{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms[p] = struct{}{}
	}
	return perms, rows.Err()
}
