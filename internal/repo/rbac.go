package repo

import (
	"context"
)

func (r Repo) InsertRole(ctx context.Context, q Querier, id, desc string) error {
	_, err := r.q(q).ExecContext(ctx, `INSERT INTO roles(id, description) VALUES (?,?)
ON CONFLICT(id) DO UPDATE SET description=COALESCE(excluded.description, roles.description)`, id, nullable(desc))
	return err
}

func (r Repo) AddRolePermission(ctx context.Context, q Querier, roleID, perm string) error {
	_, err := r.q(q).ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission) VALUES (?,?)`, roleID, perm)
	return err
}

func (r Repo) RemoveRolePermission(ctx context.Context, q Querier, roleID, perm string) error {
	_, err := r.q(q).ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id=? AND permission=?`, roleID, perm)
	return err
}

func (r Repo) AssignRole(ctx context.Context, q Querier, actorID, roleID string) error {
	_, err := r.q(q).ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role_id) VALUES (?,?)`, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, q Querier, actorID, roleID string) error {
	_, err := r.q(q).ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID)
	return err
}

func (r Repo) ActorRoles(ctx context.Context, q Querier, actorID string) ([]string, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r Repo) RolePermissions(ctx context.Context, q Querier, roleID string) ([]string, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT permission FROM role_permissions WHERE role_id=? ORDER BY permission`, roleID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r Repo) ListRoles(ctx context.Context, q Querier) ([]string, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT id FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
