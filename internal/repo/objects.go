package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"schemaline/internal/domain"
)

const objectColumns = `id,model_id,data_json,current_state_id,owner_id,is_deleted,deleted_at,created_at,updated_at`

func scanObject(row rowScanner) (domain.DataObject, error) {
	var o domain.DataObject
	var data string
	var state, owner, deletedAt sql.NullString
	var deleted int
	if err := row.Scan(&o.ID, &o.ModelID, &data, &state, &owner, &deleted, &deletedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return o, ErrNotFound
		}
		return o, err
	}
	if err := json.Unmarshal([]byte(data), &o.Data); err != nil {
		return o, fmt.Errorf("object %s data_json: %w", o.ID, err)
	}
	if o.Data == nil {
		o.Data = map[string]any{}
	}
	o.CurrentStateID = stringPtr(state)
	o.OwnerID = stringPtr(owner)
	o.IsDeleted = deleted == 1
	o.DeletedAt = stringPtr(deletedAt)
	return o, nil
}

func scanObjects(rows *sql.Rows) ([]domain.DataObject, error) {
	defer rows.Close()
	var res []domain.DataObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) InsertObject(ctx context.Context, q Querier, o domain.DataObject) error {
	data, err := marshalJSON(o.Data)
	if err != nil {
		return fmt.Errorf("marshal object data: %w", err)
	}
	_, err = r.q(q).ExecContext(ctx, `INSERT INTO objects(`+objectColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.ModelID, data, nullableStringPtr(o.CurrentStateID), nullableStringPtr(o.OwnerID),
		boolInt(o.IsDeleted), nullableStringPtr(o.DeletedAt), o.CreatedAt, o.UpdatedAt)
	return err
}

// UpdateObject replaces the data map, state and updated_at of a live object.
func (r Repo) UpdateObject(ctx context.Context, q Querier, o domain.DataObject) error {
	data, err := marshalJSON(o.Data)
	if err != nil {
		return fmt.Errorf("marshal object data: %w", err)
	}
	res, err := r.q(q).ExecContext(ctx, `UPDATE objects SET data_json=?, current_state_id=?, updated_at=? WHERE id=? AND is_deleted=0`,
		data, nullableStringPtr(o.CurrentStateID), o.UpdatedAt, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteObject flags a live object as deleted. It reports false when the
// object was already deleted and ErrNotFound when it does not exist.
func (r Repo) SoftDeleteObject(ctx context.Context, q Querier, id, deletedAt string) (bool, error) {
	res, err := r.q(q).ExecContext(ctx, `UPDATE objects SET is_deleted=1, deleted_at=?, updated_at=? WHERE id=? AND is_deleted=0`, deletedAt, deletedAt, id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	var exists int
	err = r.q(q).QueryRowContext(ctx, `SELECT 1 FROM objects WHERE id=?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return false, err
}

// GetObject returns an object whether or not it is soft-deleted.
func (r Repo) GetObject(ctx context.Context, q Querier, id string) (domain.DataObject, error) {
	return scanObject(r.q(q).QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE id=?`, id))
}

// GetObjects loads the given ids, deleted ones included. Unknown ids are skipped.
func (r Repo) GetObjects(ctx context.Context, q Querier, ids []string) ([]domain.DataObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE id IN (`+placeholders(len(ids))+`) ORDER BY created_at, id`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	return scanObjects(rows)
}

// ObjectsByModels returns every object of the given models.
func (r Repo) ObjectsByModels(ctx context.Context, q Querier, modelIDs []string, includeDeleted bool) ([]domain.DataObject, error) {
	if len(modelIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + objectColumns + ` FROM objects WHERE model_id IN (` + placeholders(len(modelIDs)) + `)`
	if !includeDeleted {
		query += ` AND is_deleted=0`
	}
	rows, err := r.q(q).QueryContext(ctx, query+` ORDER BY created_at, id`, stringArgs(modelIDs)...)
	if err != nil {
		return nil, err
	}
	return scanObjects(rows)
}

type ObjectFilters struct {
	ModelID string
	// AllModels disables the scope predicate. Otherwise only ScopeModelIDs, and
	// objects owned by ScopeOwnerID, are visible.
	AllModels       bool
	ScopeModelIDs   []string
	ScopeOwnerID    string
	IncludeDeleted  bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListObjects pages newest first with a (created_at, id) cursor.
func (r Repo) ListObjects(ctx context.Context, q Querier, f ObjectFilters) ([]domain.DataObject, error) {
	var clauses []string
	var args []any
	if !f.AllModels {
		var scope []string
		if len(f.ScopeModelIDs) > 0 {
			scope = append(scope, "model_id IN ("+placeholders(len(f.ScopeModelIDs))+")")
			args = append(args, stringArgs(f.ScopeModelIDs)...)
		}
		if f.ScopeOwnerID != "" {
			scope = append(scope, "owner_id=?")
			args = append(args, f.ScopeOwnerID)
		}
		if len(scope) == 0 {
			return nil, nil
		}
		clauses = append(clauses, "("+strings.Join(scope, " OR ")+")")
	}
	if f.ModelID != "" {
		clauses = append(clauses, "model_id=?")
		args = append(args, f.ModelID)
	}
	if !f.IncludeDeleted {
		clauses = append(clauses, "is_deleted=0")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + objectColumns + ` FROM objects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(q).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanObjects(rows)
}

// CountObjects counts every object of a model, deleted ones included.
func (r Repo) CountObjects(ctx context.Context, q Querier, modelID string) (int, error) {
	var n int
	err := r.q(q).QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE model_id=?`, modelID).Scan(&n)
	return n, err
}

// FindLiveValue returns the id of a live object of modelID whose trimmed string
// value for prop equals value, skipping excludeID.
func (r Repo) FindLiveValue(ctx context.Context, q Querier, modelID, prop, value, excludeID string) (string, error) {
	var id string
	err := r.q(q).QueryRowContext(ctx, `SELECT id FROM objects
WHERE model_id=? AND is_deleted=0 AND id<>?
  AND json_type(data_json, ?)='text' AND TRIM(json_extract(data_json, ?))=?
LIMIT 1`, modelID, excludeID, jsonPath(prop), jsonPath(prop), value).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// ExistingObjectIDs returns the subset of ids that exist in modelID.
func (r Repo) ExistingObjectIDs(ctx context.Context, q Querier, modelID string, ids []string) (map[string]bool, error) {
	res := map[string]bool{}
	if len(ids) == 0 {
		return res, nil
	}
	args := append([]any{modelID}, stringArgs(ids)...)
	rows, err := r.q(q).QueryContext(ctx, `SELECT id FROM objects WHERE model_id=? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	found, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		res[id] = true
	}
	return res, nil
}

// ClaimUniqueValue records that objectID holds value for a unique property.
// ErrValueTaken means another object already holds it.
func (r Repo) ClaimUniqueValue(ctx context.Context, q Querier, modelID, prop, value, objectID string) error {
	res, err := r.q(q).ExecContext(ctx, `INSERT INTO object_unique_values(model_id,property_name,value,object_id) VALUES (?,?,?,?)
ON CONFLICT(model_id,property_name,value) DO NOTHING`, modelID, prop, value, objectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrValueTaken
	}
	return nil
}

func (r Repo) ReleaseUniqueValues(ctx context.Context, q Querier, objectID string) error {
	_, err := r.q(q).ExecContext(ctx, `DELETE FROM object_unique_values WHERE object_id=?`, objectID)
	return err
}

func (r Repo) ClearUniqueValues(ctx context.Context, q Querier, modelID string) error {
	_, err := r.q(q).ExecContext(ctx, `DELETE FROM object_unique_values WHERE model_id=?`, modelID)
	return err
}

func jsonPath(prop string) string {
	return `$."` + strings.ReplaceAll(prop, `"`, `\"`) + `"`
}
