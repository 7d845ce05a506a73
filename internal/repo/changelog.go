package repo

import (
	"context"
	"database/sql"

	"schemaline/internal/domain"
)

const changelogColumns = `id,data_object_id,model_id,changed_at,changed_by_user_id,change_type,changes_json`

func (r Repo) InsertChangelog(ctx context.Context, q Querier, e domain.ChangelogEntry) error {
	_, err := r.q(q).ExecContext(ctx, `INSERT INTO object_changelog(`+changelogColumns+`) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.DataObjectID, e.ModelID, e.ChangedAt, nullableStringPtr(e.ChangedByUserID), string(e.ChangeType), string(e.Changes))
	return err
}

func scanChangelog(rows *sql.Rows) ([]domain.ChangelogEntry, error) {
	defer rows.Close()
	var res []domain.ChangelogEntry
	for rows.Next() {
		var e domain.ChangelogEntry
		var by sql.NullString
		var changeType, changes string
		if err := rows.Scan(&e.ID, &e.DataObjectID, &e.ModelID, &e.ChangedAt, &by, &changeType, &changes); err != nil {
			return nil, err
		}
		e.ChangedByUserID = stringPtr(by)
		e.ChangeType = domain.ChangeType(changeType)
		e.Changes = []byte(changes)
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListChangelog returns an object's entries oldest first.
func (r Repo) ListChangelog(ctx context.Context, q Querier, objectID string) ([]domain.ChangelogEntry, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+changelogColumns+` FROM object_changelog WHERE data_object_id=? ORDER BY id ASC`, objectID)
	if err != nil {
		return nil, err
	}
	return scanChangelog(rows)
}

// ChangelogAfter returns entries whose id sorts after cursor, in append order.
func (r Repo) ChangelogAfter(ctx context.Context, q Querier, cursor string, limit int) ([]domain.ChangelogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+changelogColumns+` FROM object_changelog WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanChangelog(rows)
}

// LatestChangelogID returns the newest entry id, "" when the log is empty.
func (r Repo) LatestChangelogID(ctx context.Context, q Querier) (string, error) {
	var id sql.NullString
	if err := r.q(q).QueryRowContext(ctx, `SELECT MAX(id) FROM object_changelog`).Scan(&id); err != nil {
		return "", err
	}
	return id.String, nil
}
