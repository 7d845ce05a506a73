package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"schemaline/internal/db"
	"schemaline/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, migrate.Migrate(conn))
	require.NoError(t, migrate.Migrate(conn))

	v, err := migrate.Version(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestChangelogIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))

	now := "2024-01-01T00:00:00Z"
	_, err = conn.ExecContext(ctx, `INSERT INTO models(id,name,created_at,updated_at) VALUES ('m','M',?,?)`, now, now)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO objects(id,model_id,created_at,updated_at) VALUES ('o','m',?,?)`, now, now)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO object_changelog(id,data_object_id,model_id,changed_at,change_type,changes_json) VALUES ('c','o','m',?,'CREATE','{}')`, now)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `UPDATE object_changelog SET change_type='DELETE' WHERE id='c'`)
	require.Error(t, err)
	_, err = conn.ExecContext(ctx, `DELETE FROM object_changelog WHERE id='c'`)
	require.Error(t, err)
}
