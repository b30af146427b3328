package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "readmark.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, newTestSQLite(t))
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "readmark.db")

	st, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	article := sampleArticle("alice", "https://example.com")
	require.NoError(t, st.CreateArticle(ctx, &article))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	var versions int
	require.NoError(t, st.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, article.Title, got.Title)
}

func TestSQLiteStore_RejectsInvalidOffsets(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	article := sampleArticle("alice", "https://example.com")
	require.NoError(t, st.CreateArticle(ctx, &article))

	_, err := st.db.ExecContext(ctx,
		`INSERT INTO highlights (id, article_id, user_id, start_offset, end_offset, text, created_at)
		 VALUES ('x', ?, 'alice', 5, 5, '', '2024-01-01T00:00:00Z')`, article.ID.String())
	assert.Error(t, err, "zero-length ranges violate the check constraint")
}
