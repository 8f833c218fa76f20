package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystemReadWriteDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileSystem(dir)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "a/b.txt", []byte("hello")))

	exists, err := fs.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := fs.Read(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := fs.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name)

	require.NoError(t, fs.Delete(ctx, "a/b.txt"))
	exists, err = fs.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOSFileSystemClampsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileSystem(dir)
	_, err := fs.resolve("../../etc/passwd")
	assert.NoError(t, err, "resolve clamps escaping paths under root rather than erroring")
}

func TestFileStorageSetGetDeleteListKeys(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileSystem(dir)
	storage := NewFileStorage(fs, "kv")
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "foo", []byte("1")))
	require.NoError(t, storage.Set(ctx, "bar", []byte("2")))

	v, ok, err := storage.Get(ctx, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	keys, err := storage.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"foo", "bar"}, keys)

	require.NoError(t, storage.Delete(ctx, "foo"))
	_, ok, err = storage.Get(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLDatabaseMigrateExecuteQuery(t *testing.T) {
	db, err := NewSQLDatabase("", "test")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	migrations := []Migration{
		{Version: 1, Apply: func(ctx context.Context, tx Tx) error {
			return tx.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
		}},
	}
	require.NoError(t, db.Migrate(ctx, migrations))
	require.NoError(t, db.Migrate(ctx, migrations)) // idempotent re-run

	require.NoError(t, db.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'sprocket')`))

	rows, err := db.Query(ctx, `SELECT name FROM widgets WHERE id = 1`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sprocket", rows[0]["name"])
}

func TestSQLDatabaseTransactionRollsBackOnError(t *testing.T) {
	db, err := NewSQLDatabase("", "test2")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`))

	err = db.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Execute(ctx, `INSERT INTO widgets (id) VALUES (1)`); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	rows, err := db.Query(ctx, `SELECT id FROM widgets`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNamespacedDatabaseIsolatesSchema(t *testing.T) {
	dir := t.TempDir()
	db, err := NewSQLDatabase(dir, "platform")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	ns := db.Namespaced("plugin.example")
	require.NoError(t, ns.Execute(ctx, `CREATE TABLE t (id INTEGER)`))

	_, err = db.Query(ctx, `SELECT id FROM t`)
	assert.Error(t, err, "namespace's table must not be visible on the parent database")
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", BreakerSettings{
		ReadyToTrip: func(c BreakerCounts) bool { return c.ConsecutiveFailures >= 2 },
	})

	failing := func() error { return assert.AnError }
	_ = b.Guard(failing)
	_ = b.Guard(failing)
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Guard(func() error { return nil })
	assert.Error(t, err, "an open breaker rejects without invoking fn")
}

func TestCapabilitiesDetectReflectsWiredTraits(t *testing.T) {
	p := Provider{FileSystem: NewOSFileSystem(t.TempDir())}
	caps := p.Detect()
	assert.True(t, caps.HasFilesystem)
	assert.False(t, caps.HasDatabase)
}
