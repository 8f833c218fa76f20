package platform

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/qorzen/kernel/internal/kerrors"
)

// SQLDatabase is a Database backed by a pure-Go SQLite file (or an
// in-memory database when dir is empty). Namespaced isolates a plugin's
// schema into its own file under dir, matching the "isolated namespace
// under the platform database" contract.
type SQLDatabase struct {
	db   *sql.DB
	dir  string
	name string

	nsMu sync.Mutex
	ns   map[string]*SQLDatabase
}

// NewSQLDatabase opens (creating if absent) a SQLite database at
// dir/name.db. An empty dir opens an in-memory database instead, shared
// by every handle opened with the same name in this process.
func NewSQLDatabase(dir, name string) (*SQLDatabase, error) {
	dsn := "file:" + name + "?mode=memory&cache=shared"
	if dir != "" {
		dsn = filepath.Join(dir, name+".db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.database", "open failed").WithCause(err)
	}
	return &SQLDatabase{db: db, dir: dir, name: name, ns: make(map[string]*SQLDatabase)}, nil
}

func (d *SQLDatabase) Execute(ctx context.Context, stmt string, args ...any) error {
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.database", "execute failed").WithCause(err)
	}
	return nil
}

func (d *SQLDatabase) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.database", "query failed").WithCause(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.database", "columns failed").WithCause(err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, kerrors.New(kerrors.KindIO, "platform.database", "scan failed").WithCause(err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Execute(ctx context.Context, stmt string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.database", "tx execute failed").WithCause(err)
	}
	return nil
}

func (t *sqlTx) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.database", "tx query failed").WithCause(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "platform.database", "columns failed").WithCause(err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, kerrors.New(kerrors.KindIO, "platform.database", "scan failed").WithCause(err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *SQLDatabase) Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return kerrors.New(kerrors.KindIO, "platform.database", "begin tx failed").WithCause(err)
	}

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return kerrors.New(kerrors.KindIO, "platform.database", "commit failed").WithCause(err)
	}
	return nil
}

// Migrate applies, in increasing version order, every migration whose
// version is not yet recorded in schema_migrations, each inside its own
// transaction. The first failure stops the run; migrations already applied
// stay applied.
func (d *SQLDatabase) Migrate(ctx context.Context, migrations []Migration) error {
	if err := d.Execute(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := d.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if v, ok := r["version"].(int64); ok {
			applied[int(v)] = true
		}
	}

	ordered := append([]Migration(nil), migrations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	for _, m := range ordered {
		if applied[m.Version] {
			continue
		}
		err := d.Transaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := m.Apply(ctx, tx); err != nil {
				return err
			}
			return tx.Execute(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version)
		})
		if err != nil {
			return kerrors.New(kerrors.KindIO, "platform.database", "migration failed").WithCause(err).WithMeta("version", m.Version)
		}
	}
	return nil
}

// Namespaced returns (creating and caching if needed) a Database backed by
// its own SQLite file, isolating a plugin's schema from every other
// namespace and from the platform database itself.
func (d *SQLDatabase) Namespaced(namespace string) Database {
	d.nsMu.Lock()
	defer d.nsMu.Unlock()

	if existing, ok := d.ns[namespace]; ok {
		return existing
	}

	child, err := NewSQLDatabase(d.dir, d.name+"_"+namespace)
	if err != nil {
		// A namespace that cannot open its own file degrades to the parent
		// database rather than panicking; callers will see failures scoped
		// to individual Execute/Query calls instead.
		return d
	}
	d.ns[namespace] = child
	return child
}

func (d *SQLDatabase) Close() error {
	return d.db.Close()
}
