package sandbox

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/platform"
)

// PluginDatabase is the sandboxed database proxy: it enforces a plugin's
// declared table count ceiling and a per-minute query rate on top of its
// already-namespaced platform.Database.
type PluginDatabase struct {
	pluginID  string
	inner     platform.Database
	limiter   *rate.Limiter
	maxTables int
}

func newPluginDatabase(pluginID string, inner platform.Database, limits Limits) *PluginDatabase {
	rpm := limits.DatabaseQueriesPerMin
	if rpm <= 0 {
		rpm = 600
	}
	return &PluginDatabase{
		pluginID:  pluginID,
		inner:     inner,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		maxTables: limits.MaxDatabaseTables,
	}
}

func (d *PluginDatabase) checkRate() error {
	if !d.limiter.Allow() {
		return kerrors.New(kerrors.KindRateLimited, "sandbox.database", "query rate exceeded").WithMeta("plugin_id", d.pluginID)
	}
	return nil
}

// checkTableBudget rejects CREATE TABLE statements once the plugin has
// reached its declared table ceiling.
func (d *PluginDatabase) checkTableBudget(ctx context.Context, stmt string) error {
	if d.maxTables <= 0 || !strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
		return nil
	}
	rows, err := d.inner.Query(ctx, `SELECT count(*) AS n FROM sqlite_master WHERE type='table'`)
	if err != nil || len(rows) == 0 {
		return nil
	}
	n, _ := rows[0]["n"].(int64)
	if int(n) >= d.maxTables {
		return kerrors.New(kerrors.KindPermission, "sandbox.database", "table budget exceeded").
			WithMeta("plugin_id", d.pluginID).WithMeta("max_tables", d.maxTables)
	}
	return nil
}

func (d *PluginDatabase) Execute(ctx context.Context, stmt string, args ...any) error {
	if err := d.checkRate(); err != nil {
		return err
	}
	if err := d.checkTableBudget(ctx, stmt); err != nil {
		return err
	}
	return d.inner.Execute(ctx, stmt, args...)
}

func (d *PluginDatabase) Query(ctx context.Context, stmt string, args ...any) ([]platform.Row, error) {
	if err := d.checkRate(); err != nil {
		return nil, err
	}
	return d.inner.Query(ctx, stmt, args...)
}

func (d *PluginDatabase) Transaction(ctx context.Context, fn func(ctx context.Context, tx platform.Tx) error) error {
	if err := d.checkRate(); err != nil {
		return err
	}
	return d.inner.Transaction(ctx, fn)
}

func (d *PluginDatabase) Migrate(ctx context.Context, migrations []platform.Migration) error {
	return d.inner.Migrate(ctx, migrations)
}

func (d *PluginDatabase) Namespaced(namespace string) platform.Database {
	return d.inner.Namespaced(namespace)
}
