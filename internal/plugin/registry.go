package plugin

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qorzen/kernel/internal/config"
	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/metrics"
	"github.com/qorzen/kernel/internal/platform"
	"github.com/qorzen/kernel/internal/sandbox"
)

// Options configures a Registry.
type Options struct {
	PlatformName     string // matched against a manifest's supported_platforms
	RequireSignature bool
	DrainPause       time.Duration // default 100ms, per hot-reload's queue-drain contract
	Policy           PolicyChecker
}

// Registry owns every discovered and loaded plugin record exclusively;
// external callers see only ids and Loaded snapshots, never the records
// themselves.
type Registry struct {
	opts Options
	cfg  *config.Store
	db   platform.Database
	sbx  *sandbox.Manager
	log  *logging.Logger
	met  *metrics.Metrics

	mu         sync.RWMutex
	manifests  map[string]Manifest
	loaded     map[string]*Loaded
	factories  map[string]Factory
	migrations map[string][]platform.Migration
	routes     map[string]string
	menus      map[string]string
}

// New builds an empty Registry. Register manifests with AddManifests and
// factories with RegisterFactory before calling Load.
func New(opts Options, cfg *config.Store, db platform.Database, sbx *sandbox.Manager, log *logging.Logger) *Registry {
	if opts.DrainPause <= 0 {
		opts.DrainPause = 100 * time.Millisecond
	}
	if log == nil {
		log = logging.NewDefault()
	}
	return &Registry{
		opts:       opts,
		cfg:        cfg,
		db:         db,
		sbx:        sbx,
		log:        log,
		manifests:  make(map[string]Manifest),
		loaded:     make(map[string]*Loaded),
		factories:  make(map[string]Factory),
		migrations: make(map[string][]platform.Migration),
		routes:     make(map[string]string),
		menus:      make(map[string]string),
	}
}

// SetMetrics attaches a metrics collector for load/unload instrumentation.
func (r *Registry) SetMetrics(m *metrics.Metrics) { r.met = m }

func (r *Registry) loadedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.loaded {
		if l.State == StateActive {
			n++
		}
	}
	return n
}

// RegisterMigrations declares the migrations a plugin's schema needs,
// applied in stage 4 of the load pipeline.
func (r *Registry) RegisterMigrations(pluginID string, migrations []platform.Migration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrations[pluginID] = migrations
}

// AddManifests indexes a discovered manifest set and validates the
// mandatory dependency graph is acyclic before anything is loaded.
func (r *Registry) AddManifests(manifests []Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Manifest, len(r.manifests)+len(manifests))
	for id, m := range r.manifests {
		next[id] = m
	}
	for _, m := range manifests {
		next[m.ID] = m
	}

	g := buildGraph(mapValues(next))
	if err := g.cycles(); err != nil {
		return err
	}

	r.manifests = next
	return nil
}

// RegisterFactory binds a plugin id to the in-process constructor that
// produces its runtime instance. Plugins here are in-process Go code
// registered ahead of time rather than dynamically loaded shared objects.
func (r *Registry) RegisterFactory(pluginID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[pluginID] = f
}

// LoadOrder returns the current topological load order over every
// discovered manifest.
func (r *Registry) LoadOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := buildGraph(mapValues(r.manifests))
	return g.loadOrder()
}

// LoadAll loads every discovered manifest in topological order. A plugin
// whose load fails aborts that plugin and its unresolved dependents
// without disturbing already-Active plugins.
func (r *Registry) LoadAll(ctx context.Context) []error {
	order, err := r.LoadOrder()
	if err != nil {
		return []error{err}
	}

	var errs []error
	failed := make(map[string]bool)
	for _, id := range order {
		r.mu.RLock()
		m := r.manifests[id]
		r.mu.RUnlock()

		blocked := false
		for _, dep := range m.Dependencies {
			if !dep.Optional && failed[dep.ID] {
				blocked = true
				break
			}
		}
		if blocked {
			failed[id] = true
			errs = append(errs, kerrors.New(kerrors.KindDependency, "plugin.registry", "dependent of failed plugin skipped").WithMeta("plugin_id", id))
			continue
		}

		if err := r.Load(ctx, id); err != nil {
			failed[id] = true
			errs = append(errs, err)
		}
	}
	return errs
}

// UnloadAll force-unloads every currently loaded plugin in reverse load
// order, the shutdown-path counterpart to LoadAll. It uses unloadForce
// rather than Unload so a plugin blocked by an active mandatory dependent
// doesn't abort the whole shutdown; dependents are already being torn down
// in the same pass.
func (r *Registry) UnloadAll(ctx context.Context) []error {
	order, err := r.LoadOrder()
	if err != nil {
		order = nil
		r.mu.RLock()
		for id := range r.loaded {
			order = append(order, id)
		}
		r.mu.RUnlock()
	}

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		r.mu.RLock()
		_, loaded := r.loaded[id]
		r.mu.RUnlock()
		if !loaded {
			continue
		}
		if err := r.unloadForce(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Load runs the six-stage loading pipeline for a single plugin id.
func (r *Registry) Load(ctx context.Context, id string) error {
	r.mu.Lock()
	m, ok := r.manifests[id]
	if !ok {
		r.mu.Unlock()
		return kerrors.New(kerrors.KindPlugin, "plugin.registry", "unknown plugin").WithMeta("plugin_id", id)
	}
	if existing, ok := r.loaded[id]; ok && existing.State == StateActive {
		r.mu.Unlock()
		return nil
	}
	factory, hasFactory := r.factories[id]
	r.loaded[id] = &Loaded{Manifest: m, State: StateLoading}
	r.mu.Unlock()

	if err := r.loadLocked(ctx, id, m, factory, hasFactory); err != nil {
		r.mu.Lock()
		r.loaded[id].State = StateError
		r.loaded[id].LastError = err
		r.mu.Unlock()
		if r.met != nil {
			r.met.PluginLoads.WithLabelValues(id, "error").Inc()
		}
		return err
	}
	if r.met != nil {
		r.met.PluginLoads.WithLabelValues(id, "ok").Inc()
		r.met.PluginsLoaded.Set(float64(r.loadedCount()))
	}
	return nil
}

func (r *Registry) loadLocked(ctx context.Context, id string, m Manifest, factory Factory, hasFactory bool) error {
	// stage 1: security validation
	if err := verifySecurity(m, r.opts.PlatformName, r.opts.RequireSignature, r.opts.Policy); err != nil {
		return err
	}

	// stage 2: dependency resolution — mandatory deps must already be Active
	r.mu.RLock()
	for _, dep := range m.Dependencies {
		if dep.Optional {
			continue
		}
		if l, ok := r.loaded[dep.ID]; !ok || l.State != StateActive {
			r.mu.RUnlock()
			return kerrors.New(kerrors.KindDependency, "plugin.registry", "dependency not active").
				WithMeta("plugin_id", id).WithMeta("dependency", dep.ID)
		}
	}
	r.mu.RUnlock()

	if !hasFactory {
		return kerrors.New(kerrors.KindPlugin, "plugin.registry", "no factory registered").WithMeta("plugin_id", id)
	}

	// stage 3: configuration loading under plugins.<id>.*
	var cfg map[string]any
	if r.cfg != nil {
		cfg = r.cfg.Subtree("plugins." + id)
	}

	// stage 4: migration, if the plugin declares a settings schema
	hasSchema := m.SettingsSchema != nil
	if hasSchema && r.db != nil {
		ns := r.db.Namespaced(id)
		r.mu.RLock()
		migrations, hasMigrations := r.migrations[id]
		r.mu.RUnlock()
		if hasMigrations {
			if err := ns.Migrate(ctx, migrations); err != nil {
				return err
			}
		}
	}

	// stage 5: instantiation
	limits := sandbox.Limits{}
	if m.ResourceLimits != nil {
		limits = sandbox.Limits{
			MaxMemoryBytes:          m.ResourceLimits.MaxMemoryBytes,
			MaxOpenFiles:            m.ResourceLimits.MaxOpenFiles,
			NetworkRequestsPerMin:   m.ResourceLimits.NetworkRequestsPerMin,
			DatabaseQueriesPerMin:   m.ResourceLimits.DatabaseQueriesPerMin,
			MaxDatabaseTables:       m.ResourceLimits.MaxDatabaseTables,
			MaxDatabaseStorageBytes: m.ResourceLimits.MaxDatabaseStorageBytes,
		}
	}
	sctx := r.sbx.NewContext(sandbox.ContextOptions{
		PluginID:            id,
		Config:              cfg,
		RequiredPermissions: m.RequiredPermissions,
		Limits:              limits,
		NeedsDatabase:       hasSchema || m.ResourceLimits != nil,
	})
	instance, err := factory(sctx)
	if err != nil {
		return kerrors.New(kerrors.KindPlugin, "plugin.registry", "instantiation failed").WithCause(err).WithMeta("plugin_id", id)
	}

	// stage 6: UI/API registration with collision detection
	if err := r.registerSurface(id, m); err != nil {
		return err
	}

	r.mu.Lock()
	r.loaded[id] = &Loaded{Manifest: m, State: StateActive, Instance: instance, LoadedAt: time.Now()}
	r.mu.Unlock()
	return nil
}

func (r *Registry) registerSurface(id string, m Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, route := range m.APIRoutes {
		if owner, exists := r.routes[route]; exists && owner != id {
			return kerrors.New(kerrors.KindConflict, "plugin.registry", "route already registered").
				WithMeta("route", route).WithMeta("owner", owner).WithMeta("plugin_id", id)
		}
	}
	for _, menu := range m.MenuItems {
		if owner, exists := r.menus[menu]; exists && owner != id {
			return kerrors.New(kerrors.KindConflict, "plugin.registry", "menu item already registered").
				WithMeta("menu", menu).WithMeta("owner", owner).WithMeta("plugin_id", id)
		}
	}
	for _, route := range m.APIRoutes {
		r.routes[route] = id
	}
	for _, menu := range m.MenuItems {
		r.menus[menu] = id
	}
	return nil
}

func (r *Registry) deregisterSurface(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for route, owner := range r.routes {
		if owner == id {
			delete(r.routes, route)
		}
	}
	for menu, owner := range r.menus {
		if owner == id {
			delete(r.menus, menu)
		}
	}
}

// Unload deactivates a plugin. It refuses while another Active plugin
// mandatorily depends on it, and is best-effort idempotent: unloading an
// already-unloaded plugin succeeds without doing anything.
func (r *Registry) Unload(ctx context.Context, id string) error {
	if dependent, blocked := r.activeMandatoryDependent(id); blocked {
		return kerrors.New(kerrors.KindDependency, "plugin.registry", "plugin has active dependents").
			WithMeta("plugin_id", id).WithMeta("dependent", dependent)
	}
	return r.unloadForce(ctx, id)
}

// activeMandatoryDependent reports an Active plugin (other than id) that
// mandatorily depends on id, if any.
func (r *Registry) activeMandatoryDependent(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for otherID, other := range r.loaded {
		if other.State != StateActive || otherID == id {
			continue
		}
		for _, dep := range other.Manifest.Dependencies {
			if !dep.Optional && dep.ID == id {
				return otherID, true
			}
		}
	}
	return "", false
}

// mandatoryDependents returns the ids of every currently Active plugin
// that mandatorily depends on id.
func (r *Registry) mandatoryDependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for otherID, other := range r.loaded {
		if other.State != StateActive || otherID == id {
			continue
		}
		for _, dep := range other.Manifest.Dependencies {
			if !dep.Optional && dep.ID == id {
				out = append(out, otherID)
				break
			}
		}
	}
	return out
}

func (r *Registry) unloadForce(ctx context.Context, id string) error {
	r.mu.Lock()
	l, ok := r.loaded[id]
	if !ok || l.State == StateUnloaded {
		r.mu.Unlock()
		return nil
	}
	l.State = StateUnloading
	instance := l.Instance
	r.mu.Unlock()

	if instance != nil {
		sctx := r.sbx.NewContext(sandbox.ContextOptions{PluginID: id})
		if err := instance.Shutdown(sctx); err != nil {
			r.log.Warn("plugin shutdown returned an error", zap.String("plugin_id", id), zap.Error(err))
		}
	}

	r.deregisterSurface(id)
	r.sbx.Forget(id)

	r.mu.Lock()
	l.State = StateUnloaded
	l.Instance = nil
	r.mu.Unlock()

	if r.met != nil {
		r.met.PluginUnloads.WithLabelValues(id, "ok").Inc()
		r.met.PluginsLoaded.Set(float64(r.loadedCount()))
	}
	return nil
}

// Reload unloads and reloads the same plugin id. Every currently-Active
// mandatory dependent is paused for the duration of the cycle and resumed
// to Active afterward; optional dependents are left untouched throughout.
// Between the unload and load phases the configured DrainPause lets
// in-flight event deliveries finish.
func (r *Registry) Reload(ctx context.Context, id string) error {
	dependents := r.mandatoryDependents(id)

	r.mu.Lock()
	for _, depID := range dependents {
		if l, ok := r.loaded[depID]; ok {
			l.State = StatePaused
		}
	}
	r.mu.Unlock()
	for _, depID := range dependents {
		r.sbx.SetPaused(depID, true)
	}

	if err := r.unloadForce(ctx, id); err != nil {
		return err
	}

	time.Sleep(r.opts.DrainPause)

	loadErr := r.Load(ctx, id)

	r.mu.Lock()
	for _, depID := range dependents {
		if l, ok := r.loaded[depID]; ok && l.State == StatePaused {
			l.State = StateActive
		}
	}
	r.mu.Unlock()
	for _, depID := range dependents {
		r.sbx.SetPaused(depID, false)
	}

	return loadErr
}

// Snapshot returns the current Loaded record for id, or false if unknown.
func (r *Registry) Snapshot(id string) (Loaded, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaded[id]
	if !ok {
		return Loaded{}, false
	}
	return *l, true
}

func mapValues(m map[string]Manifest) []Manifest {
	out := make([]Manifest, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
