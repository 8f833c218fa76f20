package sandbox

import (
	"context"
	"sync"

	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/platform"
)

// Manager builds PluginContexts and owns the pause flag each one reads.
// One Manager is shared by the whole plugin registry; contexts it builds
// outlive individual load/unload cycles of other plugins.
type Manager struct {
	bus     *eventbus.Bus
	root    platform.FileSystem
	db      platform.Database
	invoker Invoker
	log     *logging.Logger

	mu     sync.Mutex
	paused map[string]*bool
}

// New builds a Manager. root scopes every plugin's file_system proxy under
// root/<plugin_id>; db is the platform database each plugin's schema is
// namespaced from.
func New(bus *eventbus.Bus, root platform.FileSystem, db platform.Database, invoker Invoker, log *logging.Logger) *Manager {
	return &Manager{
		bus:     bus,
		root:    root,
		db:      db,
		invoker: invoker,
		log:     log,
		paused:  make(map[string]*bool),
	}
}

// ContextOptions parameterizes the context a plugin is handed, derived
// from its manifest at load time.
type ContextOptions struct {
	PluginID            string
	Config              map[string]any
	RequiredPermissions []string
	Limits              Limits
	NeedsDatabase       bool
}

// NewContext constructs a plugin's sandboxed context and registers it for
// pause tracking.
func (m *Manager) NewContext(opts ContextOptions) *Context {
	m.mu.Lock()
	paused, ok := m.paused[opts.PluginID]
	if !ok {
		paused = new(bool)
		m.paused[opts.PluginID] = paused
	}
	m.mu.Unlock()

	declared := declaredPermissions(opts.RequiredPermissions)

	ctx := &Context{
		PluginID:   opts.PluginID,
		Config:     opts.Config,
		APIClient:  newAPIClient(opts.PluginID, declared, m.invoker),
		EventBus:   newEventBusClient(opts.PluginID, m.bus, opts.Limits.NetworkRequestsPerMin, func() bool { return *paused }),
		FileSystem: newScopedFileSystem(opts.PluginID, scopedRoot(m.root, opts.PluginID)),
		Logger:     m.log,
		paused:     paused,
	}

	if opts.NeedsDatabase {
		ctx.Database = newPluginDatabase(opts.PluginID, m.db.Namespaced(opts.PluginID), opts.Limits)
	}

	return ctx
}

// SetPaused flips the pause flag a Context's proxies read; used by Sampler
// when a plugin exceeds its declared limits and again to clear it once
// usage falls back under budget, and by the plugin registry to pause
// mandatory dependents during a reload.
func (m *Manager) SetPaused(pluginID string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.paused[pluginID]; ok {
		*p = value
	}
}

// Forget drops a plugin's pause-tracking entry on unload.
func (m *Manager) Forget(pluginID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paused, pluginID)
}

// pluginRootFS scopes a FileSystem under a per-plugin subdirectory of root
// without requiring root itself to be re-opened per plugin.
type pluginRootFS struct {
	inner  platform.FileSystem
	prefix string
}

func scopedRoot(root platform.FileSystem, pluginID string) platform.FileSystem {
	return &pluginRootFS{inner: root, prefix: pluginID + "/"}
}

func (p *pluginRootFS) Read(ctx context.Context, path string) ([]byte, error) {
	return p.inner.Read(ctx, p.prefix+path)
}

func (p *pluginRootFS) Write(ctx context.Context, path string, data []byte) error {
	return p.inner.Write(ctx, p.prefix+path, data)
}

func (p *pluginRootFS) Delete(ctx context.Context, path string) error {
	return p.inner.Delete(ctx, p.prefix+path)
}

func (p *pluginRootFS) List(ctx context.Context, path string) ([]platform.FileInfo, error) {
	return p.inner.List(ctx, p.prefix+path)
}

func (p *pluginRootFS) Mkdir(ctx context.Context, path string) error {
	return p.inner.Mkdir(ctx, p.prefix+path)
}

func (p *pluginRootFS) Exists(ctx context.Context, path string) (bool, error) {
	return p.inner.Exists(ctx, p.prefix+path)
}

func (p *pluginRootFS) Metadata(ctx context.Context, path string) (platform.FileInfo, error) {
	return p.inner.Metadata(ctx, p.prefix+path)
}
