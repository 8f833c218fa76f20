package kernel

import (
	"context"
	"strings"
	"time"

	"github.com/qorzen/kernel/internal/account"
	"github.com/qorzen/kernel/internal/config"
	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/manager"
	"github.com/qorzen/kernel/internal/metrics"
	"github.com/qorzen/kernel/internal/platform"
	"github.com/qorzen/kernel/internal/plugin"
	"github.com/qorzen/kernel/internal/router"
	"github.com/qorzen/kernel/internal/sandbox"
)

// Orchestrator owns every kernel subsystem and the one Supervisor that
// sequences their startup and shutdown. Construction order mirrors the
// data flow a request actually takes: platform underneath everything,
// config and logging next, the event bus and account gate above those,
// and the plugin registry last since it depends on all of the above.
type Orchestrator struct {
	Boot *BootConfig

	Platform platform.Provider
	Config   *config.Store
	Log      *logging.Logger
	Bus      *eventbus.Bus
	Users    *account.MemoryUserStore
	Gate     *account.Gate
	Router   *router.Router
	Sandbox  *sandbox.Manager
	Plugins  *plugin.Registry
	Metrics  *metrics.Metrics

	Supervisor *manager.Supervisor
}

// New constructs every subsystem and registers each as a manager, but does
// not initialize or start anything; call Start for that.
func New(boot *BootConfig) (*Orchestrator, error) {
	log, err := logging.New(logging.Config{Level: boot.LogLevel, Development: boot.LogDevelopment, OutputPaths: []string{"stdout"}})
	if err != nil {
		return nil, err
	}

	db, err := platform.NewSQLDatabase(boot.DataDir, "kernel")
	if err != nil {
		return nil, err
	}
	fs := platform.NewOSFileSystem(boot.DataDir)
	net := platform.NewRestyNetwork()
	prov := platform.Provider{FileSystem: fs, Database: db, Network: net}

	cfgStore := config.New(log)

	bus := eventbus.New(eventbus.Config{
		QueueCapacity: boot.EventQueueCapacity,
		WorkerCount:   boot.EventWorkerCount,
	}, log)

	users := account.NewMemoryUserStore()
	gate := account.NewGate([]byte(boot.SigningKey), users, log)

	apiRouter := router.New(gate, users, log)

	sbx := sandbox.New(bus, fs, db, apiRouter, log)

	plugins := plugin.New(plugin.Options{
		PlatformName:     boot.PlatformName,
		RequireSignature: boot.RequirePluginSignature,
	}, cfgStore, db, sbx, log)

	met := metrics.New()
	bus.SetMetrics(met)
	plugins.SetMetrics(met)
	apiRouter.SetMetrics(met)
	supervisor := manager.New(log)
	supervisor.SetMetrics(met)

	o := &Orchestrator{
		Boot:       boot,
		Platform:   prov,
		Config:     cfgStore,
		Log:        log,
		Bus:        bus,
		Users:      users,
		Gate:       gate,
		Router:     apiRouter,
		Sandbox:    sbx,
		Plugins:    plugins,
		Metrics:    met,
		Supervisor: supervisor,
	}

	if err := o.registerManagers(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) registerManagers() error {
	reg := func(desc manager.Descriptor, factory manager.Factory) error {
		return o.Supervisor.Register(desc, factory)
	}

	db, _ := o.Platform.Database.(*platform.SQLDatabase)
	if err := reg(manager.NewDescriptor("platform"), func() (manager.Managed, error) {
		return &platformManaged{db: db}, nil
	}); err != nil {
		return err
	}

	if err := reg(manager.NewDescriptor("config", "platform"), func() (manager.Managed, error) {
		return &configManaged{store: o.Config}, nil
	}); err != nil {
		return err
	}

	if err := reg(manager.NewDescriptor("logging"), func() (manager.Managed, error) {
		return &loggerManaged{log: o.Log}, nil
	}); err != nil {
		return err
	}

	if err := reg(manager.NewDescriptor("eventbus", "logging"), func() (manager.Managed, error) {
		return &busManaged{bus: o.Bus}, nil
	}); err != nil {
		return err
	}

	if err := reg(manager.NewDescriptor("account", "logging"), func() (manager.Managed, error) {
		return &gateManaged{gate: o.Gate, users: o.Users}, nil
	}); err != nil {
		return err
	}

	roots := splitRoots(o.Boot.PluginRoots)
	if err := reg(manager.NewDescriptor("plugins", "platform", "config", "eventbus", "account"), func() (manager.Managed, error) {
		return &pluginsManaged{registry: o.Plugins, roots: roots}, nil
	}); err != nil {
		return err
	}

	return nil
}

func splitRoots(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Start brings every manager up in dependency order.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.Supervisor.InitializeAll(ctx)
}

// Shutdown tears every manager down in reverse order, each allotted a
// share of the given deadline.
func (o *Orchestrator) Shutdown(deadline time.Time) error {
	return o.Supervisor.ShutdownAll(deadline)
}

// ShutdownTimeout returns the configured shutdown grace period as a
// duration, for callers building their own deadline.
func (o *Orchestrator) ShutdownTimeout() time.Duration {
	return time.Duration(o.Boot.ShutdownTimeoutSeconds) * time.Second
}
