package kernel

import (
	"context"
	"strings"

	"github.com/qorzen/kernel/internal/account"
	"github.com/qorzen/kernel/internal/config"
	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/manager"
	"github.com/qorzen/kernel/internal/platform"
	"github.com/qorzen/kernel/internal/plugin"
)

// The adapters below let each subsystem sit in manager.Supervisor alongside
// any plugin-registered manager, so startup order, health, and shutdown
// deadlines are all enforced through the one FSM rather than a bespoke
// construction sequence.

type platformManaged struct {
	db *platform.SQLDatabase
}

func (m *platformManaged) Initialize(ctx context.Context) error { return nil }

func (m *platformManaged) Shutdown(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *platformManaged) Health() manager.Health { return manager.Health{} }

type configManaged struct {
	store *config.Store
}

func (m *configManaged) Initialize(ctx context.Context) error {
	return config.LoadEnvOverlay(m.store)
}

func (m *configManaged) Shutdown(ctx context.Context) error { return nil }

func (m *configManaged) Health() manager.Health { return manager.Health{} }

type loggerManaged struct {
	log *logging.Logger
}

func (m *loggerManaged) Initialize(ctx context.Context) error { return nil }

func (m *loggerManaged) Shutdown(ctx context.Context) error {
	if m.log == nil {
		return nil
	}
	return m.log.Sync()
}

func (m *loggerManaged) Health() manager.Health { return manager.Health{} }

type busManaged struct {
	bus *eventbus.Bus
}

func (m *busManaged) Initialize(ctx context.Context) error { return m.bus.Start(ctx) }
func (m *busManaged) Shutdown(ctx context.Context) error   { return m.bus.Stop(ctx) }
func (m *busManaged) Health() manager.Health               { return manager.Health{} }

type gateManaged struct {
	gate  *account.Gate
	users account.UserStore
}

func (m *gateManaged) Initialize(ctx context.Context) error {
	m.gate.RegisterProvider(account.NewLocalProvider(m.users))
	return nil
}

func (m *gateManaged) Shutdown(ctx context.Context) error { return nil }

func (m *gateManaged) Health() manager.Health { return manager.Health{} }

// pluginsManaged discovers and loads every manifest under roots on
// Initialize, and unloads whatever is still loaded on Shutdown. A partial
// load/unload failure is reported through the returned error rather than
// silently swallowed; the supervisor then marks this manager Failed, and a
// failure during InitializeAll also shuts down the managers already running.
type pluginsManaged struct {
	registry *plugin.Registry
	roots    []string
}

func (m *pluginsManaged) Initialize(ctx context.Context) error {
	manifests, err := plugin.Discover(m.roots)
	if err != nil {
		return err
	}
	if err := m.registry.AddManifests(manifests); err != nil {
		return err
	}
	if errs := m.registry.LoadAll(ctx); len(errs) > 0 {
		return joinErrs("plugin load", errs)
	}
	return nil
}

func (m *pluginsManaged) Shutdown(ctx context.Context) error {
	if errs := m.registry.UnloadAll(ctx); len(errs) > 0 {
		return joinErrs("plugin unload", errs)
	}
	return nil
}

func (m *pluginsManaged) Health() manager.Health { return manager.Health{} }

func joinErrs(op string, errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return kerrors.New(kerrors.KindInternal, "kernel", op+" had failures").
		WithMeta("errors", strings.Join(msgs, "; "))
}
