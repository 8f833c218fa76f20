package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/platform"
	"github.com/qorzen/kernel/internal/sandbox"
)

type stubInvoker struct{}

func (stubInvoker) Invoke(ctx context.Context, method, path string, body any) (any, error) {
	return "ok", nil
}

type stubInstance struct {
	shutdowns *int
}

func (s stubInstance) Shutdown(ctx *sandbox.Context) error {
	if s.shutdowns != nil {
		*s.shutdowns++
	}
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log := logging.NewDefault()
	bus := eventbus.New(eventbus.DefaultConfig(), log)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	root := platform.NewOSFileSystem(t.TempDir())
	db, err := platform.NewSQLDatabase("", "plugintest")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sbx := sandbox.New(bus, root, db, stubInvoker{}, log)
	return New(Options{PlatformName: "linux", DrainPause: time.Millisecond}, nil, db, sbx, log)
}

func manifest(id string, deps ...Dependency) Manifest {
	return Manifest{ID: id, Version: "1.0.0", Dependencies: deps}
}

func TestAddManifestsRejectsDependencyCycle(t *testing.T) {
	r := newTestRegistry(t)

	err := r.AddManifests([]Manifest{
		manifest("p1", Dependency{ID: "p2"}),
		manifest("p2", Dependency{ID: "p3"}),
		manifest("p3", Dependency{ID: "p1"}),
	})

	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindDependency))

	_, ok := r.Snapshot("p1")
	assert.False(t, ok)
}

func TestLoadOrderHonorsMandatoryDependencies(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddManifests([]Manifest{
		manifest("core_lib"),
		manifest("ext_a", Dependency{ID: "core_lib"}),
	}))

	order, err := r.LoadOrder()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "core_lib", order[0])
	assert.Equal(t, "ext_a", order[1])
}

func TestLoadRejectsWhenMandatoryDependencyNotActive(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddManifests([]Manifest{
		manifest("core_lib"),
		manifest("ext_a", Dependency{ID: "core_lib"}),
	}))
	r.RegisterFactory("ext_a", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })

	err := r.Load(context.Background(), "ext_a")
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindDependency))
}

func TestLoadAllSkipsDependentsOfFailedPlugin(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddManifests([]Manifest{
		manifest("core_lib"),
		manifest("ext_a", Dependency{ID: "core_lib"}),
	}))
	// core_lib has no registered factory, so its load fails stage 2's
	// factory check; ext_a mandatorily depends on it and must be skipped.
	r.RegisterFactory("ext_a", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })

	errs := r.LoadAll(context.Background())
	require.Len(t, errs, 2)

	coreSnap, ok := r.Snapshot("core_lib")
	require.True(t, ok)
	assert.Equal(t, StateError, coreSnap.State)

	_, ok = r.Snapshot("ext_a")
	assert.False(t, ok)
}

func TestRegisterSurfaceDetectsRouteCollision(t *testing.T) {
	r := newTestRegistry(t)
	a := Manifest{ID: "plugin_a", Version: "1.0.0", APIRoutes: []string{"/widgets"}}
	b := Manifest{ID: "plugin_b", Version: "1.0.0", APIRoutes: []string{"/widgets"}}
	require.NoError(t, r.AddManifests([]Manifest{a, b}))
	r.RegisterFactory("plugin_a", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })
	r.RegisterFactory("plugin_b", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })

	require.NoError(t, r.Load(context.Background(), "plugin_a"))
	err := r.Load(context.Background(), "plugin_b")
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindConflict))
}

func TestVerifySecurityRejectsUnsupportedPlatform(t *testing.T) {
	m := Manifest{ID: "plugin_a", Version: "1.0.0", SupportedPlatforms: []string{"windows"}}
	err := verifySecurity(m, "linux", false, nil)
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindPlugin))
}

func TestVerifySecurityRejectsMissingSignatureWhenRequired(t *testing.T) {
	m := Manifest{ID: "plugin_a", Version: "1.0.0"}
	err := verifySecurity(m, "linux", true, nil)
	require.Error(t, err)
}

func TestVerifySecurityPolicyRejection(t *testing.T) {
	m := Manifest{ID: "plugin_a", Version: "1.0.0", RequiredPermissions: []string{"system.admin"}}
	policy := func(required []string) error {
		return kerrors.New(kerrors.KindPermission, "test", "too broad")
	}
	err := verifySecurity(m, "linux", false, policy)
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindPermission))
}

func TestHotReloadPausesMandatoryDependentsAndLeavesOptionalActive(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddManifests([]Manifest{
		manifest("core_lib"),
		manifest("ext_a", Dependency{ID: "core_lib"}),
		manifest("ext_b", Dependency{ID: "core_lib", Optional: true}),
	}))
	r.RegisterFactory("core_lib", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })
	r.RegisterFactory("ext_a", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })
	r.RegisterFactory("ext_b", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })

	require.NoError(t, r.Load(context.Background(), "core_lib"))
	require.NoError(t, r.Load(context.Background(), "ext_a"))
	require.NoError(t, r.Load(context.Background(), "ext_b"))

	// A direct Unload must refuse: ext_a mandatorily depends on core_lib.
	err := r.Unload(context.Background(), "core_lib")
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindDependency))

	require.NoError(t, r.Reload(context.Background(), "core_lib"))

	coreSnap, _ := r.Snapshot("core_lib")
	assert.Equal(t, StateActive, coreSnap.State)

	extASnap, _ := r.Snapshot("ext_a")
	assert.Equal(t, StateActive, extASnap.State)

	extBSnap, _ := r.Snapshot("ext_b")
	assert.Equal(t, StateActive, extBSnap.State)
}

func TestUnloadCallsInstanceShutdownAndDeregistersSurface(t *testing.T) {
	r := newTestRegistry(t)
	m := Manifest{ID: "plugin_a", Version: "1.0.0", APIRoutes: []string{"/widgets"}}
	require.NoError(t, r.AddManifests([]Manifest{m}))

	shutdowns := 0
	r.RegisterFactory("plugin_a", func(ctx *sandbox.Context) (Instance, error) {
		return stubInstance{shutdowns: &shutdowns}, nil
	})
	require.NoError(t, r.Load(context.Background(), "plugin_a"))
	require.NoError(t, r.Unload(context.Background(), "plugin_a"))

	assert.Equal(t, 1, shutdowns)
	snap, ok := r.Snapshot("plugin_a")
	require.True(t, ok)
	assert.Equal(t, StateUnloaded, snap.State)

	// The route is free again; a second plugin may claim it.
	m2 := Manifest{ID: "plugin_b", Version: "1.0.0", APIRoutes: []string{"/widgets"}}
	require.NoError(t, r.AddManifests([]Manifest{m2}))
	r.RegisterFactory("plugin_b", func(ctx *sandbox.Context) (Instance, error) { return stubInstance{}, nil })
	assert.NoError(t, r.Load(context.Background(), "plugin_b"))
}

func TestDiscoverRanksByRelevance(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddManifests([]Manifest{
		{ID: "com.example.widgets", Version: "1.0.0", RequiredPermissions: []string{"widgets.read"}, APIRoutes: []string{"/widgets/list"}},
		{ID: "com.example.invoices", Version: "1.0.0", RequiredPermissions: []string{"invoices.read"}},
	}))

	results := r.Discover("I need to list my widgets", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "com.example.widgets", results[0].ID)
}
