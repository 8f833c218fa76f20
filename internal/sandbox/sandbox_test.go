package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorzen/kernel/internal/account"
	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/platform"
)

type stubInvoker struct {
	calls int
}

func (s *stubInvoker) Invoke(ctx context.Context, method, path string, body any) (any, error) {
	s.calls++
	return "ok", nil
}

func newTestManager(t *testing.T) (*Manager, *eventbus.Bus, *stubInvoker) {
	t.Helper()
	log := logging.NewDefault()
	bus := eventbus.New(eventbus.DefaultConfig(), log)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	root := platform.NewOSFileSystem(t.TempDir())
	db, err := platform.NewSQLDatabase("", "sandboxtest")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	invoker := &stubInvoker{}
	mgr := New(bus, root, db, invoker, log)
	return mgr, bus, invoker
}

func TestAPIClientRejectsUndeclaredPermission(t *testing.T) {
	mgr, _, invoker := newTestManager(t)
	ctx := mgr.NewContext(ContextOptions{
		PluginID:            "com.example.widgets",
		RequiredPermissions: []string{"widgets.read"},
	})

	_, err := ctx.APIClient.Call(context.Background(), account.Permission{Resource: "widgets", Action: "write", Scope: account.ScopeGlobal}, "POST", "/widgets", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, invoker.calls)

	_, err = ctx.APIClient.Call(context.Background(), account.Permission{Resource: "widgets", Action: "read", Scope: account.ScopeGlobal}, "GET", "/widgets", nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, invoker.calls)
}

func TestScopedFileSystemRejectsEscapes(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := mgr.NewContext(ContextOptions{PluginID: "com.example.widgets"})

	err := ctx.FileSystem.Write(context.Background(), "../escape.txt", []byte("x"))
	assert.Error(t, err)

	err = ctx.FileSystem.Write(context.Background(), "/absolute.txt", []byte("x"))
	assert.Error(t, err)

	require.NoError(t, ctx.FileSystem.Write(context.Background(), "ok.txt", []byte("x")))
	data, err := ctx.FileSystem.Read(context.Background(), "ok.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestEventBusClientStampsSourceWithPluginID(t *testing.T) {
	mgr, bus, _ := newTestManager(t)
	ctx := mgr.NewContext(ContextOptions{PluginID: "com.example.widgets"})

	received := make(chan eventbus.Event, 1)
	_, err := bus.Subscribe("observer", eventbus.Filter{Types: []string{"widget.created"}}, func(c context.Context, e eventbus.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ctx.EventBus.Publish(context.Background(), "widget.created", map[string]any{"id": 1}))

	select {
	case e := <-received:
		assert.Equal(t, "plugin.com.example.widgets", e.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestEventBusClientFailsClosedWhenPaused(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := mgr.NewContext(ContextOptions{PluginID: "com.example.widgets"})

	mgr.SetPaused("com.example.widgets", true)
	assert.True(t, ctx.Paused())

	err := ctx.EventBus.Publish(context.Background(), "widget.created", nil)
	assert.Error(t, err)
}

func TestPluginDatabaseEnforcesTableBudget(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := mgr.NewContext(ContextOptions{
		PluginID:      "com.example.widgets",
		NeedsDatabase: true,
		Limits:        Limits{MaxDatabaseTables: 1},
	})
	require.NotNil(t, ctx.Database)

	require.NoError(t, ctx.Database.Execute(context.Background(), `CREATE TABLE a (id INTEGER)`))
	err := ctx.Database.Execute(context.Background(), `CREATE TABLE b (id INTEGER)`)
	assert.Error(t, err)
}

func TestSamplerPausesAndResumesOnUsage(t *testing.T) {
	mgr, bus, _ := newTestManager(t)
	_ = mgr.NewContext(ContextOptions{PluginID: "com.example.widgets"})

	usage := Usage{MemoryBytes: 10}
	provider := func(pluginID string) (Usage, bool) { return usage, true }

	s := NewSampler(mgr, bus, provider, 10*time.Millisecond, logging.NewDefault())
	s.Track("com.example.widgets", Limits{MaxMemoryBytes: 5})

	ctxCancel, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctxCancel)
	defer s.Stop()

	assert.Eventually(t, func() bool { return mgr.paused["com.example.widgets"] != nil && *mgr.paused["com.example.widgets"] }, time.Second, 5*time.Millisecond)

	usage = Usage{MemoryBytes: 1}
	assert.Eventually(t, func() bool { return !*mgr.paused["com.example.widgets"] }, time.Second, 5*time.Millisecond)
}
