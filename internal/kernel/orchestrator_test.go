package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorzen/kernel/internal/manager"
)

func testBoot(t *testing.T) *BootConfig {
	t.Helper()
	dir := t.TempDir()
	return &BootConfig{
		PlatformName:           "linux",
		DataDir:                dir,
		PluginRoots:            dir,
		LogLevel:               "error",
		EventQueueCapacity:     16,
		EventWorkerCount:       1,
		SigningKey:             "test-signing-key",
		ShutdownTimeoutSeconds: 5,
	}
}

func TestOrchestratorStartsAndShutsDownCleanly(t *testing.T) {
	o, err := New(testBoot(t))
	require.NoError(t, err)

	require.NoError(t, o.Start(context.Background()))

	report, ok := o.Supervisor.Status("eventbus")
	require.True(t, ok)
	assert.Equal(t, manager.Running, report.State)

	report, ok = o.Supervisor.Status("plugins")
	require.True(t, ok)
	assert.Equal(t, manager.Running, report.State)

	require.NoError(t, o.Shutdown(time.Now().Add(o.ShutdownTimeout())))
}

func TestOrchestratorRegistersDependencyOrder(t *testing.T) {
	o, err := New(testBoot(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"platform", "config", "logging", "eventbus", "account", "plugins"}, o.Supervisor.Names())
}
