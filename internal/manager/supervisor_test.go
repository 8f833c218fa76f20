package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	initErr     error
	initDelay   time.Duration
	shutdownErr error
	shutdownGate chan struct{}
	health      Health
}

func (f *fakeManager) Initialize(ctx context.Context) error {
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.initErr
}

func (f *fakeManager) Shutdown(ctx context.Context) error {
	if f.shutdownGate != nil {
		select {
		case <-f.shutdownGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.shutdownErr
}

func (f *fakeManager) Health() Health { return f.health }

func factoryOf(m Managed) Factory {
	return func() (Managed, error) { return m, nil }
}

func TestSupervisorRegisterDuplicateName(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register(NewDescriptor("a"), factoryOf(&fakeManager{})))

	err := s.Register(NewDescriptor("a"), factoryOf(&fakeManager{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_name")
}

func TestSupervisorRegisterCycle(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register(NewDescriptor("a", "b"), factoryOf(&fakeManager{})))
	require.NoError(t, s.Register(NewDescriptor("b", "c"), factoryOf(&fakeManager{})))

	err := s.Register(NewDescriptor("c", "a"), factoryOf(&fakeManager{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

// TestSupervisorFailurePropagation mirrors a supervised startup where A
// depends on nothing, B depends on A, and C depends on B. B's Initialize
// fails; C must never be initialized and must land in Failed, while A
// still reaches Running.
func TestSupervisorFailurePropagation(t *testing.T) {
	s := New(nil)
	a := &fakeManager{}
	b := &fakeManager{initErr: errors.New("boom")}
	c := &fakeManager{}

	require.NoError(t, s.Register(NewDescriptor("a"), factoryOf(a)))
	require.NoError(t, s.Register(NewDescriptor("b", "a"), factoryOf(b)))
	require.NoError(t, s.Register(NewDescriptor("c", "b"), factoryOf(c)))

	err := s.InitializeAll(context.Background())
	require.Error(t, err)

	aStatus, ok := s.Status("a")
	require.True(t, ok)
	assert.Equal(t, Shutdown, aStatus.State, "independent ancestor is rolled back after a sibling subtree fails")

	bStatus, ok := s.Status("b")
	require.True(t, ok)
	assert.Equal(t, Failed, bStatus.State)

	cStatus, ok := s.Status("c")
	require.True(t, ok)
	assert.Equal(t, Failed, cStatus.State, "dependent of a failed manager is marked failed by propagation")
	require.Error(t, cStatus.Err)
	assert.Same(t, bStatus.Err, errors.Unwrap(cStatus.Err), "C's propagated failure chains its cause back to B's actual error")
}

// TestSupervisorIndependentSubtreesInitializeConcurrently checks that two
// unrelated managers with no edge between them both reach Running even
// though each blocks for a while during Initialize.
func TestSupervisorIndependentSubtreesInitializeConcurrently(t *testing.T) {
	s := New(nil)
	a := &fakeManager{initDelay: 20 * time.Millisecond}
	b := &fakeManager{initDelay: 20 * time.Millisecond}

	require.NoError(t, s.Register(NewDescriptor("a"), factoryOf(a)))
	require.NoError(t, s.Register(NewDescriptor("b"), factoryOf(b)))

	start := time.Now()
	require.NoError(t, s.InitializeAll(context.Background()))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 40*time.Millisecond, "independent managers in the same level should run concurrently")

	aStatus, _ := s.Status("a")
	bStatus, _ := s.Status("b")
	assert.Equal(t, Running, aStatus.State)
	assert.Equal(t, Running, bStatus.State)
}

func TestSupervisorShutdownAllReverseOrder(t *testing.T) {
	s := New(nil)
	a := &fakeManager{}
	b := &fakeManager{}

	require.NoError(t, s.Register(NewDescriptor("a"), factoryOf(a)))
	require.NoError(t, s.Register(NewDescriptor("b", "a"), factoryOf(b)))
	require.NoError(t, s.InitializeAll(context.Background()))

	require.NoError(t, s.ShutdownAll(time.Now().Add(time.Second)))

	aStatus, _ := s.Status("a")
	bStatus, _ := s.Status("b")
	assert.Equal(t, Shutdown, aStatus.State)
	assert.Equal(t, Shutdown, bStatus.State)
}

func TestSupervisorShutdownAllTimesOutAbandonedManager(t *testing.T) {
	s := New(nil)
	gate := make(chan struct{}) // never closed: shutdown never returns
	stuck := &fakeManager{shutdownGate: gate}

	require.NoError(t, s.Register(NewDescriptor("stuck"), factoryOf(stuck)))
	require.NoError(t, s.InitializeAll(context.Background()))

	err := s.ShutdownAll(time.Now().Add(10 * time.Millisecond))
	require.Error(t, err)

	status, _ := s.Status("stuck")
	assert.Equal(t, Failed, status.State)
}

func TestSupervisorWatchHealthReceivesTransitions(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register(NewDescriptor("a"), factoryOf(&fakeManager{})))

	events := s.WatchHealth()
	require.NoError(t, s.InitializeAll(context.Background()))

	seen := map[State]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			seen[ev.To] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for health event")
		}
	}
	assert.True(t, seen[Initializing])
	assert.True(t, seen[Running])
}
