package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/logging"
)

// UsageProvider returns the current resource usage for a plugin. The
// kernel's process is single, so per-plugin memory/fd accounting is
// supplied by the caller (typically tracked allocations and open handles
// the sandbox itself issued) rather than OS-level process introspection.
type UsageProvider func(pluginID string) (Usage, bool)

// Sampler periodically checks every tracked plugin's usage against its
// declared Limits, pausing plugins that exceed a hard limit and resuming
// ones that fall back under budget.
type Sampler struct {
	mgr      *Manager
	bus      *eventbus.Bus
	log      *logging.Logger
	interval time.Duration
	usage    UsageProvider

	mu     sync.Mutex
	limits map[string]Limits
	state  map[string]bool // pluginID -> currently paused by the sampler

	stop chan struct{}
}

// NewSampler builds a Sampler. Call Track for each plugin as it loads and
// Untrack when it unloads; Start/Stop bound the sampling loop's lifetime.
func NewSampler(mgr *Manager, bus *eventbus.Bus, usage UsageProvider, interval time.Duration, log *logging.Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{
		mgr:      mgr,
		bus:      bus,
		log:      log,
		interval: interval,
		usage:    usage,
		limits:   make(map[string]Limits),
		state:    make(map[string]bool),
	}
}

// Track registers a plugin's declared limits for sampling.
func (s *Sampler) Track(pluginID string, limits Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[pluginID] = limits
	s.state[pluginID] = false
}

// Untrack removes a plugin from sampling, e.g. on unload.
func (s *Sampler) Untrack(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limits, pluginID)
	delete(s.state, pluginID)
}

// Start launches the sampling loop until ctx is cancelled.
func (s *Sampler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the sampling loop.
func (s *Sampler) Stop() {
	if s.stop != nil {
		close(s.stop)
	}
}

func (s *Sampler) tick(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(map[string]Limits, len(s.limits))
	for id, l := range s.limits {
		snapshot[id] = l
	}
	s.mu.Unlock()

	for pluginID, limits := range snapshot {
		u, ok := s.usage(pluginID)
		if !ok {
			continue
		}

		exceeded := limits.Exceeds(u)

		s.mu.Lock()
		wasPaused := s.state[pluginID]
		s.state[pluginID] = exceeded
		s.mu.Unlock()

		if exceeded && !wasPaused {
			s.mgr.SetPaused(pluginID, true)
			s.emitThrottled(ctx, pluginID, u)
		} else if !exceeded && wasPaused {
			s.mgr.SetPaused(pluginID, false)
		}
	}
}

func (s *Sampler) emitThrottled(ctx context.Context, pluginID string, u Usage) {
	e := eventbus.NewEvent("plugin.throttled", "sandbox", map[string]any{
		"plugin_id":    pluginID,
		"memory_bytes": u.MemoryBytes,
		"open_files":   u.OpenFiles,
	})
	if err := s.bus.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish plugin.throttled", zap.String("plugin_id", pluginID), zap.Error(err))
	}
}
