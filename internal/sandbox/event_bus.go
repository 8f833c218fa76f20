package sandbox

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/qorzen/kernel/internal/eventbus"
	"github.com/qorzen/kernel/internal/kerrors"
)

// EventBusClient is the sandboxed event_bus proxy: publishes are tagged
// with the owning plugin's id and throttled by a per-plugin token bucket.
// A paused plugin's Publish fails closed and its subscribed handlers are
// skipped.
type EventBusClient struct {
	pluginID string
	bus      *eventbus.Bus
	limiter  *rate.Limiter

	paused func() bool
}

func newEventBusClient(pluginID string, bus *eventbus.Bus, requestsPerMin int, paused func() bool) *EventBusClient {
	if requestsPerMin <= 0 {
		requestsPerMin = 600
	}
	return &EventBusClient{
		pluginID: pluginID,
		bus:      bus,
		limiter:  rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), requestsPerMin),
		paused:   paused,
	}
}

// Publish stamps the event's source with the plugin id and enqueues it,
// subject to the plugin's own rate limit.
func (c *EventBusClient) Publish(ctx context.Context, eventType string, payload any) error {
	if c.paused() {
		return kerrors.New(kerrors.KindPlugin, "sandbox.event_bus", "plugin.paused").WithMeta("plugin_id", c.pluginID)
	}
	if !c.limiter.Allow() {
		return kerrors.New(kerrors.KindRateLimited, "sandbox.event_bus", "publish rate exceeded").WithMeta("plugin_id", c.pluginID)
	}

	e := eventbus.NewEvent(eventType, "plugin."+c.pluginID, payload)
	return c.bus.Publish(ctx, e)
}

// Subscribe installs a handler that is skipped while the plugin is paused.
func (c *EventBusClient) Subscribe(name string, filter eventbus.Filter, handler eventbus.Handler) (uuid.UUID, error) {
	guarded := func(ctx context.Context, e eventbus.Event) error {
		if c.paused() {
			return nil
		}
		return handler(ctx, e)
	}
	return c.bus.Subscribe(c.pluginID+"."+name, filter, guarded)
}

// Unsubscribe removes a previously installed subscription.
func (c *EventBusClient) Unsubscribe(id uuid.UUID) error {
	return c.bus.Unsubscribe(id)
}
