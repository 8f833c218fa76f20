package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/metrics"
)

// Bus is the kernel's typed event bus: a bounded global FIFO queue, drained
// in order by a single dispatch loop, fanning out to per-subscription
// ordered channels whose own single consumer invokes handlers serially. A
// semaphore bounds how many handler invocations may run concurrently
// across the whole bus, standing in for the "fixed worker pool" the queue
// drains into.
type Bus struct {
	cfg     Config
	log     *logging.Logger
	metrics *metrics.Metrics

	subsMu sync.RWMutex
	subs   map[uuid.UUID]*subscription

	queue chan Event
	sem   *semaphore.Weighted
	limit *rate.Limiter

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a bus. Call Start before Publish and Stop during shutdown.
func New(cfg Config, log *logging.Logger) *Bus {
	if log == nil {
		log = logging.NewDefault()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}

	return &Bus{
		cfg:   cfg,
		log:   log,
		subs:  make(map[uuid.UUID]*subscription),
		queue: make(chan Event, cfg.QueueCapacity),
		sem:   semaphore.NewWeighted(int64(cfg.WorkerCount)),
		limit: rate.NewLimiter(rate.Every(time.Millisecond), 1),
	}
}

// SetMetrics attaches a metrics collector for publish/drop/queue-depth
// instrumentation.
func (b *Bus) SetMetrics(m *metrics.Metrics) { b.metrics = m }

// Start launches the dispatch loop. Idempotent calls are not supported;
// call once per Bus lifetime.
func (b *Bus) Start(ctx context.Context) error {
	b.runCtx, b.runCancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.dispatchLoop()
	return nil
}

// Stop drains no further events, cancels outstanding handler acquisitions,
// and waits for the dispatch loop and every subscription consumer to exit.
func (b *Bus) Stop(ctx context.Context) error {
	if b.runCancel != nil {
		b.runCancel()
	}
	close(b.queue)

	b.subsMu.Lock()
	for _, s := range b.subs {
		s.close()
	}
	b.subsMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return kerrors.Timeout("eventbus", "shutdown_timeout")
	}
}

// Subscribe atomically installs a subscription and starts its consumer.
func (b *Bus) Subscribe(name string, filter Filter, handler Handler) (uuid.UUID, error) {
	if handler == nil {
		return uuid.Nil, kerrors.Validation("eventbus", "handler is required")
	}

	sub := newSubscription(name, filter, handler, b.cfg.SubscriberBuffer)

	b.subsMu.Lock()
	b.subs[sub.id] = sub
	b.subsMu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx := b.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		sub.run(ctx, b.acquire, b.release, b.log)
	}()

	return sub.id, nil
}

// Stats returns the delivery/drop counters and metadata for a live
// subscription. The second return is false if id is unknown.
func (b *Bus) Stats(id uuid.UUID) (Stats, bool) {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	sub, ok := b.subs[id]
	if !ok {
		return Stats{}, false
	}
	return sub.stats(), true
}

// Subscriptions returns a stats snapshot for every live subscription.
func (b *Bus) Subscriptions() []Stats {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	out := make([]Stats, 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, sub.stats())
	}
	return out
}

// Unsubscribe is idempotent: unsubscribing an unknown or already-removed id
// returns nil. In-flight handler invocations for id are allowed to finish;
// no new ones are dispatched.
func (b *Bus) Unsubscribe(id uuid.UUID) error {
	b.subsMu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.subsMu.Unlock()

	if ok {
		sub.close()
	}
	return nil
}

// Publish enqueues event onto the bounded global queue, applying the
// configured backpressure policy when the queue is full.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case b.queue <- e:
		if b.metrics != nil {
			b.metrics.EventsPublished.WithLabelValues(e.Type).Inc()
			b.metrics.EventQueueDepth.Set(float64(len(b.queue)))
		}
		return nil
	default:
	}

	switch b.cfg.Policy {
	case Reject:
		return kerrors.New(kerrors.KindRateLimited, "eventbus", "backpressure").
			WithMeta("event_type", e.Type)
	case Wait:
		waitCtx, cancel := context.WithTimeout(ctx, b.cfg.WaitTimeout)
		defer cancel()
		for {
			select {
			case b.queue <- e:
				return nil
			default:
			}
			if err := b.limit.Wait(waitCtx); err != nil {
				return kerrors.Timeout("eventbus", "publish wait elapsed")
			}
		}
	case DropOldest:
		select {
		case old := <-b.queue:
			b.recordDrop(old)
		default:
		}
		select {
		case b.queue <- e:
			return nil
		default:
			return kerrors.New(kerrors.KindRateLimited, "eventbus", "backpressure").
				WithMeta("event_type", e.Type)
		}
	case DropNewest:
		b.recordDrop(e)
		return nil
	default:
		return kerrors.New(kerrors.KindRateLimited, "eventbus", "backpressure")
	}
}

// PublishSync runs every matching handler on the caller's goroutine,
// bypassing the queue and worker pool. Used during init/shutdown windows
// where the dispatch loop may not be running.
func (b *Bus) PublishSync(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	for _, sub := range b.matching(e) {
		if err := sub.handler(ctx, e); err != nil {
			b.log.Warn("sync handler failed", zap.String("subscription", sub.name), zap.Error(err))
		}
	}
	return nil
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for e := range b.queue {
		for _, sub := range b.matching(e) {
			if !sub.active.Load() {
				continue
			}
			select {
			case sub.inbox <- e:
			case <-b.runCtx.Done():
				return
			}
		}
	}
}

func (b *Bus) matching(e Event) []*subscription {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()

	out := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.active.Load() && sub.filter.Matches(e) {
			out = append(out, sub)
		}
	}
	return out
}

func (b *Bus) acquire(ctx context.Context) error {
	return b.sem.Acquire(ctx, 1)
}

func (b *Bus) release() {
	b.sem.Release(1)
}

func (b *Bus) recordDrop(e Event) {
	if b.metrics != nil {
		b.metrics.EventsDropped.WithLabelValues(e.Type, b.cfg.Policy.String()).Inc()
	}
	for _, sub := range b.matching(e) {
		sub.dropped.Add(1)
	}

	meta := NewEvent("bus.dropped", "eventbus", nil)
	meta.Metadata["dropped_event_type"] = e.Type
	meta.Metadata["dropped_source"] = e.Source
	for _, sub := range b.matching(meta) {
		select {
		case sub.inbox <- meta:
		default:
		}
	}
}
