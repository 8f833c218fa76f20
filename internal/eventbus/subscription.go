package eventbus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qorzen/kernel/internal/logging"
)

// subscription owns its own ordered delivery channel and a single consumer
// goroutine, so one slow handler never reorders its own view of events and
// never runs concurrently with itself.
type subscription struct {
	id        uuid.UUID
	name      string
	filter    Filter
	handler   Handler
	createdAt time.Time

	active    atomic.Bool
	delivered atomic.Uint64
	dropped   atomic.Uint64

	inbox chan Event
	done  chan struct{}
}

func newSubscription(name string, filter Filter, handler Handler, bufSize int) *subscription {
	s := &subscription{
		id:        uuid.New(),
		name:      name,
		filter:    filter,
		handler:   handler,
		createdAt: time.Now(),
		inbox:     make(chan Event, bufSize),
		done:      make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

// run drains inbox in order, invoking handler serially. sem bounds how many
// subscriptions across the whole bus may be actively invoking a handler at
// once; it is acquired and released around each handler call, and one
// subscription's handler calls stay strictly sequential because this single
// goroutine makes them.
func (s *subscription) run(ctx context.Context, acquire func(context.Context) error, release func(), log *logging.Logger) {
	for {
		select {
		case e, ok := <-s.inbox:
			if !ok {
				return
			}
			if !s.active.Load() {
				continue
			}
			if err := acquire(ctx); err != nil {
				continue
			}
			if err := s.handler(ctx, e); err != nil && log != nil {
				log.Warn("event handler failed",
					zap.String("subscription", s.name),
					zap.String("event_type", e.Type),
					zap.Error(err),
				)
			}
			s.delivered.Add(1)
			release()
		case <-s.done:
			return
		}
	}
}

func (s *subscription) close() {
	if s.active.CompareAndSwap(true, false) {
		close(s.done)
	}
}

// Stats is a snapshot of a subscription's data model, per spec.
type Stats struct {
	ID             uuid.UUID
	SubscriberName string
	Filter         Filter
	CreatedAt      time.Time
	DeliveredCount uint64
	DroppedCount   uint64
}

func (s *subscription) stats() Stats {
	return Stats{
		ID:             s.id,
		SubscriberName: s.name,
		Filter:         s.filter,
		CreatedAt:      s.createdAt,
		DeliveredCount: s.delivered.Load(),
		DroppedCount:   s.dropped.Load(),
	}
}
