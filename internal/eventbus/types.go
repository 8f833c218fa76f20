package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qorzen/kernel/internal/kerrors"
)

// Event is the unit of delivery. Payload carries the type-specific body;
// handlers downcast it themselves, the way a typed channel's receiver
// knows its own element type.
type Event struct {
	ID        uuid.UUID
	Type      string
	Source    string
	Metadata  map[string]any
	Severity  kerrors.Severity
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an ID and timestamp for a caller-constructed event, at
// medium severity, matching kerrors.New's default.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    source,
		Metadata:  map[string]any{},
		Severity:  kerrors.SeverityMedium,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Handler processes one event. It must respect ctx cancellation. A handler
// is never invoked concurrently with itself by the bus.
type Handler func(ctx context.Context, e Event) error

// Filter is a subscription predicate: a conjunction of optional clauses.
// An empty Filter matches every event.
type Filter struct {
	Types              []string
	Sources            []string
	MetadataPredicates map[string]any
	MinSeverity        kerrors.Severity
}

// Matches reports whether e satisfies f.
func (f Filter) Matches(e Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == e.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for key, want := range f.MetadataPredicates {
		got, ok := e.Metadata[key]
		if !ok || got != want {
			return false
		}
	}

	if e.Severity < f.MinSeverity {
		return false
	}

	return true
}

// Policy governs what Publish does when the global queue is full.
type Policy int

const (
	Reject Policy = iota
	Wait
	DropOldest
	DropNewest
)

func (p Policy) String() string {
	switch p {
	case Reject:
		return "reject"
	case Wait:
		return "wait"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// Config configures a Bus.
type Config struct {
	QueueCapacity    int
	WorkerCount      int
	Policy           Policy
	WaitTimeout      time.Duration
	SubscriberBuffer int
}

// DefaultConfig mirrors the retrieval pack's event-bus defaults: a
// generously sized queue, a worker count matching typical core counts, and
// reject-on-full as the conservative default policy.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:    10_000,
		WorkerCount:      8,
		Policy:           Reject,
		WaitTimeout:      5 * time.Second,
		SubscriberBuffer: 256,
	}
}
