package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Managed is the contract every supervised subsystem implements.
type Managed interface {
	// Initialize brings the manager up. It must respect ctx cancellation
	// and return promptly with a cancellation/timeout error if ctx ends.
	Initialize(ctx context.Context) error
	// Shutdown tears the manager down within the deadline carried by ctx.
	Shutdown(ctx context.Context) error
	// Health reports the manager's self-assessed health; called any time
	// the supervisor aggregates status, not just on transitions.
	Health() Health
}

// Health is a manager's self-reported health snapshot.
type Health struct {
	Degraded bool
	Message  string
	Metadata map[string]any
}

// Factory constructs a Managed instance. Factories are invoked lazily, once
// per registration, when the supervisor reaches that manager in
// initialization order.
type Factory func() (Managed, error)

// Descriptor is the static declaration of a registered manager.
type Descriptor struct {
	ID                   uuid.UUID
	Name                 string
	DependsOn            map[string]struct{}
	PlatformRequirements []string
	RequiredPermissions  []string
}

// NewDescriptor builds a Descriptor with a fresh stable ID.
func NewDescriptor(name string, dependsOn ...string) Descriptor {
	deps := make(map[string]struct{}, len(dependsOn))
	for _, d := range dependsOn {
		deps[d] = struct{}{}
	}
	return Descriptor{ID: uuid.New(), Name: name, DependsOn: deps}
}

// HealthReport is returned by Supervisor.Status.
type HealthReport struct {
	Name             string
	State            State
	LastTransitionAt time.Time
	Degraded         bool
	Message          string
	Metadata         map[string]any
	// Err is the error that drove the last FSM transition, if any. For a
	// Failed manager blocked by a failed dependency, this is the
	// dependency-failed error wrapping that dependency's own error as its
	// cause.
	Err error
}

// HealthEvent is one FSM transition, delivered by Supervisor.WatchHealth.
type HealthEvent struct {
	Name      string
	From      State
	To        State
	At        time.Time
	Err       error
}
