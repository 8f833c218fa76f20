package manager

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/metrics"
)

type entry struct {
	desc           Descriptor
	factory        Factory
	instance       Managed
	state          State
	lastTransition time.Time
	lastErr        error
}

// Supervisor hosts registered managers under a uniform lifecycle, the way
// domain/app.Manager hosts apps: a protected map plus copy-out accessors,
// scaled up with a dependency DAG and an FSM per entry.
type Supervisor struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string // registration order, stable for iteration
	initTopo []string // topological order established by the last initialize_all

	watchMu  sync.Mutex
	watchers []chan HealthEvent

	log     *logging.Logger
	metrics *metrics.Metrics
}

// New creates an empty supervisor.
func New(log *logging.Logger) *Supervisor {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Supervisor{entries: make(map[string]*entry), log: log}
}

// SetMetrics attaches a metrics collector; state transitions recorded
// before this is called are not retroactively counted.
func (s *Supervisor) SetMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Register adds a manager definition. Returns duplicate_name if the name is
// taken, or a dependency-kind cycle error if adding it would create a
// dependency cycle among currently registered managers.
func (s *Supervisor) Register(desc Descriptor, factory Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[desc.Name]; exists {
		return kerrors.New(kerrors.KindConflict, "manager.supervisor", "duplicate_name").
			WithMeta("name", desc.Name)
	}

	tentative := make(map[string]map[string]struct{}, len(s.entries)+1)
	for name, e := range s.entries {
		tentative[name] = e.desc.DependsOn
	}
	tentative[desc.Name] = desc.DependsOn

	if cyc := findCycle(tentative); cyc != nil {
		return kerrors.New(kerrors.KindDependency, "manager.supervisor", "cycle").
			WithMeta("cycle", cyc)
	}

	s.entries[desc.Name] = &entry{desc: desc, factory: factory, state: Uninitialized, lastTransition: time.Now()}
	s.order = append(s.order, desc.Name)
	return nil
}

// findCycle runs a DFS over the dependency graph and returns the member
// names of the first cycle found, or nil if the graph is acyclic.
func findCycle(graph map[string]map[string]struct{}) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	color := make(map[string]int, len(graph))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = inStack
		stack = append(stack, n)
		for dep := range graph[n] {
			switch color[dep] {
			case inStack:
				// found the cycle: slice the stack back to dep
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = done
		return false
	}

	for n := range graph {
		if color[n] == unvisited {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// levels computes Kahn's-algorithm topological levels: level i contains
// every manager whose dependencies are all satisfied by levels < i. Managers
// within one level have no edges between them and may initialize
// concurrently.
func (s *Supervisor) levels() ([][]string, error) {
	indegree := make(map[string]int, len(s.entries))
	dependents := make(map[string][]string, len(s.entries))

	for name, e := range s.entries {
		for dep := range e.desc.DependsOn {
			if _, ok := s.entries[dep]; !ok {
				return nil, kerrors.New(kerrors.KindDependency, "manager.supervisor", "missing dependency").
					WithMeta("manager", name).WithMeta("missing", dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var levels [][]string
	remaining := len(s.entries)
	current := make([]string, 0)
	for _, name := range s.order {
		if indegree[name] == 0 {
			current = append(current, name)
		}
	}

	for remaining > 0 && len(current) > 0 {
		levels = append(levels, current)
		remaining -= len(current)
		var next []string
		for _, name := range current {
			for _, dep := range dependents[name] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if remaining > 0 {
		return nil, kerrors.New(kerrors.KindDependency, "manager.supervisor", "cycle detected during leveling")
	}
	return levels, nil
}

func (s *Supervisor) setState(name string, to State, err error) {
	s.mu.Lock()
	e := s.entries[name]
	from := e.state
	e.state = to
	e.lastTransition = time.Now()
	e.lastErr = err
	m := s.metrics
	s.mu.Unlock()

	if m != nil {
		m.ManagerTransitions.WithLabelValues(name, to.String()).Inc()
		m.ManagerState.WithLabelValues(name).Set(float64(to))
	}

	s.broadcast(HealthEvent{Name: name, From: from, To: to, At: time.Now(), Err: err})
}

func (s *Supervisor) broadcast(ev HealthEvent) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// InitializeAll brings every registered manager through
// Uninitialized -> Initializing -> {Running, Failed} in topological order.
// Independent managers within the same dependency level initialize
// concurrently. On any failure, every not-yet-initialized transitive
// dependent is marked Failed(propagated); independent subtrees still
// start. If any failure occurred, already-running managers are shut down
// in reverse topological order before this returns the aggregated error.
func (s *Supervisor) InitializeAll(ctx context.Context) error {
	s.mu.RLock()
	levels, err := s.levels()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	var collector kerrors.Collector
	failed := make(map[string]error)
	var topoOrder []string

	for _, level := range levels {
		var g errgroup.Group
		for _, name := range level {
			name := name
			s.mu.RLock()
			e := s.entries[name]
			var blockedBy string
			var blockedCause error
			for dep := range e.desc.DependsOn {
				if cause, ok := failed[dep]; ok {
					blockedBy = dep
					blockedCause = cause
					break
				}
			}
			s.mu.RUnlock()

			if blockedBy != "" {
				propagated := kerrors.New(kerrors.KindDependency, name, "dependency failed").
					WithSeverity(kerrors.SeverityHigh).
					WithMeta("dependency", blockedBy).
					WithCause(blockedCause)
				s.setState(name, Failed, propagated)
				continue
			}

			topoOrder = append(topoOrder, name)
			g.Go(func() error {
				return s.initOne(ctx, name)
			})
		}

		if werr := g.Wait(); werr != nil {
			// individual failures are already recorded via setState/collector
			// inside initOne; here we only need to mark dependents.
		}

		s.mu.RLock()
		for _, name := range level {
			if s.entries[name].state == Failed {
				failed[name] = s.entries[name].lastErr
				if kerr, ok := s.entries[name].lastErr.(*kerrors.Error); ok {
					collector.Add(kerr)
				}
			}
		}
		s.mu.RUnlock()
	}

	s.mu.Lock()
	s.initTopo = topoOrder
	s.mu.Unlock()

	if !collector.Empty() {
		s.shutdownRunning(ctx, 30*time.Second)
		return collector.Err()
	}
	return nil
}

func (s *Supervisor) initOne(ctx context.Context, name string) error {
	s.mu.RLock()
	e := s.entries[name]
	s.mu.RUnlock()

	s.setState(name, Initializing, nil)

	instance, err := e.factory()
	if err != nil {
		kerr := kerrors.Internal(name, "factory failed").WithCause(err)
		s.setState(name, Failed, kerr)
		return kerr
	}

	if err := instance.Initialize(ctx); err != nil {
		kerr := kerrors.Internal(name, "initialize failed").WithCause(err)
		s.mu.Lock()
		e.instance = instance
		s.mu.Unlock()
		s.setState(name, Failed, kerr)
		return kerr
	}

	s.mu.Lock()
	e.instance = instance
	s.mu.Unlock()
	s.setState(name, Running, nil)
	return nil
}

// ShutdownAll shuts every manager down in reverse topological order,
// allotting each at most deadline-now. A manager exceeding its slice is
// forcibly abandoned and recorded Failed(shutdown_timeout); later managers
// still run.
func (s *Supervisor) ShutdownAll(deadline time.Time) error {
	var collector kerrors.Collector
	order := s.reverseOrder()

	for _, name := range order {
		s.mu.RLock()
		e := s.entries[name]
		s.mu.RUnlock()
		if e.state.Terminal() || e.instance == nil {
			continue
		}

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ctx, cancel := context.WithTimeout(context.Background(), remaining)

		s.setState(name, ShuttingDown, nil)
		done := make(chan error, 1)
		go func() { done <- e.instance.Shutdown(ctx) }()

		select {
		case err := <-done:
			cancel()
			if err != nil {
				kerr := kerrors.Internal(name, "shutdown failed").WithCause(err)
				s.setState(name, Failed, kerr)
				collector.Add(kerr)
			} else {
				s.setState(name, Shutdown, nil)
			}
		case <-ctx.Done():
			cancel()
			kerr := kerrors.Timeout(name, "shutdown_timeout").WithSeverity(kerrors.SeverityHigh)
			s.setState(name, Failed, kerr)
			collector.Add(kerr)
		}
	}

	return collector.Err()
}

// shutdownRunning is the init-failure rollback path: shut down only
// managers that actually reached Running/Degraded, reverse topological.
func (s *Supervisor) shutdownRunning(ctx context.Context, perManager time.Duration) {
	order := s.reverseOrder()
	for _, name := range order {
		s.mu.RLock()
		e := s.entries[name]
		s.mu.RUnlock()
		if e.instance == nil || (e.state != Running && e.state != Degraded) {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, perManager)
		s.setState(name, ShuttingDown, nil)
		if err := e.instance.Shutdown(sctx); err != nil {
			s.setState(name, Failed, kerrors.Internal(name, "rollback shutdown failed").WithCause(err))
		} else {
			s.setState(name, Shutdown, nil)
		}
		cancel()
	}
}

func (s *Supervisor) reverseOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base := s.initTopo
	if len(base) == 0 {
		base = s.order
	}
	out := make([]string, len(base))
	for i, n := range base {
		out[len(base)-1-i] = n
	}
	return out
}

// Status aggregates a manager's self-reported health with its last
// transition timestamp.
func (s *Supervisor) Status(name string) (HealthReport, bool) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return HealthReport{}, false
	}

	report := HealthReport{Name: name, State: e.state, LastTransitionAt: e.lastTransition, Err: e.lastErr}
	if e.instance != nil {
		h := e.instance.Health()
		report.Degraded = h.Degraded
		report.Message = h.Message
		report.Metadata = h.Metadata
	}
	return report, true
}

// WatchHealth returns a channel of future FSM transitions, restartable
// from "now" only. The caller is responsible for draining it; full buffers
// drop events rather than blocking the supervisor.
func (s *Supervisor) WatchHealth() <-chan HealthEvent {
	ch := make(chan HealthEvent, 64)
	s.watchMu.Lock()
	s.watchers = append(s.watchers, ch)
	s.watchMu.Unlock()
	return ch
}

// Names returns every registered manager name in registration order.
func (s *Supervisor) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
