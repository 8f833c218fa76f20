// Package manager implements the kernel's manager supervisor: it hosts
// long-lived subsystems behind a uniform lifecycle, brings them up in
// dependency order, aggregates their health, and tears them down
// deterministically.
//
// Components:
//   - Supervisor: registration, dependency DAG, initialize_all/shutdown_all
//   - State: the lifecycle FSM shared by every registered manager
//   - HealthReport / HealthEvent: the health aggregation and watch stream
//
// A manager is registered as a Descriptor plus a Factory; the factory is
// invoked during initialize_all once every dependency has reached Running.
// Concurrent siblings at the same DAG level are brought up together via
// golang.org/x/sync/errgroup so independent subtrees never block on each
// other, matching the specification's "peer failures never block
// independent subtrees" rule.
package manager
