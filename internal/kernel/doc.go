// Package kernel wires the embeddable application kernel together:
// platform provider, tiered config store, logger, event bus, account gate,
// manager supervisor, and plugin registry, all hosted uniformly under
// internal/manager.Supervisor and torn down in one graceful shutdown call.
package kernel
