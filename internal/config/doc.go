// Package config implements the kernel's tiered configuration store: five
// ordered tiers (System < Global < User < Local < Runtime) merged by
// strict override-by-key into a versioned, lock-free-readable snapshot,
// with change notifications, key-bound validators, and a QORZEN_ environment
// overlay loaded into the Runtime tier at startup.
//
// Components:
//   - Tier / TierStore: the five-tier ordering and the per-tier backing
//     interface (an in-memory MapStore by default)
//   - Store: the merged view, Get/GetTyped/Set/Delete, change subscriptions
//   - FileTierSource: a TierStore backed by a file plus an fsnotify watch,
//     re-parsed by a caller-supplied function on every write
//   - env.go: the QORZEN_<KEY_PATH> environment overlay
//
// This is distinct from the kernel's own bootstrap configuration (the
// envconfig-loaded process settings in internal/kernel): that one shape is
// fixed at process start, this one is a live, multi-writer runtime view.
package config
