// Package kerrors provides the kernel's structured error model.
//
// Every error produced by a kernel component is a *kerrors.Error carrying a
// closed-set Kind, a Severity that dictates default handling, a source
// component name, free-form metadata, and an optional cause forming a
// single-parent chain. Errors are immutable once constructed.
//
// Severity drives side effects described in the specification: High errors
// are expected to trigger a health.degraded event for the owning manager,
// Critical errors additionally request orderly kernel shutdown. This package
// only models the data; internal/manager and internal/kernel are responsible
// for acting on it.
package kerrors
