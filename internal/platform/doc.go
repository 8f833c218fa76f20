// Package platform defines the traits the kernel core consumes but never
// implements beyond a default OS-backed implementation: FileSystem,
// Storage, Database, Network, and Capabilities.
package platform
