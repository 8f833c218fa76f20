// Package account implements the kernel's authentication and authorization
// gate: pluggable AuthProviders, session issuance, and permission dominance
// checks backed by a versioned, memoized decision cache.
package account
