// Package router is the kernel's transport-agnostic API dispatch core: a
// longest-prefix route trie with {name} path parameters, session
// authentication and permission authorization against internal/account,
// per-scope rate limiting, and handler dispatch with error-kind-to-status
// translation. The HTTP transport itself (cmd/httpapi) is an adapter on top
// of this package, not part of it.
package router
