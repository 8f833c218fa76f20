package account

import "sync"

type cacheKey struct {
	userID   string
	resource string
	action   string
	scope    string
	version  uint64
}

// decisionCache memoizes check() results keyed by (user, permission,
// role_version). A role/permission mutation bumps the user's role_version,
// which orphans every entry keyed to the old version without requiring an
// active sweep — stale entries simply stop being looked up.
type decisionCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]bool
	maxSize int
}

func newDecisionCache(maxSize int) *decisionCache {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &decisionCache{entries: make(map[cacheKey]bool), maxSize: maxSize}
}

func (c *decisionCache) key(userID string, p Permission, version uint64) cacheKey {
	return cacheKey{userID: userID, resource: p.Resource, action: p.Action, scope: p.Scope.String(), version: version}
}

func (c *decisionCache) get(userID string, p Permission, version uint64) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[c.key(userID, p, version)]
	return v, ok
}

func (c *decisionCache) put(userID string, p Permission, version uint64, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[c.key(userID, p, version)] = allowed
}
