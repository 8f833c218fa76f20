package sandbox

import "time"

// Limits mirrors a plugin manifest's declared resource_limits. It is
// sandbox-local (rather than importing the plugin package's own type) so
// that plugin can depend on sandbox without a cycle back.
type Limits struct {
	MaxMemoryBytes          int64
	MaxOpenFiles            int
	NetworkRequestsPerMin   int
	DatabaseQueriesPerMin   int
	MaxDatabaseTables       int
	MaxDatabaseStorageBytes int64
}

// Usage is one sample of a plugin's consumption against its Limits.
type Usage struct {
	MemoryBytes int64
	OpenFiles   int
	SampledAt   time.Time
}

// Exceeds reports whether usage breaches any hard limit in l. A zero-value
// field in l is treated as "unbounded" for that dimension.
func (l Limits) Exceeds(u Usage) bool {
	if l.MaxMemoryBytes > 0 && u.MemoryBytes > l.MaxMemoryBytes {
		return true
	}
	if l.MaxOpenFiles > 0 && u.OpenFiles > l.MaxOpenFiles {
		return true
	}
	return false
}
