package plugin

import (
	"time"

	"github.com/qorzen/kernel/internal/sandbox"
)

// Dependency names a required or optional plugin and the semver range its
// version must satisfy.
type Dependency struct {
	ID         string
	VersionReq string
	Optional   bool
}

// ResourceLimits bounds what a plugin's sandbox enforces at runtime.
type ResourceLimits struct {
	MaxMemoryBytes          int64
	MaxOpenFiles            int
	NetworkRequestsPerMin   int
	DatabaseQueriesPerMin   int
	MaxDatabaseTables       int
	MaxDatabaseStorageBytes int64
}

// Manifest is a plugin's declared shape, the unit Discovery produces.
type Manifest struct {
	ID                  string // reverse-DNS, e.g. "com.example.widgets"
	Version             string // semver
	MinKernelVersion    string
	SupportedPlatforms  []string
	Dependencies        []Dependency
	RequiredPermissions []string
	UIComponents        []string
	MenuItems           []string
	APIRoutes           []string
	SettingsSchema      map[string]any
	Assets              []string
	ResourceLimits      *ResourceLimits

	// SignaturePresent/Signature hold an optional Ed25519 signature over the
	// manifest's blake3 digest, verified during security validation whenever
	// present; when RequireSignature is set for the registry, a manifest
	// without a valid signature fails to load.
	SignaturePresent bool
	Signature        []byte
	PublicKey        []byte

	SourcePath string
}

// State is a LoadedPlugin's lifecycle position.
type State string

const (
	StateLoading   State = "Loading"
	StateActive    State = "Active"
	StatePaused    State = "Paused"
	StateError     State = "Error"
	StateUnloading State = "Unloading"
	StateUnloaded  State = "Unloaded"
)

// Factory constructs a plugin's runtime instance given its sandboxed
// context.
type Factory func(ctx *sandbox.Context) (Instance, error)

// Instance is the object a plugin factory returns; Shutdown runs during
// unload.
type Instance interface {
	Shutdown(ctx *sandbox.Context) error
}

// Loaded is a registry entry for one loaded (or loading/failed) plugin.
type Loaded struct {
	Manifest  Manifest
	State     State
	Instance  Instance
	LoadedAt  time.Time
	LastError error
}

// ResourceUsage is one periodic sample of a plugin's consumption against
// its ResourceLimits.
type ResourceUsage struct {
	MemoryBytes       int64
	OpenFiles         int
	NetworkRequests1m int
	DatabaseQueries1m int
	SampledAt         time.Time
}
