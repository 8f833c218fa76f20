package sandbox

import (
	"github.com/qorzen/kernel/internal/account"
	"github.com/qorzen/kernel/internal/logging"
)

// Context is the PluginContext handed to a plugin's factory. It exposes
// exactly five proxies and nothing else of the kernel's internals.
type Context struct {
	PluginID string
	Config   map[string]any

	APIClient  *APIClient
	EventBus   *EventBusClient
	Database   *PluginDatabase // nil when the plugin declares no schema
	FileSystem *ScopedFileSystem
	Logger     *logging.Logger

	paused *bool
}

// Paused reports whether the sandbox has throttled this plugin. While
// paused, the plugin's event handlers are skipped and its event publishes
// fail with plugin.paused; its API routes do not consult this flag.
func (c *Context) Paused() bool {
	return c.paused != nil && *c.paused
}

// declaredPermissions parses a manifest's string permission declarations
// ("resource.action") into account.Permission values at global scope, the
// convention the original plugin SDK's macros use for declared permissions.
func declaredPermissions(required []string) []account.Permission {
	out := make([]account.Permission, 0, len(required))
	for _, r := range required {
		resource, action, ok := splitPermission(r)
		if !ok {
			continue
		}
		out = append(out, account.Permission{Resource: resource, Action: action, Scope: account.ScopeGlobal})
	}
	return out
}

func splitPermission(s string) (resource, action string, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
