package sandbox

import (
	"context"

	"github.com/qorzen/kernel/internal/account"
	"github.com/qorzen/kernel/internal/kerrors"
)

// Invoker is the kernel API surface a plugin's api_client proxy dispatches
// onto once a call clears permission mediation. The router core implements
// it.
type Invoker interface {
	Invoke(ctx context.Context, method, path string, body any) (any, error)
}

// APIClient is the sandboxed api_client proxy: every call is checked
// against the plugin's declared permissions before it reaches the real
// kernel API.
type APIClient struct {
	pluginID string
	declared []account.Permission
	invoker  Invoker
}

func newAPIClient(pluginID string, declared []account.Permission, invoker Invoker) *APIClient {
	return &APIClient{pluginID: pluginID, declared: declared, invoker: invoker}
}

// Call checks required against the plugin's declared permissions and, if
// permitted, dispatches to the kernel API.
func (c *APIClient) Call(ctx context.Context, required account.Permission, method, path string, body any) (any, error) {
	if !c.permitted(required) {
		return nil, kerrors.New(kerrors.KindPermission, "sandbox.api_client", "call exceeds declared permissions").
			WithMeta("plugin_id", c.pluginID).
			WithMeta("resource", required.Resource).
			WithMeta("action", required.Action)
	}
	return c.invoker.Invoke(ctx, method, path, body)
}

func (c *APIClient) permitted(required account.Permission) bool {
	for _, p := range c.declared {
		if p.Dominates(required) {
			return true
		}
	}
	return false
}
