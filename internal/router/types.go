package router

import (
	"context"

	"github.com/qorzen/kernel/internal/account"
)

// Request is the router's transport-agnostic request value. Transport
// adapters (cmd/httpapi) translate a real HTTP request into one of these
// before dispatch and translate the Response back out.
type Request struct {
	Method        string
	Path          string
	Headers       map[string]string
	Query         map[string]string
	Body          []byte
	User          *account.User
	CorrelationID string

	// PathParams is filled in by route resolution from {name} segments
	// matched against Path; handlers read it, nothing else writes it.
	PathParams map[string]string
}

// Response is the router's transport-agnostic response value.
type Response struct {
	Status      int
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// Handler dispatches a resolved, authorized, rate-limit-cleared request.
type Handler func(ctx context.Context, req Request) (Response, error)

// RateLimitScope names the key a route's rate limit is tracked under.
type RateLimitScope string

const (
	ScopeGlobal    RateLimitScope = "global"
	ScopePerUser   RateLimitScope = "per_user"
	ScopePerIP     RateLimitScope = "per_ip"
	ScopePerAPIKey RateLimitScope = "per_api_key"
)

// RateLimitConfig is a route's token-bucket rate limit declaration.
type RateLimitConfig struct {
	Scope             RateLimitScope
	RequestsPerMinute int
	BurstLimit        int
}

// Route is one registered (method, pattern) pair and the policy dispatch
// enforces before the handler runs.
type Route struct {
	Method              string
	Pattern             string // e.g. "/api/products/{id}"
	RequiredPermissions []account.Permission
	RateLimit           *RateLimitConfig
	Handler             Handler
}
