package router

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/qorzen/kernel/internal/account"
	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
	"github.com/qorzen/kernel/internal/metrics"
)

// Router is the kernel's API dispatch core: route resolution, session
// authentication, permission authorization, rate limiting, and handler
// dispatch, all transport-agnostic.
type Router struct {
	gate  *account.Gate
	users account.UserLookup
	log   *logging.Logger
	met   *metrics.Metrics

	mu      sync.RWMutex
	trie    *trie
	routes  map[string]*Route // "METHOD pattern" -> Route, for Unregister
	buckets map[string]map[string]*rate.Limiter
}

// New builds a Router. gate validates bearer tokens and checks declared
// permissions; users resolves a validated token's subject into the *User a
// handler and the permission check both need.
func New(gate *account.Gate, users account.UserLookup, log *logging.Logger) *Router {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Router{
		gate:    gate,
		users:   users,
		log:     log,
		trie:    newTrie(),
		routes:  make(map[string]*Route),
		buckets: make(map[string]map[string]*rate.Limiter),
	}
}

// SetMetrics attaches a metrics collector for request/rate-limit
// instrumentation.
func (r *Router) SetMetrics(m *metrics.Metrics) { r.met = m }

// Register adds route to the dispatch table, rejecting an exact
// (method, pattern) collision.
func (r *Router) Register(route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := routeKey(route.Method, route.Pattern)
	if err := r.trie.insert(route.Method, route.Pattern, &route); err != nil {
		return err
	}
	r.routes[key] = &route
	return nil
}

// Unregister drops a previously registered route, used when a plugin owning
// it unloads.
func (r *Router) Unregister(method, pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey(method, pattern)
	delete(r.routes, key)
	delete(r.buckets, key)

	root, ok := r.trie.roots[method]
	if !ok {
		return
	}
	clearRoute(root, segments(pattern))
}

func clearRoute(n *node, segs []string) {
	if len(segs) == 0 {
		n.route = nil
		return
	}
	head, rest := segs[0], segs[1:]
	if strings.HasPrefix(head, "{") {
		if n.param != nil {
			clearRoute(n.param, rest)
		}
		return
	}
	if next, ok := n.static[head]; ok {
		clearRoute(next, rest)
	}
}

func routeKey(method, pattern string) string {
	return method + " " + pattern
}

// Dispatch runs the full pipeline from spec.md §4.7: resolve, authenticate,
// authorize, rate-limit, invoke, translate. It never panics or returns a Go
// error — every outcome is a Response.
func (r *Router) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := r.dispatch(ctx, req)

	if r.met != nil {
		r.met.RouterDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		statusClass := strconv.Itoa(resp.Status/100) + "xx"
		r.met.RouterRequests.WithLabelValues(req.Method, statusClass).Inc()
		if resp.Status == 429 {
			r.met.RouterRateLimited.Inc()
		}
	}
	return resp
}

func (r *Router) dispatch(ctx context.Context, req Request) Response {
	r.mu.RLock()
	route, params, ok := r.trie.match(req.Method, req.Path)
	r.mu.RUnlock()
	if !ok {
		body, _ := json.Marshal(map[string]string{"error": "not found"})
		return Response{Status: 404, ContentType: "application/json", Body: body}
	}
	req.PathParams = params

	if len(route.RequiredPermissions) > 0 {
		user, err := r.authenticate(req)
		if err != nil {
			return errorResponse(err)
		}
		req.User = user

		for _, required := range route.RequiredPermissions {
			if !r.gate.Check(user, required) {
				return errorResponse(kerrors.New(kerrors.KindPermission, "router", "permission denied").
					WithMeta("resource", required.Resource).WithMeta("action", required.Action))
			}
		}
	}

	if route.RateLimit != nil {
		if !r.allow(route, req) {
			return errorResponse(kerrors.New(kerrors.KindRateLimited, "router", "rate limit exceeded").
				WithMeta("scope", string(route.RateLimit.Scope)))
		}
	}

	resp, err := route.Handler(ctx, req)
	if err != nil {
		return errorResponse(err)
	}
	return resp
}

// Invoke lets a sandboxed plugin's api_client proxy reach this dispatch
// core without going through a real transport: it marshals body, runs the
// normal Dispatch pipeline (route resolution, auth, rate limiting), and
// unmarshals a JSON response body back into an any. It satisfies
// sandbox.Invoker.
func (r *Router) Invoke(ctx context.Context, method, path string, body any) (any, error) {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, kerrors.Validation("router", "invoke body not marshalable").WithCause(err)
		}
		raw = b
	}

	resp := r.Dispatch(ctx, Request{Method: method, Path: path, Body: raw})
	if resp.Status >= 400 {
		var payload map[string]string
		_ = json.Unmarshal(resp.Body, &payload)
		return nil, kerrors.New(statusKind(resp.Status), "router", payload["error"]).WithMeta("status", resp.Status)
	}

	if len(resp.Body) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return resp.Body, nil
	}
	return out, nil
}

func statusKind(status int) kerrors.Kind {
	switch status {
	case 401:
		return kerrors.KindAuth
	case 403:
		return kerrors.KindPermission
	case 404, 400:
		return kerrors.KindValidation
	case 409:
		return kerrors.KindConflict
	case 429:
		return kerrors.KindRateLimited
	default:
		return kerrors.KindInternal
	}
}

func (r *Router) authenticate(req Request) (*account.User, error) {
	auth := req.Headers["Authorization"]
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return nil, kerrors.Auth("router", "missing bearer token").WithMeta("code", "auth.missing")
	}

	claims, err := r.gate.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	user, ok := r.users.ByID(claims.UserID)
	if !ok || !user.IsActive {
		return nil, kerrors.Auth("router", "unknown or inactive user").WithMeta("code", "auth.invalid")
	}
	return user, nil
}

func (r *Router) allow(route *Route, req Request) bool {
	cfg := route.RateLimit
	key := rateLimitKey(cfg.Scope, req)

	r.mu.Lock()
	perRoute, ok := r.buckets[routeKey(route.Method, route.Pattern)]
	if !ok {
		perRoute = make(map[string]*rate.Limiter)
		r.buckets[routeKey(route.Method, route.Pattern)] = perRoute
	}
	limiter, ok := perRoute[key]
	if !ok {
		burst := cfg.BurstLimit
		if burst <= 0 {
			burst = cfg.RequestsPerMinute
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
		perRoute[key] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}

func rateLimitKey(scope RateLimitScope, req Request) string {
	switch scope {
	case ScopePerUser:
		if req.User != nil {
			return "user:" + req.User.ID
		}
		return "user:anonymous"
	case ScopePerIP:
		return "ip:" + req.Headers["X-Forwarded-For"]
	case ScopePerAPIKey:
		return "key:" + req.Headers["X-API-Key"]
	default:
		return "global"
	}
}

// errorResponse maps a kerrors.Error to the HTTP status spec.md §7
// mandates. Anything that isn't a recognized kind, including a plain Go
// error escaping a handler, becomes a 500 with a generic message: no cause
// chain, source, or metadata is ever exposed to the caller.
func errorResponse(err error) Response {
	status, message := 500, "internal error"
	if e, ok := err.(*kerrors.Error); ok {
		switch e.Kind() {
		case kerrors.KindPermission:
			status, message = 403, e.Message()
		case kerrors.KindAuth:
			status, message = 401, e.Message()
		case kerrors.KindValidation, kerrors.KindConfig:
			status, message = 400, e.Message()
		case kerrors.KindConflict:
			status, message = 409, e.Message()
		case kerrors.KindRateLimited:
			status, message = 429, e.Message()
		case kerrors.KindTimeout, kerrors.KindCancelled:
			status, message = 504, e.Message()
		}
	}
	body, _ := json.Marshal(map[string]string{"error": message})
	return Response{Status: status, ContentType: "application/json", Body: body}
}
