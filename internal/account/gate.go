package account

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 24 * time.Hour
)

type sessionRecord struct {
	id           string
	userID       string
	refreshToken string
	expiresAt    time.Time
	revoked      bool
}

// UserLookup resolves a user by ID, used by check/refresh once a session's
// identity is known.
type UserLookup interface {
	ByID(userID string) (*User, bool)
}

// Gate is the kernel's account and authorization gate: it authenticates via
// registered AuthProviders, issues and rotates stateless-token sessions, and
// answers permission checks against a versioned decision cache.
type Gate struct {
	log       *logging.Logger
	signer    *tokenSigner
	providers map[string]AuthProvider
	users     UserLookup
	cache     *decisionCache

	mu       sync.Mutex
	sessions map[string]*sessionRecord // keyed by refresh token
}

// NewGate builds a Gate. signingKey seeds the HMAC token signer and must be
// kept stable across restarts for issued tokens to remain valid.
func NewGate(signingKey []byte, users UserLookup, log *logging.Logger) *Gate {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Gate{
		log:       log,
		signer:    newTokenSigner(signingKey),
		providers: make(map[string]AuthProvider),
		users:     users,
		cache:     newDecisionCache(0),
		sessions:  make(map[string]*sessionRecord),
	}
}

// RegisterProvider binds an AuthProvider under the credential kind it
// handles.
func (g *Gate) RegisterProvider(p AuthProvider) {
	g.providers[p.Kind()] = p
}

// Authenticate delegates to the AuthProvider registered for creds.Kind. Only
// one provider needs to succeed.
func (g *Gate) Authenticate(creds Credentials) (*Session, error) {
	provider, ok := g.providers[creds.Kind]
	if !ok {
		return nil, kerrors.Auth("account.gate", "unknown provider kind").WithMeta("code", "auth.invalid").WithMeta("kind", creds.Kind)
	}

	user, err := provider.Authenticate(creds)
	if err != nil {
		return nil, err
	}

	return g.issueSession(user.ID)
}

func (g *Gate) issueSession(userID string) (*Session, error) {
	now := time.Now()
	access, err := g.signer.sign(Claims{UserID: userID, IssuedAt: now, ExpiresAt: now.Add(accessTokenTTL)})
	if err != nil {
		return nil, err
	}
	refresh, err := randomOpaqueToken()
	if err != nil {
		return nil, err
	}

	rec := &sessionRecord{
		id:           uuid.NewString(),
		userID:       userID,
		refreshToken: refresh,
		expiresAt:    now.Add(refreshTokenTTL),
	}

	g.mu.Lock()
	g.sessions[refresh] = rec
	g.mu.Unlock()

	return &Session{
		Token:        access,
		UserID:       userID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(accessTokenTTL),
		RefreshToken: refresh,
	}, nil
}

// ValidateToken performs stateless verification of an access token.
func (g *Gate) ValidateToken(token string) (Claims, error) {
	return g.signer.verify(token)
}

// Refresh rotates the token pair bound to refreshToken. The old refresh
// token is invalidated atomically with the new session's issuance: a caller
// racing with a concurrent refresh sees either the pre- or post-rotation
// state, never a torn one.
func (g *Gate) Refresh(refreshToken string) (*Session, error) {
	g.mu.Lock()
	rec, ok := g.sessions[refreshToken]
	if !ok || rec.revoked {
		g.mu.Unlock()
		return nil, kerrors.Auth("account.gate", "invalid").WithMeta("code", "auth.invalid")
	}
	if time.Now().After(rec.expiresAt) {
		delete(g.sessions, refreshToken)
		g.mu.Unlock()
		return nil, kerrors.Auth("account.gate", "expired").WithMeta("code", "auth.expired")
	}
	userID := rec.userID
	delete(g.sessions, refreshToken)
	g.mu.Unlock()

	return g.issueSession(userID)
}

// Revoke marks a session expired by its session ID. Cached permission
// decisions for the session's user remain valid until the next role-version
// bump, per the gate's memoization contract.
func (g *Gate) Revoke(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, rec := range g.sessions {
		if rec.id == sessionID {
			rec.revoked = true
			return nil
		}
	}
	return nil
}

// Check evaluates permission dominance for req against user's roles and
// direct permissions, memoizing the result under (user_id, permission,
// role_version).
func (g *Gate) Check(user *User, req Permission) bool {
	if cached, ok := g.cache.get(user.ID, req, user.RoleVersion); ok {
		return cached
	}

	held := flattenRoles(user)
	allowed := dominatedBy(held, req)
	g.cache.put(user.ID, req, user.RoleVersion, allowed)
	return allowed
}
