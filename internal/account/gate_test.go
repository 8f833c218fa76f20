package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) (*Gate, *MemoryUserStore) {
	t.Helper()
	users := NewMemoryUserStore()
	gate := NewGate([]byte("test-signing-key"), users, nil)
	gate.RegisterProvider(NewLocalProvider(users))
	return gate, users
}

func TestAuthenticateRegisterAndLogin(t *testing.T) {
	gate, users := newTestGate(t)

	u, err := users.Register("alice", "correct-horse-battery", "alice@example.com")
	require.NoError(t, err)

	sess, err := gate.Authenticate(Credentials{Kind: "local", Data: map[string]any{
		"username": "alice",
		"password": "correct-horse-battery",
	}})
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.RefreshToken)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	gate, users := newTestGate(t)
	_, err := users.Register("bob", "correct-horse-battery", "")
	require.NoError(t, err)

	_, err = gate.Authenticate(Credentials{Kind: "local", Data: map[string]any{
		"username": "bob",
		"password": "wrong",
	}})
	require.Error(t, err)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	gate, users := newTestGate(t)
	u, err := users.Register("carol", "correct-horse-battery", "")
	require.NoError(t, err)

	sess, err := gate.Authenticate(Credentials{Kind: "local", Data: map[string]any{
		"username": "carol",
		"password": "correct-horse-battery",
	}})
	require.NoError(t, err)

	claims, err := gate.ValidateToken(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	gate, users := newTestGate(t)
	_, err := users.Register("dave", "correct-horse-battery", "")
	require.NoError(t, err)

	sess, err := gate.Authenticate(Credentials{Kind: "local", Data: map[string]any{
		"username": "dave",
		"password": "correct-horse-battery",
	}})
	require.NoError(t, err)

	_, err = gate.ValidateToken(sess.Token + "x")
	require.Error(t, err)
}

func TestRefreshRotatesTokenAndInvalidatesOld(t *testing.T) {
	gate, users := newTestGate(t)
	_, err := users.Register("erin", "correct-horse-battery", "")
	require.NoError(t, err)

	sess, err := gate.Authenticate(Credentials{Kind: "local", Data: map[string]any{
		"username": "erin",
		"password": "correct-horse-battery",
	}})
	require.NoError(t, err)

	next, err := gate.Refresh(sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, next.Token)
	assert.NotEqual(t, sess.RefreshToken, next.RefreshToken)

	_, err = gate.Refresh(sess.RefreshToken)
	assert.Error(t, err)
}

// TestPermissionDominanceLaw grounds spec's testable property: for every
// check(user, p) = true, some held permission dominates p.
func TestPermissionDominanceLaw(t *testing.T) {
	gate, _ := newTestGate(t)

	user := &User{
		ID: "u1",
		PermissionsDirect: []Permission{
			{Resource: "products", Action: "read", Scope: ScopeDepartment("d1")},
		},
	}

	assert.True(t, gate.Check(user, Permission{Resource: "products", Action: "read", Scope: ScopeDepartment("d1")}))
	assert.True(t, gate.Check(user, Permission{Resource: "products", Action: "read", Scope: ScopeOwn()}))
	assert.False(t, gate.Check(user, Permission{Resource: "products", Action: "read", Scope: ScopeGlobal}))
	assert.False(t, gate.Check(user, Permission{Resource: "products", Action: "write", Scope: ScopeOwn()}))
}

// TestPermissionEnforcementRouterScenario mirrors spec §8 scenario 5: a
// Department-scoped holder is rejected for a Global-scoped requirement, a
// Global-scoped holder passes.
func TestPermissionEnforcementRouterScenario(t *testing.T) {
	gate, _ := newTestGate(t)
	required := Permission{Resource: "products", Action: "read", Scope: ScopeGlobal}

	deptUser := &User{ID: "u1", PermissionsDirect: []Permission{
		{Resource: "products", Action: "read", Scope: ScopeDepartment("d1")},
	}}
	assert.False(t, gate.Check(deptUser, required))

	globalUser := &User{ID: "u2", PermissionsDirect: []Permission{
		{Resource: "products", Action: "read", Scope: ScopeGlobal},
	}}
	assert.True(t, gate.Check(globalUser, required))
}

func TestRoleInheritanceFlattensPermissions(t *testing.T) {
	gate, _ := newTestGate(t)

	base := RoleRef{Name: "viewer", Permissions: []Permission{
		{Resource: "reports", Action: "read", Scope: ScopeGlobal},
	}}
	editor := RoleRef{Name: "editor", Permissions: []Permission{
		{Resource: "reports", Action: "write", Scope: ScopeGlobal},
	}, Inherits: []RoleRef{base}}

	user := &User{ID: "u3", Roles: []RoleRef{editor}}
	assert.True(t, gate.Check(user, Permission{Resource: "reports", Action: "read", Scope: ScopeOwn()}))
	assert.True(t, gate.Check(user, Permission{Resource: "reports", Action: "write", Scope: ScopeGlobal}))
}

func TestCheckCacheInvalidatedByRoleVersionBump(t *testing.T) {
	gate, users := newTestGate(t)
	u, err := users.Register("frank", "correct-horse-battery", "")
	require.NoError(t, err)

	req := Permission{Resource: "billing", Action: "read", Scope: ScopeGlobal}
	assert.False(t, gate.Check(u, req))

	require.NoError(t, users.MutateRoles(u.ID, func(user *User) {
		user.PermissionsDirect = append(user.PermissionsDirect, req)
	}))

	updated, _ := users.ByID(u.ID)
	assert.True(t, gate.Check(updated, req))
}

func TestRevokeIsIdempotent(t *testing.T) {
	gate, users := newTestGate(t)
	_, err := users.Register("gina", "correct-horse-battery", "")
	require.NoError(t, err)

	sess, err := gate.Authenticate(Credentials{Kind: "local", Data: map[string]any{
		"username": "gina",
		"password": "correct-horse-battery",
	}})
	require.NoError(t, err)

	var sessionID string
	gate.mu.Lock()
	for id, rec := range gate.sessions {
		if id == sess.RefreshToken {
			sessionID = rec.id
		}
	}
	gate.mu.Unlock()

	require.NoError(t, gate.Revoke(sessionID))
	require.NoError(t, gate.Revoke(sessionID))
}
