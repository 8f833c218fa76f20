package account

import "time"

// Scope orders how broadly a permission applies. Global dominates every
// Department, and every Department dominates Own.
type Scope struct {
	kind string
	dept string
}

var ScopeGlobal = Scope{kind: "global"}

func ScopeOwn() Scope { return Scope{kind: "own"} }

func ScopeDepartment(dept string) Scope { return Scope{kind: "department", dept: dept} }

// Dominates reports whether s covers other: same or broader scope, and if
// both are department-scoped, the same department.
func (s Scope) Dominates(other Scope) bool {
	rank := func(sc Scope) int {
		switch sc.kind {
		case "global":
			return 2
		case "department":
			return 1
		default:
			return 0
		}
	}
	if rank(s) < rank(other) {
		return false
	}
	if s.kind == "department" && other.kind == "department" && s.dept != other.dept {
		return false
	}
	return true
}

func (s Scope) String() string {
	if s.kind == "department" {
		return "department:" + s.dept
	}
	return s.kind
}

// Permission is a resource/action pair bound to the scope it applies at.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// Dominates reports whether p covers the requested permission req: same
// resource, same action, and p's scope dominates req's scope.
func (p Permission) Dominates(req Permission) bool {
	return p.Resource == req.Resource && p.Action == req.Action && p.Scope.Dominates(req.Scope)
}

// RoleRef names a role, the permissions it grants directly, and any roles
// it inherits from. Inheritance is resolved (flattened) at check time, so a
// role need only list its immediate parents.
type RoleRef struct {
	Name        string
	Permissions []Permission
	Inherits    []RoleRef
}

// User is an authenticated principal.
type User struct {
	ID                string
	Username          string
	Email             string
	Roles             []RoleRef
	PermissionsDirect []Permission
	IsActive          bool
	Preferences       map[string]any
	LastLogin         *time.Time
	RoleVersion       uint64
	PasswordHash      string
}

// Session is an issued credential pair for a User.
type Session struct {
	Token        string
	UserID       string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RefreshToken string
}

// Claims is the payload recovered from a verified stateless token.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Credentials is the opaque payload passed to a keyed AuthProvider.
type Credentials struct {
	Kind string // e.g. "local", "oauth2", "saml", "ldap"
	Data map[string]any
}
