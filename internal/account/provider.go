package account

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/qorzen/kernel/internal/kerrors"
)

// AuthProvider authenticates a Credentials payload of the kind it registers
// under. local, oauth2, saml, and ldap share this contract; only local ships
// a concrete implementation here.
type AuthProvider interface {
	Kind() string
	Authenticate(creds Credentials) (*User, error)
}

// UserStore is the minimal persistence contract a local AuthProvider needs.
// A platform-backed implementation lives alongside internal/platform.
type UserStore interface {
	ByUsername(username string) (*User, bool)
	Save(u *User) error
}

// LocalProvider authenticates against bcrypt-hashed passwords held in a
// UserStore.
type LocalProvider struct {
	users UserStore
}

func NewLocalProvider(users UserStore) *LocalProvider {
	return &LocalProvider{users: users}
}

func (p *LocalProvider) Kind() string { return "local" }

func (p *LocalProvider) Authenticate(creds Credentials) (*User, error) {
	username, _ := creds.Data["username"].(string)
	password, _ := creds.Data["password"].(string)
	if username == "" || password == "" {
		return nil, kerrors.Auth("account.local", "invalid").WithMeta("code", "auth.invalid")
	}

	u, ok := p.users.ByUsername(username)
	if !ok {
		return nil, kerrors.Auth("account.local", "invalid").WithMeta("code", "auth.invalid")
	}
	if !u.IsActive {
		return nil, kerrors.Auth("account.local", "locked").WithMeta("code", "auth.locked")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, kerrors.Auth("account.local", "invalid").WithMeta("code", "auth.invalid")
	}
	return u, nil
}

// HashPassword bcrypt-hashes a plaintext password at the default cost.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", kerrors.Internal("account.local", "password hashing failed").WithCause(err)
	}
	return string(hash), nil
}
