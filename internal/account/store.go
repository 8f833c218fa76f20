package account

import (
	"sync"

	"github.com/google/uuid"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/shared/utils"
)

// MemoryUserStore is an in-memory UserStore/UserLookup, grounded on the
// dual username/ID sync.Map indexing the teacher's auth provider used for
// its own in-process user table.
type MemoryUserStore struct {
	mu     sync.RWMutex
	byName map[string]*User
	byID   map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byName: make(map[string]*User), byID: make(map[string]*User)}
}

func (s *MemoryUserStore) ByUsername(username string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[username]
	return u, ok
}

func (s *MemoryUserStore) ByID(userID string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	return u, ok
}

func (s *MemoryUserStore) Save(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[u.Username] = u
	s.byID[u.ID] = u
	return nil
}

// Register validates and persists a new local user with a bcrypt-hashed
// password. It fails if the username is already taken.
func (s *MemoryUserStore) Register(username, password, email string) (*User, error) {
	if err := utils.ValidateUsername(username); err != nil {
		return nil, kerrors.Validation("account.register", err.Error())
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, kerrors.Validation("account.register", err.Error())
	}
	if email != "" {
		if err := utils.ValidateEmail(email, false); err != nil {
			return nil, kerrors.Validation("account.register", err.Error())
		}
	}

	if _, exists := s.ByUsername(username); exists {
		return nil, kerrors.Validation("account.register", "username already exists")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.Save(u); err != nil {
		return nil, err
	}
	return u, nil
}

// MutateRoles applies fn to the user's role/permission set under the store's
// lock and bumps its RoleVersion, invalidating every cached decision keyed
// to the prior version.
func (s *MemoryUserStore) MutateRoles(userID string, fn func(u *User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return kerrors.Validation("account.store", "user not found")
	}
	fn(u)
	u.RoleVersion++
	return nil
}
