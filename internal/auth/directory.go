package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// User is a registered caller. The id is the identity used as owner or
// customer in the booking core.
type User struct {
	ID           string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// UserStore persists registered users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
}

// MemoryUsers is a process-local UserStore.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User)}
}

func (m *MemoryUsers) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	m.users[u.ID] = cp
	return nil
}

func (m *MemoryUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Roles = append([]string(nil), u.Roles...)
	return &u, nil
}

// Directory registers users and exchanges credentials for bearer tokens.
type Directory struct {
	store    UserStore
	tokenTTL time.Duration
}

func NewDirectory(store UserStore, tokenTTL time.Duration) *Directory {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Directory{store: store, tokenTTL: tokenTTL}
}

const maxUserIDLen = 64

// Register creates a user. Roles are only granted when the caller passes
// them; self-service registration passes none.
func (d *Directory) Register(ctx context.Context, userID, password string, roles []string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > maxUserIDLen || strings.ContainsAny(userID, ": /") {
		return nil, fmt.Errorf("%w: user id must be 1-%d characters without ':', '/' or spaces", ErrInvalidInput, maxUserIDLen)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           userID,
		PasswordHash: hash,
		Roles:        normalizeRoles(roles),
		CreatedAt:    time.Now().UTC(),
	}
	if err := d.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Issue verifies the credentials and signs a token for the user.
func (d *Directory) Issue(ctx context.Context, userID, password string) (string, time.Time, error) {
	u, err := d.store.Find(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return "", time.Time{}, err
	}
	return GenerateToken(u.ID, u.Roles, d.tokenTTL)
}
