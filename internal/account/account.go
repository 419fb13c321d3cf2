// Package account holds the authoritative credential set consulted on
// bind (§3 Account). Passwords are bcrypt-hashed at load time the way the
// teacher's internal/auth package hashes SMPP bind credentials.
package account

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/smppsim/smppsim/internal/smpppdu"
)

const bcryptCost = 10

// Account is one configured ESME credential (§3).
type Account struct {
	SystemID         string
	passwordHash     []byte
	AllowedBindKinds map[smpppdu.BindKind]bool
	MaxSessions      int // 0 = unlimited; not checked on bind
	CreatedAt        time.Time
}

// Allows reports whether kind is permitted for this account.
func (a *Account) Allows(kind smpppdu.BindKind) bool {
	return a.AllowedBindKinds[kind]
}

// CheckPassword compares plaintext against the stored bcrypt hash.
func (a *Account) CheckPassword(plaintext string) bool {
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(plaintext)) == nil
}

// Store is the in-memory credential directory, loaded once at startup and
// consulted on every bind attempt (§3).
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewStore builds an empty credential store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]*Account)}
}

// Add registers an account with a plaintext password, hashing it with
// bcrypt before storage.
func (s *Store) Add(systemID, password string, kinds ...smpppdu.BindKind) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("account: failed to hash password for %q: %w", systemID, err)
	}
	allowed := make(map[smpppdu.BindKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[systemID] = &Account{
		SystemID:         systemID,
		passwordHash:     hash,
		AllowedBindKinds: allowed,
		CreatedAt:        time.Now(),
	}
	return nil
}

// Lookup returns the account for systemID, if any.
func (s *Store) Lookup(systemID string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[systemID]
	return a, ok
}
