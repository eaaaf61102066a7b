// Package session holds the client's authentication state and persists the
// bearer token across restarts.
package session

import (
	"errors"
	"fmt"
	"sync"

	"microblog-client/internal/models"
	"microblog-client/internal/storage"
)

// TokenKey is the storage key the bearer token is persisted under.
const TokenKey = "token"

// Persister is the durable key/value backing of a Store.
// *storage.DB satisfies it.
type Persister interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Store holds the token and the validated user profile.
type Store struct {
	mu      sync.RWMutex
	persist Persister
	token   string
	user    *models.User
	gen     uint64
}

// NewStore creates an empty Store backed by p.
func NewStore(p Persister) *Store {
	return &Store{persist: p}
}

// Restore loads a persisted token, if any. The token is not validated and
// the user stays unset until SetUser succeeds.
func (s *Store) Restore() error {
	token, err := s.persist.Get(TokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = nil
	s.gen++
	return nil
}

// SetAuthenticated stores token and user together and persists the token.
// Nothing changes in memory when persisting fails.
func (s *Store) SetAuthenticated(token string, user *models.User) error {
	if token == "" || user == nil {
		return errors.New("session: token and user are required")
	}
	if err := s.persist.Set(TokenKey, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
	s.gen++
	return nil
}

// Authenticate is SetAuthenticated for a login that started at generation
// gen. It reports false, and changes nothing, if the session moved on since.
func (s *Store) Authenticate(gen uint64, token string, user *models.User) (bool, error) {
	if token == "" || user == nil {
		return false, errors.New("session: token and user are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, nil
	}
	if err := s.persist.Set(TokenKey, token); err != nil {
		return false, fmt.Errorf("persist token: %w", err)
	}
	s.token = token
	s.user = user
	s.gen++
	return true, nil
}

// SetUser records a validated profile for the token held at generation gen.
// It reports false, and changes nothing, if the session moved on since.
func (s *Store) SetUser(gen uint64, user *models.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.token == "" {
		return false
	}
	s.user = user
	return true
}

// Clear drops the token and user and removes the persisted token.
// The in-memory state is cleared even if the persisted token cannot be removed.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.gen++
	s.mu.Unlock()

	if err := s.persist.Delete(TokenKey); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// Invalidate clears the session only if it is still at generation gen.
// It reports whether the session was cleared.
func (s *Store) Invalidate(gen uint64) (bool, error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false, nil
	}
	s.token = ""
	s.user = nil
	s.gen++
	s.mu.Unlock()

	if err := s.persist.Delete(TokenKey); err != nil {
		return true, fmt.Errorf("remove token: %w", err)
	}
	return true, nil
}

// IsAuthenticated reports whether a token is held. It does not check the
// token against the backend.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the current token and the generation it belongs to.
func (s *Store) Token() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.gen
}

// User returns the validated profile, or nil.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Generation returns a counter bumped on every session change.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Snapshot returns a copy of the session.
func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := models.Session{Token: s.token}
	if s.user != nil {
		u := *s.user
		sess.User = &u
	}
	return sess
}
