package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	apperrors "datasync/pkg/errors"
)

// DefaultStateTTL bounds how long an authorize redirect stays valid.
const DefaultStateTTL = 10 * time.Minute

// StateStore issues single-use OAuth state values.
type StateStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	issued map[string]time.Time
}

// NewStateStore creates a store whose states expire after ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{ttl: ttl, now: time.Now, issued: make(map[string]time.Time)}
}

// Issue records and returns a fresh random state.
func (s *StateStore) Issue() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to generate OAuth state")
	}
	state := hex.EncodeToString(b[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.issued {
		if now.After(exp) {
			delete(s.issued, k)
		}
	}
	s.issued[state] = now.Add(s.ttl)
	return state, nil
}

// Consume reports whether state was issued and has not expired. A state
// is accepted at most once.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return !s.now().After(exp)
}
