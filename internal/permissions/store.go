// Package permissions owns the global default user-permissions object. It
// used to live as mutable state on the application context; holding it behind
// an explicit store keeps reads and writes controlled and race-free.
package permissions

import (
	"encoding/json"
	"sync"
)

// Defaults returns the permissions applied when no admin has written any.
func Defaults() map[string]any {
	return map[string]any{
		"chat": map[string]any{
			"deletion": true,
		},
	}
}

// Store is a mutex-guarded permissions object. Get and Replace exchange deep
// copies so callers can never mutate the stored value behind the lock.
type Store struct {
	mu    sync.RWMutex
	perms map[string]any
}

// NewStore creates a Store seeded with the given permissions, or Defaults()
// when nil.
func NewStore(initial map[string]any) *Store {
	if initial == nil {
		initial = Defaults()
	}
	return &Store{perms: deepCopy(initial)}
}

// Get returns a copy of the current permissions object.
func (s *Store) Get() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.perms)
}

// Replace swaps the permissions object and returns a copy of the new value.
func (s *Store) Replace(perms map[string]any) map[string]any {
	copied := deepCopy(perms)
	s.mu.Lock()
	s.perms = copied
	s.mu.Unlock()
	return deepCopy(copied)
}

// deepCopy round-trips through JSON; the object is always JSON-shaped since
// it arrives from and leaves to JSON request bodies.
func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
