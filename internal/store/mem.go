package store

import "sync"

// MemStore is an in-memory Store for tests and ephemeral runs. Nothing
// survives process exit.
type MemStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{secrets: make(map[string]string)}
}

func (s *MemStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.secrets[key]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets[key] = value

	return nil
}

func (s *MemStore) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.secrets[key]
	delete(s.secrets, key)

	return ok, nil
}
