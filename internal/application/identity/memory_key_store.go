package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryKeyStore keeps device keys in process memory (tests, or when no local database is configured).
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: map[string]string{}}
}

func (s *MemoryKeyStore) Load(_ context.Context, deviceID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[strings.TrimSpace(deviceID)]
	return k, ok, nil
}

func (s *MemoryKeyStore) Save(_ context.Context, deviceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[strings.TrimSpace(deviceID)] = key
	return nil
}
