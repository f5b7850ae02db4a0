package kvstore

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/pimentor/backend/core/user"
)

var NowFunc = time.Now // mockable

type entry struct {
	code    string
	expires time.Time
}

// MemoryStore keeps codes in process memory; only suitable for a single instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

var _ user.CodeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

func (s *MemoryStore) SaveCode(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowFunc()
	// drop what expired meanwhile so the map does not grow forever
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = entry{code: code, expires: now.Add(ttl)}
	return nil
}

// get returns the live entry under key; the caller holds the lock.
func (s *MemoryStore) get(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !NowFunc().Before(e.expires) {
		delete(s.entries, key)
		return "", false
	}
	return e.code, true
}

func (s *MemoryStore) GetCode(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.get(key)
	if !ok {
		return "", user.ErrCodeNotFound
	}
	return code, nil
}

func (s *MemoryStore) ConsumeCode(_ context.Context, key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.get(key)
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 0 {
		return user.ErrCodeNotFound
	}
	delete(s.entries, key)
	return nil
}
