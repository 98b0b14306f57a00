package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per-key TTL expiry. Expired entries
// are dropped lazily on read and swept periodically.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}

	go s.sweep()

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()

		return nil, nil
	}

	return entry.value, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()

	return nil
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
