// Package cache keeps completed transcripts keyed by media content hash.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"jumpcut/internal/domain"
)

const defaultMaxEntries = 200

type memoryEntry struct {
	words     []domain.Word
	expiresAt time.Time
	storedAt  time.Time
}

// Memory is a bounded in-process cache. When full, the oldest stored entry is
// evicted.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Memory{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]domain.Word, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]domain.Word(nil), entry.words...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, words []domain.Word, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := memoryEntry{words: append([]domain.Word(nil), words...), storedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey = k
			oldest = e.storedAt
		}
	}
	delete(m.entries, oldestKey)
}

// Key hashes media content into a cache key.
func Key(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
