package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryService is an unbounded in-process cache backed by a concurrent map.
// It is the backend used by tests and by single node deployments that do
// not need eviction.
type MemoryService struct {
	entries *xsync.MapOf[string, entry]
	now     Clock
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		entries: xsync.NewMapOf[string, entry](),
		now:     time.Now,
	}
}

// WithClock replaces the clock used to evaluate expiry.
func (m *MemoryService) WithClock(now Clock) *MemoryService {
	m.now = now
	return m
}

func (m *MemoryService) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := m.entries.Load(key)
	if !ok {
		return nil, ErrCacheMiss
	}

	if e.expired(m.now()) {
		m.entries.Delete(key)
		return nil, ErrCacheMiss
	}

	return append([]byte(nil), e.value...), nil
}

func (m *MemoryService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries.Store(key, newEntry(value, ttl, m.now()))
	return nil
}

func (m *MemoryService) Delete(ctx context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

func (m *MemoryService) DeleteByPrefix(ctx context.Context, prefix string) error {
	m.entries.Range(func(key string, _ entry) bool {
		if strings.HasPrefix(key, prefix) {
			m.entries.Delete(key)
		}
		return true
	})
	return nil
}

// Keys returns a snapshot of the stored keys, expired ones included.
func (m *MemoryService) Keys() []string {
	keys := make([]string, 0, m.entries.Size())
	m.entries.Range(func(key string, _ entry) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Size returns the number of stored entries, expired ones included.
func (m *MemoryService) Size() int {
	return m.entries.Size()
}
