package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycService stores opaque byte payloads in a sharded sturdyc client.
// sturdyc only knows a client wide TTL, so every entry carries its own
// expiry which is enforced on read.
type SturdycService struct {
	client *sturdyc.Client[entry]
	now    Clock
}

// NewSturdycService creates a new sturdyc cache service adapter.
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New,
// the rest are applied via ToSturdycOptions.
func NewSturdycService(cfg Config) (*SturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycService{client: client, now: time.Now}, nil
}

// WithClock replaces the clock used to evaluate per entry expiry.
func (s *SturdycService) WithClock(now Clock) *SturdycService {
	s.now = now
	return s
}

func (s *SturdycService) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := s.client.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}

	if e.expired(s.now()) {
		s.client.Delete(key)
		return nil, ErrCacheMiss
	}

	return append([]byte(nil), e.value...), nil
}

func (s *SturdycService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.client.Set(key, newEntry(value, ttl, s.now()))
	return nil
}

func (s *SturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix.
// sturdyc has no prefix index, so the key space is scanned.
func (s *SturdycService) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Size returns the number of entries currently held, expired ones included.
func (s *SturdycService) Size() int {
	return s.client.Size()
}
