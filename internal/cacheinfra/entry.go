package cacheinfra

import (
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

type entry struct {
	value     []byte
	expiresAt time.Time
}

func newEntry(value []byte, ttl time.Duration, now time.Time) entry {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time
