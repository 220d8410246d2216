// Package cache holds short-lived markers, such as fingerprints of notices that
// were sent recently. Entries expire on their own; nothing here is durable.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidContext = errors.New("invalid context")
	ErrClosed         = errors.New("cache closed")
)

// Cache is the set of expiring markers the notifier dedupes against.
type Cache interface {
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Flush drops every marker, e.g. after a deploy.
	Flush(ctx context.Context) error
	Close() error
}
