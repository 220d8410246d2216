package airbrake

import (
	"context"
	"sync"

	"github.com/fsandov/airbrake-go/pkg/config"
)

var (
	defaultNotifier *Notifier
	defaultOnce     sync.Once
	defaultErr      error
	defaultMu       sync.RWMutex
)

// Init creates the process-wide notifier once. Later calls return the first result.
func Init(cfg config.Config, opts ...Option) (*Notifier, error) {
	defaultOnce.Do(func() {
		n, err := New(cfg, opts...)
		if err != nil {
			defaultErr = err
			return
		}
		SetDefault(n)
	})
	return Default(), defaultErr
}

// SetDefault replaces the process-wide notifier.
func SetDefault(n *Notifier) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultNotifier = n
}

// Default returns the process-wide notifier, or nil before Init.
func Default() *Notifier {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultNotifier
}

// Notify reports err through the default notifier. It is a no-op returning
// config.ErrNotConfigured before Init.
func Notify(ctx context.Context, err error, opts ...NoticeOption) (*Report, error) {
	n := Default()
	if n == nil {
		return nil, config.ErrNotConfigured
	}
	return n.Notify(ctx, err, opts...)
}
