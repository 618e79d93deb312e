package runner

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// flight is a cancellable scope registered under a key while it runs
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// acquire registers a new scope under key. A scope already registered
// under key is cancelled and waited for first.
func acquire[K comparable](m *xsync.MapOf[K, *flight], key K, parent context.Context) *flight {
	for {
		ctx, cancel := context.WithCancel(parent)
		f := &flight{ctx: ctx, cancel: cancel, done: make(chan struct{})}
		prev, loaded := m.LoadOrStore(key, f)
		if !loaded {
			return f
		}
		cancel()
		prev.cancel()
		<-prev.done
	}
}

// release unregisters f and wakes up whoever waits for it. Further calls
// do nothing.
func release[K comparable](m *xsync.MapOf[K, *flight], key K, f *flight) {
	f.once.Do(func() {
		m.Compute(key, func(old *flight, loaded bool) (*flight, bool) {
			return old, !loaded || old == f
		})
		f.cancel()
		close(f.done)
	})
}

// stop cancels the scope under key and waits for it to end
func stop[K comparable](m *xsync.MapOf[K, *flight], key K) bool {
	f, ok := m.Load(key)
	if !ok {
		return false
	}
	f.cancel()
	<-f.done
	return true
}
