// Package tmpstore is a pool of temporary file paths used to capture process
// input and output. Paths are handed out by Create and returned by Dispose;
// a disposed path may be handed out again, so callers must not touch a path
// after disposing it.
package tmpstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

type Pool struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	used mapset.Set[string]
	free mapset.Set[string]
}

// New creates a pool rooted at dir, creating the directory if needed
func New(dir string, log *slog.Logger) (*Pool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Pool{
		dir:  dir,
		log:  log.With("component", "tmpstore"),
		used: mapset.NewThreadUnsafeSet[string](),
		free: mapset.NewThreadUnsafeSet[string](),
	}, nil
}

// Create returns a path owned by the caller until it is disposed. The file
// itself is not created or truncated.
func (p *Pool) Create() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	path, ok := p.free.Pop()
	if ok {
		p.log.Debug("reusing temp path", "path", path)
	} else {
		path = filepath.Join(p.dir, uuid.NewString())
		p.log.Debug("creating temp path", "path", path)
	}
	p.used.Add(path)
	return path
}

// Dispose returns paths to the pool. Empty strings are ignored.
func (p *Pool) Dispose(paths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, path := range paths {
		if path == "" {
			continue
		}
		switch {
		case p.free.Contains(path):
			p.log.Warn("duplicate dispose of temp path", "path", path)
		case p.used.Contains(path):
			p.used.Remove(path)
			p.free.Add(path)
		default:
			p.log.Debug("path is not disposable", "path", path)
		}
	}
}

// Stats returns the number of paths in use and waiting for reuse
func (p *Pool) Stats() (used, free int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used.Cardinality(), p.free.Cardinality()
}

// Monitor logs pool sizes every interval until ctx is done
func (p *Pool) Monitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			used, free := p.Stats()
			p.log.Debug("temp pool", "used", used, "free", free)
		}
	}
}

// Close removes every file the pool ever handed out
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, path := range append(p.used.ToSlice(), p.free.ToSlice()...) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove temp file: %w", err)
		}
	}
	p.used.Clear()
	p.free.Clear()
	return firstErr
}
