package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Log is a read-mostly cache over a Store. The full history is loaded on
// first access; concurrent first callers share one load. Appends write
// through to the store and extend the cached copy.
type Log struct {
	st     Store
	logger *zap.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	loaded bool
	gen    uint64
	items  []DetectedPattern
}

// NewLog wraps st. A nil logger discards output.
func NewLog(st Store, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{st: st, logger: logger}
}

// All returns the whole history ordered by timestamp. The returned slice is
// shared and must not be modified.
func (l *Log) All(ctx context.Context) ([]DetectedPattern, error) {
	l.mu.RLock()
	if l.loaded {
		items := l.items
		l.mu.RUnlock()
		return items, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("history", func() (any, error) {
		l.mu.RLock()
		if l.loaded {
			items := l.items
			l.mu.RUnlock()
			return items, nil
		}
		gen := l.gen
		l.mu.RUnlock()

		start := time.Now()
		items, err := l.st.ListPatterns(ctx, Filter{})
		if err != nil {
			// not cached: the next caller retries
			return nil, fmt.Errorf("load pattern history: %w", err)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.gen == gen {
			l.items = items
			l.loaded = true
		}
		l.logger.Debug("pattern history loaded",
			zap.Int("records", len(items)),
			zap.Duration("took", time.Since(start)))
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items, ok := v.([]DetectedPattern)
	if !ok {
		return nil, fmt.Errorf("unexpected history type %T", v)
	}
	return items, nil
}

// Query loads the history if needed and applies f to it.
func (l *Log) Query(ctx context.Context, f Filter) ([]DetectedPattern, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(all), nil
}

// Append writes records through to the store. A loaded cache is extended
// copy-on-write so readers holding the previous slice are unaffected.
func (l *Log) Append(ctx context.Context, ps ...DetectedPattern) error {
	if len(ps) == 0 {
		return nil
	}
	if err := l.st.AppendPatterns(ctx, ps...); err != nil {
		return fmt.Errorf("append pattern history: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	if !l.loaded {
		return nil
	}
	next := make([]DetectedPattern, 0, len(l.items)+len(ps))
	next = append(next, l.items...)
	for _, p := range ps {
		next = append(next, p.Clone())
	}
	l.items = Filter{}.Apply(next)
	return nil
}

// Invalidate drops the cached copy; the next read reloads from the store.
func (l *Log) Invalidate() {
	l.mu.Lock()
	l.loaded = false
	l.items = nil
	l.gen++
	l.mu.Unlock()
}
