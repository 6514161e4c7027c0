package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
)

// Store is an in-memory implementation of store.Store for tests and the
// CLI's dry-run mode.
type Store struct {
	mu       sync.RWMutex
	patterns []store.DetectedPattern
	events   map[string]struct{}
	closed   bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{events: make(map[string]struct{})}
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// AppendPatterns adds records atomically: either all are stored or none.
func (s *Store) AppendPatterns(ctx context.Context, patterns ...store.DetectedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return internalerr.ErrStoreUnavailable
	}
	batch := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if p.EventID == "" {
			return fmt.Errorf("append pattern %s: empty event id: %w", p.PatternID, internalerr.ErrInvalidInput)
		}
		_, dup := s.events[p.EventID]
		_, dupBatch := batch[p.EventID]
		if dup || dupBatch {
			return fmt.Errorf("append pattern event %s: %w", p.EventID, internalerr.ErrDuplicate)
		}
		batch[p.EventID] = struct{}{}
	}
	for _, p := range patterns {
		s.events[p.EventID] = struct{}{}
		s.patterns = append(s.patterns, p.Clone())
	}
	return nil
}

// ListPatterns returns copies of the matching records.
func (s *Store) ListPatterns(ctx context.Context, f store.Filter) ([]store.DetectedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, internalerr.ErrStoreUnavailable
	}
	out := f.Apply(s.patterns)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out, nil
}
