package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
	"github.com/cognicore/celldiag/pkg/celldiag/store/memstore"
)

// countingStore counts ListPatterns calls and can be told to fail.
type countingStore struct {
	*memstore.Store
	lists atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (c *countingStore) ListPatterns(ctx context.Context, f store.Filter) ([]store.DetectedPattern, error) {
	c.lists.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.fail.Load() {
		return nil, errors.New("disk on fire")
	}
	return c.Store.ListPatterns(ctx, f)
}

func record(id string, at time.Time) store.DetectedPattern {
	return store.DetectedPattern{
		EventID:   id,
		PatternID: "PAT_COLLISION",
		Type:      signals.Collision,
		Timestamp: at,
	}
}

func TestLogLoadsOnceForConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: memstore.New(), delay: 20 * time.Millisecond}
	require.NoError(t, st.AppendPatterns(ctx, record("e1", time.Now())))

	log := store.NewLog(st, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			all, err := log.All(ctx)
			assert.NoError(t, err)
			assert.Len(t, all, 1)
		}()
	}
	wg.Wait()

	_, err := log.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), st.lists.Load(), "history should be listed exactly once")
}

func TestLogRetriesAfterFailedLoad(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: memstore.New()}
	st.fail.Store(true)

	log := store.NewLog(st, nil)
	_, err := log.All(ctx)
	require.Error(t, err)

	st.fail.Store(false)
	all, err := log.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, int32(2), st.lists.Load())
}

func TestLogAppendWritesThrough(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: memstore.New()}
	log := store.NewLog(st, nil)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(ctx, record("e2", base.Add(time.Hour))))

	before, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, log.Append(ctx, record("e1", base)))
	after, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "e1", after[0].EventID, "cache stays time-ordered")
	assert.Len(t, before, 1, "earlier snapshot is not mutated")
	assert.Equal(t, int32(1), st.lists.Load(), "append must not force a reload")

	persisted, err := st.Store.ListPatterns(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	recent, err := log.Query(ctx, store.Filter{Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	log.Invalidate()
	_, err = log.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.lists.Load())
}
