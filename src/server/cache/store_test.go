package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"def-gateway/src/internal/types"
)

// fakeRef implements types.NamedElementRef for testing
type fakeRef struct {
	id uint64
}

func (r *fakeRef) RefID() uint64 { return r.id }

func testKey(file string, ref *fakeRef) types.Key {
	return types.Key{
		File:   uri.File(file),
		Module: "Test.Module",
		Ref:    ref,
	}
}

func locationFor(file, name string, ref *fakeRef) types.Result {
	return types.LocationResult(name,
		types.NewLocalModuleLocation(uri.File(file), ref, name))
}

func TestStore_GetCoalescesConcurrentCallers(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})
	target := &fakeRef{id: 2}

	var computations atomic.Int32
	loader := func(ctx context.Context) (types.Result, error) {
		computations.Add(1)
		time.Sleep(20 * time.Millisecond)
		return locationFor("/proj/src/Bar.hs", "bar", target), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]types.Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			future := store.Get(key, loader)
			<-future.Done()
			results[i] = future.Result()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), computations.Load(), "all callers must share one computation")
	for _, result := range results {
		require.True(t, result.IsLocation())
		assert.Equal(t, "bar", result.Location.Name)
	}
	assert.Equal(t, 1, store.Len())
}

func TestStore_TransientResultNotRetained(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	future := store.Get(key, func(ctx context.Context) (types.Result, error) {
		return types.NoInfoResult("foo", types.NoInfo{Kind: types.ReplIsBusy}), nil
	})
	<-future.Done()

	// Waiters still observe the failure.
	result := future.Result()
	require.True(t, result.IsNoInfo())
	assert.True(t, result.IsTransient())

	// The slot is released shortly after publication.
	assert.Eventually(t, func() bool {
		_, ok := store.GetIfPresent(key)
		return !ok && store.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStore_DefinitiveNoInfoIsRetained(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	future := store.Get(key, func(ctx context.Context) (types.Result, error) {
		return types.NoInfoResult("foo", types.NoInfo{Kind: types.NoInfoAvailable}), nil
	})
	<-future.Done()

	cached, ok := store.GetIfPresent(key)
	require.True(t, ok)
	assert.Equal(t, types.NoInfoAvailable, cached.NoInfo.Kind)
}

func TestStore_GetIfPresentNeverBlocksOnInFlight(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	release := make(chan struct{})
	store.Get(key, func(ctx context.Context) (types.Result, error) {
		<-release
		return locationFor("/proj/src/Bar.hs", "bar", &fakeRef{id: 2}), nil
	})

	start := time.Now()
	_, ok := store.GetIfPresent(key)
	assert.False(t, ok, "in-flight entries must read as a miss")
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(release)
}

func TestStore_PutSkipsTransientResults(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	store.Put(key, types.NoInfoResult("foo", types.NoInfo{Kind: types.ReadActionTimeout}))

	_, ok := store.GetIfPresent(key)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestStore_PutDoesNotClobberInFlightEntry(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})
	fromLoader := &fakeRef{id: 2}

	release := make(chan struct{})
	future := store.Get(key, func(ctx context.Context) (types.Result, error) {
		<-release
		return locationFor("/proj/src/Bar.hs", "fromLoader", fromLoader), nil
	})

	store.Put(key, locationFor("/proj/src/Baz.hs", "fromPut", &fakeRef{id: 3}))

	close(release)
	<-future.Done()

	cached, ok := store.GetIfPresent(key)
	require.True(t, ok)
	assert.Equal(t, "fromLoader", cached.Location.Name, "in-flight computation owns the slot")
}

func TestStore_PutReplacesCompletedEntry(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	store.Put(key, locationFor("/proj/src/Bar.hs", "old", &fakeRef{id: 2}))
	store.Put(key, locationFor("/proj/src/Bar.hs", "new", &fakeRef{id: 3}))

	cached, ok := store.GetIfPresent(key)
	require.True(t, ok)
	assert.Equal(t, "new", cached.Location.Name)
}

func TestStore_GetAfterCompletionReturnsCachedFuture(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	var computations atomic.Int32
	loader := func(ctx context.Context) (types.Result, error) {
		computations.Add(1)
		return locationFor("/proj/src/Bar.hs", "bar", &fakeRef{id: 2}), nil
	}

	first := store.Get(key, loader)
	<-first.Done()

	second := store.Get(key, loader)
	<-second.Done()

	assert.Equal(t, int32(1), computations.Load())
	assert.Equal(t, first.Result(), second.Result())
}

func TestStore_InvalidateRemovesEntry(t *testing.T) {
	store := NewStore()
	key := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})

	store.Put(key, locationFor("/proj/src/Bar.hs", "bar", &fakeRef{id: 2}))
	store.Invalidate(key)

	_, ok := store.GetIfPresent(key)
	assert.False(t, ok)
}

func TestStore_SnapshotSkipsInFlightEntries(t *testing.T) {
	store := NewStore()
	done := testKey("/proj/src/Foo.hs", &fakeRef{id: 1})
	pending := testKey("/proj/src/Foo.hs", &fakeRef{id: 2})

	store.Put(done, locationFor("/proj/src/Bar.hs", "bar", &fakeRef{id: 3}))

	release := make(chan struct{})
	store.Get(pending, func(ctx context.Context) (types.Result, error) {
		<-release
		return locationFor("/proj/src/Bar.hs", "baz", &fakeRef{id: 4}), nil
	})

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, done, snapshot[0].Key)

	close(release)
}
