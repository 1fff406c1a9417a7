package preload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfinder/pkg/model"
	"shopfinder/pkg/store"
)

// stubStore serves AllActive from a swappable result.
type stubStore struct {
	mu      sync.Mutex
	outlets []*model.Outlet
	err     error
	calls   atomic.Int32
	entered chan struct{} // closed on first call when non-nil
	release chan struct{} // AllActive waits on it when non-nil
}

func (s *stubStore) set(outlets []*model.Outlet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outlets, s.err = outlets, err
}

func (s *stubStore) AllActive(ctx context.Context) ([]*model.Outlet, error) {
	if s.calls.Add(1) == 1 && s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outlets, s.err
}

func (s *stubStore) RangeQuery(ctx context.Context, f store.RangeFilter) ([]*model.Outlet, error) {
	return nil, errors.New("not used")
}

type recordingObserver struct {
	mu     sync.Mutex
	counts []int
	errs   int
}

func (r *recordingObserver) ObserveRebuild(count int, took time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs++
		return
	}
	r.counts = append(r.counts, count)
}

func outlets(ids ...string) []*model.Outlet {
	out := make([]*model.Outlet, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Outlet{ID: id, Name: id, Lat: 52, Lon: 21, Active: true})
	}
	return out
}

func TestRebuild_ReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	st := &stubStore{}
	obs := &recordingObserver{}
	c := New(st, Config{}, obs)

	_, ok := c.Snapshot()
	assert.False(t, ok, "cache starts empty")
	_, ok = c.LastRefreshedAt()
	assert.False(t, ok)

	inactive := &model.Outlet{ID: "node/x", Active: false}
	st.set(append(outlets("node/1", "node/2"), inactive), nil)

	n, err := c.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, ok := c.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Outlets, 2)
	assert.Equal(t, "node/1", snap.Outlets[0].ID)
	assert.NotNil(t, snap.Outlets[0].Products)

	// Full replace, zero is a legitimate result
	st.set(nil, nil)
	n, err = c.Rebuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	snap, ok = c.Snapshot()
	require.True(t, ok)
	assert.Empty(t, snap.Outlets)

	assert.Equal(t, []int{2, 0}, obs.counts)
}

func TestRebuild_FailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	st := &stubStore{}
	obs := &recordingObserver{}
	c := New(st, Config{}, obs)

	st.set(outlets("node/1"), nil)
	_, err := c.Rebuild(ctx)
	require.NoError(t, err)
	before, _ := c.Snapshot()

	st.set(nil, errors.New("disk on fire"))
	_, err = c.Rebuild(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRebuildFailed)

	after, ok := c.Snapshot()
	require.True(t, ok)
	assert.Same(t, before, after)
	assert.Equal(t, 1, obs.errs)
}

func TestSnapshot_Expiry(t *testing.T) {
	ctx := context.Background()
	st := &stubStore{}
	st.set(outlets("node/1"), nil)

	c := New(st, Config{TTL: time.Hour}, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Rebuild(ctx)
	require.NoError(t, err)

	at, ok := c.LastRefreshedAt()
	require.True(t, ok)
	assert.Equal(t, now, at)

	now = now.Add(59 * time.Minute)
	_, ok = c.Snapshot()
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Snapshot()
	assert.False(t, ok, "snapshot at TTL is expired")
	_, ok = c.LastRefreshedAt()
	assert.False(t, ok)

	stale, ok := c.Stale()
	require.True(t, ok)
	assert.Len(t, stale.Outlets, 1)

	// Ensure rebuilds on expiry
	fresh, err := c.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, now, fresh.BuiltAt)
	assert.Equal(t, int32(2), st.calls.Load())
}

func TestEnsure_ColdFailure(t *testing.T) {
	st := &stubStore{}
	st.set(nil, errors.New("unreachable"))
	c := New(st, Config{}, nil)

	_, err := c.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrRebuildFailed)
	_, ok := c.Stale()
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	st := &stubStore{}
	st.set(outlets("node/1"), nil)
	c := New(st, Config{}, nil)

	_, err := c.Rebuild(ctx)
	require.NoError(t, err)

	c.Invalidate()
	_, ok := c.Snapshot()
	assert.False(t, ok)
	_, ok = c.Stale()
	assert.False(t, ok)

	_, err = c.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.calls.Load())
}

func TestRebuild_ConcurrentCallsCollapse(t *testing.T) {
	st := &stubStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	st.set(outlets("node/1", "node/2", "node/3"), nil)
	c := New(st, Config{}, nil)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]int, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Rebuild(context.Background())
		}(i)
	}

	<-st.entered
	// Let the remaining callers join the in-flight rebuild
	time.Sleep(50 * time.Millisecond)
	close(st.release)
	wg.Wait()

	assert.Equal(t, int32(1), st.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 3, results[i])
	}
}

func TestRebuild_CallerCancelDoesNotAbortRebuild(t *testing.T) {
	st := &stubStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	st.set(outlets("node/1"), nil)
	c := New(st, Config{Timeout: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Rebuild(ctx)
		done <- err
	}()

	<-st.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(st.release)
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot()
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestStart_PeriodicRefresh(t *testing.T) {
	st := &stubStore{}
	st.set(outlets("node/1"), nil)
	c := New(st, Config{RefreshInterval: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Eventually(t, func() bool { return st.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	_, ok := c.Snapshot()
	assert.True(t, ok)
}

func TestStart_DisabledWithoutInterval(t *testing.T) {
	st := &stubStore{}
	c := New(st, Config{}, nil)
	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, st.calls.Load())
}
