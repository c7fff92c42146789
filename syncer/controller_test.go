// ABOUTME: Tests for the synchronization controller
// ABOUTME: Covers single-flight coalescing, forced resync drain and per-id failure skip
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/dealsync/canonical"
	"github.com/harperreed/dealsync/crm"
	"github.com/harperreed/dealsync/models"
	"github.com/harperreed/dealsync/store"
)

// passthroughResolver is the no-op resolver used by the test engine.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ context.Context, _, rawValue string) string { return rawValue }

// fakeAdapter serves canned deals and records every upstream call. The
// optional listGate lets a test hold a batch open mid-run.
type fakeAdapter struct {
	mu       sync.Mutex
	deals    map[int64]map[string]any
	notFound map[int64]bool
	failing  map[int64]bool

	listCalls atomic.Int64
	getCalls  map[int64]int
	listGate  chan struct{}
}

func newFakeAdapter(ids ...int64) *fakeAdapter {
	a := &fakeAdapter{
		deals:    map[int64]map[string]any{},
		notFound: map[int64]bool{},
		failing:  map[int64]bool{},
		getCalls: map[int64]int{},
	}
	for _, id := range ids {
		a.deals[id] = map[string]any{"id": float64(id), "title": "Deal"}
	}
	return a
}

func (a *fakeAdapter) ListRecentDeals(_ context.Context, _ int) ([]any, error) {
	a.listCalls.Add(1)
	if a.listGate != nil {
		<-a.listGate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []any
	for id := range a.deals {
		out = append(out, map[string]any{"id": float64(id)})
	}
	for id := range a.notFound {
		out = append(out, map[string]any{"id": float64(id)})
	}
	for id := range a.failing {
		out = append(out, map[string]any{"id": float64(id)})
	}
	return out, nil
}

func (a *fakeAdapter) GetDeal(_ context.Context, id int64) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getCalls[id]++
	if a.notFound[id] {
		return nil, crm.ErrNotFound
	}
	if a.failing[id] {
		return nil, errors.New("upstream hiccup")
	}
	return a.deals[id], nil
}

func (a *fakeAdapter) GetDealProducts(_ context.Context, _ int64) ([]any, error) { return nil, nil }
func (a *fakeAdapter) GetDealNotes(_ context.Context, _ int64) ([]any, error)    { return nil, nil }
func (a *fakeAdapter) GetDealFiles(_ context.Context, _ int64) ([]any, error)    { return nil, nil }

func (a *fakeAdapter) getCount(id int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.getCalls[id]
}

func newTestController(adapter *fakeAdapter) (*Controller, *store.Store) {
	st := store.Open("", nil)
	engine := canonical.NewEngine(passthroughResolver{}, nil)
	return NewController(adapter, engine, st, nil), st
}

func TestSynchronizeStoresDeals(t *testing.T) {
	adapter := newFakeAdapter(1, 2)
	controller, st := newTestController(adapter)

	require.NoError(t, controller.Synchronize(context.Background(), false, nil))

	deals, err := st.GetAllDeals()
	require.NoError(t, err)
	assert.Len(t, deals, 2)
}

func TestConcurrentSynchronizeRunsOneBatch(t *testing.T) {
	adapter := newFakeAdapter(1)
	adapter.listGate = make(chan struct{})
	controller, _ := newTestController(adapter)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = controller.Synchronize(context.Background(), false, nil)
		}(i)
	}

	// Give every caller time to reach the flight slot, then let the
	// single batch proceed.
	time.Sleep(100 * time.Millisecond)
	close(adapter.listGate)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), adapter.listCalls.Load(), "all callers share one upstream batch")
}

func TestKnownIDsSkipWithoutForce(t *testing.T) {
	adapter := newFakeAdapter(1, 2)
	controller, _ := newTestController(adapter)

	require.NoError(t, controller.Synchronize(context.Background(), false, map[int64]bool{1: true}))

	assert.Equal(t, 0, adapter.getCount(1), "known id is skipped")
	assert.Equal(t, 1, adapter.getCount(2), "unknown id is fetched")
}

func TestForcedSynchronizeIgnoresKnownIDs(t *testing.T) {
	adapter := newFakeAdapter(1)
	controller, _ := newTestController(adapter)

	require.NoError(t, controller.Synchronize(context.Background(), true, map[int64]bool{1: true}))

	assert.Equal(t, 1, adapter.getCount(1), "forced run refreshes known ids too")
}

func TestForcedSynchronizeDrainsInFlightRun(t *testing.T) {
	// A stale non-forced run is in flight and would skip the known id.
	// A forced call issued meanwhile must wait it out and then run a
	// full batch of its own.
	adapter := newFakeAdapter(1)
	adapter.listGate = make(chan struct{}, 1)
	controller, _ := newTestController(adapter)

	staleDone := make(chan error, 1)
	go func() {
		staleDone <- controller.Synchronize(context.Background(), false, map[int64]bool{1: true})
	}()

	// Wait for the stale run to be inside ListRecentDeals.
	require.Eventually(t, func() bool {
		return adapter.listCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	forcedDone := make(chan error, 1)
	go func() {
		forcedDone <- controller.Synchronize(context.Background(), true, map[int64]bool{1: true})
	}()

	// Release both the stale and the forced batch.
	adapter.listGate <- struct{}{}
	adapter.listGate <- struct{}{}

	require.NoError(t, <-staleDone)
	require.NoError(t, <-forcedDone)

	assert.Equal(t, int64(2), adapter.listCalls.Load(), "forced call starts its own batch")
	assert.Equal(t, 1, adapter.getCount(1), "stale run skipped it, forced run fetched it")
}

func TestSynchronizeDeletesNotFoundDeals(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.notFound[99] = true
	controller, st := newTestController(adapter)
	require.NoError(t, st.PutDeal(models.DealRecord{ID: 99, Title: "stale"}))

	require.NoError(t, controller.Synchronize(context.Background(), true, nil))

	loaded, err := st.GetDeal(99)
	require.NoError(t, err)
	assert.Nil(t, loaded, "deal reported absent upstream is removed")
}

func TestSynchronizeSkipsFailingDeals(t *testing.T) {
	adapter := newFakeAdapter(1)
	adapter.failing[2] = true
	controller, st := newTestController(adapter)

	require.NoError(t, controller.Synchronize(context.Background(), true, nil),
		"a per-id failure never aborts the batch")

	loaded, err := st.GetDeal(1)
	require.NoError(t, err)
	assert.NotNil(t, loaded, "healthy deals still sync")

	loaded, err = st.GetDeal(2)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSynchronizeListFailurePropagates(t *testing.T) {
	adapter := newFakeAdapter(1)
	controller, _ := newTestController(adapter)

	// Swap the list behavior to a failure via a wrapping adapter.
	failing := &listFailAdapter{fakeAdapter: adapter}
	controller.adapter = failing

	err := controller.Synchronize(context.Background(), false, nil)
	assert.Error(t, err)
}

type listFailAdapter struct {
	*fakeAdapter
}

func (a *listFailAdapter) ListRecentDeals(_ context.Context, _ int) ([]any, error) {
	return nil, errors.New("listing down")
}
