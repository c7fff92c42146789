// ABOUTME: Tests for the custom-field metadata resolver
// ABOUTME: Covers TTL behavior, fail-open loading and alias/option resolution
package fields

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/dealsync/canonical"
	"github.com/harperreed/dealsync/store"
)

// fakeLister serves canned field definitions and counts fetches.
type fakeLister struct {
	fields []any
	err    error
	calls  int
}

func (f *fakeLister) ListDealFields(_ context.Context) ([]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

func locationField() []any {
	return []any{
		map[string]any{
			"key":  "9b4c2f1ad64209b7fbd167db983baa5c9a7e35dc",
			"name": "Lieu de Formation",
			"options": []any{
				map[string]any{"id": float64(31), "label": "Paris"},
				map[string]any{"id": float64(32), "label": "Lyon"},
			},
		},
	}
}

func newTestResolver(lister Lister, st *store.Store) *Resolver {
	r := NewResolver(lister, st, nil)
	return r
}

func TestResolveByKeyNameAndLogicalAlias(t *testing.T) {
	lister := &fakeLister{fields: locationField()}
	r := newTestResolver(lister, store.Open("", nil))
	ctx := context.Background()

	// Raw key, snake_case name, camelCase name, normalized name and the
	// logical alias all reach the same option table.
	for _, alias := range []string{
		"9b4c2f1ad64209b7fbd167db983baa5c9a7e35dc",
		"lieu_de_formation",
		"lieuDeFormation",
		"lieu de formation",
		canonical.FieldLocation,
	} {
		assert.Equal(t, "Paris", r.Resolve(ctx, alias, "31"), "alias %q", alias)
	}

	// A value already holding the label resolves to itself.
	assert.Equal(t, "Lyon", r.Resolve(ctx, canonical.FieldLocation, "lyon"))
}

func TestResolvePassthroughOnMiss(t *testing.T) {
	lister := &fakeLister{fields: locationField()}
	r := newTestResolver(lister, store.Open("", nil))
	ctx := context.Background()

	assert.Equal(t, "99", r.Resolve(ctx, canonical.FieldLocation, "99"), "unknown option passes through")
	assert.Equal(t, "31", r.Resolve(ctx, "unknown_field", "31"), "unknown field passes through")
}

func TestLoadHonorsTTL(t *testing.T) {
	lister := &fakeLister{fields: locationField()}
	r := newTestResolver(lister, store.Open("", nil))

	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := t0
	r.now = func() time.Time { return now }

	ctx := context.Background()
	r.Load(ctx)
	require.Equal(t, 1, lister.calls)

	// One hour later: still fresh, served from memory.
	now = t0.Add(1 * time.Hour)
	r.Load(ctx)
	assert.Equal(t, 1, lister.calls)

	// Seven hours later: past the 6h TTL, refetched.
	now = t0.Add(7 * time.Hour)
	r.Load(ctx)
	assert.Equal(t, 2, lister.calls)
}

func TestLoadFailOpenWithLastKnown(t *testing.T) {
	lister := &fakeLister{fields: locationField()}
	r := newTestResolver(lister, store.Open("", nil))

	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := t0
	r.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Equal(t, "Paris", r.Resolve(ctx, canonical.FieldLocation, "31"))

	// Upstream starts failing after the TTL expires; the stale map
	// keeps serving.
	lister.err = errors.New("upstream down")
	now = t0.Add(8 * time.Hour)
	assert.Equal(t, "Paris", r.Resolve(ctx, canonical.FieldLocation, "31"))
}

func TestLoadFailOpenWithNothingCached(t *testing.T) {
	lister := &fakeLister{err: errors.New("upstream down")}
	r := newTestResolver(lister, store.Open("", nil))
	ctx := context.Background()

	// No cache, no upstream: resolution degrades to passthrough, never
	// an error or panic.
	assert.Equal(t, "31", r.Resolve(ctx, canonical.FieldLocation, "31"))
	options := r.Load(ctx)
	assert.Empty(t, options)
}

func TestLoadPersistsAcrossInstances(t *testing.T) {
	st := store.Open("", nil)
	lister := &fakeLister{fields: locationField()}
	first := newTestResolver(lister, st)
	first.Load(context.Background())
	require.Equal(t, 1, lister.calls)

	// A second resolver over the same store starts from the persisted
	// copy without fetching.
	second := newTestResolver(&fakeLister{err: errors.New("should not be called")}, st)
	assert.Equal(t, "Paris", second.Resolve(context.Background(), canonical.FieldLocation, "31"))
}

func TestResetForcesReload(t *testing.T) {
	// No store here: a persisted copy would satisfy the reload and hide
	// the refetch we are asserting on.
	lister := &fakeLister{fields: locationField()}
	r := newTestResolver(lister, nil)
	ctx := context.Background()

	r.Load(ctx)
	r.Load(ctx)
	require.Equal(t, 1, lister.calls)

	r.Reset()
	r.Load(ctx)
	assert.Equal(t, 2, lister.calls)
}
