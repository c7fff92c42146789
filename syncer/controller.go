// ABOUTME: Synchronization controller refreshing the record store from the CRM
// ABOUTME: Single-flights concurrent refreshes and supports a forced full resync
package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/harperreed/dealsync/canonical"
	"github.com/harperreed/dealsync/crm"
	"github.com/harperreed/dealsync/store"
)

// SourceAdapter is the slice of the CRM client the controller uses.
type SourceAdapter interface {
	ListRecentDeals(ctx context.Context, limit int) ([]any, error)
	GetDeal(ctx context.Context, id int64) (map[string]any, error)
	GetDealProducts(ctx context.Context, id int64) ([]any, error)
	GetDealNotes(ctx context.Context, id int64) ([]any, error)
	GetDealFiles(ctx context.Context, id int64) ([]any, error)
}

// flight is one in-progress sync run. Any number of callers may wait on
// done and read err afterwards.
type flight struct {
	done chan struct{}
	err  error
}

// Controller orchestrates bulk refreshes. The mutex-guarded inflight
// slot is the concurrency mechanism: concurrent non-forced calls attach
// to the running flight instead of starting a duplicate upstream batch.
type Controller struct {
	adapter SourceAdapter
	engine  *canonical.Engine
	store   *store.Store
	logger  *zap.Logger
	limit   int

	mu       sync.Mutex
	inflight *flight
}

// NewController creates a synchronization controller.
func NewController(adapter SourceAdapter, engine *canonical.Engine, st *store.Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		adapter: adapter,
		engine:  engine,
		store:   st,
		logger:  logger,
		limit:   500,
	}
}

// Synchronize refreshes the record store from the upstream source.
//
// Forced calls first await any in-flight run (swallowing its error) and
// clear the slot, so the fresh authoritative batch is never
// short-circuited by a stale one. Non-forced calls attach to an
// existing run when there is one. knownIDs enables the incremental
// fill-the-gaps mode: ids already present are skipped unless forced.
//
// The batch itself runs on a background context; a superseded or
// abandoned run keeps issuing its upstream calls and only its result is
// discarded.
func (c *Controller) Synchronize(ctx context.Context, force bool, knownIDs map[int64]bool) error {
	c.mu.Lock()
	if force && c.inflight != nil {
		stale := c.inflight
		c.mu.Unlock()
		<-stale.done
		c.mu.Lock()
		if c.inflight == stale {
			c.inflight = nil
		}
	}

	if c.inflight != nil {
		current := c.inflight
		c.mu.Unlock()
		return c.wait(ctx, current)
	}

	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	go func() {
		err := c.run(force, knownIDs)
		f.err = err
		c.mu.Lock()
		if c.inflight == f {
			c.inflight = nil
		}
		c.mu.Unlock()
		close(f.done)
	}()

	return c.wait(ctx, f)
}

// wait blocks until the flight finishes or the caller gives up. Giving
// up does not cancel the run.
func (c *Controller) wait(ctx context.Context, f *flight) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one batch: list recent ids, then fetch, canonicalize and
// store each one. A per-id failure is logged and skipped; it never
// aborts the batch.
func (c *Controller) run(force bool, knownIDs map[int64]bool) error {
	ctx := context.Background()
	runID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
	logger := c.logger.With(zap.String("sync_run", runID), zap.Bool("force", force))

	recent, err := c.adapter.ListRecentDeals(ctx, c.limit)
	if err != nil {
		logger.Warn("listing recent deals failed", zap.Error(err))
		return fmt.Errorf("listing recent deals: %w", err)
	}
	logger.Info("sync started", zap.Int("candidates", len(recent)))

	synced, skipped, failed := 0, 0, 0
	for _, raw := range recent {
		id, ok := dealID(raw)
		if !ok {
			failed++
			logger.Warn("skipping listed deal without numeric id")
			continue
		}
		if !force && knownIDs[id] {
			skipped++
			continue
		}
		if err := c.refreshOne(ctx, id); err != nil {
			failed++
			logger.Warn("deal refresh failed", zap.Int64("deal_id", id), zap.Error(err))
			continue
		}
		synced++
	}

	logger.Info("sync finished",
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))
	return nil
}

// refreshOne fetches, canonicalizes and stores a single deal. An
// upstream not-found is a deletion signal, not a failure.
func (c *Controller) refreshOne(ctx context.Context, id int64) error {
	raw, err := c.adapter.GetDeal(ctx, id)
	if errors.Is(err, crm.ErrNotFound) {
		if _, delErr := c.store.DeleteDeal(id); delErr != nil {
			return delErr
		}
		c.logger.Info("deal gone upstream, removed from store", zap.Int64("deal_id", id))
		return nil
	}
	if err != nil {
		return err
	}

	in := canonical.Input{Deal: raw}
	if products, err := c.adapter.GetDealProducts(ctx, id); err == nil {
		in.Products = products
	}
	if notes, err := c.adapter.GetDealNotes(ctx, id); err == nil {
		in.Notes = notes
	}
	if files, err := c.adapter.GetDealFiles(ctx, id); err == nil {
		in.Files = files
	}

	rec, err := c.engine.Canonicalize(ctx, in)
	if err != nil {
		return err
	}
	return c.store.PutDeal(*rec)
}

// dealID pulls the numeric id out of one listed deal entry.
func dealID(raw any) (int64, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	records := canonical.CollectCandidateRecords(obj)
	return canonical.FindFirstInt(records, []string{"id", "deal_id", "dealId"})
}
