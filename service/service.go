// ABOUTME: Synchronous query surface over the record store and sync controller
// ABOUTME: Exposes deal reads/writes, shared-state blobs and typed blob helpers
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harperreed/dealsync/canonical"
	"github.com/harperreed/dealsync/crm"
	"github.com/harperreed/dealsync/models"
	"github.com/harperreed/dealsync/store"
)

// ErrInvalidRequest is returned for caller mistakes: zero/negative ids,
// empty blob keys.
var ErrInvalidRequest = errors.New("invalid request")

// Well-known shared-state blob keys.
const (
	BlobCalendarEntries = "calendar_entries"
	BlobHiddenDealIDs   = "hidden_deal_ids"
	BlobManualDeals     = "manual_deals"
	BlobDealExtras      = "deal_extras"
)

// SourceAdapter is the slice of the CRM client the service uses for
// single-record refreshes.
type SourceAdapter interface {
	GetDeal(ctx context.Context, id int64) (map[string]any, error)
	GetDealProducts(ctx context.Context, id int64) ([]any, error)
	GetDealNotes(ctx context.Context, id int64) ([]any, error)
	GetDealFiles(ctx context.Context, id int64) ([]any, error)
}

// Synchronizer is the bulk-refresh entry point.
type Synchronizer interface {
	Synchronize(ctx context.Context, force bool, knownIDs map[int64]bool) error
}

// Service is the synchronous API surface consumed by the CLI and any
// embedding caller. All reads answer from the record store; Refresh and
// the forceRefresh path go upstream.
type Service struct {
	adapter SourceAdapter
	engine  *canonical.Engine
	store   *store.Store
	syncer  Synchronizer
	logger  *zap.Logger
}

// New creates a service.
func New(adapter SourceAdapter, engine *canonical.Engine, st *store.Store, syncer Synchronizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		adapter: adapter,
		engine:  engine,
		store:   st,
		syncer:  syncer,
		logger:  logger,
	}
}

// Refresh runs a bulk synchronization. Known ids are collected from the
// store so a non-forced run only fills the gaps.
func (s *Service) Refresh(ctx context.Context, force bool) error {
	knownIDs, err := s.store.DealIDs()
	if err != nil {
		return fmt.Errorf("collecting known deal ids: %w", err)
	}
	return s.syncer.Synchronize(ctx, force, knownIDs)
}

// Deals returns all stored canonical records ordered by id.
func (s *Service) Deals() ([]models.DealRecord, error) {
	return s.store.GetAllDeals()
}

// Deal returns one canonical record. With forceRefresh it re-fetches
// from upstream first; when that fails but a cached record exists, the
// cached record is returned with stale=true. An upstream not-found
// removes the record and reports it absent.
func (s *Service) Deal(ctx context.Context, id int64, forceRefresh bool) (*models.DealRecord, bool, error) {
	if id <= 0 {
		return nil, false, fmt.Errorf("%w: deal id must be positive", ErrInvalidRequest)
	}
	if !forceRefresh {
		rec, err := s.store.GetDeal(id)
		return rec, false, err
	}

	if err := s.refreshOne(ctx, id); err != nil {
		if errors.Is(err, crm.ErrNotFound) {
			if _, delErr := s.store.DeleteDeal(id); delErr != nil {
				return nil, false, delErr
			}
			return nil, false, nil
		}
		cached, cacheErr := s.store.GetDeal(id)
		if cacheErr == nil && cached != nil {
			s.logger.Warn("refresh failed, serving cached deal",
				zap.Int64("deal_id", id), zap.Error(err))
			return cached, true, nil
		}
		return nil, false, err
	}
	rec, err := s.store.GetDeal(id)
	return rec, false, err
}

func (s *Service) refreshOne(ctx context.Context, id int64) error {
	raw, err := s.adapter.GetDeal(ctx, id)
	if err != nil {
		return err
	}
	in := canonical.Input{Deal: raw}
	if products, err := s.adapter.GetDealProducts(ctx, id); err == nil {
		in.Products = products
	}
	if notes, err := s.adapter.GetDealNotes(ctx, id); err == nil {
		in.Notes = notes
	}
	if files, err := s.adapter.GetDealFiles(ctx, id); err == nil {
		in.Files = files
	}
	rec, err := s.engine.Canonicalize(ctx, in)
	if err != nil {
		return err
	}
	return s.store.PutDeal(*rec)
}

// SaveDeal stores a caller-supplied canonical record.
func (s *Service) SaveDeal(rec models.DealRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("%w: deal id is required", ErrInvalidRequest)
	}
	return s.store.PutDeal(rec)
}

// DeleteDeal removes a record, reporting whether it existed.
func (s *Service) DeleteDeal(id int64) (bool, error) {
	if id == 0 {
		return false, fmt.Errorf("%w: deal id is required", ErrInvalidRequest)
	}
	return s.store.DeleteDeal(id)
}

// Blob reads a raw shared-state value.
func (s *Service) Blob(key string) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: blob key is required", ErrInvalidRequest)
	}
	return s.store.GetBlob(key)
}

// PutBlob writes a raw shared-state value.
func (s *Service) PutBlob(key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("%w: blob key is required", ErrInvalidRequest)
	}
	return s.store.PutBlob(key, value)
}

// CalendarEntries returns all locally created calendar entries.
func (s *Service) CalendarEntries() ([]models.CalendarEntry, error) {
	var entries []models.CalendarEntry
	if err := s.readBlob(BlobCalendarEntries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddCalendarEntry appends an entry, assigning it a fresh id when the
// caller left one out.
func (s *Service) AddCalendarEntry(entry models.CalendarEntry) (models.CalendarEntry, error) {
	if entry.Title == "" {
		return models.CalendarEntry{}, fmt.Errorf("%w: calendar entry title is required", ErrInvalidRequest)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartAt.IsZero() {
		entry.StartAt = time.Now()
	}
	entries, err := s.CalendarEntries()
	if err != nil {
		return models.CalendarEntry{}, err
	}
	entries = append(entries, entry)
	if err := s.writeBlob(BlobCalendarEntries, entries); err != nil {
		return models.CalendarEntry{}, err
	}
	return entry, nil
}

// HiddenDealIDs returns the set of deal ids hidden from listings.
func (s *Service) HiddenDealIDs() (map[int64]bool, error) {
	var ids []int64
	if err := s.readBlob(BlobHiddenDealIDs, &ids); err != nil {
		return nil, err
	}
	hidden := make(map[int64]bool, len(ids))
	for _, id := range ids {
		hidden[id] = true
	}
	return hidden, nil
}

// SetHiddenDealIDs replaces the hidden-id set.
func (s *Service) SetHiddenDealIDs(hidden map[int64]bool) error {
	ids := make([]int64, 0, len(hidden))
	for id, on := range hidden {
		if on {
			ids = append(ids, id)
		}
	}
	return s.writeBlob(BlobHiddenDealIDs, ids)
}

// HideDeal adds one id to the hidden set.
func (s *Service) HideDeal(id int64) error {
	if id == 0 {
		return fmt.Errorf("%w: deal id is required", ErrInvalidRequest)
	}
	hidden, err := s.HiddenDealIDs()
	if err != nil {
		return err
	}
	hidden[id] = true
	return s.SetHiddenDealIDs(hidden)
}

// ManualDeals returns locally authored deals that have no upstream
// counterpart.
func (s *Service) ManualDeals() ([]models.DealRecord, error) {
	var deals []models.DealRecord
	if err := s.readBlob(BlobManualDeals, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// SaveManualDeals replaces the manual-deal list.
func (s *Service) SaveManualDeals(deals []models.DealRecord) error {
	return s.writeBlob(BlobManualDeals, deals)
}

// DealExtras returns the free-form extra payload stored for one deal.
func (s *Service) DealExtras(dealID int64) (json.RawMessage, error) {
	extras, err := s.allExtras()
	if err != nil {
		return nil, err
	}
	return extras[strconv.FormatInt(dealID, 10)], nil
}

// SetDealExtras replaces the extra payload for one deal.
func (s *Service) SetDealExtras(dealID int64, value json.RawMessage) error {
	if dealID == 0 {
		return fmt.Errorf("%w: deal id is required", ErrInvalidRequest)
	}
	extras, err := s.allExtras()
	if err != nil {
		return err
	}
	if extras == nil {
		extras = map[string]json.RawMessage{}
	}
	extras[strconv.FormatInt(dealID, 10)] = value
	return s.writeBlob(BlobDealExtras, extras)
}

func (s *Service) allExtras() (map[string]json.RawMessage, error) {
	var extras map[string]json.RawMessage
	if err := s.readBlob(BlobDealExtras, &extras); err != nil {
		return nil, err
	}
	return extras, nil
}

func (s *Service) readBlob(key string, out any) error {
	blob, err := s.store.GetBlob(key)
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *Service) writeBlob(key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.store.PutBlob(key, blob)
}
