// ABOUTME: Durable key-addressed storage for canonical deals and shared blobs
// ABOUTME: SQLite-backed with a transparent in-process fallback cache when unavailable
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/harperreed/dealsync/models"
)

// Store persists canonical deal records and generic shared-state blobs.
// When the durable backend is unreachable or unconfigured every
// operation transparently serves from the in-process cache; callers
// never branch on which backend answered. A successful write always
// updates the cache synchronously, so a read following a write in the
// same process observes it even if the durable write degraded.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	schemaOnce sync.Once
	schemaErr  error

	degradeOnce sync.Once

	mu       sync.RWMutex
	degraded bool
	deals    map[int64]models.DealRecord
	blobs    map[string]models.SharedStateEntry
}

// Open creates a store at path. An empty path means memory-only mode,
// logged once. A failure to open the database also degrades to memory
// mode rather than failing construction.
func Open(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger: logger,
		deals:  map[int64]models.DealRecord{},
		blobs:  map[string]models.SharedStateEntry{},
	}
	if path == "" {
		s.markDegraded(fmt.Errorf("no database path configured"))
		return s
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.markDegraded(err)
		return s
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		s.markDegraded(err)
		return s
	}
	// Single connection avoids sqlite "database is locked" errors.
	db.SetMaxOpenConns(1)
	s.db = db
	return s
}

// Close releases the durable backend.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// EnsureSchema creates the tables. It memoizes its own result so setup
// happens at most once, no matter how many callers race into it.
func (s *Store) EnsureSchema() error {
	s.schemaOnce.Do(func() {
		if s.db == nil {
			return
		}
		if err := initSchema(s.db); err != nil {
			s.schemaErr = err
			s.markDegraded(err)
		}
	})
	return s.schemaErr
}

// markDegraded flips the store into memory mode for the process
// lifetime, logging the transition exactly once.
func (s *Store) markDegraded(cause error) {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
	s.degradeOnce.Do(func() {
		s.logger.Warn("durable store unavailable, serving from in-process cache",
			zap.Error(cause))
	})
}

func (s *Store) durable() bool {
	if s.db == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.degraded
}

// PutDeal replaces the canonical record for its id.
func (s *Store) PutDeal(rec models.DealRecord) error {
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			if err := s.writeDealRow(rec); err != nil {
				s.markDegraded(err)
			}
		}
	}
	s.mu.Lock()
	s.deals[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *Store) writeDealRow(rec models.DealRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serializing deal %d: %w", rec.ID, err)
	}
	var wonAt any
	if rec.WonAt != nil {
		wonAt = *rec.WonAt
	}
	var pipelineID any
	if rec.PipelineID != nil {
		pipelineID = *rec.PipelineID
	}
	_, err = s.db.Exec(`
		INSERT INTO deals (id, title, client_name, pipeline_id, pipeline_name, won_at, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			client_name = excluded.client_name,
			pipeline_id = excluded.pipeline_id,
			pipeline_name = excluded.pipeline_name,
			won_at = excluded.won_at,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Title, rec.ClientName(), pipelineID, rec.PipelineName, wonAt, string(payload), time.Now())
	return err
}

// GetDeal returns the canonical record for id, or nil when absent.
func (s *Store) GetDeal(id int64) (*models.DealRecord, error) {
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			var payload string
			err := s.db.QueryRow(`SELECT payload FROM deals WHERE id = ?`, id).Scan(&payload)
			switch {
			case err == sql.ErrNoRows:
				return nil, nil
			case err != nil:
				s.markDegraded(err)
			default:
				var rec models.DealRecord
				if err := json.Unmarshal([]byte(payload), &rec); err != nil {
					return nil, fmt.Errorf("deserializing deal %d: %w", id, err)
				}
				return &rec, nil
			}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.deals[id]; ok {
		copied := rec
		return &copied, nil
	}
	return nil, nil
}

// GetAllDeals returns every canonical record ordered by id.
func (s *Store) GetAllDeals() ([]models.DealRecord, error) {
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			rows, err := s.db.Query(`SELECT payload FROM deals ORDER BY id`)
			if err != nil {
				s.markDegraded(err)
			} else {
				defer func() { _ = rows.Close() }()
				var out []models.DealRecord
				for rows.Next() {
					var payload string
					if err := rows.Scan(&payload); err != nil {
						return nil, err
					}
					var rec models.DealRecord
					if err := json.Unmarshal([]byte(payload), &rec); err != nil {
						return nil, fmt.Errorf("deserializing deal payload: %w", err)
					}
					out = append(out, rec)
				}
				return out, rows.Err()
			}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DealRecord, 0, len(s.deals))
	for _, rec := range s.deals {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DealIDs returns the set of ids currently stored. The synchronization
// controller uses it for the known-ids skip.
func (s *Store) DealIDs() (map[int64]bool, error) {
	deals, err := s.GetAllDeals()
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool, len(deals))
	for _, rec := range deals {
		ids[rec.ID] = true
	}
	return ids, nil
}

// DeleteDeal removes a record, reporting whether it existed.
func (s *Store) DeleteDeal(id int64) (bool, error) {
	existedDurable := false
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			res, err := s.db.Exec(`DELETE FROM deals WHERE id = ?`, id)
			if err != nil {
				s.markDegraded(err)
			} else if n, err := res.RowsAffected(); err == nil && n > 0 {
				existedDurable = true
			}
		}
	}
	s.mu.Lock()
	_, existedLocal := s.deals[id]
	delete(s.deals, id)
	s.mu.Unlock()
	return existedDurable || existedLocal, nil
}

// PutBlob stores an opaque JSON value under key.
func (s *Store) PutBlob(key string, value json.RawMessage) error {
	now := time.Now()
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			_, err := s.db.Exec(`
				INSERT INTO shared_state (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, string(value), now)
			if err != nil {
				s.markDegraded(err)
			}
		}
	}
	s.mu.Lock()
	s.blobs[key] = models.SharedStateEntry{Key: key, Value: append(json.RawMessage(nil), value...), UpdatedAt: now}
	s.mu.Unlock()
	return nil
}

// GetBlob returns the value stored under key, or nil when absent.
func (s *Store) GetBlob(key string) (json.RawMessage, error) {
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			var value string
			err := s.db.QueryRow(`SELECT value FROM shared_state WHERE key = ?`, key).Scan(&value)
			switch {
			case err == sql.ErrNoRows:
				return nil, nil
			case err != nil:
				s.markDegraded(err)
			default:
				return json.RawMessage(value), nil
			}
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.blobs[key]; ok {
		return append(json.RawMessage(nil), entry.Value...), nil
	}
	return nil, nil
}

// DeleteBlob removes a shared-state entry, reporting whether it existed.
func (s *Store) DeleteBlob(key string) (bool, error) {
	existedDurable := false
	if s.durable() {
		if err := s.EnsureSchema(); err == nil {
			res, err := s.db.Exec(`DELETE FROM shared_state WHERE key = ?`, key)
			if err != nil {
				s.markDegraded(err)
			} else if n, err := res.RowsAffected(); err == nil && n > 0 {
				existedDurable = true
			}
		}
	}
	s.mu.Lock()
	_, existedLocal := s.blobs[key]
	delete(s.blobs, key)
	s.mu.Unlock()
	return existedDurable || existedLocal, nil
}
